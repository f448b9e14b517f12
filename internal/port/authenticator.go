package port

import (
	"context"
	"errors"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Credentials struct {
	CustomerID string
	Token      string
}

type Authenticator interface {
	// Authenticate resolves credentials to a customer ID
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}
