package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/rl1809/storefront/internal/port"
)

const headerCustomerID = "X-Customer-ID"

// HeaderAuthenticator trusts the customer ID set by an upstream gateway.
// Token verification belongs to the identity provider in front of the
// service.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(_ context.Context, creds port.Credentials) (string, error) {
	if creds.CustomerID == "" {
		return "", port.ErrUnauthenticated
	}
	return creds.CustomerID, nil
}

// credentialsFrom reports whether the request carries any identity at all.
func credentialsFrom(r *http.Request) (port.Credentials, bool) {
	creds := port.Credentials{
		CustomerID: strings.TrimSpace(r.Header.Get(headerCustomerID)),
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		creds.Token = strings.TrimSpace(token)
	}
	return creds, creds.CustomerID != "" || creds.Token != ""
}
