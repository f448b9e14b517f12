package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type EventPublisher interface {
	// PublishOrderPlaced announces a committed order
	PublishOrderPlaced(ctx context.Context, order domain.Order) error
}

type NopPublisher struct{}

func (NopPublisher) PublishOrderPlaced(context.Context, domain.Order) error { return nil }
