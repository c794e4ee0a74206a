package ports

import (
	"context"

	"github.com/alejandrodnm/capmbot/internal/domain"
)

// OrderSender transmits orders to the marketplace.
// Transmission is fire-and-forget: acceptance or rejection arrives later
// as a separate event.
type OrderSender interface {
	SendOrder(ctx context.Context, req domain.OrderRequest) error
}
