package ports

import (
	"context"

	"github.com/alejandrodnm/capmbot/internal/domain"
)

// Marketplace is the collaborator the runner polls to produce bot events.
type Marketplace interface {
	OrderSender

	// FetchMarkets returns the market catalog.
	FetchMarkets(ctx context.Context) ([]domain.Market, error)

	// FetchSession returns whether the trading session is open.
	FetchSession(ctx context.Context) (domain.Session, error)

	// FetchHoldings returns the agent's current settled holdings.
	FetchHoldings(ctx context.Context) (domain.Holdings, error)

	// FetchOrderBook returns every known order, ours included, in a stable order.
	FetchOrderBook(ctx context.Context) ([]domain.BookOrder, error)

	// DrainAcks returns the acceptance/rejection results produced since the
	// previous call, in submission order.
	DrainAcks(ctx context.Context) ([]domain.OrderAck, error)
}
