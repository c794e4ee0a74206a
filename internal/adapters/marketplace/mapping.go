package marketplace

import (
	"log/slog"

	"github.com/alejandrodnm/capmbot/internal/domain"
)

// mapMarkets convierte los DTOs del catálogo a domain.Market.
func mapMarkets(raw []marketDTO) []domain.Market {
	markets := make([]domain.Market, 0, len(raw))
	for _, r := range raw {
		markets = append(markets, mapMarket(r))
	}
	return markets
}

func mapMarket(r marketDTO) domain.Market {
	return domain.Market{
		ID:            r.ID,
		Asset:         r.Item,
		Name:          r.Name,
		Description:   r.Description,
		MinPrice:      r.MinimumPrice,
		MaxPrice:      r.MaximumPrice,
		PriceTick:     r.PriceTick,
		MaxOpenOrders: r.MaxOpenOrders,
	}
}

func mapSession(r sessionDTO) domain.Session {
	return domain.Session{Open: r.Open, Markets: mapMarkets(r.Markets)}
}

func mapHoldings(r holdingsDTO) domain.Holdings {
	h := domain.Holdings{
		Cash:          r.Cash,
		CashAvailable: r.CashAvailable,
		Assets:        make(map[string]domain.AssetHolding, len(r.Assets)),
	}
	for asset, a := range r.Assets {
		h.Assets[asset] = domain.AssetHolding{Units: a.Units, UnitsAvailable: a.UnitsAvailable}
	}
	return h
}

// mapOrders convierte el libro completo preservando el orden de entrega.
// Entries with an unknown side are dropped.
func mapOrders(raw []orderDTO) []domain.BookOrder {
	out := make([]domain.BookOrder, 0, len(raw))
	for _, r := range raw {
		side, err := domain.ParseSide(r.Side)
		if err != nil {
			slog.Warn("marketplace: skipping order", "id", r.ID, "err", err)
			continue
		}
		out = append(out, domain.BookOrder{
			ID:        r.ID,
			Ref:       r.Ref,
			MarketID:  r.Market,
			Side:      side,
			Price:     r.Price,
			Units:     r.Units,
			Pending:   r.Pending,
			Cancelled: r.Cancelled,
			Traded:    r.Traded,
			Mine:      r.Mine,
		})
	}
	return out
}

func toOrderRequest(req domain.OrderRequest) orderRequestDTO {
	return orderRequestDTO{
		Ref:    req.Ref,
		Market: req.MarketID,
		Side:   req.Side.String(),
		Type:   req.Type.String(),
		Price:  req.Price,
		Units:  req.Units,
	}
}
