package domain

// Market is one tradeable asset market of the marketplace catalog.
// Prices are integer subunits (cents).
type Market struct {
	ID            int
	Asset         string // item traded in this market
	Name          string
	Description   string // per-state payoffs, comma separated, in subunits
	MinPrice      int64
	MaxPrice      int64
	PriceTick     int64
	MaxOpenOrders int
}

// Tick returns the price increment of the market, never less than 1.
func (m Market) Tick() int64 {
	if m.PriceTick <= 0 {
		return 1
	}
	return m.PriceTick
}

// InBounds reports whether price lies inside [MinPrice, MaxPrice].
func (m Market) InBounds(price int64) bool {
	return price >= m.MinPrice && price <= m.MaxPrice
}

// Midpoint returns the middle of the price range, aligned down to the tick grid.
func (m Market) Midpoint() int64 {
	mid := (m.MinPrice + m.MaxPrice) / 2
	return m.MinPrice + ((mid-m.MinPrice)/m.Tick())*m.Tick()
}

// Session is the marketplace session state as reported by the collaborator.
// Markets is optional: when present it carries a refreshed catalog.
type Session struct {
	Open    bool
	Markets []Market
}

// OrderAck is the marketplace's answer to a submitted order, delivered
// as a separate event after submission.
type OrderAck struct {
	Ref      string
	Accepted bool
	Reason   string
}
