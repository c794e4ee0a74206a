package domain

// BookOrder is one entry of the marketplace's order-book snapshot.
// The snapshot holds every known order, ours and others', in delivery order.
type BookOrder struct {
	ID        string
	Ref       string
	MarketID  int
	Side      Side
	Price     int64
	Units     int
	Pending   bool
	Cancelled bool
	Traded    bool
	Mine      bool
}

// Public reports whether the entry is a live order from another participant.
func (o BookOrder) Public() bool {
	return o.Pending && !o.Mine && !o.Cancelled
}

// BestBidAsk derives a starting bid and ask for a market from the snapshot.
//
// The bid starts at MinPrice and is raised by every public BUY; the ask
// starts at MaxPrice and is lowered by every public SELL. A bound no order
// moved falls back to the market midpoint.
func BestBidAsk(m Market, book []BookOrder) (bid, ask int64) {
	bid, ask = m.MinPrice, m.MaxPrice
	bidMoved, askMoved := false, false

	for _, o := range book {
		if o.MarketID != m.ID || !o.Public() {
			continue
		}
		switch o.Side {
		case SideBuy:
			if o.Price > bid {
				bid = o.Price
				bidMoved = true
			}
		case SideSell:
			if o.Price < ask {
				ask = o.Price
				askMoved = true
			}
		}
	}

	if !bidMoved {
		bid = m.Midpoint()
	}
	if !askMoved {
		ask = m.Midpoint()
	}
	return bid, ask
}
