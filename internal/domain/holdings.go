package domain

// AssetHolding is the agent's position in one asset.
// Units may be negative (short). UnitsAvailable excludes units committed
// to outstanding sell orders.
type AssetHolding struct {
	Units          int
	UnitsAvailable int
}

// Holdings is a holdings report from the marketplace, keyed by asset.
type Holdings struct {
	Cash          int64
	CashAvailable int64
	Assets        map[string]AssetHolding
}

// Settled returns the settled portfolio: reported cash and units, without
// anything still resting in outstanding orders.
func (h Holdings) Settled() Portfolio {
	p := Portfolio{Cash: h.Cash, Units: make(map[string]int, len(h.Assets))}
	for asset, a := range h.Assets {
		p.Units[asset] = a.Units
	}
	return p
}

// UnitsAvailable returns the uncommitted units of asset.
func (h Holdings) UnitsAvailable(asset string) int {
	return h.Assets[asset].UnitsAvailable
}

// Clone returns a deep copy of h.
func (h Holdings) Clone() Holdings {
	c := Holdings{Cash: h.Cash, CashAvailable: h.CashAvailable, Assets: make(map[string]AssetHolding, len(h.Assets))}
	for k, v := range h.Assets {
		c.Assets[k] = v
	}
	return c
}
