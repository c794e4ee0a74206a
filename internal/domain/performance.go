package domain

import "sort"

// Portfolio is a (units, cash) pair to be scored. Cash is in subunits.
type Portfolio struct {
	Cash  int64
	Units map[string]int
}

// Clone returns a deep copy of p.
func (p Portfolio) Clone() Portfolio {
	c := Portfolio{Cash: p.Cash, Units: make(map[string]int, len(p.Units))}
	for k, v := range p.Units {
		c.Units[k] = v
	}
	return c
}

// WithTrade returns a copy of p after one unit of asset is bought or sold
// at price. p itself is never modified.
func (p Portfolio) WithTrade(asset string, price int64, side Side) Portfolio {
	c := p.Clone()
	switch side {
	case SideBuy:
		c.Cash -= price
		c.Units[asset]++
	case SideSell:
		c.Cash += price
		c.Units[asset]--
	}
	return c
}

// Evaluator scores portfolios with the mean-variance performance measure.
type Evaluator struct {
	model       *PayoffModel
	riskPenalty float64
}

// NewEvaluator creates an evaluator backed by model.
func NewEvaluator(model *PayoffModel, riskPenalty float64) *Evaluator {
	return &Evaluator{model: model, riskPenalty: riskPenalty}
}

// RiskPenalty returns b in E - b·Var.
func (e *Evaluator) RiskPenalty() float64 { return e.riskPenalty }

// Moments returns the expected payoff and payoff variance of p.
//
//	expected = cash + Σ u_a·E[a]
//	variance = Σ u_a²·Var[a] + Σ_{a<b} 2·u_a·u_b·Cov[a,b]
//
// Assets are visited in sorted order so the float sums do not depend on
// map iteration order.
func (e *Evaluator) Moments(p Portfolio) (expected, variance float64) {
	assets := make([]string, 0, len(p.Units))
	for a, u := range p.Units {
		if u != 0 {
			assets = append(assets, a)
		}
	}
	sort.Strings(assets)

	expected = ToCurrency(p.Cash, e.model.Scale())
	for i, a := range assets {
		ua := float64(p.Units[a])
		expected += ua * e.model.ExpectedPayoff(a)
		variance += ua * ua * e.model.Variance(a)
		for _, b := range assets[i+1:] {
			variance += 2 * ua * float64(p.Units[b]) * e.model.Covariance(a, b)
		}
	}
	return expected, variance
}

// Score returns expected - riskPenalty × variance for p.
func (e *Evaluator) Score(p Portfolio) float64 {
	expected, variance := e.Moments(p)
	return expected - e.riskPenalty*variance
}

// ScoreWithTrade scores p as if one extra unit of asset had been traded
// at price on the given side.
func (e *Evaluator) ScoreWithTrade(p Portfolio, asset string, price int64, side Side) float64 {
	return e.Score(p.WithTrade(asset, price, side))
}
