package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParsePayoffs parses a market description such as "10,20,30,40" into
// per-state payoffs in subunits.
func ParsePayoffs(description string) ([]int64, error) {
	fields := strings.Split(description, ",")
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			return nil, fmt.Errorf("domain.ParsePayoffs: %w: empty value in %q", ErrMalformedPayoffs, description)
		}
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("domain.ParsePayoffs: %w: %q: %v", ErrMalformedPayoffs, description, err)
		}
		out = append(out, v)
	}
	return out, nil
}

type assetPair struct {
	a, b string
}

// PayoffModel caches per-asset expected payoff, variance and pairwise
// covariance derived from state-payoff vectors. All states are equally
// likely (probability 1/N).
type PayoffModel struct {
	scale      int64
	states     int
	assets     []string
	expected   map[string]float64
	variance   map[string]float64
	covariance map[assetPair]float64
	generation int
}

// NewPayoffModel creates an empty model that scales payoffs by scale
// subunits per currency unit.
func NewPayoffModel(scale int64) *PayoffModel {
	if scale <= 0 {
		scale = DefaultScale
	}
	return &PayoffModel{
		scale:      scale,
		expected:   map[string]float64{},
		variance:   map[string]float64{},
		covariance: map[assetPair]float64{},
	}
}

// Recompute replaces the cached statistics with those of payoffs.
//
//	x_i       = payoff_i / scale
//	E[a]      = Σ x_i × 1/N
//	Var[a]    = Σ (x_i - E[a])² / N
//	Cov[a,b]  = Σ (x_i - E[a])(y_i - E[b]) / N
//
// Population (biased) estimators throughout. Nothing changes on error.
func (m *PayoffModel) Recompute(payoffs map[string][]int64) error {
	if len(payoffs) == 0 {
		return fmt.Errorf("domain.Recompute: %w: no assets", ErrMalformedPayoffs)
	}

	assets := make([]string, 0, len(payoffs))
	for a := range payoffs {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	n := len(payoffs[assets[0]])
	if n == 0 {
		return fmt.Errorf("domain.Recompute: %w: %s has no states", ErrMalformedPayoffs, assets[0])
	}
	for _, a := range assets {
		if len(payoffs[a]) != n {
			return fmt.Errorf("domain.Recompute: %w: %s has %d states, want %d",
				ErrMalformedPayoffs, a, len(payoffs[a]), n)
		}
	}

	prob := 1.0 / float64(n)
	scaled := make(map[string][]float64, len(assets))
	expected := make(map[string]float64, len(assets))
	variance := make(map[string]float64, len(assets))

	for _, a := range assets {
		xs := make([]float64, n)
		sum := 0.0
		for i, v := range payoffs[a] {
			xs[i] = ToCurrency(v, m.scale)
			sum += xs[i]
		}
		scaled[a] = xs
		expected[a] = sum * prob
		variance[a] = centredProduct(xs, xs, expected[a], expected[a]) / float64(n)
	}

	covariance := make(map[assetPair]float64, len(assets)*(len(assets)-1))
	for i, a := range assets {
		for _, b := range assets[i+1:] {
			c := centredProduct(scaled[a], scaled[b], expected[a], expected[b]) / float64(n)
			covariance[assetPair{a, b}] = c
			covariance[assetPair{b, a}] = c
		}
	}

	m.states = n
	m.assets = assets
	m.expected = expected
	m.variance = variance
	m.covariance = covariance
	m.generation++
	return nil
}

func centredProduct(xs, ys []float64, mx, my float64) float64 {
	total := 0.0
	for i := range xs {
		total += (xs[i] - mx) * (ys[i] - my)
	}
	return total
}

// ExpectedPayoff returns the expected unit payoff of asset in currency units.
func (m *PayoffModel) ExpectedPayoff(asset string) float64 { return m.expected[asset] }

// Variance returns the payoff variance of one unit of asset.
func (m *PayoffModel) Variance(asset string) float64 { return m.variance[asset] }

// Covariance returns Cov[a,b]; either ordering gives the same value.
func (m *PayoffModel) Covariance(a, b string) float64 {
	if a == b {
		return m.variance[a]
	}
	return m.covariance[assetPair{a, b}]
}

// Assets returns the modelled assets in sorted order.
func (m *PayoffModel) Assets() []string {
	out := make([]string, len(m.assets))
	copy(out, m.assets)
	return out
}

// Has reports whether asset is part of the model.
func (m *PayoffModel) Has(asset string) bool {
	_, ok := m.expected[asset]
	return ok
}

// States returns N, the number of equally likely states.
func (m *PayoffModel) States() int { return m.states }

// Scale returns the subunits-per-currency-unit factor.
func (m *PayoffModel) Scale() int64 { return m.scale }

// Generation counts successful recomputes.
func (m *PayoffModel) Generation() int { return m.generation }

// Empty reports whether no statistics have been computed yet.
func (m *PayoffModel) Empty() bool { return len(m.assets) == 0 }
