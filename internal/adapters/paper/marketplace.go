package paper

// marketplace.go: marketplace simulado en memoria para el modo -paper.
//
// Noise traders post one-unit limit orders around each asset's expected
// payoff. The agent's resting orders are crossed against them on every
// Step with price-time priority: the order that rested first sets the
// price. Sessions open and close on a step schedule.

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"

	"github.com/alejandrodnm/capmbot/internal/domain"
	"github.com/google/uuid"
)

// Config parametriza la simulación.
type Config struct {
	Markets       []domain.Market
	Cash          int64 // initial agent cash, subunits
	Units         int   // initial agent units per asset
	NoiseOrders   int   // noise orders posted per market per step
	Spread        int64 // max distance of noise prices from the expected payoff, subunits
	NoiseTTL      int   // steps a noise order rests before it is cancelled
	SessionLength int   // steps per session, 0 = never close
	SessionGap    int   // closed steps between sessions
	Seed          int64
}

type entry struct {
	domain.BookOrder
	seq   int
	born  int
	limit int64 // reserved amount for agent buys
}

// Marketplace implements ports.Marketplace over an in-memory book.
// Safe for concurrent use.
type Marketplace struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand

	byID    map[int]domain.Market
	centres map[int]int64

	open      bool
	step      int
	openSince int
	closedAt  int

	cash          int64
	cashReserved  int64
	units         map[string]int
	unitsReserved map[string]int

	book []*entry
	seq  int
	acks []domain.OrderAck
}

// New crea un marketplace cerrado; the first Step opens the session.
func New(cfg Config) *Marketplace {
	if cfg.NoiseTTL <= 0 {
		cfg.NoiseTTL = 5
	}
	if cfg.Spread <= 0 {
		cfg.Spread = 10
	}
	mp := &Marketplace{
		cfg:           cfg,
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		byID:          make(map[int]domain.Market, len(cfg.Markets)),
		centres:       make(map[int]int64, len(cfg.Markets)),
		cash:          cfg.Cash,
		units:         map[string]int{},
		unitsReserved: map[string]int{},
		closedAt:      -cfg.SessionGap,
	}
	for _, m := range cfg.Markets {
		mp.byID[m.ID] = m
		mp.centres[m.ID] = centre(m)
		mp.units[m.Asset] = cfg.Units
	}
	return mp
}

// centre is the mean payoff of m aligned to its tick grid, or its midpoint
// when the description cannot be parsed.
func centre(m domain.Market) int64 {
	payoffs, err := domain.ParsePayoffs(m.Description)
	if err != nil || len(payoffs) == 0 {
		return m.Midpoint()
	}
	var sum int64
	for _, p := range payoffs {
		sum += p
	}
	return clamp(m, sum/int64(len(payoffs)))
}

func clamp(m domain.Market, price int64) int64 {
	price = m.MinPrice + ((price-m.MinPrice)/m.Tick())*m.Tick()
	if price < m.MinPrice {
		return m.MinPrice
	}
	if price > m.MaxPrice {
		return m.MaxPrice
	}
	return price
}

// FetchMarkets devuelve el catálogo ordenado por ID.
func (mp *Marketplace) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.marketsLocked(), nil
}

func (mp *Marketplace) marketsLocked() []domain.Market {
	out := make([]domain.Market, 0, len(mp.byID))
	for _, m := range mp.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FetchSession devuelve si la sesión está abierta.
func (mp *Marketplace) FetchSession(ctx context.Context) (domain.Session, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return domain.Session{Open: mp.open}, nil
}

// FetchHoldings devuelve las tenencias del agente; available amounts
// exclude what resting orders reserve.
func (mp *Marketplace) FetchHoldings(ctx context.Context) (domain.Holdings, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	h := domain.Holdings{
		Cash:          mp.cash,
		CashAvailable: mp.cash - mp.cashReserved,
		Assets:        make(map[string]domain.AssetHolding, len(mp.units)),
	}
	for asset, u := range mp.units {
		h.Assets[asset] = domain.AssetHolding{Units: u, UnitsAvailable: u - mp.unitsReserved[asset]}
	}
	return h, nil
}

// FetchOrderBook devuelve el libro completo en orden de llegada.
func (mp *Marketplace) FetchOrderBook(ctx context.Context) ([]domain.BookOrder, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	out := make([]domain.BookOrder, 0, len(mp.book))
	for _, e := range mp.book {
		out = append(out, e.BookOrder)
	}
	return out, nil
}

// SendOrder validates the agent's order, reserves cash or units and
// queues the acknowledgement.
func (mp *Marketplace) SendOrder(ctx context.Context, req domain.OrderRequest) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if reason := mp.validateLocked(req); reason != "" {
		slog.Info("paper: order rejected", "ref", req.Ref, "reason", reason)
		mp.acks = append(mp.acks, domain.OrderAck{Ref: req.Ref, Reason: reason})
		return nil
	}

	m := mp.byID[req.MarketID]
	e := &entry{
		BookOrder: domain.BookOrder{
			ID:       uuid.NewString(),
			Ref:      req.Ref,
			MarketID: req.MarketID,
			Side:     req.Side,
			Price:    req.Price,
			Units:    req.Units,
			Pending:  true,
			Mine:     true,
		},
		born: mp.step,
	}
	switch req.Side {
	case domain.SideBuy:
		e.limit = req.Price * int64(req.Units)
		mp.cashReserved += e.limit
	case domain.SideSell:
		mp.unitsReserved[m.Asset] += req.Units
	}
	mp.pushLocked(e)
	mp.acks = append(mp.acks, domain.OrderAck{Ref: req.Ref, Accepted: true})

	slog.Debug("paper: order accepted", "ref", req.Ref, "id", e.ID)
	return nil
}

func (mp *Marketplace) validateLocked(req domain.OrderRequest) string {
	m, ok := mp.byID[req.MarketID]
	switch {
	case !ok:
		return fmt.Sprintf("unknown market %d", req.MarketID)
	case !mp.open:
		return "session closed"
	case req.Units <= 0:
		return "units must be positive"
	case !m.InBounds(req.Price):
		return fmt.Sprintf("price %d outside [%d,%d]", req.Price, m.MinPrice, m.MaxPrice)
	case (req.Price-m.MinPrice)%m.Tick() != 0:
		return fmt.Sprintf("price %d off tick %d", req.Price, m.Tick())
	}

	switch req.Side {
	case domain.SideBuy:
		if mp.cash-mp.cashReserved < req.Price*int64(req.Units) {
			return "insufficient cash"
		}
	case domain.SideSell:
		if mp.units[m.Asset]-mp.unitsReserved[m.Asset] < req.Units {
			return "insufficient units"
		}
	default:
		return "unknown side"
	}
	return ""
}

// DrainAcks devuelve y vacía la cola de confirmaciones.
func (mp *Marketplace) DrainAcks(ctx context.Context) ([]domain.OrderAck, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := mp.acks
	mp.acks = nil
	return out, nil
}

// OpenSession abre la sesión.
func (mp *Marketplace) OpenSession() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.openLocked()
}

// CloseSession cierra la sesión y cancela las órdenes de ruido. The
// agent's orders are left resting.
func (mp *Marketplace) CloseSession() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.closeLocked()
}

func (mp *Marketplace) openLocked() {
	if mp.open {
		return
	}
	mp.open = true
	mp.openSince = mp.step
	slog.Info("paper: session open", "step", mp.step)
}

func (mp *Marketplace) closeLocked() {
	if !mp.open {
		return
	}
	mp.open = false
	mp.closedAt = mp.step
	for _, e := range mp.book {
		if !e.Mine && e.Pending {
			e.Pending = false
			e.Cancelled = true
		}
	}
	slog.Info("paper: session closed", "step", mp.step)
}

// Step advances the simulation by one cycle: it applies the session
// schedule, prunes settled noise orders, expires old ones, posts new noise
// orders and crosses the agent's resting orders.
func (mp *Marketplace) Step() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.step++
	switch {
	case !mp.open && mp.step-mp.closedAt > mp.cfg.SessionGap:
		mp.openLocked()
	case mp.open && mp.cfg.SessionLength > 0 && mp.step-mp.openSince >= mp.cfg.SessionLength:
		mp.closeLocked()
	}

	mp.pruneLocked()
	if !mp.open {
		return
	}

	for _, m := range mp.marketsLocked() {
		for i := 0; i < mp.cfg.NoiseOrders; i++ {
			mp.pushLocked(mp.noiseLocked(m))
		}
	}
	mp.crossLocked()
}

// pruneLocked drops orders that are no longer pending, after they were
// visible for one cycle, and cancels noise orders older than NoiseTTL.
func (mp *Marketplace) pruneLocked() {
	kept := mp.book[:0]
	for _, e := range mp.book {
		if !e.Pending {
			continue
		}
		if !e.Mine && mp.step-e.born >= mp.cfg.NoiseTTL {
			e.Pending = false
			e.Cancelled = true
		}
		kept = append(kept, e)
	}
	mp.book = kept
}

func (mp *Marketplace) noiseLocked(m domain.Market) *entry {
	side := domain.SideBuy
	if mp.rng.Intn(2) == 1 {
		side = domain.SideSell
	}
	offset := mp.rng.Int63n(2*mp.cfg.Spread+1) - mp.cfg.Spread
	return &entry{
		BookOrder: domain.BookOrder{
			ID:       uuid.NewString(),
			MarketID: m.ID,
			Side:     side,
			Price:    clamp(m, mp.centres[m.ID]+offset),
			Units:    1,
			Pending:  true,
		},
		born: mp.step,
	}
}

func (mp *Marketplace) pushLocked(e *entry) {
	e.seq = mp.seq
	mp.seq++
	mp.book = append(mp.book, e)
}

// crossLocked matches each resting agent order, oldest first, against the
// best-priced pending noise order on the other side. Ties go to the
// oldest noise order.
func (mp *Marketplace) crossLocked() {
	for _, mine := range mp.book {
		if !mine.Mine || !mine.Pending {
			continue
		}
		var best *entry
		for _, other := range mp.book {
			if other.Mine || !other.Pending || other.MarketID != mine.MarketID || other.Side == mine.Side {
				continue
			}
			switch mine.Side {
			case domain.SideBuy:
				if other.Price <= mine.Price && (best == nil || other.Price < best.Price) {
					best = other
				}
			case domain.SideSell:
				if other.Price >= mine.Price && (best == nil || other.Price > best.Price) {
					best = other
				}
			}
		}
		if best != nil {
			mp.settleLocked(mine, best)
		}
	}
}

func (mp *Marketplace) settleLocked(mine, other *entry) {
	price := mine.Price
	if other.seq < mine.seq {
		price = other.Price
	}
	asset := mp.byID[mine.MarketID].Asset

	switch mine.Side {
	case domain.SideBuy:
		mp.cashReserved -= mine.limit
		mp.cash -= price
		mp.units[asset]++
	case domain.SideSell:
		mp.unitsReserved[asset]--
		mp.cash += price
		mp.units[asset]--
	}
	for _, e := range []*entry{mine, other} {
		e.Pending = false
		e.Traded = true
	}

	slog.Info("paper: trade", "ref", mine.Ref, "side", mine.Side, "price", price, "asset", asset)
}
