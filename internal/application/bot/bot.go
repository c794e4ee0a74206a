package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/alejandrodnm/capmbot/internal/application/orders"
	"github.com/alejandrodnm/capmbot/internal/domain"
	"github.com/alejandrodnm/capmbot/internal/ports"
)

// Config contiene los parámetros del bot.
type Config struct {
	RiskPenalty float64
	Scale       int64 // subunits per currency unit
	Submitter   string
	Rand        *rand.Rand // market and side choice of the proactive pass
}

// TickResult is what one order-book snapshot produced.
type TickResult struct {
	Transitions []domain.Transition
	Decision    domain.Decision
}

// Bot is the mean-variance decision engine. The marketplace collaborator
// feeds it events one at a time through the On* callbacks; it is not safe
// for concurrent use.
type Bot struct {
	cfg      Config
	rng      *rand.Rand
	tracker  *orders.Tracker
	eval     *domain.Evaluator
	journal  ports.Journal
	notifier ports.Notifier
	now      func() time.Time

	state *SessionState
}

// Option configures a Bot.
type Option func(*Bot)

// WithJournal records sessions, orders and score samples in j.
func WithJournal(j ports.Journal) Option {
	return func(b *Bot) { b.journal = j }
}

// WithNotifier shows payoffs, decisions and session summaries through n.
func WithNotifier(n ports.Notifier) Option {
	return func(b *Bot) { b.notifier = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

// New crea un Bot que envía órdenes a través de sender.
func New(cfg Config, sender ports.OrderSender, opts ...Option) *Bot {
	if cfg.Scale <= 0 {
		cfg.Scale = domain.DefaultScale
	}
	b := &Bot{cfg: cfg, rng: cfg.Rand, now: time.Now}
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	for _, opt := range opts {
		opt(b)
	}

	trackerOpts := []orders.Option{orders.WithClock(b.now)}
	if b.journal != nil {
		trackerOpts = append(trackerOpts, orders.WithRecorder(b.journal))
	}
	b.tracker = orders.New(sender, cfg.Submitter, trackerOpts...)
	b.state = newSessionState(nil, cfg.Scale)
	b.eval = domain.NewEvaluator(b.state.model, cfg.RiskPenalty)
	return b
}

// Tracker exposes the order tracker, read-only use only.
func (b *Bot) Tracker() *orders.Tracker { return b.tracker }

// State exposes the current session state.
func (b *Bot) State() *SessionState { return b.state }

// Model returns the payoff model.
func (b *Bot) Model() *domain.PayoffModel { return b.state.model }

// OnHoldings replaces the settled holdings.
func (b *Bot) OnHoldings(ctx context.Context, h domain.Holdings) {
	c := h.Clone()
	b.state.holdings = &c
	b.state.scoreValid = false

	score, ok := b.currentScore()
	if !ok || b.journal == nil || b.state.ID == "" {
		return
	}
	expected, variance := b.eval.Moments(c.Settled())
	sample := domain.ScoreSample{
		SessionID: b.state.ID,
		At:        b.now(),
		Cash:      c.Cash,
		Expected:  expected,
		Variance:  variance,
		Score:     score,
	}
	if err := b.journal.RecordScore(ctx, sample); err != nil {
		slog.Warn("bot: journal score", "err", err)
	}
}

// OnOrderAccepted moves a sent order to pending.
func (b *Bot) OnOrderAccepted(ctx context.Context, ref string) {
	if _, ok := b.tracker.Accept(ctx, ref); ok {
		slog.Debug("bot: order accepted", "ref", ref)
	}
}

// OnOrderRejected records the rejection. The order is not resubmitted.
func (b *Bot) OnOrderRejected(ctx context.Context, ref, reason string) {
	b.tracker.Reject(ctx, ref, reason)
}

// OnOrderBook reconciles tracked orders against the snapshot and then
// submits at most one order: a reactive counter-trade if any public order
// improves the score, otherwise a proactive order found by gradient search.
//
// Candidate errors are recovered locally and reported in the decision;
// the returned error is only the context's.
func (b *Bot) OnOrderBook(ctx context.Context, snapshot []domain.BookOrder) (TickResult, error) {
	if err := ctx.Err(); err != nil {
		return TickResult{}, fmt.Errorf("bot.OnOrderBook: %w", err)
	}

	res := TickResult{Transitions: b.tracker.Reconcile(ctx, snapshot)}
	for _, tr := range res.Transitions {
		slog.Info("bot: order", "ref", tr.Ref, "from", tr.From, "to", tr.To)
	}

	if !b.state.Open {
		return res, nil
	}
	current, ok := b.currentScore()
	if !ok {
		return res, nil
	}
	res.Decision.CurrentScore = current

	if !b.reactive(ctx, snapshot, current, &res.Decision) {
		b.proactive(ctx, snapshot, current, &res.Decision)
	}

	if res.Decision.Order != nil {
		b.state.submitted++
		slog.Info("bot: order submitted",
			"mode", res.Decision.Mode,
			"ref", res.Decision.Order.Ref,
			"side", res.Decision.Order.Side,
			"price", domain.FormatCurrency(res.Decision.Order.Price, b.cfg.Scale),
			"score", fmt.Sprintf("%.5f", current),
			"candidate", fmt.Sprintf("%.5f", res.Decision.CandidateScore),
		)
		if b.notifier != nil {
			b.notifier.PrintDecision(res.Decision)
		}
	}
	return res, nil
}

// reactive scans public orders in snapshot order and takes the first one
// whose counter-trade improves the score. It reports whether an order was
// submitted.
func (b *Bot) reactive(ctx context.Context, snapshot []domain.BookOrder, current float64, d *domain.Decision) bool {
	settled := b.state.holdings.Settled()

	for _, o := range snapshot {
		if !o.Public() {
			continue
		}
		m, ok := b.state.markets[o.MarketID]
		if !ok || !b.state.model.Has(m.Asset) {
			continue
		}

		side := o.Side.Opposite()
		candidate := b.eval.ScoreWithTrade(settled, m.Asset, o.Price, side)
		if candidate <= current {
			continue
		}

		if b.submit(ctx, m, side, o.Price, candidate, domain.ModeReactive, d) {
			return true
		}
	}
	return false
}

// proactive picks a random market and walks the price away from the
// best bid (buy) or best ask (sell) one tick at a time, submitting the
// first price that improves the score.
func (b *Bot) proactive(ctx context.Context, snapshot []domain.BookOrder, current float64, d *domain.Decision) bool {
	markets := b.state.tradeable()
	if len(markets) == 0 {
		return false
	}
	m := markets[b.rng.Intn(len(markets))]
	bid, ask := domain.BestBidAsk(m, snapshot)

	side := domain.SideBuy
	if b.state.holdings.CashAvailable < ask {
		side = domain.SideSell
	} else if b.rng.Intn(2) == 1 {
		side = domain.SideSell
	}

	price, step := bid, -m.Tick()
	if side == domain.SideSell {
		price, step = ask, m.Tick()
	}

	settled := b.state.holdings.Settled()
	for ; m.InBounds(price); price += step {
		candidate := b.eval.ScoreWithTrade(settled, m.Asset, price, side)
		if candidate > current {
			return b.submit(ctx, m, side, price, candidate, domain.ModeProactive, d)
		}
	}

	slog.Debug("bot: no improving price", "market", m.ID, "side", side, "bid", bid, "ask", ask)
	return false
}

// submit runs the pre-trade checks and hands the order to the tracker.
// It reports whether an order was transmitted, successfully or not.
func (b *Bot) submit(ctx context.Context, m domain.Market, side domain.Side, price int64, candidate float64, mode domain.DecisionMode, d *domain.Decision) bool {
	if err := b.check(m, side, price); err != nil {
		d.Skipped = append(d.Skipped, domain.Skip{MarketID: m.ID, Side: side, Price: price, Err: err})
		if errors.Is(err, domain.ErrOrderCapExceeded) {
			slog.Debug("bot: skip", "market", m.ID, "side", side, "price", price, "err", err)
		} else {
			slog.Info("bot: skip", "market", m.ID, "side", side, "price", price, "err", err)
		}
		return false
	}

	order, err := b.tracker.Submit(ctx, m, side, price)
	if err != nil {
		d.Skipped = append(d.Skipped, domain.Skip{MarketID: m.ID, Side: side, Price: price, Err: err})
		slog.Warn("bot: submit", "market", m.ID, "err", err)
		if order == nil {
			return false
		}
	}

	d.Mode = mode
	d.Order = order
	d.CandidateScore = candidate
	return true
}

// check applies, in order, the bounds, open-order cap, funds and units checks.
func (b *Bot) check(m domain.Market, side domain.Side, price int64) error {
	if !m.InBounds(price) {
		return fmt.Errorf("bot.check: price %d: %w", price, domain.ErrPriceOutOfBounds)
	}
	if n := b.tracker.OutstandingCount(m.ID); n >= m.MaxOpenOrders {
		return fmt.Errorf("bot.check: market %d has %d/%d open: %w", m.ID, n, m.MaxOpenOrders, domain.ErrOrderCapExceeded)
	}

	switch side {
	case domain.SideBuy:
		if b.state.holdings.CashAvailable < price {
			return fmt.Errorf("bot.check: cash available %d < %d: %w",
				b.state.holdings.CashAvailable, price, domain.ErrInsufficientFunds)
		}
	case domain.SideSell:
		if b.state.holdings.UnitsAvailable(m.Asset) < 1 {
			return fmt.Errorf("bot.check: no %s units available: %w", m.Asset, domain.ErrInsufficientUnits)
		}
	}
	return nil
}

// currentScore returns the settled score, cached until the holdings or
// the payoff model change.
func (b *Bot) currentScore() (float64, bool) {
	s := b.state
	if s.holdings == nil || s.model.Empty() {
		return 0, false
	}
	if s.scoreValid && s.scoreGen == s.model.Generation() {
		return s.score, true
	}
	s.score = b.eval.Score(s.holdings.Settled())
	s.scoreGen = s.model.Generation()
	s.scoreValid = true
	return s.score, true
}
