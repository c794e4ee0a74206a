package runner_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/alejandrodnm/capmbot/internal/adapters/paper"
	"github.com/alejandrodnm/capmbot/internal/application/bot"
	"github.com/alejandrodnm/capmbot/internal/application/runner"
	"github.com/alejandrodnm/capmbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type fakeMarketplace struct {
	markets  []domain.Market
	sessions []domain.Session // consumed one per cycle, the last one repeats
	holdings domain.Holdings
	acks     [][]domain.OrderAck
	book     []domain.BookOrder
	failOn   string
	steps    int
}

func (f *fakeMarketplace) fail(what string) error {
	if f.failOn == what {
		return errors.New(what + " unavailable")
	}
	return nil
}

func (f *fakeMarketplace) Step() { f.steps++ }

func (f *fakeMarketplace) SendOrder(context.Context, domain.OrderRequest) error { return nil }

func (f *fakeMarketplace) FetchMarkets(context.Context) ([]domain.Market, error) {
	return f.markets, f.fail("markets")
}

func (f *fakeMarketplace) FetchSession(context.Context) (domain.Session, error) {
	if err := f.fail("session"); err != nil {
		return domain.Session{}, err
	}
	s := f.sessions[0]
	if len(f.sessions) > 1 {
		f.sessions = f.sessions[1:]
	}
	return s, nil
}

func (f *fakeMarketplace) FetchHoldings(context.Context) (domain.Holdings, error) {
	return f.holdings, f.fail("holdings")
}

func (f *fakeMarketplace) DrainAcks(context.Context) ([]domain.OrderAck, error) {
	if err := f.fail("acks"); err != nil {
		return nil, err
	}
	if len(f.acks) == 0 {
		return nil, nil
	}
	out := f.acks[0]
	f.acks = f.acks[1:]
	return out, nil
}

func (f *fakeMarketplace) FetchOrderBook(context.Context) ([]domain.BookOrder, error) {
	return f.book, f.fail("book")
}

type recordingHandler struct {
	events  []string
	initErr error
}

func (h *recordingHandler) OnInitialised(_ context.Context, markets []domain.Market) error {
	h.events = append(h.events, fmt.Sprintf("init %d", len(markets)))
	return h.initErr
}

func (h *recordingHandler) OnSessionInfo(_ context.Context, s domain.Session) error {
	h.events = append(h.events, fmt.Sprintf("session open=%t markets=%d", s.Open, len(s.Markets)))
	return nil
}

func (h *recordingHandler) OnHoldings(_ context.Context, hd domain.Holdings) {
	h.events = append(h.events, fmt.Sprintf("holdings %d", hd.Cash))
}

func (h *recordingHandler) OnOrderAccepted(_ context.Context, ref string) {
	h.events = append(h.events, "accepted "+ref)
}

func (h *recordingHandler) OnOrderRejected(_ context.Context, ref, reason string) {
	h.events = append(h.events, "rejected "+ref+": "+reason)
}

func (h *recordingHandler) OnOrderBook(_ context.Context, book []domain.BookOrder) (bot.TickResult, error) {
	h.events = append(h.events, fmt.Sprintf("book %d", len(book)))
	return bot.TickResult{}, nil
}

func (h *recordingHandler) count(prefix string) int {
	n := 0
	for _, e := range h.events {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func newFake() *fakeMarketplace {
	return &fakeMarketplace{
		markets:  []domain.Market{{ID: 1, Asset: "A", Description: "10,20"}},
		sessions: []domain.Session{{Open: true}},
		holdings: domain.Holdings{Cash: 1000, CashAvailable: 1000},
		book:     []domain.BookOrder{{ID: "x", MarketID: 1, Price: 20, Pending: true}},
	}
}

// --- tests ---

func TestRunOnce_DeliversEventsInOrder(t *testing.T) {
	mp := newFake()
	mp.acks = [][]domain.OrderAck{{
		{Ref: "r1", Accepted: true},
		{Ref: "r2", Reason: "price above maximum"},
	}}
	h := &recordingHandler{}
	r := runner.New(runner.Config{}, mp, h)

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"init 1",
		"session open=true markets=1",
		"holdings 1000",
		"accepted r1",
		"rejected r2: price above maximum",
		"book 1",
	}, h.events)
	assert.Equal(t, 1, mp.steps)
	assert.Equal(t, 1, r.Cycles())
}

func TestRunOnce_SessionInfoOnTransitionsOnly(t *testing.T) {
	mp := newFake()
	mp.sessions = []domain.Session{
		{Open: false}, // first observation is always delivered
		{Open: false},
		{Open: true},
		{Open: true},
		{Open: true, Markets: []domain.Market{{ID: 1}}}, // refreshed catalog
		{Open: false},
	}
	h := &recordingHandler{}
	r := runner.New(runner.Config{}, mp, h)

	for i := 0; i < 6; i++ {
		_, err := r.RunOnce(context.Background())
		require.NoError(t, err)
	}

	var sessions []string
	for _, e := range h.events {
		if len(e) > 7 && e[:7] == "session" {
			sessions = append(sessions, e)
		}
	}
	assert.Equal(t, []string{
		"session open=false markets=0",
		"session open=true markets=1", // catalog fetched again on open
		"session open=true markets=1",
		"session open=false markets=0",
	}, sessions)
	assert.Equal(t, 1, h.count("init"))
	assert.Equal(t, 6, h.count("book"))
}

func TestRunOnce_FetchErrorEndsCycle(t *testing.T) {
	tests := []struct {
		failOn  string
		want    string
		reached string // last event delivered
	}{
		{"markets", "fetch markets", ""},
		{"session", "fetch session", "init 1"},
		{"holdings", "fetch holdings", "session open=true markets=1"},
		{"acks", "drain acks", "holdings 1000"},
		{"book", "fetch order book", "holdings 1000"},
	}
	for _, tc := range tests {
		t.Run(tc.failOn, func(t *testing.T) {
			mp := newFake()
			mp.failOn = tc.failOn
			h := &recordingHandler{}
			r := runner.New(runner.Config{}, mp, h)

			_, err := r.RunOnce(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.Equal(t, 0, r.Cycles())
			assert.Zero(t, h.count("book"))
			if tc.reached != "" {
				assert.Equal(t, tc.reached, h.events[len(h.events)-1])
			}

			// The next cycle recovers without initialising twice.
			mp.failOn = ""
			_, err = r.RunOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, h.count("init"))
			assert.Equal(t, 1, h.count("book"))
		})
	}
}

func TestRunOnce_CatalogFetchFailsOnOpen(t *testing.T) {
	mp := newFake()
	mp.sessions = []domain.Session{{Open: false}, {Open: true}}
	h := &recordingHandler{}
	r := runner.New(runner.Config{}, mp, h)

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	mp.failOn = "markets"
	_, err = r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch markets on open")
	assert.Equal(t, 1, h.count("session"))

	// The open is delivered on the next cycle.
	mp.failOn = ""
	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session open=true markets=1", h.events[len(h.events)-3])
}

func TestRunOnce_PayoffChangeBetweenSessionsReachesModel(t *testing.T) {
	ctx := context.Background()
	mp := newFake()
	mp.markets = []domain.Market{
		{ID: 1, Asset: "A", Description: "10,20,30,40", MinPrice: 10, MaxPrice: 90, PriceTick: 1, MaxOpenOrders: 1},
	}
	mp.sessions = []domain.Session{{Open: true}, {Open: false}, {Open: true}}
	mp.book = nil
	b := bot.New(bot.Config{RiskPenalty: 0.001, Rand: rand.New(rand.NewSource(1))}, mp)
	r := runner.New(runner.Config{}, mp, b)

	_, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, b.Model().ExpectedPayoff("A"), 1e-12)
	gen := b.Model().Generation()

	_, err = r.RunOnce(ctx)
	require.NoError(t, err)
	require.False(t, b.State().Open)

	mp.markets = []domain.Market{
		{ID: 1, Asset: "A", Description: "100,100,100,100", MinPrice: 10, MaxPrice: 90, PriceTick: 1, MaxOpenOrders: 1},
	}
	_, err = r.RunOnce(ctx)
	require.NoError(t, err)

	assert.True(t, b.State().Open)
	assert.InDelta(t, 1.0, b.Model().ExpectedPayoff("A"), 1e-12)
	assert.Equal(t, gen+1, b.Model().Generation())
}

func TestRunOnce_RejectedCatalogIsRetriedOnOpen(t *testing.T) {
	ctx := context.Background()
	mp := newFake()
	mp.markets = []domain.Market{{ID: 1, Asset: "A", Description: "10,x"}}
	mp.sessions = []domain.Session{{Open: false}, {Open: true}}
	b := bot.New(bot.Config{Rand: rand.New(rand.NewSource(1))}, mp)
	r := runner.New(runner.Config{}, mp, b)

	_, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, b.Model().Empty())

	mp.markets = []domain.Market{{ID: 1, Asset: "A", Description: "10,20"}}
	_, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, b.Model().Has("A"))
	assert.InDelta(t, 0.15, b.Model().ExpectedPayoff("A"), 1e-12)
}

func TestRunOnce_RejectedCatalogDoesNotStopTheCycle(t *testing.T) {
	mp := newFake()
	h := &recordingHandler{initErr: domain.ErrMalformedPayoffs}
	r := runner.New(runner.Config{}, mp, h)

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.count("book"))
}

func TestRunOnce_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &recordingHandler{}
	_, err := runner.New(runner.Config{}, newFake(), h).RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.events)
}

func TestRun_OnceReturnsCycleError(t *testing.T) {
	mp := newFake()
	mp.failOn = "book"
	err := runner.New(runner.Config{Once: true}, mp, &recordingHandler{}).Run(context.Background())
	assert.Error(t, err)
}

func TestRun_LoopsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := runner.New(runner.Config{Interval: 5 * time.Millisecond}, newFake(), &recordingHandler{})
	require.NoError(t, r.Run(ctx))
	assert.Greater(t, r.Cycles(), 1)
}

func TestRunner_PaperEndToEnd(t *testing.T) {
	ctx := context.Background()
	markets := []domain.Market{
		{ID: 1, Asset: "A", Description: "10,20,30,40", MinPrice: 10, MaxPrice: 90, PriceTick: 1, MaxOpenOrders: 2},
		{ID: 2, Asset: "B", Description: "40,30,20,10", MinPrice: 10, MaxPrice: 90, PriceTick: 1, MaxOpenOrders: 2},
	}
	mp := paper.New(paper.Config{Markets: markets, Cash: 1000, Units: 2, NoiseOrders: 3, Spread: 10, Seed: 7})
	b := bot.New(bot.Config{
		RiskPenalty: 0.001,
		Submitter:   "e2e",
		Rand:        rand.New(rand.NewSource(7)),
	}, mp)
	r := runner.New(runner.Config{}, mp, b)

	submitted := 0
	for i := 0; i < 30; i++ {
		res, err := r.RunOnce(ctx)
		require.NoError(t, err)
		if res.Decision.Order != nil {
			submitted++
		}

		book, err := mp.FetchOrderBook(ctx)
		require.NoError(t, err)
		resting := map[int]int{}
		for _, o := range book {
			if o.Mine && o.Pending {
				resting[o.MarketID]++
			}
		}
		for id, n := range resting {
			assert.LessOrEqual(t, n, 2, "market %d over its open-order cap", id)
		}
	}

	assert.True(t, b.State().Open)
	assert.Greater(t, submitted, 0)
	assert.Equal(t, 30, r.Cycles())
}
