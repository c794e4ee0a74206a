package orders_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/capmbot/internal/application/orders"
	"github.com/alejandrodnm/capmbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// --- mocks ---

type mockSender struct {
	sent []domain.OrderRequest
	err  error
}

func (m *mockSender) SendOrder(_ context.Context, req domain.OrderRequest) error {
	m.sent = append(m.sent, req)
	return m.err
}

type mockRecorder struct {
	records []domain.TrackedOrder
}

func (m *mockRecorder) RecordOrder(_ context.Context, o domain.TrackedOrder) error {
	m.records = append(m.records, o)
	return nil
}

// --- helpers ---

var fixedNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return fixedNow }
}

func tickingClock() func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return fixedNow.Add(time.Duration(n) * time.Millisecond)
	}
}

func market(id, maxOpen int) domain.Market {
	return domain.Market{ID: id, Asset: "A", MinPrice: 10, MaxPrice: 90, PriceTick: 1, MaxOpenOrders: maxOpen}
}

func mine(ref string) domain.BookOrder {
	return domain.BookOrder{Ref: ref, MarketID: 1, Mine: true, Pending: true}
}

// --- tests ---

func TestSubmit_SendsOnceAndTracksAsSent(t *testing.T) {
	sender := &mockSender{}
	tr := orders.New(sender, "capm", orders.WithClock(fixedClock()))

	o, err := tr.Submit(context.Background(), market(1, 2), domain.SideBuy, 40)
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	req := sender.sent[0]
	assert.Equal(t, o.Ref, req.Ref)
	assert.Equal(t, domain.SideBuy, req.Side)
	assert.Equal(t, int64(40), req.Price)
	assert.Equal(t, 1, req.Units)
	assert.Equal(t, domain.OrderTypeLimit, req.Type)

	assert.Equal(t, domain.StatusSent, o.Status)
	assert.Equal(t, "A", o.Asset)
	assert.Len(t, tr.Sent(), 1)
	assert.Empty(t, tr.Pending())
	assert.Equal(t, 1, tr.OutstandingCount(1))
	assert.Equal(t, 0, tr.OutstandingCount(2))
}

func TestSubmit_PriceOutOfBounds(t *testing.T) {
	sender := &mockSender{}
	tr := orders.New(sender, "capm")

	_, err := tr.Submit(context.Background(), market(1, 2), domain.SideSell, 91)
	assert.ErrorIs(t, err, domain.ErrPriceOutOfBounds)
	_, err = tr.Submit(context.Background(), market(1, 2), domain.SideBuy, 9)
	assert.ErrorIs(t, err, domain.ErrPriceOutOfBounds)
	assert.Empty(t, sender.sent)
}

func TestSubmit_CapExceeded(t *testing.T) {
	sender := &mockSender{}
	tr := orders.New(sender, "capm", orders.WithClock(tickingClock()))
	ctx := context.Background()

	first, err := tr.Submit(ctx, market(1, 1), domain.SideBuy, 40)
	require.NoError(t, err)

	_, err = tr.Submit(ctx, market(1, 1), domain.SideBuy, 41)
	assert.ErrorIs(t, err, domain.ErrOrderCapExceeded)

	// Still capped once accepted: pending counts as outstanding.
	tr.Accept(ctx, first.Ref)
	_, err = tr.Submit(ctx, market(1, 1), domain.SideSell, 60)
	assert.ErrorIs(t, err, domain.ErrOrderCapExceeded)

	assert.Len(t, sender.sent, 1)
}

func TestSubmit_SendFailureRecordsRejection(t *testing.T) {
	sender := &mockSender{err: errors.New("connection reset")}
	tr := orders.New(sender, "capm")

	o, err := tr.Submit(context.Background(), market(1, 2), domain.SideBuy, 40)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	require.NotNil(t, o)
	assert.Equal(t, domain.StatusRejected, o.Status)
	assert.Equal(t, "connection reset", o.Reason)
	assert.Equal(t, 0, tr.Outstanding())
	_, tracked := tr.Lookup(o.Ref)
	assert.False(t, tracked)
	assert.Len(t, sender.sent, 1, "never retried")
}

func TestSubmit_UniqueRefsOnSameTimestamp(t *testing.T) {
	tr := orders.New(&mockSender{}, "capm", orders.WithClock(fixedClock()))
	ctx := context.Background()

	a, err := tr.Submit(ctx, market(1, 5), domain.SideBuy, 40)
	require.NoError(t, err)
	b, err := tr.Submit(ctx, market(1, 5), domain.SideBuy, 40)
	require.NoError(t, err)

	assert.NotEqual(t, a.Ref, b.Ref)
	assert.Equal(t, a.Ref+"-1", b.Ref)
}

func TestAcceptAndReject(t *testing.T) {
	tr := orders.New(&mockSender{}, "capm", orders.WithClock(tickingClock()))
	ctx := context.Background()

	a, _ := tr.Submit(ctx, market(1, 5), domain.SideBuy, 40)
	b, _ := tr.Submit(ctx, market(1, 5), domain.SideSell, 60)

	trans, ok := tr.Accept(ctx, a.Ref)
	require.True(t, ok)
	assert.Equal(t, domain.StatusSent, trans.From)
	assert.Equal(t, domain.StatusAccepted, trans.To)

	_, ok = tr.Reject(ctx, b.Ref, "price too high")
	require.True(t, ok)

	require.Len(t, tr.Pending(), 1)
	assert.Equal(t, a.Ref, tr.Pending()[0].Ref)
	assert.Empty(t, tr.Sent())
	assert.Equal(t, 1, tr.OutstandingCount(1))

	// Late or duplicate acks are ignored.
	_, ok = tr.Accept(ctx, a.Ref)
	assert.False(t, ok)
	_, ok = tr.Reject(ctx, a.Ref, "late")
	assert.False(t, ok)
	_, ok = tr.Accept(ctx, "nope")
	assert.False(t, ok)
}

func TestReconcile_TradedAndIdempotent(t *testing.T) {
	tr := orders.New(&mockSender{}, "capm", orders.WithClock(tickingClock()))
	ctx := context.Background()

	a, _ := tr.Submit(ctx, market(1, 5), domain.SideBuy, 40)
	tr.Accept(ctx, a.Ref)

	entry := mine(a.Ref)
	entry.Pending = false
	entry.Traded = true
	snapshot := []domain.BookOrder{entry}

	first := tr.Reconcile(ctx, snapshot)
	require.Len(t, first, 1)
	assert.Equal(t, domain.StatusTraded, first[0].To)
	assert.Len(t, tr.Traded(), 1)
	assert.Equal(t, 0, tr.Outstanding())

	second := tr.Reconcile(ctx, snapshot)
	assert.Empty(t, second)
	assert.Len(t, tr.Traded(), 1)
}

func TestReconcile_CancelledDropsOrder(t *testing.T) {
	tr := orders.New(&mockSender{}, "capm", orders.WithClock(tickingClock()))
	ctx := context.Background()

	a, _ := tr.Submit(ctx, market(1, 5), domain.SideBuy, 40)
	tr.Accept(ctx, a.Ref)

	entry := mine(a.Ref)
	entry.Pending = false
	entry.Cancelled = true

	trans := tr.Reconcile(ctx, []domain.BookOrder{entry})
	require.Len(t, trans, 1)
	assert.Equal(t, domain.StatusCancelled, trans[0].To)
	_, tracked := tr.Lookup(a.Ref)
	assert.False(t, tracked)
	assert.Equal(t, 0, tr.Outstanding())
	assert.Empty(t, tr.Reconcile(ctx, []domain.BookOrder{entry}))
}

func TestReconcile_SentReportedTradedIsImplicitlyAccepted(t *testing.T) {
	tr := orders.New(&mockSender{}, "capm", orders.WithClock(tickingClock()))
	ctx := context.Background()

	a, _ := tr.Submit(ctx, market(1, 5), domain.SideSell, 70)
	entry := mine(a.Ref)
	entry.Pending = false
	entry.Traded = true

	trans := tr.Reconcile(ctx, []domain.BookOrder{entry})
	require.Len(t, trans, 2)
	assert.Equal(t, domain.StatusAccepted, trans[0].To)
	assert.Equal(t, domain.StatusTraded, trans[1].To)

	// The ack that arrives afterwards is a no-op.
	_, ok := tr.Accept(ctx, a.Ref)
	assert.False(t, ok)
}

func TestReconcile_IgnoresForeignAndPendingEntries(t *testing.T) {
	tr := orders.New(&mockSender{}, "capm", orders.WithClock(tickingClock()))
	ctx := context.Background()

	a, _ := tr.Submit(ctx, market(1, 5), domain.SideBuy, 40)
	tr.Accept(ctx, a.Ref)

	foreign := domain.BookOrder{Ref: a.Ref, MarketID: 1, Traded: true}
	resting := mine(a.Ref)

	assert.Empty(t, tr.Reconcile(ctx, []domain.BookOrder{foreign, resting}))
	assert.Len(t, tr.Pending(), 1)
}

func TestReset_ClearsEverything(t *testing.T) {
	tr := orders.New(&mockSender{}, "capm", orders.WithClock(tickingClock()))
	ctx := context.Background()

	a, _ := tr.Submit(ctx, market(1, 5), domain.SideBuy, 40)
	tr.Accept(ctx, a.Ref)
	tr.Submit(ctx, market(1, 5), domain.SideBuy, 41)

	tr.Reset()
	assert.Equal(t, 0, tr.Outstanding())
	assert.Empty(t, tr.Sent())
	assert.Empty(t, tr.Pending())
	assert.Empty(t, tr.Traded())
}

func TestRecorder_SeesEveryStatus(t *testing.T) {
	rec := &mockRecorder{}
	tr := orders.New(&mockSender{}, "capm", orders.WithClock(tickingClock()), orders.WithRecorder(rec))
	ctx := context.Background()

	a, _ := tr.Submit(ctx, market(1, 5), domain.SideBuy, 40)
	tr.Accept(ctx, a.Ref)
	entry := mine(a.Ref)
	entry.Traded = true
	tr.Reconcile(ctx, []domain.BookOrder{entry})

	require.Len(t, rec.records, 3)
	assert.Equal(t, domain.StatusSent, rec.records[0].Status)
	assert.Equal(t, domain.StatusAccepted, rec.records[1].Status)
	assert.Equal(t, domain.StatusTraded, rec.records[2].Status)
}

// --- properties ---

// Every order lives in exactly one of sent/pending/traded or is dropped,
// whatever the interleaving of acks and snapshots.
func TestProperty_OrderInExactlyOneCollection(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tr := orders.New(&mockSender{}, "capm", orders.WithClock(tickingClock()))
		ctx := context.Background()
		var refs []string

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0:
				o, err := tr.Submit(ctx, market(rapid.IntRange(1, 2).Draw(t, "market"), 3), domain.SideBuy, 50)
				if err == nil {
					refs = append(refs, o.Ref)
				}
			case 1, 2, 3:
				if len(refs) == 0 {
					continue
				}
				ref := rapid.SampledFrom(refs).Draw(t, "ref")
				switch rapid.IntRange(0, 3).Draw(t, "event") {
				case 0:
					tr.Accept(ctx, ref)
				case 1:
					tr.Reject(ctx, ref, "no")
				case 2:
					snap := []domain.BookOrder{{Ref: ref, Mine: true, Traded: true}}
					tr.Reconcile(ctx, snap)
					if again := tr.Reconcile(ctx, snap); len(again) != 0 {
						t.Fatalf("second reconcile produced %d transitions", len(again))
					}
				case 3:
					snap := []domain.BookOrder{{Ref: ref, Mine: true, Cancelled: true}}
					tr.Reconcile(ctx, snap)
					if again := tr.Reconcile(ctx, snap); len(again) != 0 {
						t.Fatalf("second reconcile produced %d transitions", len(again))
					}
				}
			case 4:
				for _, id := range []int{1, 2} {
					if tr.OutstandingCount(id) > 3 {
						t.Fatalf("market %d over cap: %d", id, tr.OutstandingCount(id))
					}
				}
			}
		}

		seen := map[string]int{}
		for _, o := range tr.Sent() {
			seen[o.Ref]++
		}
		for _, o := range tr.Pending() {
			seen[o.Ref]++
		}
		for _, o := range tr.Traded() {
			seen[o.Ref]++
		}
		for _, ref := range refs {
			o, tracked := tr.Lookup(ref)
			if tracked && seen[ref] != 1 {
				t.Fatalf("%s (%s) found in %d collections", ref, o.Status, seen[ref])
			}
			if !tracked && seen[ref] != 0 {
				t.Fatalf("%s dropped but still listed", ref)
			}
		}
	})
}
