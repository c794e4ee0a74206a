package orders

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/capmbot/internal/domain"
	"github.com/alejandrodnm/capmbot/internal/ports"
)

// Tracker follows the orders the agent submitted through
// Sent → Accepted → {Traded | Cancelled | Rejected}.
//
// Every live order sits in exactly one of three collections: sent, pending
// (accepted, resting in the book) or traded. byRef indexes all of them and
// is the only way marketplace reports are correlated to our orders.
// Rejected and cancelled orders leave every collection; their references
// stay in issued so they are never reused within the session.
//
// Not safe for concurrent use; the bot drives it from a single goroutine.
type Tracker struct {
	sender    ports.OrderSender
	recorder  ports.OrderRecorder
	submitter string
	session   string
	now       func() time.Time

	sent    map[string]*domain.TrackedOrder
	pending map[string]*domain.TrackedOrder
	traded  map[string]*domain.TrackedOrder
	byRef   map[string]*domain.TrackedOrder
	issued  map[string]struct{}
	seq     int // submission order, used to list orders deterministically
	order   map[string]int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRecorder forwards every transition to r.
func WithRecorder(r ports.OrderRecorder) Option {
	return func(t *Tracker) { t.recorder = r }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a tracker that transmits through sender and stamps
// references with submitter.
func New(sender ports.OrderSender, submitter string, opts ...Option) *Tracker {
	t := &Tracker{
		sender:    sender,
		submitter: submitter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Reset()
	return t
}

// Begin resets the tracker and stamps subsequent orders with sessionID.
func (t *Tracker) Begin(sessionID string) {
	t.Reset()
	t.session = sessionID
}

// Reset forgets every tracked order.
func (t *Tracker) Reset() {
	t.sent = make(map[string]*domain.TrackedOrder)
	t.pending = make(map[string]*domain.TrackedOrder)
	t.traded = make(map[string]*domain.TrackedOrder)
	t.byRef = make(map[string]*domain.TrackedOrder)
	t.issued = make(map[string]struct{})
	t.order = make(map[string]int)
	t.seq = 0
}

// Submit creates a one-unit limit order in Sent and transmits it once.
// If transmission fails the order is recorded as Rejected and the error
// wraps domain.ErrOrderRejected.
func (t *Tracker) Submit(ctx context.Context, market domain.Market, side domain.Side, price int64) (*domain.TrackedOrder, error) {
	if !market.InBounds(price) {
		return nil, fmt.Errorf("orders.Submit: market %d price %d not in [%d,%d]: %w",
			market.ID, price, market.MinPrice, market.MaxPrice, domain.ErrPriceOutOfBounds)
	}
	if t.OutstandingCount(market.ID) >= market.MaxOpenOrders {
		return nil, fmt.Errorf("orders.Submit: market %d has %d outstanding: %w",
			market.ID, t.OutstandingCount(market.ID), domain.ErrOrderCapExceeded)
	}

	now := t.now()
	o := &domain.TrackedOrder{
		Ref:       t.uniqueRef(market.ID, price, side, now),
		SessionID: t.session,
		MarketID:  market.ID,
		Asset:     market.Asset,
		Side:      side,
		Price:     price,
		Units:     1,
		Status:    domain.StatusSent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.sent[o.Ref] = o
	t.byRef[o.Ref] = o
	t.order[o.Ref] = t.seq
	t.seq++
	t.record(ctx, o)

	if err := t.sender.SendOrder(ctx, o.Request()); err != nil {
		t.Reject(ctx, o.Ref, err.Error())
		return o, fmt.Errorf("orders.Submit: send %s: %v: %w", o.Ref, err, domain.ErrOrderRejected)
	}

	slog.Debug("orders: sent", "ref", o.Ref, "side", side, "price", price)
	return o, nil
}

// Accept moves a Sent order to Pending. Unknown refs are ignored.
func (t *Tracker) Accept(ctx context.Context, ref string) (domain.Transition, bool) {
	o, ok := t.sent[ref]
	if !ok {
		slog.Debug("orders: accept for untracked ref", "ref", ref)
		return domain.Transition{}, false
	}
	tr, err := t.move(o, domain.StatusAccepted)
	if err != nil {
		slog.Warn("orders: accept", "err", err)
		return domain.Transition{}, false
	}
	t.record(ctx, o)
	return tr, true
}

// Reject moves a Sent order to Rejected and stops tracking it.
// Rejections are never retried.
func (t *Tracker) Reject(ctx context.Context, ref, reason string) (domain.Transition, bool) {
	o, ok := t.sent[ref]
	if !ok {
		slog.Debug("orders: reject for untracked ref", "ref", ref)
		return domain.Transition{}, false
	}
	o.Reason = reason
	tr, err := t.move(o, domain.StatusRejected)
	if err != nil {
		slog.Warn("orders: reject", "err", err)
		return domain.Transition{}, false
	}
	slog.Info("orders: rejected", "ref", ref, "reason", reason)
	t.record(ctx, o)
	return tr, true
}

// Reconcile applies the marketplace's view of our orders.
//
// Only entries flagged Mine whose reference we track are considered.
// Cancelled entries end tracking; traded entries move to the traded
// collection. A Sent order reported traded is taken as accepted first.
// Applying the same snapshot twice yields no new transitions.
func (t *Tracker) Reconcile(ctx context.Context, snapshot []domain.BookOrder) []domain.Transition {
	var out []domain.Transition

	for _, entry := range snapshot {
		if !entry.Mine || entry.Ref == "" {
			continue
		}
		o, ok := t.byRef[entry.Ref]
		if !ok {
			continue
		}

		var next []domain.OrderStatus
		switch {
		case entry.Cancelled:
			next = t.pathTo(o.Status, domain.StatusCancelled)
		case entry.Traded:
			next = t.pathTo(o.Status, domain.StatusTraded)
		default:
			continue
		}

		for _, status := range next {
			tr, err := t.move(o, status)
			if err != nil {
				slog.Warn("orders: reconcile", "err", err)
				break
			}
			out = append(out, tr)
		}
		if len(next) > 0 {
			t.record(ctx, o)
		}
	}
	return out
}

// pathTo returns the statuses to walk from current to target, empty when
// nothing is to be done.
func (t *Tracker) pathTo(current, target domain.OrderStatus) []domain.OrderStatus {
	switch current {
	case domain.StatusSent:
		if target == domain.StatusTraded {
			return []domain.OrderStatus{domain.StatusAccepted, domain.StatusTraded}
		}
		return []domain.OrderStatus{target}
	case domain.StatusAccepted:
		return []domain.OrderStatus{target}
	case domain.StatusTraded, domain.StatusRejected, domain.StatusCancelled:
		return nil
	default:
		return nil
	}
}

// move transitions o and relocates it between collections.
func (t *Tracker) move(o *domain.TrackedOrder, next domain.OrderStatus) (domain.Transition, error) {
	from := o.Status
	if err := o.Transition(next, t.now()); err != nil {
		return domain.Transition{}, fmt.Errorf("orders.move: %w", err)
	}

	delete(t.sent, o.Ref)
	delete(t.pending, o.Ref)
	delete(t.traded, o.Ref)

	switch next {
	case domain.StatusSent:
		t.sent[o.Ref] = o
	case domain.StatusAccepted:
		t.pending[o.Ref] = o
	case domain.StatusTraded:
		t.traded[o.Ref] = o
	case domain.StatusRejected, domain.StatusCancelled:
		delete(t.byRef, o.Ref)
		delete(t.order, o.Ref)
	}

	return domain.Transition{Ref: o.Ref, From: from, To: next, At: o.UpdatedAt}, nil
}

// OutstandingCount returns the number of Sent and Pending orders in market.
func (t *Tracker) OutstandingCount(marketID int) int {
	n := 0
	for _, o := range t.sent {
		if o.MarketID == marketID {
			n++
		}
	}
	for _, o := range t.pending {
		if o.MarketID == marketID {
			n++
		}
	}
	return n
}

// Outstanding returns the number of Sent and Pending orders across all markets.
func (t *Tracker) Outstanding() int {
	return len(t.sent) + len(t.pending)
}

// Lookup returns the tracked order with ref.
func (t *Tracker) Lookup(ref string) (domain.TrackedOrder, bool) {
	o, ok := t.byRef[ref]
	if !ok {
		return domain.TrackedOrder{}, false
	}
	return *o, true
}

// Sent returns copies of the orders awaiting acknowledgement, oldest first.
func (t *Tracker) Sent() []domain.TrackedOrder { return t.list(t.sent) }

// Pending returns copies of the accepted orders resting in the book, oldest first.
func (t *Tracker) Pending() []domain.TrackedOrder { return t.list(t.pending) }

// Traded returns copies of the orders fully matched this session, oldest first.
func (t *Tracker) Traded() []domain.TrackedOrder { return t.list(t.traded) }

func (t *Tracker) list(m map[string]*domain.TrackedOrder) []domain.TrackedOrder {
	out := make([]domain.TrackedOrder, 0, len(m))
	for _, o := range m {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return t.order[out[i].Ref] < t.order[out[j].Ref] })
	return out
}

func (t *Tracker) uniqueRef(marketID int, price int64, side domain.Side, at time.Time) string {
	base := domain.OrderRef(marketID, price, side, t.submitter, at)
	ref := base
	for n := 1; ; n++ {
		if _, taken := t.issued[ref]; !taken {
			break
		}
		ref = fmt.Sprintf("%s-%d", base, n)
	}
	t.issued[ref] = struct{}{}
	return ref
}

func (t *Tracker) record(ctx context.Context, o *domain.TrackedOrder) {
	if t.recorder == nil {
		return
	}
	if err := t.recorder.RecordOrder(ctx, *o); err != nil {
		slog.Warn("orders: error recording order", "ref", o.Ref, "err", err)
	}
}
