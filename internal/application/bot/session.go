package bot

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"time"

	"github.com/alejandrodnm/capmbot/internal/domain"
	"github.com/google/uuid"
)

// SessionState is everything the bot knows about the current session.
// It is replaced wholesale on session open by newSessionState; only the
// catalog, the stored payoff descriptions and the payoff model survive.
type SessionState struct {
	ID       string
	Open     bool
	OpenedAt time.Time

	markets      map[int]domain.Market
	marketIDs    []int             // sorted, only markets whose asset has payoffs
	descriptions map[string]string // asset → last payoff description used
	model        *domain.PayoffModel

	holdings *domain.Holdings // nil until the first report

	score      float64
	scoreValid bool
	scoreGen   int

	submitted int
}

// newSessionState builds a clean state. prev may be nil.
func newSessionState(prev *SessionState, scale int64) *SessionState {
	s := &SessionState{
		markets:      map[int]domain.Market{},
		descriptions: map[string]string{},
	}
	if prev == nil {
		s.model = domain.NewPayoffModel(scale)
		return s
	}
	s.markets = prev.markets
	s.marketIDs = prev.marketIDs
	s.descriptions = prev.descriptions
	s.model = prev.model
	return s
}

// Market returns the catalog entry for id.
func (s *SessionState) Market(id int) (domain.Market, bool) {
	m, ok := s.markets[id]
	return m, ok
}

// Holdings returns the last settled holdings report, if any.
func (s *SessionState) Holdings() (domain.Holdings, bool) {
	if s.holdings == nil {
		return domain.Holdings{}, false
	}
	return *s.holdings, true
}

// tradeable returns the catalog entries the bot can score, sorted by ID.
func (s *SessionState) tradeable() []domain.Market {
	out := make([]domain.Market, 0, len(s.marketIDs))
	for _, id := range s.marketIDs {
		out = append(out, s.markets[id])
	}
	return out
}

// OnInitialised stores the market catalog and computes the payoff
// statistics from it.
func (b *Bot) OnInitialised(ctx context.Context, markets []domain.Market) error {
	if err := b.applyCatalog(markets); err != nil {
		return fmt.Errorf("bot.OnInitialised: %w", err)
	}
	slog.Info("bot: initialised", "markets", len(markets), "assets", len(b.state.model.Assets()))
	return nil
}

// OnSessionInfo handles session open and close transitions. A repeated
// state only refreshes the catalog if one is attached.
func (b *Bot) OnSessionInfo(ctx context.Context, session domain.Session) error {
	switch {
	case session.Open && !b.state.Open:
		return b.openSession(ctx, session.Markets)
	case !session.Open && b.state.Open:
		b.closeSession(ctx)
		return nil
	case len(session.Markets) > 0:
		if err := b.applyCatalog(session.Markets); err != nil {
			return fmt.Errorf("bot.OnSessionInfo: %w", err)
		}
	}
	return nil
}

func (b *Bot) openSession(ctx context.Context, markets []domain.Market) error {
	if n := b.tracker.Outstanding(); n > 0 {
		slog.Warn("bot: dropping outstanding orders from previous session, they were never cancelled",
			"count", n, "session", b.state.ID)
	}

	b.state = newSessionState(b.state, b.cfg.Scale)
	b.state.ID = uuid.NewString()
	b.state.Open = true
	b.state.OpenedAt = b.now()
	b.tracker.Begin(b.state.ID)

	var catalogErr error
	if len(markets) > 0 {
		catalogErr = b.applyCatalog(markets)
	}

	slog.Info("bot: session open", "session", b.state.ID, "generation", b.state.model.Generation())
	if b.journal != nil {
		if err := b.journal.RecordSession(ctx, domain.SessionSummary{ID: b.state.ID, OpenedAt: b.state.OpenedAt}); err != nil {
			slog.Warn("bot: journal session", "err", err)
		}
	}

	if catalogErr != nil {
		return fmt.Errorf("bot.openSession: %w", catalogErr)
	}
	return nil
}

func (b *Bot) closeSession(ctx context.Context) {
	summary := b.Summary()
	b.state.Open = false

	if summary.Outstanding > 0 {
		slog.Warn("bot: session closed with outstanding orders, no cancellation sent",
			"count", summary.Outstanding, "session", summary.ID)
	}
	slog.Info("bot: session closed",
		"session", summary.ID,
		"submitted", summary.Submitted,
		"traded", summary.Traded,
		"score", fmt.Sprintf("%.5f", summary.FinalScore),
	)

	if b.journal != nil {
		if err := b.journal.RecordSession(ctx, summary); err != nil {
			slog.Warn("bot: journal session", "err", err)
		}
	}
	if b.notifier != nil {
		b.notifier.PrintSession(summary)
	}
}

// Summary reports the current session as if it closed now.
func (b *Bot) Summary() domain.SessionSummary {
	s := domain.SessionSummary{
		ID:          b.state.ID,
		OpenedAt:    b.state.OpenedAt,
		ClosedAt:    b.now(),
		Submitted:   b.state.submitted,
		Traded:      len(b.tracker.Traded()),
		Outstanding: b.tracker.Outstanding(),
	}
	if score, ok := b.currentScore(); ok {
		s.FinalScore = score
	}
	return s
}

// applyCatalog stores markets and recomputes the payoff model only when a
// payoff description differs from the stored one. On error the previous
// catalog and model are kept.
func (b *Bot) applyCatalog(markets []domain.Market) error {
	catalog := make(map[int]domain.Market, len(markets))
	descriptions := make(map[string]string, len(markets))
	for _, m := range markets {
		catalog[m.ID] = m
		descriptions[m.Asset] = m.Description
	}

	if !maps.Equal(descriptions, b.state.descriptions) {
		payoffs := make(map[string][]int64, len(descriptions))
		for asset, desc := range descriptions {
			p, err := domain.ParsePayoffs(desc)
			if err != nil {
				return fmt.Errorf("bot.applyCatalog: asset %s: %w", asset, err)
			}
			payoffs[asset] = p
		}
		if err := b.state.model.Recompute(payoffs); err != nil {
			return fmt.Errorf("bot.applyCatalog: %w", err)
		}
		b.state.descriptions = descriptions
		b.state.scoreValid = false

		slog.Info("bot: payoffs recomputed",
			"assets", len(descriptions),
			"states", b.state.model.States(),
			"generation", b.state.model.Generation(),
		)
		if b.notifier != nil {
			b.notifier.PrintPayoffs(markets, b.state.model)
		}
	} else {
		slog.Debug("bot: payoffs unchanged", "generation", b.state.model.Generation())
	}

	ids := make([]int, 0, len(catalog))
	for id, m := range catalog {
		if b.state.model.Has(m.Asset) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	b.state.markets = catalog
	b.state.marketIDs = ids
	return nil
}
