package ports

import "github.com/alejandrodnm/capmbot/internal/domain"

// Notifier presenta al usuario lo que hace el bot.
type Notifier interface {
	// PrintPayoffs shows the payoff statistics after a recompute.
	PrintPayoffs(markets []domain.Market, model *domain.PayoffModel)

	// PrintDecision shows a tick that produced an order.
	PrintDecision(decision domain.Decision)

	// PrintSession shows the summary of a closed session.
	PrintSession(summary domain.SessionSummary)
}
