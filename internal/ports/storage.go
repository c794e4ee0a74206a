package ports

import (
	"context"

	"github.com/alejandrodnm/capmbot/internal/domain"
)

// OrderRecorder receives every status change of a tracked order.
type OrderRecorder interface {
	RecordOrder(ctx context.Context, order domain.TrackedOrder) error
}

// Journal is an audit log of sessions, orders and scores. It is never read
// back into bot state.
type Journal interface {
	OrderRecorder

	// RecordSession upserts a session row, keyed by summary.ID.
	RecordSession(ctx context.Context, summary domain.SessionSummary) error

	// RecordScore appends a settled-performance sample.
	RecordScore(ctx context.Context, sample domain.ScoreSample) error

	// SessionOrders returns the journaled orders of a session, oldest first.
	SessionOrders(ctx context.Context, sessionID string) ([]domain.TrackedOrder, error)

	// LastSession returns the most recently opened session.
	LastSession(ctx context.Context) (domain.SessionSummary, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
