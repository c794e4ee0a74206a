package storage

// sqlite.go: journal de auditoría del bot.
//
// Estrategia:
//   - `sessions`: una fila por sesión (UPSERT). Se inserta al abrir y se
//     completa al cerrar con el resumen.
//   - `orders`: una fila por orden (UPSERT por ref). Cada transición
//     sobreescribe status, reason y updated_at.
//   - `scores`: una fila por reporte de holdings.
//   - Prune automático al arrancar: scores > 30d.
//
// Nothing here is read back into bot state.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/capmbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    opened_at   TEXT    NOT NULL,
    closed_at   TEXT,
    final_score REAL    NOT NULL DEFAULT 0,
    submitted   INTEGER NOT NULL DEFAULT 0,
    traded      INTEGER NOT NULL DEFAULT 0,
    outstanding INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS orders (
    ref        TEXT PRIMARY KEY,
    session_id TEXT    NOT NULL,
    market_id  INTEGER NOT NULL,
    asset      TEXT    NOT NULL,
    side       TEXT    NOT NULL,
    price      INTEGER NOT NULL,
    units      INTEGER NOT NULL,
    status     TEXT    NOT NULL,
    reason     TEXT    NOT NULL DEFAULT '',
    created_at TEXT    NOT NULL,
    updated_at TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS scores (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    at         TEXT NOT NULL,
    cash       INTEGER NOT NULL,
    expected   REAL NOT NULL,
    variance   REAL NOT NULL,
    score      REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_opened ON sessions(opened_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_session  ON orders(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_scores_session  ON scores(session_id, at);
`

const (
	retentionScores = 30 * 24 * time.Hour
	timeLayout      = "2006-01-02T15:04:05.000000000Z07:00" // fixed width, sorts as text
)

// ErrNoSessions is returned by LastSession on an empty journal.
var ErrNoSessions = errors.New("no sessions journaled")

// SQLiteJournal implementa ports.Journal usando SQLite (pure Go, sin CGo).
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}

	j := &SQLiteJournal{db: db}
	j.pruneOld(context.Background())
	return j, nil
}

// RecordSession hace upsert de la sesión. opened_at is kept from the
// first insert; a zero ClosedAt stores NULL.
func (j *SQLiteJournal) RecordSession(ctx context.Context, s domain.SessionSummary) error {
	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, opened_at, closed_at, final_score, submitted, traded, outstanding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			closed_at   = excluded.closed_at,
			final_score = excluded.final_score,
			submitted   = excluded.submitted,
			traded      = excluded.traded,
			outstanding = excluded.outstanding
	`,
		s.ID,
		formatTime(s.OpenedAt),
		nullTime(s.ClosedAt),
		s.FinalScore,
		s.Submitted,
		s.Traded,
		s.Outstanding,
	); err != nil {
		return fmt.Errorf("storage.RecordSession: upsert %s: %w", s.ID, err)
	}
	return nil
}

// RecordOrder hace upsert de una orden por su referencia.
func (j *SQLiteJournal) RecordOrder(ctx context.Context, o domain.TrackedOrder) error {
	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO orders
			(ref, session_id, market_id, asset, side, price, units, status, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			status     = excluded.status,
			reason     = excluded.reason,
			updated_at = excluded.updated_at
	`,
		o.Ref,
		o.SessionID,
		o.MarketID,
		o.Asset,
		o.Side.String(),
		o.Price,
		o.Units,
		o.Status.String(),
		o.Reason,
		formatTime(o.CreatedAt),
		formatTime(o.UpdatedAt),
	); err != nil {
		return fmt.Errorf("storage.RecordOrder: upsert %s: %w", o.Ref, err)
	}
	return nil
}

// RecordScore añade una muestra de performance.
func (j *SQLiteJournal) RecordScore(ctx context.Context, s domain.ScoreSample) error {
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO scores (session_id, at, cash, expected, variance, score) VALUES (?, ?, ?, ?, ?, ?)`,
		s.SessionID, formatTime(s.At), s.Cash, s.Expected, s.Variance, s.Score,
	); err != nil {
		return fmt.Errorf("storage.RecordScore: insert: %w", err)
	}
	return nil
}

// SessionOrders devuelve las órdenes de una sesión, más antiguas primero.
func (j *SQLiteJournal) SessionOrders(ctx context.Context, sessionID string) ([]domain.TrackedOrder, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT ref, session_id, market_id, asset, side, price, units, status, reason, created_at, updated_at
		FROM orders
		WHERE session_id = ?
		ORDER BY created_at, rowid
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage.SessionOrders: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TrackedOrder
	for rows.Next() {
		var o domain.TrackedOrder
		var side, status, created, updated string
		if err := rows.Scan(
			&o.Ref, &o.SessionID, &o.MarketID, &o.Asset, &side, &o.Price, &o.Units,
			&status, &o.Reason, &created, &updated,
		); err != nil {
			return nil, fmt.Errorf("storage.SessionOrders: scan row: %w", err)
		}
		if o.Side, err = domain.ParseSide(side); err != nil {
			return nil, fmt.Errorf("storage.SessionOrders: %s: %w", o.Ref, err)
		}
		if o.Status, err = domain.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("storage.SessionOrders: %s: %w", o.Ref, err)
		}
		o.CreatedAt, _ = time.Parse(timeLayout, created)
		o.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, o)
	}
	return out, rows.Err()
}

// LastSession devuelve la sesión abierta más recientemente.
func (j *SQLiteJournal) LastSession(ctx context.Context) (domain.SessionSummary, error) {
	var s domain.SessionSummary
	var opened string
	var closed sql.NullString

	err := j.db.QueryRowContext(ctx, `
		SELECT id, opened_at, closed_at, final_score, submitted, traded, outstanding
		FROM sessions
		ORDER BY opened_at DESC, rowid DESC
		LIMIT 1
	`).Scan(&s.ID, &opened, &closed, &s.FinalScore, &s.Submitted, &s.Traded, &s.Outstanding)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionSummary{}, fmt.Errorf("storage.LastSession: %w", ErrNoSessions)
	}
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("storage.LastSession: query: %w", err)
	}

	s.OpenedAt, _ = time.Parse(timeLayout, opened)
	if closed.Valid {
		s.ClosedAt, _ = time.Parse(timeLayout, closed.String)
	}
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// --- helpers internos ---

// pruneOld elimina muestras antiguas para mantener la DB ligera.
func (j *SQLiteJournal) pruneOld(ctx context.Context) {
	cutoff := formatTime(time.Now().Add(-retentionScores))
	j.db.ExecContext(ctx, `DELETE FROM scores WHERE at < ?`, cutoff)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}
