package runner

// runner.go: bombea eventos del marketplace hacia el bot.
//
// Un ciclo, en serie:
//  1. Step del simulador, si el marketplace lo tiene (modo -paper)
//  2. catálogo, sólo la primera vez → OnInitialised
//  3. sesión → OnSessionInfo en transiciones o con catálogo nuevo; al
//     abrir se vuelve a pedir el catálogo
//  4. holdings → OnHoldings
//  5. acks → OnOrderAccepted / OnOrderRejected
//  6. libro → OnOrderBook
//
// Un error de fetch corta el ciclo; el siguiente tick vuelve a intentarlo.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/capmbot/internal/application/bot"
	"github.com/alejandrodnm/capmbot/internal/domain"
	"github.com/alejandrodnm/capmbot/internal/ports"
)

// Handler recibe los eventos del marketplace. *bot.Bot lo implementa.
type Handler interface {
	OnInitialised(ctx context.Context, markets []domain.Market) error
	OnSessionInfo(ctx context.Context, session domain.Session) error
	OnHoldings(ctx context.Context, h domain.Holdings)
	OnOrderAccepted(ctx context.Context, ref string)
	OnOrderRejected(ctx context.Context, ref, reason string)
	OnOrderBook(ctx context.Context, snapshot []domain.BookOrder) (bot.TickResult, error)
}

// Stepper is implemented by simulated marketplaces that advance one step
// per cycle.
type Stepper interface {
	Step()
}

// Config contiene los parámetros del runner.
type Config struct {
	Interval time.Duration
	Once     bool // un ciclo y salir
}

// Runner polls the marketplace and delivers events to the handler one at
// a time.
type Runner struct {
	cfg     Config
	mp      ports.Marketplace
	handler Handler

	initialised bool
	observed    bool // a session state has been seen
	open        bool
	cycles      int
}

// New crea un Runner.
func New(cfg Config, mp ports.Marketplace, h Handler) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Runner{cfg: cfg, mp: mp, handler: h}
}

// Cycles returns how many cycles ran to completion.
func (r *Runner) Cycles() int { return r.cycles }

// Run ejecuta ciclos hasta que el contexto se cancele. With Once it runs a
// single cycle and returns its error.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("runner: starting", "interval", r.cfg.Interval, "once", r.cfg.Once)

	if _, err := r.RunOnce(ctx); err != nil {
		slog.Error("runner: cycle failed", "err", err)
		if r.cfg.Once {
			return err
		}
	}
	if r.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("runner: stopped", "cycles", r.cycles)
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				slog.Error("runner: cycle failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta un ciclo completo y devuelve el resultado del tick.
func (r *Runner) RunOnce(ctx context.Context) (bot.TickResult, error) {
	if err := ctx.Err(); err != nil {
		return bot.TickResult{}, fmt.Errorf("runner.RunOnce: %w", err)
	}
	if s, ok := r.mp.(Stepper); ok {
		s.Step()
	}

	if !r.initialised {
		markets, err := r.mp.FetchMarkets(ctx)
		if err != nil {
			return bot.TickResult{}, fmt.Errorf("runner.RunOnce: fetch markets: %w", err)
		}
		if err := r.handler.OnInitialised(ctx, markets); err != nil {
			slog.Warn("runner: catalog rejected", "err", err)
		}
		r.initialised = true
		slog.Info("runner: initialised", "markets", len(markets))
	}

	session, err := r.mp.FetchSession(ctx)
	if err != nil {
		return bot.TickResult{}, fmt.Errorf("runner.RunOnce: fetch session: %w", err)
	}
	opening := session.Open && (!r.observed || !r.open)
	if opening && len(session.Markets) == 0 {
		// Payoffs may change between sessions; the open compares fresh ones.
		markets, err := r.mp.FetchMarkets(ctx)
		if err != nil {
			return bot.TickResult{}, fmt.Errorf("runner.RunOnce: fetch markets on open: %w", err)
		}
		session.Markets = markets
	}
	if !r.observed || session.Open != r.open || len(session.Markets) > 0 {
		if err := r.handler.OnSessionInfo(ctx, session); err != nil {
			slog.Warn("runner: session info", "err", err)
		}
		r.observed = true
		r.open = session.Open
	}

	holdings, err := r.mp.FetchHoldings(ctx)
	if err != nil {
		return bot.TickResult{}, fmt.Errorf("runner.RunOnce: fetch holdings: %w", err)
	}
	r.handler.OnHoldings(ctx, holdings)

	acks, err := r.mp.DrainAcks(ctx)
	if err != nil {
		return bot.TickResult{}, fmt.Errorf("runner.RunOnce: drain acks: %w", err)
	}
	for _, a := range acks {
		if a.Accepted {
			r.handler.OnOrderAccepted(ctx, a.Ref)
		} else {
			r.handler.OnOrderRejected(ctx, a.Ref, a.Reason)
		}
	}

	book, err := r.mp.FetchOrderBook(ctx)
	if err != nil {
		return bot.TickResult{}, fmt.Errorf("runner.RunOnce: fetch order book: %w", err)
	}
	res, err := r.handler.OnOrderBook(ctx, book)
	if err != nil {
		return res, fmt.Errorf("runner.RunOnce: %w", err)
	}

	r.cycles++
	slog.Debug("runner: cycle done",
		"cycle", r.cycles,
		"open", session.Open,
		"acks", len(acks),
		"book", len(book),
		"transitions", len(res.Transitions),
	)
	return res, nil
}
