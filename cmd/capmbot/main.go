package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/capmbot/config"
	"github.com/alejandrodnm/capmbot/internal/adapters/marketplace"
	"github.com/alejandrodnm/capmbot/internal/adapters/notify"
	"github.com/alejandrodnm/capmbot/internal/adapters/paper"
	"github.com/alejandrodnm/capmbot/internal/adapters/storage"
	"github.com/alejandrodnm/capmbot/internal/application/bot"
	"github.com/alejandrodnm/capmbot/internal/application/runner"
	"github.com/alejandrodnm/capmbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	paperMode := flag.Bool("paper", false, "trade against the in-memory simulated marketplace")
	once := flag.Bool("once", false, "run one cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print the journaled orders of the last session and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *paperMode {
		cfg.Bot.Mode = "paper"
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	journal, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open journal", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer journal.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	console := notify.NewConsole(cfg.Bot.PayoffScale)

	if *report {
		if err := printReport(ctx, journal, console); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	seed := cfg.Bot.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	slog.Info("capmbot starting",
		"config", *configPath,
		"mode", cfg.Bot.Mode,
		"interval", cfg.TickInterval(),
		"risk_penalty", cfg.Penalty(),
		"submitter", cfg.Bot.Submitter,
		"seed", seed,
		"once", *once,
	)

	botSeed, paperSeed := splitSeed(seed)
	mp := newMarketplace(cfg, paperSeed)

	b := bot.New(bot.Config{
		RiskPenalty: cfg.Penalty(),
		Scale:       cfg.Bot.PayoffScale,
		Submitter:   cfg.Bot.Submitter,
		Rand:        rand.New(rand.NewSource(botSeed)),
	}, mp, bot.WithJournal(journal), bot.WithNotifier(console))

	r := runner.New(runner.Config{Interval: cfg.TickInterval(), Once: *once}, mp, b)
	if err := r.Run(ctx); err != nil {
		slog.Error("runner exited with error", "err", err)
		os.Exit(1)
	}

	if b.State().Open {
		s := b.Summary()
		slog.Info("session still open at exit",
			"session", s.ID,
			"submitted", s.Submitted,
			"outstanding", s.Outstanding,
			"score", fmt.Sprintf("%.5f", s.FinalScore),
		)
	}
	slog.Info("capmbot stopped cleanly", "cycles", r.Cycles())
}

// splitSeed derives independent streams for the bot's draws and the
// simulated noise traders.
func splitSeed(seed int64) (botSeed, paperSeed int64) {
	return seed, seed + 1
}

func newMarketplace(cfg *config.Config, seed int64) ports.Marketplace {
	if cfg.Bot.Mode == "paper" {
		return paper.New(paper.Config{
			Markets:       cfg.PaperMarkets(),
			Cash:          cfg.Paper.Cash,
			Units:         cfg.Paper.Units,
			NoiseOrders:   cfg.Paper.NoiseOrders,
			Spread:        cfg.Paper.Spread,
			NoiseTTL:      cfg.Paper.NoiseTTL,
			SessionLength: cfg.Paper.SessionLength,
			SessionGap:    cfg.Paper.SessionGap,
			Seed:          seed,
		})
	}
	return marketplace.NewClient(marketplace.Config{
		Base:              cfg.API.Base,
		Token:             cfg.API.Token,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		Timeout:           time.Duration(cfg.API.TimeoutSeconds) * time.Second,
	})
}

// printReport imprime las órdenes de la última sesión del journal.
func printReport(ctx context.Context, journal ports.Journal, console *notify.Console) error {
	last, err := journal.LastSession(ctx)
	if err != nil {
		return fmt.Errorf("main.printReport: %w", err)
	}
	orders, err := journal.SessionOrders(ctx, last.ID)
	if err != nil {
		return fmt.Errorf("main.printReport: %w", err)
	}
	console.PrintOrders(last, orders)
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
