package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alejandrodnm/capmbot/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultRiskPenalty = 0.001

// Config es la configuración completa del bot.
type Config struct {
	Bot     BotConfig     `yaml:"bot"`
	API     APIConfig     `yaml:"api"`
	Paper   PaperConfig   `yaml:"paper"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// BotConfig controla la toma de decisiones.
type BotConfig struct {
	Mode                string   `yaml:"mode"`         // live | paper
	RiskPenalty         *float64 `yaml:"risk_penalty"` // nil = default; 0 is a valid risk-neutral bot
	PayoffScale         int64    `yaml:"payoff_scale"` // subunits per currency unit
	Submitter           string   `yaml:"submitter"`
	TickIntervalSeconds int      `yaml:"tick_interval_seconds"`
	Seed                int64    `yaml:"seed"` // 0 = time-based
}

// APIConfig contiene la conexión al marketplace REST.
type APIConfig struct {
	Base              string  `yaml:"base"`
	Token             string  `yaml:"token"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

// PaperConfig parametriza el marketplace simulado.
type PaperConfig struct {
	Cash          int64          `yaml:"cash"`  // subunits
	Units         int            `yaml:"units"` // per asset
	NoiseOrders   int            `yaml:"noise_orders"`
	Spread        int64          `yaml:"spread"`
	NoiseTTL      int            `yaml:"noise_ttl"`
	SessionLength int            `yaml:"session_length"` // steps, 0 = never close
	SessionGap    int            `yaml:"session_gap"`
	Markets       []MarketConfig `yaml:"markets"`
}

// MarketConfig is one market of the paper catalog.
type MarketConfig struct {
	ID            int    `yaml:"id"`
	Asset         string `yaml:"asset"`
	Name          string `yaml:"name"`
	Payoffs       string `yaml:"payoffs"`
	MinPrice      int64  `yaml:"min_price"`
	MaxPrice      int64  `yaml:"max_price"`
	PriceTick     int64  `yaml:"price_tick"`
	MaxOpenOrders int    `yaml:"max_open_orders"`
}

// StorageConfig controla dónde se persiste el journal.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse aplica overrides y defaults sobre un documento YAML y lo valida.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Parse: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TickInterval devuelve el intervalo entre ciclos como time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Bot.TickIntervalSeconds) * time.Second
}

// Penalty devuelve el coeficiente de aversión al riesgo.
func (c *Config) Penalty() float64 {
	if c.Bot.RiskPenalty == nil {
		return defaultRiskPenalty
	}
	return *c.Bot.RiskPenalty
}

// PaperMarkets convierte el catálogo simulado a tipos de dominio.
func (c *Config) PaperMarkets() []domain.Market {
	out := make([]domain.Market, 0, len(c.Paper.Markets))
	for _, m := range c.Paper.Markets {
		out = append(out, domain.Market{
			ID:            m.ID,
			Asset:         m.Asset,
			Name:          m.Name,
			Description:   m.Payoffs,
			MinPrice:      m.MinPrice,
			MaxPrice:      m.MaxPrice,
			PriceTick:     m.PriceTick,
			MaxOpenOrders: m.MaxOpenOrders,
		})
	}
	return out
}

// Validate rechaza configuraciones que el bot no puede ejecutar.
func (c *Config) Validate() error {
	var errs []error
	if c.Penalty() < 0 {
		errs = append(errs, fmt.Errorf("bot.risk_penalty must be >= 0, got %v", c.Penalty()))
	}
	if c.Bot.PayoffScale <= 0 {
		errs = append(errs, fmt.Errorf("bot.payoff_scale must be > 0, got %d", c.Bot.PayoffScale))
	}
	switch c.Bot.Mode {
	case "live":
		if c.API.Base == "" {
			errs = append(errs, errors.New("api.base is required in live mode"))
		}
	case "paper":
		if len(c.Paper.Markets) == 0 {
			errs = append(errs, errors.New("paper.markets is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown bot.mode %q", c.Bot.Mode))
	}

	seen := map[int]bool{}
	for _, m := range c.Paper.Markets {
		if seen[m.ID] {
			errs = append(errs, fmt.Errorf("paper market %d defined twice", m.ID))
		}
		seen[m.ID] = true
		if m.MinPrice > m.MaxPrice {
			errs = append(errs, fmt.Errorf("paper market %d: min_price %d > max_price %d", m.ID, m.MinPrice, m.MaxPrice))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("CAPM_API_BASE"); v != "" {
		cfg.API.Base = v
	}
	if v := os.Getenv("CAPM_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("CAPM_SUBMITTER"); v != "" {
		cfg.Bot.Submitter = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "paper"
	}
	if cfg.Bot.PayoffScale == 0 {
		cfg.Bot.PayoffScale = domain.DefaultScale
	}
	if cfg.Bot.Submitter == "" {
		cfg.Bot.Submitter = "capmbot"
	}
	if cfg.Bot.TickIntervalSeconds <= 0 {
		cfg.Bot.TickIntervalSeconds = 2
	}
	if cfg.API.RequestsPerSecond <= 0 {
		cfg.API.RequestsPerSecond = 5
	}
	if cfg.API.Burst <= 0 {
		cfg.API.Burst = 5
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 10
	}
	if cfg.Paper.Cash <= 0 {
		cfg.Paper.Cash = 10000
	}
	if cfg.Paper.NoiseOrders <= 0 {
		cfg.Paper.NoiseOrders = 2
	}
	for i := range cfg.Paper.Markets {
		if cfg.Paper.Markets[i].PriceTick <= 0 {
			cfg.Paper.Markets[i].PriceTick = 1
		}
		if cfg.Paper.Markets[i].MaxOpenOrders <= 0 {
			cfg.Paper.Markets[i].MaxOpenOrders = 1
		}
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "capmbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
