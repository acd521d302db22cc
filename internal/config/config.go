// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	DB       DBConfig       `mapstructure:"db"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Credit   CreditConfig   `mapstructure:"credit"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	RequestTimeoutS int `mapstructure:"request_timeout_seconds"`
	ShutdownGraceS  int `mapstructure:"shutdown_grace_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig selects the durable store backend.
type DBConfig struct {
	Backend         string `mapstructure:"backend"` // memory or postgres
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime string `mapstructure:"max_conn_lifetime"` // Go duration string, e.g. "30m"
}

// StatsConfig selects the provider-stats backend.
type StatsConfig struct {
	Backend  string `mapstructure:"backend"` // memory or redis
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ProviderConfig describes one fetch provider in the fallback chain.
type ProviderConfig struct {
	ID           string   `mapstructure:"id"`
	Name         string   `mapstructure:"name"`
	Native       bool     `mapstructure:"native"`
	Endpoint     string   `mapstructure:"endpoint"`
	Capabilities []string `mapstructure:"capabilities"`
	Priority     int      `mapstructure:"priority"`
}

// FetchConfig governs the resilient fetch path and its price.
type FetchConfig struct {
	PriceCents        int64            `mapstructure:"price_cents"`
	TimeoutSeconds    int              `mapstructure:"timeout_seconds"`
	SettlementBufferS int              `mapstructure:"settlement_buffer_seconds"`
	UserAgent         string           `mapstructure:"user_agent"`
	Providers         []ProviderConfig `mapstructure:"providers"`
}

// BonusTierConfig is one row of the deposit bonus schedule.
type BonusTierConfig struct {
	MinCents int64   `mapstructure:"min_cents"`
	Percent  float64 `mapstructure:"percent"`
}

// CreditConfig holds the deposit bonus schedule. The schedule is a
// named configuration input, not a hardcoded table.
type CreditConfig struct {
	BonusTiers []BonusTierConfig `mapstructure:"bonus_tiers"`
}

// MonitorConfig tunes monitor checks.
type MonitorConfig struct {
	CostCents              int64 `mapstructure:"cost_cents"`
	FetchTimeoutSeconds    int   `mapstructure:"fetch_timeout_seconds"`
	MaxConsecutiveFailures int   `mapstructure:"max_consecutive_failures"`
}

// PaymentConfig configures the x402 fallback for callers without
// credit balance.
type PaymentConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	FacilitatorURL    string `mapstructure:"facilitator_url"`
	Network           string `mapstructure:"network"`
	Asset             string `mapstructure:"asset"`
	PayTo             string `mapstructure:"pay_to"`
	MaxAmountRequired string `mapstructure:"max_amount_required"`
	MaxTimeoutSeconds int    `mapstructure:"max_timeout_seconds"`
}

// SnapshotConfig selects where monitor content snapshots are archived.
type SnapshotConfig struct {
	Backend string `mapstructure:"backend"` // memory, local, or gcs
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for check-event publishing.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_grace_seconds", 15)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.backend", "memory")
	v.SetDefault("stats.backend", "memory")
	v.SetDefault("fetch.price_cents", 1)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.settlement_buffer_seconds", 5)
	v.SetDefault("fetch.user_agent", "weblens-bot/0.1")
	v.SetDefault("monitor.cost_cents", 5)
	v.SetDefault("monitor.fetch_timeout_seconds", 30)
	v.SetDefault("monitor.max_consecutive_failures", 10)
	v.SetDefault("payment.enabled", false)
	v.SetDefault("payment.facilitator_url", "https://facilitator.x402.rs")
	v.SetDefault("payment.network", "base-sepolia")
	v.SetDefault("payment.max_timeout_seconds", 300)
	v.SetDefault("snapshot.backend", "memory")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic", "weblens-monitor-checks")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.DB.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.backend is postgres")
		}
	default:
		return fmt.Errorf("db.backend must be memory or postgres, got %q", c.DB.Backend)
	}
	if c.DB.MaxConnLifetime != "" {
		if _, err := time.ParseDuration(c.DB.MaxConnLifetime); err != nil {
			return fmt.Errorf("db.max_conn_lifetime: %w", err)
		}
	}
	switch c.Stats.Backend {
	case "memory":
	case "redis":
		if c.Stats.Addr == "" {
			return fmt.Errorf("stats.addr must be set when stats.backend is redis")
		}
	default:
		return fmt.Errorf("stats.backend must be memory or redis, got %q", c.Stats.Backend)
	}
	switch c.Snapshot.Backend {
	case "memory":
	case "local":
		if c.Snapshot.BaseDir == "" {
			return fmt.Errorf("snapshot.base_dir must be set when snapshot.backend is local")
		}
	case "gcs":
		if c.Snapshot.Bucket == "" {
			return fmt.Errorf("snapshot.bucket must be set when snapshot.backend is gcs")
		}
	default:
		return fmt.Errorf("snapshot.backend must be memory, local, or gcs, got %q", c.Snapshot.Backend)
	}
	if c.Fetch.PriceCents < 0 || c.Monitor.CostCents < 0 {
		return fmt.Errorf("prices must not be negative")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	natives := 0
	seen := make(map[string]struct{}, len(c.Fetch.Providers))
	for _, p := range c.Fetch.Providers {
		if p.ID == "" {
			return fmt.Errorf("every fetch provider needs an id")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate fetch provider id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Native {
			natives++
		} else if p.Endpoint == "" {
			return fmt.Errorf("proxied provider %q needs an endpoint", p.ID)
		}
	}
	if natives > 1 {
		return fmt.Errorf("at most one native fetch provider is supported, got %d", natives)
	}
	for _, tier := range c.Credit.BonusTiers {
		if tier.MinCents < 0 || tier.Percent < 0 || tier.Percent > 100 {
			return fmt.Errorf("invalid bonus tier {min_cents: %d, percent: %g}", tier.MinCents, tier.Percent)
		}
	}
	if c.Payment.Enabled && (c.Payment.PayTo == "" || c.Payment.Asset == "" || c.Payment.MaxAmountRequired == "") {
		return fmt.Errorf("payment.pay_to, payment.asset, and payment.max_amount_required must be set when payment is enabled")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	return nil
}

// FetchTimeout returns the per-request fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// DBMaxConnLifetime returns the parsed connection lifetime cap. Zero
// means the pool default applies. Validate has already checked the
// string parses.
func (c Config) DBMaxConnLifetime() time.Duration {
	if c.DB.MaxConnLifetime == "" {
		return 0
	}
	d, err := time.ParseDuration(c.DB.MaxConnLifetime)
	if err != nil {
		return 0
	}
	return d
}

// SettlementBuffer returns the extra headroom added to proxied attempts.
func (c Config) SettlementBuffer() time.Duration {
	return time.Duration(c.Fetch.SettlementBufferS) * time.Second
}

// MonitorFetchTimeout returns the fetch budget of one monitor check.
func (c Config) MonitorFetchTimeout() time.Duration {
	return time.Duration(c.Monitor.FetchTimeoutSeconds) * time.Second
}

// ProviderDescriptors converts the provider config rows into domain
// descriptors, preserving declaration order.
func (c Config) ProviderDescriptors() []webintel.ProviderDescriptor {
	out := make([]webintel.ProviderDescriptor, 0, len(c.Fetch.Providers))
	for _, p := range c.Fetch.Providers {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		out = append(out, webintel.ProviderDescriptor{
			ID:           p.ID,
			Name:         name,
			Native:       p.Native,
			Endpoint:     p.Endpoint,
			Capabilities: p.Capabilities,
			Priority:     p.Priority,
		})
	}
	return out
}
