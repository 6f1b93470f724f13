package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"agentdash/internal/logging"
)

// DefaultAssetIDs is the fixed CoinGecko id list shown on the dashboard.
var DefaultAssetIDs = []string{
	"bitcoin",
	"ethereum",
	"tether",
	"binancecoin",
	"solana",
	"ripple",
	"usd-coin",
	"cardano",
	"dogecoin",
	"tron",
	"avalanche-2",
	"chainlink",
	"polkadot",
	"matic-network",
	"litecoin",
	"shiba-inu",
	"uniswap",
	"cosmos",
	"stellar",
	"near",
}

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Market   MarketConfig   `mapstructure:"market"`
	Project  ProjectConfig  `mapstructure:"project"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig selects the key-value backend for the persisted state slots.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

// RedisConfig covers the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MarketConfig captures market-data API connectivity.
type MarketConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Currency       string        `mapstructure:"currency"`
	AssetIDs       []string      `mapstructure:"asset_ids"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ProjectConfig describes the not-yet-listed project token pinned to the top.
type ProjectConfig struct {
	TokenID         string `mapstructure:"token_id"`
	Symbol          string `mapstructure:"symbol"`
	Name            string `mapstructure:"name"`
	Image           string `mapstructure:"image"`
	ContractAddress string `mapstructure:"contract_address"`
}

// RefreshConfig governs the refresh cadence and cache staleness.
type RefreshConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`

	// AdvisoryLockKey elects a single refresher among instances sharing a
	// postgres backend. Zero disables election.
	AdvisoryLockKey int64 `mapstructure:"advisory_lock_key"`
}

// ChatConfig points the relay at the agent backend.
type ChatConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HistoryWindow  int           `mapstructure:"history_window"`
	MaxMessages    int           `mapstructure:"max_messages"`
}

// AlertingConfig defines price alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// HTTPConfig configures the dashboard API listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGENTDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "agentdash")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "agentdash.db")
	v.SetDefault("storage.key_prefix", "agentdash:")
	v.SetDefault("storage.max_open_conns", 5)
	v.SetDefault("storage.max_idle_conns", 1)
	v.SetDefault("storage.conn_max_lifetime", "30m")
	v.SetDefault("storage.redis.addr", "127.0.0.1:6379")
	v.SetDefault("storage.redis.db", 0)

	v.SetDefault("market.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("market.currency", "usd")
	v.SetDefault("market.asset_ids", DefaultAssetIDs)
	v.SetDefault("market.request_timeout", "15s")

	v.SetDefault("project.token_id", "agent-token")
	v.SetDefault("project.symbol", "AGENT")
	v.SetDefault("project.name", "Agent Token")
	v.SetDefault("project.image", "/images/token-logo.png")

	v.SetDefault("refresh.interval", "120s")
	v.SetDefault("refresh.stale_after", "5m")
	v.SetDefault("refresh.startup_delay", "0s")
	v.SetDefault("refresh.advisory_lock_key", 0)

	v.SetDefault("chat.endpoint", "http://localhost:3000/api/agent")
	v.SetDefault("chat.request_timeout", "30s")
	v.SetDefault("chat.history_window", 5)
	v.SetDefault("chat.max_messages", 100)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "45s")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("export.max_data_points", 500)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	if len(c.Market.AssetIDs) == 0 {
		return fmt.Errorf("market.asset_ids must not be empty")
	}
	if c.Project.TokenID == "" {
		return fmt.Errorf("project.token_id must be set")
	}
	if addr := c.Project.ContractAddress; addr != "" && !common.IsHexAddress(addr) {
		return fmt.Errorf("project.contract_address %q is not a valid address", addr)
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be greater than zero")
	}
	if c.Refresh.StaleAfter <= 0 {
		return fmt.Errorf("refresh.stale_after must be greater than zero")
	}
	if c.Chat.HistoryWindow < 0 {
		return fmt.Errorf("chat.history_window cannot be negative")
	}
	if c.Chat.MaxMessages <= 0 {
		return fmt.Errorf("chat.max_messages must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
