package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"pocket-trading-bot/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Timezone  string          `mapstructure:"timezone"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Signals   SignalsConfig   `mapstructure:"signals"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Export    ExportConfig    `mapstructure:"export"`

	location *time.Location
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// BrokerConfig covers the Pocket Option session.
type BrokerConfig struct {
	SSID           string        `mapstructure:"ssid"`
	Demo           bool          `mapstructure:"demo"`
	URL            string        `mapstructure:"url"`
	Origin         string        `mapstructure:"origin"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LLMConfig captures the completion API connectivity.
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	BaseURL        string        `mapstructure:"base_url"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Language       string        `mapstructure:"language"`
}

// SignalsConfig governs signal generation and retention.
type SignalsConfig struct {
	Assets           []string      `mapstructure:"assets"`
	TimeframeSeconds int           `mapstructure:"timeframe_seconds"`
	CandleCount      int           `mapstructure:"candle_count"`
	PromptCandles    int           `mapstructure:"prompt_candles"`
	MinConfidence    float64       `mapstructure:"min_confidence"`
	MaxDuration      int           `mapstructure:"max_duration"`
	EntryDelay       time.Duration `mapstructure:"entry_delay"`
	MaxActive        int           `mapstructure:"max_active"`
	HistoryLimit     int           `mapstructure:"history_limit"`
	AssetDelay       time.Duration `mapstructure:"asset_delay"`
}

// SchedulerConfig governs generation cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	RunAtStart    bool          `mapstructure:"run_at_start"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// StorageConfig locates the JSON store files and the optional archive.
type StorageConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	SignalsFile  string `mapstructure:"signals_file"`
	HistoryFile  string `mapstructure:"history_file"`
	FeedbackFile string `mapstructure:"feedback_file"`
	LessonsFile  string `mapstructure:"lessons_file"`
	UsageFile    string `mapstructure:"usage_file"`

	ArchiveDSN      string        `mapstructure:"archive_dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AlertingConfig defines signal push routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// LimitsConfig bounds daily completion-API usage.
type LimitsConfig struct {
	MaxTokensPerDay   int `mapstructure:"max_tokens_per_day"`
	MaxRequestsPerDay int `mapstructure:"max_requests_per_day"`
	EstTokensPerCycle int `mapstructure:"est_tokens_per_cycle"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// Secrets arrive through a local .env in the reference deployment.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("POCKETBOT")
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
	v.SetDefault("app.name", "pocket-trading-bot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("timezone", "Europe/Kyiv")

	// Secret-bearing keys need a registered default so AutomaticEnv can
	// resolve them during Unmarshal.
	v.SetDefault("broker.ssid", "")
	v.SetDefault("broker.demo", true)
	v.SetDefault("broker.url", "wss://api-eu.po.market/socket.io/?EIO=4&transport=websocket")
	v.SetDefault("broker.origin", "https://pocketoption.com")
	v.SetDefault("broker.request_timeout", "30s")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.request_timeout", "30s")
	v.SetDefault("llm.language", "en")

	v.SetDefault("signals.assets", []string{"GBPJPY_otc", "EURUSD_otc", "USDJPY_otc"})
	v.SetDefault("signals.timeframe_seconds", 120)
	v.SetDefault("signals.candle_count", 50)
	v.SetDefault("signals.prompt_candles", 15)
	v.SetDefault("signals.min_confidence", 0.7)
	v.SetDefault("signals.max_duration", 5)
	v.SetDefault("signals.entry_delay", "2m")
	v.SetDefault("signals.max_active", 10)
	v.SetDefault("signals.history_limit", 500)
	v.SetDefault("signals.asset_delay", "1s")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.run_at_start", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.signals_file", "signals.json")
	v.SetDefault("storage.history_file", "history.json")
	v.SetDefault("storage.feedback_file", "feedback.json")
	v.SetDefault("storage.lessons_file", "lessons.json")
	v.SetDefault("storage.usage_file", "usage.json")
	v.SetDefault("storage.archive_dsn", "")
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("storage.conn_max_lifetime", "30m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("limits.max_tokens_per_day", 200000)
	v.SetDefault("limits.max_requests_per_day", 1000)
	v.SetDefault("limits.est_tokens_per_cycle", 8000)

	v.SetDefault("export.max_data_points", 100000)
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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Signals.MinConfidence < 0 || c.Signals.MinConfidence > 1 {
		return fmt.Errorf("signals.min_confidence must be within [0,1]")
	}
	if c.Signals.MaxDuration <= 0 {
		return fmt.Errorf("signals.max_duration must be greater than zero")
	}
	if len(c.Signals.Assets) == 0 {
		return fmt.Errorf("signals.assets must not be empty")
	}
	if c.Signals.TimeframeSeconds <= 0 {
		return fmt.Errorf("signals.timeframe_seconds must be greater than zero")
	}
	if c.Signals.MaxActive <= 0 {
		return fmt.Errorf("signals.max_active must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when the channel is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when the channel is enabled")
		}
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	c.location = loc

	return nil
}

// Location returns the configured signal timezone. Validate must run first.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
