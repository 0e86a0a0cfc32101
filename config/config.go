package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config is the full application configuration. It is re-read at the start
// of every loop cycle, so threshold changes take effect without a restart.
type Config struct {
	UpbitConfig        UpbitConfig        `json:"upbit"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	SelectorConfig     SelectorConfig     `json:"selector"`
	DetectorConfig     DetectorConfig     `json:"detector"`
	MonitorConfig      MonitorConfig      `json:"monitor"`
	SweeperConfig      SweeperConfig      `json:"sweeper"`
	NotificationConfig NotificationConfig `json:"notification"`
	ServerConfig       ServerConfig       `json:"server"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// UpbitConfig holds exchange API credentials and endpoints
type UpbitConfig struct {
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	BaseURL      string `json:"base_url"`
	WebsocketURL string `json:"websocket_url"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds redis settings for the watchlist cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// SelectorConfig controls market watchlist selection
type SelectorConfig struct {
	WatchCount      int     `json:"watch_count"`      // Target watchlist size
	RefreshHours    int     `json:"refresh_hours"`    // Watchlist TTL in hours
	RefreshSchedule string  `json:"refresh_schedule"` // Cron spec for the forced daily refresh
	MinPrice        float64 `json:"min_price"`        // Below this is pump-risk territory
	MaxPrice        float64 `json:"max_price"`        // Above this surges are unlikely
}

// DetectorConfig controls the detection loop
type DetectorConfig struct {
	Enabled         bool    `json:"enabled"`
	IntervalMinutes int     `json:"interval_minutes"`
	MinAlertScore   float64 `json:"min_alert_score"` // Score threshold to emit an alert
	MinTradeScore   float64 `json:"min_trade_score"` // Score threshold to open a position
	AutoTrade       bool    `json:"auto_trade"`
	TradeAmountKRW  float64 `json:"trade_amount_krw"` // KRW spent per auto-trade
	TargetPercent   float64 `json:"target_percent"`   // Take-profit distance from entry
	StopLossPercent float64 `json:"stop_loss_percent"`
	CandleCount     int     `json:"candle_count"` // Daily candles fetched per symbol
}

// MonitorConfig controls the open-position monitor loop
type MonitorConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// SweeperConfig controls the stale-signal closer and outcome reconciler
type SweeperConfig struct {
	Enabled             bool    `json:"enabled"`
	IntervalMinutes     int     `json:"interval_minutes"`
	MaxAgeHours         int     `json:"max_age_hours"`     // Force-close after this
	PeakDropPercent     float64 `json:"peak_drop_percent"` // Close on drop from peak
	LossPercent         float64 `json:"loss_percent"`      // Close below entry by this
	StagnationHours     int     `json:"stagnation_hours"`
	StagnationPercent   float64 `json:"stagnation_percent"`
	SlowProgressHours   int     `json:"slow_progress_hours"`
	SlowProgressPercent float64 `json:"slow_progress_percent"` // Min progress toward target
	ReconcileAfterDays  int     `json:"reconcile_after_days"`
	ReconcileSchedule   string  `json:"reconcile_schedule"` // Cron spec
}

// NotificationConfig holds alert delivery settings
type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// DiscordConfig holds Discord webhook settings
type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// ServerConfig holds the read-only status API settings
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level   string `json:"level"`   // debug, info, warn, error
	Console bool   `json:"console"` // Human-readable console output instead of JSON
}

// Load reads configuration from an optional JSON file and applies
// environment overrides on top.
func Load(filename string) (*Config, error) {
	cfg := defaultConfig()

	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			loaded, err := loadFromFile(filename)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DetectorConfig.MinAlertScore < 0 || c.DetectorConfig.MinAlertScore > 100 {
		return fmt.Errorf("min_alert_score must be within [0,100], got %.1f", c.DetectorConfig.MinAlertScore)
	}
	if c.DetectorConfig.TargetPercent <= 0 {
		return fmt.Errorf("target_percent must be positive, got %.2f", c.DetectorConfig.TargetPercent)
	}
	if c.DetectorConfig.StopLossPercent <= 0 {
		return fmt.Errorf("stop_loss_percent must be positive, got %.2f", c.DetectorConfig.StopLossPercent)
	}
	if c.SelectorConfig.WatchCount <= 0 {
		return fmt.Errorf("watch_count must be positive, got %d", c.SelectorConfig.WatchCount)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		UpbitConfig: UpbitConfig{
			BaseURL:      "https://api.upbit.com/v1",
			WebsocketURL: "wss://api.upbit.com/websocket/v1",
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "coinpulse",
			Database: "coinpulse",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		SelectorConfig: SelectorConfig{
			WatchCount:      30,
			RefreshHours:    24,
			RefreshSchedule: "0 1 * * *",
			MinPrice:        100,
			MaxPrice:        2000000,
		},
		DetectorConfig: DetectorConfig{
			Enabled:         true,
			IntervalMinutes: 10,
			MinAlertScore:   70,
			MinTradeScore:   80,
			AutoTrade:       false,
			TradeAmountKRW:  100000,
			TargetPercent:   10,
			StopLossPercent: 5,
			CandleCount:     60,
		},
		MonitorConfig: MonitorConfig{
			Enabled:         true,
			IntervalSeconds: 30,
		},
		SweeperConfig: SweeperConfig{
			Enabled:             true,
			IntervalMinutes:     30,
			MaxAgeHours:         72,
			PeakDropPercent:     3,
			LossPercent:         2,
			StagnationHours:     24,
			StagnationPercent:   1,
			SlowProgressHours:   48,
			SlowProgressPercent: 10,
			ReconcileAfterDays:  3,
			ReconcileSchedule:   "30 0 * * *",
		},
		NotificationConfig: NotificationConfig{Enabled: false},
		ServerConfig: ServerConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		LoggingConfig: LoggingConfig{
			Level:   "info",
			Console: false,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.UpbitConfig.AccessKey = getEnvOrDefault("UPBIT_ACCESS_KEY", cfg.UpbitConfig.AccessKey)
	cfg.UpbitConfig.SecretKey = getEnvOrDefault("UPBIT_SECRET_KEY", cfg.UpbitConfig.SecretKey)
	cfg.UpbitConfig.BaseURL = getEnvOrDefault("UPBIT_BASE_URL", cfg.UpbitConfig.BaseURL)
	cfg.UpbitConfig.WebsocketURL = getEnvOrDefault("UPBIT_WEBSOCKET_URL", cfg.UpbitConfig.WebsocketURL)

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	cfg.SelectorConfig.WatchCount = getEnvIntOrDefault("SELECTOR_WATCH_COUNT", cfg.SelectorConfig.WatchCount)
	cfg.SelectorConfig.RefreshHours = getEnvIntOrDefault("SELECTOR_REFRESH_HOURS", cfg.SelectorConfig.RefreshHours)
	cfg.SelectorConfig.RefreshSchedule = getEnvOrDefault("SELECTOR_REFRESH_SCHEDULE", cfg.SelectorConfig.RefreshSchedule)
	cfg.SelectorConfig.MinPrice = getEnvFloatOrDefault("SELECTOR_MIN_PRICE", cfg.SelectorConfig.MinPrice)
	cfg.SelectorConfig.MaxPrice = getEnvFloatOrDefault("SELECTOR_MAX_PRICE", cfg.SelectorConfig.MaxPrice)

	cfg.DetectorConfig.Enabled = getEnvBoolOrDefault("DETECTOR_ENABLED", cfg.DetectorConfig.Enabled)
	cfg.DetectorConfig.IntervalMinutes = getEnvIntOrDefault("DETECTOR_INTERVAL_MINUTES", cfg.DetectorConfig.IntervalMinutes)
	cfg.DetectorConfig.MinAlertScore = getEnvFloatOrDefault("DETECTOR_MIN_ALERT_SCORE", cfg.DetectorConfig.MinAlertScore)
	cfg.DetectorConfig.MinTradeScore = getEnvFloatOrDefault("DETECTOR_MIN_TRADE_SCORE", cfg.DetectorConfig.MinTradeScore)
	cfg.DetectorConfig.AutoTrade = getEnvBoolOrDefault("DETECTOR_AUTO_TRADE", cfg.DetectorConfig.AutoTrade)
	cfg.DetectorConfig.TradeAmountKRW = getEnvFloatOrDefault("DETECTOR_TRADE_AMOUNT_KRW", cfg.DetectorConfig.TradeAmountKRW)
	cfg.DetectorConfig.TargetPercent = getEnvFloatOrDefault("DETECTOR_TARGET_PERCENT", cfg.DetectorConfig.TargetPercent)
	cfg.DetectorConfig.StopLossPercent = getEnvFloatOrDefault("DETECTOR_STOP_LOSS_PERCENT", cfg.DetectorConfig.StopLossPercent)
	cfg.DetectorConfig.CandleCount = getEnvIntOrDefault("DETECTOR_CANDLE_COUNT", cfg.DetectorConfig.CandleCount)

	cfg.MonitorConfig.Enabled = getEnvBoolOrDefault("MONITOR_ENABLED", cfg.MonitorConfig.Enabled)
	cfg.MonitorConfig.IntervalSeconds = getEnvIntOrDefault("MONITOR_INTERVAL_SECONDS", cfg.MonitorConfig.IntervalSeconds)

	cfg.SweeperConfig.Enabled = getEnvBoolOrDefault("SWEEPER_ENABLED", cfg.SweeperConfig.Enabled)
	cfg.SweeperConfig.IntervalMinutes = getEnvIntOrDefault("SWEEPER_INTERVAL_MINUTES", cfg.SweeperConfig.IntervalMinutes)
	cfg.SweeperConfig.MaxAgeHours = getEnvIntOrDefault("SWEEPER_MAX_AGE_HOURS", cfg.SweeperConfig.MaxAgeHours)
	cfg.SweeperConfig.PeakDropPercent = getEnvFloatOrDefault("SWEEPER_PEAK_DROP_PERCENT", cfg.SweeperConfig.PeakDropPercent)
	cfg.SweeperConfig.LossPercent = getEnvFloatOrDefault("SWEEPER_LOSS_PERCENT", cfg.SweeperConfig.LossPercent)
	cfg.SweeperConfig.StagnationHours = getEnvIntOrDefault("SWEEPER_STAGNATION_HOURS", cfg.SweeperConfig.StagnationHours)
	cfg.SweeperConfig.StagnationPercent = getEnvFloatOrDefault("SWEEPER_STAGNATION_PERCENT", cfg.SweeperConfig.StagnationPercent)
	cfg.SweeperConfig.SlowProgressHours = getEnvIntOrDefault("SWEEPER_SLOW_PROGRESS_HOURS", cfg.SweeperConfig.SlowProgressHours)
	cfg.SweeperConfig.SlowProgressPercent = getEnvFloatOrDefault("SWEEPER_SLOW_PROGRESS_PERCENT", cfg.SweeperConfig.SlowProgressPercent)
	cfg.SweeperConfig.ReconcileAfterDays = getEnvIntOrDefault("SWEEPER_RECONCILE_AFTER_DAYS", cfg.SweeperConfig.ReconcileAfterDays)
	cfg.SweeperConfig.ReconcileSchedule = getEnvOrDefault("SWEEPER_RECONCILE_SCHEDULE", cfg.SweeperConfig.ReconcileSchedule)

	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFY_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.NotificationConfig.Telegram.Enabled)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.NotificationConfig.Discord.Enabled)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	cfg.ServerConfig.Enabled = getEnvBoolOrDefault("SERVER_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Addr = getEnvOrDefault("SERVER_ADDR", cfg.ServerConfig.Addr)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Console = getEnvBoolOrDefault("LOG_CONSOLE", cfg.LoggingConfig.Console)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

// DetectionInterval returns the detector cycle interval
func (c *Config) DetectionInterval() time.Duration {
	return time.Duration(c.DetectorConfig.IntervalMinutes) * time.Minute
}

// MonitorInterval returns the position monitor cycle interval
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorConfig.IntervalSeconds) * time.Second
}

// SweepInterval returns the stale-signal sweep interval
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweeperConfig.IntervalMinutes) * time.Minute
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	data, err := json.MarshalIndent(defaultConfig(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// Loader re-reads configuration on demand. Loops call Reload at the start
// of each cycle; a failed reload keeps serving the last good config.
type Loader struct {
	mu       sync.RWMutex
	filename string
	current  *Config
}

// NewLoader creates a Loader seeded with an initial config
func NewLoader(filename string, initial *Config) *Loader {
	return &Loader{filename: filename, current: initial}
}

// Reload reads the config file and environment again. Returns the fresh
// config, or the previous one if reading fails.
func (l *Loader) Reload() *Config {
	cfg, err := Load(l.filename)
	if err != nil {
		l.mu.RLock()
		defer l.mu.RUnlock()
		return l.current
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg
}

// Current returns the most recently loaded config
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}
