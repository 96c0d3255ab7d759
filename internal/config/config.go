package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cinesearch/cinesearch/internal/cache"
	"github.com/cinesearch/cinesearch/internal/database"
	"github.com/cinesearch/cinesearch/internal/search"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  database.Config `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Search    search.Config   `mapstructure:"search"`
	Cache     cache.Config    `mapstructure:"cache"`
	Users     UsersConfig     `mapstructure:"users"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// AdminToken enables the /api/admin routes when set.
	AdminToken string `mapstructure:"admin_token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	RecentSize int    `mapstructure:"recent_size"`
}

// TelegramConfig holds bot configuration.
type TelegramConfig struct {
	Token            string  `mapstructure:"token"`
	WebhookURL       string  `mapstructure:"webhook_url"`
	WebhookSecret    string  `mapstructure:"webhook_secret"`
	AdminIDs         []int64 `mapstructure:"admin_ids"`
	LibraryChannelID int64   `mapstructure:"library_channel_id"`
	JoinChannel      string  `mapstructure:"join_channel"`
	JoinGroup        string  `mapstructure:"join_group"`
	UserRate         float64 `mapstructure:"user_rate"`
	BroadcastRate    float64 `mapstructure:"broadcast_rate"`
}

// UsersConfig holds user bookkeeping settings.
type UsersConfig struct {
	InactiveDays int           `mapstructure:"inactive_days"`
	ActiveWindow time.Duration `mapstructure:"active_window"`
}

// SchedulerConfig holds cron expressions for background tasks.
type SchedulerConfig struct {
	CleanupCron       string `mapstructure:"cleanup_cron"`
	NormalizationCron string `mapstructure:"normalization_cron"`
	HealthCron        string `mapstructure:"health_cron"`
}

// legacyEnv maps config keys to the bare environment variable names used by
// existing deployments. The prefixed form always takes precedence.
var legacyEnv = map[string]string{
	"telegram.token":              "BOT_TOKEN",
	"telegram.webhook_url":        "WEBHOOK_URL",
	"telegram.admin_ids":          "ADMIN_IDS",
	"telegram.library_channel_id": "LIBRARY_CHANNEL_ID",
	"telegram.join_channel":       "JOIN_CHANNEL_USERNAME",
	"telegram.join_group":         "JOIN_GROUP_USERNAME",
	"database.url":                "DATABASE_URL",
	"cache.redis_url":             "REDIS_URL",
	"server.port":                 "PORT",
}

const envPrefix = "CINESEARCH"

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: database.Config{
			Path: "./data/cinesearch.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
			RecentSize: 200,
		},
		Telegram: TelegramConfig{
			UserRate:      1,
			BroadcastRate: 20,
		},
		Search: search.DefaultConfig(),
		Cache: cache.Config{
			TTL:        10 * time.Minute,
			MaxEntries: cache.DefaultMaxEntries,
			KeyPrefix:  "cinesearch:",
		},
		Users: UsersConfig{
			InactiveDays: 30,
			ActiveWindow: 5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			CleanupCron:       "0 4 * * *",
			NormalizationCron: "30 * * * *",
			HealthCron:        "*/5 * * * *",
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.cinesearch")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key with viper so environment overrides work
// for keys absent from the config file.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.admin_token", "")

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.recent_size", d.Logging.RecentSize)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.admin_ids", []int64{})
	v.SetDefault("telegram.library_channel_id", 0)
	v.SetDefault("telegram.join_channel", "")
	v.SetDefault("telegram.join_group", "")
	v.SetDefault("telegram.user_rate", d.Telegram.UserRate)
	v.SetDefault("telegram.broadcast_rate", d.Telegram.BroadcastRate)

	v.SetDefault("search.default_limit", d.Search.DefaultLimit)
	v.SetDefault("search.candidate_limit", d.Search.CandidateLimit)
	v.SetDefault("search.min_query_length", d.Search.MinQueryLength)
	v.SetDefault("search.max_query_length", d.Search.MaxQueryLength)
	v.SetDefault("search.timeout", d.Search.Timeout)
	v.SetDefault("search.max_concurrent", d.Search.MaxConcurrent)
	v.SetDefault("search.cache_ttl", d.Search.CacheTTL)
	v.SetDefault("search.ranking.threshold", d.Search.Ranking.Threshold)
	v.SetDefault("search.ranking.bonus", d.Search.Ranking.Bonus)
	v.SetDefault("search.ranking.season_mismatch_penalty", d.Search.Ranking.SeasonMismatchPenalty)

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)

	v.SetDefault("users.inactive_days", d.Users.InactiveDays)
	v.SetDefault("users.active_window", d.Users.ActiveWindow)

	v.SetDefault("scheduler.cleanup_cron", d.Scheduler.CleanupCron)
	v.SetDefault("scheduler.normalization_cron", d.Scheduler.NormalizationCron)
	v.SetDefault("scheduler.health_cron", d.Scheduler.HealthCron)
}

// Validate checks the settings required to run the bot.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram token is required (set BOT_TOKEN or CINESEARCH_TELEGRAM_TOKEN)")
	}
	if c.Telegram.WebhookURL != "" && !strings.HasPrefix(c.Telegram.WebhookURL, "https://") {
		return errors.New("telegram webhook url must use https")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// IsAdmin reports whether id is a configured admin.
func (c *TelegramConfig) IsAdmin(id int64) bool {
	for _, admin := range c.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
