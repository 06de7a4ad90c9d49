// Package config provides configuration management using viper.
// It supports loading from YAML files, an optional .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Lifecycle     LifecycleConfig     `mapstructure:"lifecycle"`
	Publication   PublicationConfig   `mapstructure:"publication"`
	Schedule      ScheduleConfig      `mapstructure:"schedule"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Images        ImagesConfig        `mapstructure:"images"`
	WhatsApp      WhatsAppConfig      `mapstructure:"whatsapp"`
	Meta          MetaConfig          `mapstructure:"meta"`
	TikTok        TikTokConfig        `mapstructure:"tiktok"`
	TelegramAdmin TelegramAdminConfig `mapstructure:"telegram_admin"`
	Pusher        PusherConfig        `mapstructure:"pusher"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Env      string `mapstructure:"env" validate:"oneof=local dev prod"`
	Timezone string `mapstructure:"timezone" validate:"required"`
}

// LogConfig holds zerolog settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"required"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// LifecycleConfig holds draw state machine policy.
type LifecycleConfig struct {
	// ClosingLeadTime closes draws this long before their scheduled instant.
	// Zero closes them once the scheduled time has passed.
	ClosingLeadTime     time.Duration `mapstructure:"closing_lead_time"`
	AvoidSameDayRepeats bool          `mapstructure:"avoid_same_day_repeats"`
	PublishOnDraw       bool          `mapstructure:"publish_on_draw"`
}

// PublicationConfig holds fan-out settings.
type PublicationConfig struct {
	ChannelTimeout     time.Duration `mapstructure:"channel_timeout" validate:"gt=0"`
	OverallTimeout     time.Duration `mapstructure:"overall_timeout" validate:"gt=0"`
	MaxParallel        int           `mapstructure:"max_parallel" validate:"gt=0"`
	QueueSize          int           `mapstructure:"queue_size" validate:"gt=0"`
	Workers            int           `mapstructure:"workers" validate:"gt=0"`
	PendingBatch       int           `mapstructure:"pending_batch" validate:"gt=0"`
	RetryMaxAttempts   int           `mapstructure:"retry_max_attempts"`
	RetryWindow        time.Duration `mapstructure:"retry_window"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	BreakerThreshold   int           `mapstructure:"breaker_threshold"`
	BreakerCooldown    time.Duration `mapstructure:"breaker_cooldown"`
}

// ScheduleConfig holds cron specs for the periodic triggers.
type ScheduleConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Generate       string `mapstructure:"generate"`
	Sweep          string `mapstructure:"sweep"`
	PublishPending string `mapstructure:"publish_pending"`
	RetryFailed    string `mapstructure:"retry_failed"`
}

// HTTPConfig holds operator API server settings.
type HTTPConfig struct {
	Address      string        `mapstructure:"address" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// ImagesConfig holds result image rendering settings.
type ImagesConfig struct {
	Dir           string `mapstructure:"dir" validate:"required"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	Width         int    `mapstructure:"width" validate:"gt=0"`
	Height        int    `mapstructure:"height" validate:"gt=0"`
}

// WhatsAppConfig points at the WhatsApp gateway service.
type WhatsAppConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// MetaConfig holds Graph API base URLs for Facebook and Instagram.
type MetaConfig struct {
	FacebookBaseURL  string `mapstructure:"facebook_base_url"`
	InstagramBaseURL string `mapstructure:"instagram_base_url"`
}

// TikTokConfig holds the TikTok open API base URL.
type TikTokConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// TelegramAdminConfig holds the operator bot configuration.
type TelegramAdminConfig struct {
	Token string  `mapstructure:"token"`
	IDs   []int64 `mapstructure:"ids"`
}

// PusherConfig enables the optional Pusher event sink.
type PusherConfig struct {
	AppID   string `mapstructure:"app_id"`
	Key     string `mapstructure:"key"`
	Secret  string `mapstructure:"secret"`
	Cluster string `mapstructure:"cluster"`
	Channel string `mapstructure:"channel"`
}

// Enabled reports whether Pusher credentials are configured.
func (p *PusherConfig) Enabled() bool {
	return p.AppID != "" && p.Key != "" && p.Secret != ""
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Location resolves the operating timezone.
func (a *AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in configPath, "." and "./config".
func Load(configPath string) (*Config, error) {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, PUBLICATION_CHANNEL_TIMEOUT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints and the timezone.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.App.Location(); err != nil {
		return err
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "local")
	v.SetDefault("app.timezone", "America/Caracas")
	v.SetDefault("log.level", "info")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "draws")
	v.SetDefault("database.name", "draws")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("lifecycle.closing_lead_time", "0s")
	v.SetDefault("lifecycle.avoid_same_day_repeats", false)
	v.SetDefault("lifecycle.publish_on_draw", true)

	v.SetDefault("publication.channel_timeout", "15s")
	v.SetDefault("publication.overall_timeout", "60s")
	v.SetDefault("publication.max_parallel", 4)
	v.SetDefault("publication.queue_size", 64)
	v.SetDefault("publication.workers", 2)
	v.SetDefault("publication.pending_batch", 10)
	v.SetDefault("publication.retry_max_attempts", 3)
	v.SetDefault("publication.retry_window", "6h")
	v.SetDefault("publication.rate_limit_per_minute", 30)
	v.SetDefault("publication.breaker_threshold", 5)
	v.SetDefault("publication.breaker_cooldown", "2m")

	// 01:05 so the operating day has started in UTC-4
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.generate", "5 1 * * *")
	v.SetDefault("schedule.sweep", "* * * * *")
	v.SetDefault("schedule.publish_pending", "* * * * *")
	v.SetDefault("schedule.retry_failed", "*/10 * * * *")

	v.SetDefault("http.address", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")

	v.SetDefault("images.dir", "./data/images")
	v.SetDefault("images.width", 1080)
	v.SetDefault("images.height", 1080)

	v.SetDefault("whatsapp.base_url", "http://localhost:3002")
	v.SetDefault("meta.facebook_base_url", "https://graph.facebook.com/v18.0")
	v.SetDefault("meta.instagram_base_url", "https://graph.instagram.com")
	v.SetDefault("tiktok.base_url", "https://open.tiktokapis.com")
	v.SetDefault("pusher.channel", "draws")
}

// IsAdmin checks if a Telegram user ID may operate the admin bot.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.TelegramAdmin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}
