package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// HTTP service
	App AppConfig `mapstructure:"app"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Sharing behaviour
	Share ShareConfig `mapstructure:"share"`

	// Share/visit bookkeeping
	Tracking TrackingConfig `mapstructure:"tracking"`

	// Host content categories
	Content ContentConfig `mapstructure:"content"`
}

type AppConfig struct {
	Addr     string `mapstructure:"addr"`
	SiteName string `mapstructure:"site_name"`
	BaseURL  string `mapstructure:"base_url"`
	Secret   string `mapstructure:"secret"`
	// APIRateLimit caps requests per minute per IP on /api; 0 disables it.
	APIRateLimit int `mapstructure:"api_rate_limit"`
	// TrustIdentityHeaders reads X-User-ID / X-User-Caps set by the fronting proxy.
	TrustIdentityHeaders bool   `mapstructure:"trust_identity_headers"`
	AllowOrigin          string `mapstructure:"allow_origin"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Disabled swaps Redis for the in-process cache; only meant for development.
	Disabled bool `mapstructure:"disabled"`
}

type NATSConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
	Disabled    bool   `mapstructure:"disabled"`
}

type PrometheusConfig struct {
	Port           int    `mapstructure:"port"`
	Retention      string `mapstructure:"retention"`
	ScrapeInterval string `mapstructure:"scrape_interval"`
	Target         string `mapstructure:"target"`
}

type ShareConfig struct {
	AllowAnonymous   bool          `mapstructure:"allow_anonymous"`
	RateLimitPerHour int           `mapstructure:"rate_limit_per_hour"`
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
}

type TrackingConfig struct {
	AnonymizeIP      bool          `mapstructure:"anonymize_ip"`
	StatsTTL         time.Duration `mapstructure:"stats_ttl"`
	RetentionDays    int           `mapstructure:"retention_days"`
	PruneInterval    time.Duration `mapstructure:"prune_interval"`
	ItemFilterSize   uint          `mapstructure:"item_filter_size"`
	ItemFilterFPRate float64       `mapstructure:"item_filter_fp_rate"`
	// ItemMissTTL is how long a confirmed unknown item id is remembered.
	ItemMissTTL      time.Duration `mapstructure:"item_miss_ttl"`
}

type ContentConfig struct {
	Categories []CategoryConfig `mapstructure:"categories"`
}

// CategoryConfig describes a host content category and its visibility flags.
type CategoryConfig struct {
	Name              string `mapstructure:"name"`
	Public            bool   `mapstructure:"public"`
	Internal          bool   `mapstructure:"internal"`
	ExcludeFromSearch bool   `mapstructure:"exclude_from_search"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.addr", ":8080")
	v.SetDefault("app.site_name", "PowerShare")
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.api_rate_limit", 300)
	v.SetDefault("app.trust_identity_headers", true)
	v.SetDefault("app.allow_origin", "*")

	v.SetDefault("share.allow_anonymous", true)
	v.SetDefault("share.rate_limit_per_hour", 20)
	v.SetDefault("share.token_ttl", 12*time.Hour)

	v.SetDefault("tracking.anonymize_ip", false)
	v.SetDefault("tracking.stats_ttl", time.Hour)
	v.SetDefault("tracking.retention_days", 0)
	v.SetDefault("tracking.prune_interval", 6*time.Hour)
	v.SetDefault("tracking.item_filter_size", 100000)
	v.SetDefault("tracking.item_filter_fp_rate", 0.01)
	v.SetDefault("tracking.item_miss_ttl", time.Minute)
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.addr", "APP_ADDR")
	v.BindEnv("app.secret", "APP_SECRET")
	v.BindEnv("app.base_url", "APP_BASE_URL")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
	v.BindEnv("prometheus.retention", "PROM_RETENTION")
	v.BindEnv("prometheus.scrape_interval", "PROM_SCRAPE_INTERVAL")
	v.BindEnv("prometheus.target", "PROM_TARGET")

	// Sharing
	v.BindEnv("share.allow_anonymous", "SHARE_ALLOW_ANONYMOUS")
	v.BindEnv("share.rate_limit_per_hour", "SHARE_RATE_LIMIT")
	v.BindEnv("tracking.anonymize_ip", "TRACKING_ANONYMIZE_IP")
	v.BindEnv("tracking.retention_days", "TRACKING_RETENTION_DAYS")
}
