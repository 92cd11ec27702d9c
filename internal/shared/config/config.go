package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FinalizeLeaseMargin is the slack the finalize lease keeps over the longest
// materialization, covering the completion write and clock skew between
// instances.
const FinalizeLeaseMargin = 30 * time.Second

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Generation GenerationConfig `mapstructure:"generation"`
	Credits    CreditsConfig    `mapstructure:"credits"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the database connection URL used by the migration runner.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

// StripeConfig holds billing system configuration.
type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	// APIBase overrides the Stripe API endpoint (stripe-mock, tests).
	APIBase string `mapstructure:"api_base"`
}

// ProviderEndpointConfig holds credentials and model overrides for one generation provider.
type ProviderEndpointConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	ReferenceModel string `mapstructure:"reference_model"`
}

// GenerationConfig holds generation orchestration configuration.
type GenerationConfig struct {
	Provider            string                 `mapstructure:"provider"`
	Replicate           ProviderEndpointConfig `mapstructure:"replicate"`
	Fal                 ProviderEndpointConfig `mapstructure:"fal"`
	HTTPTimeout         time.Duration          `mapstructure:"http_timeout"`
	PollInterval        time.Duration          `mapstructure:"poll_interval"`
	AwaitMaxWait        time.Duration          `mapstructure:"await_max_wait"`
	MaterializeTimeout  time.Duration          `mapstructure:"materialize_timeout"`
	MaterializeAttempts int                    `mapstructure:"materialize_attempts"`
	FinalizeLease       time.Duration          `mapstructure:"finalize_lease"`
	MaxOutputBytes      int64                  `mapstructure:"max_output_bytes"`
	BreakerFailures     uint32                 `mapstructure:"breaker_failures"`
	BreakerTimeout      time.Duration          `mapstructure:"breaker_timeout"`
}

// CreditsConfig holds credit ledger configuration.
type CreditsConfig struct {
	MonthlyAllotment int    `mapstructure:"monthly_allotment"`
	CredentialKey    string `mapstructure:"credential_key"` // 32 bytes, hex encoded
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RateLimitConfig holds generation rate limiting configuration.
type RateLimitConfig struct {
	GenerationLimit  int           `mapstructure:"generation_limit"`
	GenerationWindow time.Duration `mapstructure:"generation_window"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/artboard")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("ARTBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applySecretOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applySecretOverrides reads sensitive values from short, well-known variables.
func applySecretOverrides(cfg *Config) {
	if secret := os.Getenv("ARTBOARD_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("ARTBOARD_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("ARTBOARD_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("ARTBOARD_STORAGE_SECRET_KEY"); key != "" {
		cfg.Storage.SecretAccessKey = key
	}
	if key := os.Getenv("ARTBOARD_STRIPE_SECRET_KEY"); key != "" {
		cfg.Stripe.SecretKey = key
	}
	if token := os.Getenv("ARTBOARD_REPLICATE_TOKEN"); token != "" {
		cfg.Generation.Replicate.APIKey = token
	}
	if key := os.Getenv("ARTBOARD_FAL_KEY"); key != "" {
		cfg.Generation.Fal.APIKey = key
	}
	if key := os.Getenv("ARTBOARD_CREDENTIAL_KEY"); key != "" {
		cfg.Credits.CredentialKey = key
	}
}

// Validate checks values that would otherwise fail late at request time.
func (c *Config) Validate() error {
	switch c.Generation.Provider {
	case "replicate", "fal":
	default:
		return fmt.Errorf("config: unknown generation provider %q", c.Generation.Provider)
	}
	if c.Generation.PollInterval <= 0 {
		return errors.New("config: generation.poll_interval must be positive")
	}
	if c.Generation.AwaitMaxWait <= 0 {
		return errors.New("config: generation.await_max_wait must be positive")
	}
	if c.Generation.MaterializeAttempts < 1 {
		return errors.New("config: generation.materialize_attempts must be at least 1")
	}
	worst := time.Duration(c.Generation.MaterializeAttempts) * c.Generation.MaterializeTimeout
	if c.Generation.FinalizeLease < worst+FinalizeLeaseMargin {
		return fmt.Errorf("config: generation.finalize_lease must be at least %s (materialize_attempts * materialize_timeout + %s)",
			worst+FinalizeLeaseMargin, FinalizeLeaseMargin)
	}
	if c.Credits.MonthlyAllotment <= 0 {
		return errors.New("config: credits.monthly_allotment must be positive")
	}
	if c.Credits.CredentialKey != "" {
		key, err := hex.DecodeString(c.Credits.CredentialKey)
		if err != nil || len(key) != 32 {
			return errors.New("config: credits.credential_key must be 32 bytes hex encoded")
		}
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "artboard")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.migrate_on_start", false)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Storage defaults
	v.SetDefault("storage.region", "auto")
	v.SetDefault("storage.key_prefix", "generations")

	// Generation defaults
	v.SetDefault("generation.provider", "replicate")
	v.SetDefault("generation.replicate.base_url", "https://api.replicate.com")
	v.SetDefault("generation.fal.base_url", "https://queue.fal.run")
	v.SetDefault("generation.http_timeout", 30*time.Second)
	v.SetDefault("generation.poll_interval", 2*time.Second)
	v.SetDefault("generation.await_max_wait", 60*time.Second)
	v.SetDefault("generation.materialize_timeout", 60*time.Second)
	v.SetDefault("generation.materialize_attempts", 2)
	v.SetDefault("generation.finalize_lease", 3*time.Minute)
	v.SetDefault("generation.max_output_bytes", 32<<20)
	v.SetDefault("generation.breaker_failures", 5)
	v.SetDefault("generation.breaker_timeout", 30*time.Second)

	// Credits defaults
	v.SetDefault("credits.monthly_allotment", 100)

	// Auth defaults
	v.SetDefault("auth.issuer", "artboard")

	// Rate limit defaults
	v.SetDefault("rate_limit.generation_limit", 20)
	v.SetDefault("rate_limit.generation_window", time.Minute)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
