package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Bus       BusConfig       `mapstructure:"bus"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Mission   MissionConfig   `mapstructure:"mission"`
	Rewards   RewardsConfig   `mapstructure:"rewards"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Env             string        `mapstructure:"env"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the gorm dialect. Driver is "mysql" or "sqlite".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// BusConfig selects the pub/sub transport. Driver is "nats" or "memory";
// memory only fans out inside one process.
type BusConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

type JWTConfig struct {
	AccessSecret string        `mapstructure:"access_secret"`
	AccessExpiry time.Duration `mapstructure:"access_expiry"`
	Issuer       string        `mapstructure:"issuer"`
}

type LedgerConfig struct {
	// LockTimeout bounds how long a spend waits for the user row lock.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

type MissionConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type RewardsConfig struct {
	ForumAnswerGems int64 `mapstructure:"forum_answer_gems"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

const EnvPrefix = "CLUBIMPACT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8099")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:clubimpact.db?cache=shared")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("bus.driver", "memory")
	v.SetDefault("bus.url", "nats://127.0.0.1:4222")

	v.SetDefault("jwt.access_secret", "change-me-in-production")
	v.SetDefault("jwt.access_expiry", 15*time.Minute)
	v.SetDefault("jwt.issuer", "clubimpact")

	v.SetDefault("ledger.lock_timeout", 3*time.Second)
	v.SetDefault("mission.cache_ttl", 30*time.Second)
	v.SetDefault("rewards.forum_answer_gems", 5)

	v.SetDefault("ratelimit.requests_per_second", 20)
	v.SetDefault("ratelimit.burst", 40)
}

// Load reads defaults, then the optional YAML file at path (or ./config.yaml
// when path is empty), then CLUBIMPACT_* environment overrides such as
// CLUBIMPACT_DATABASE_DSN.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Bus.Driver {
	case "nats", "memory":
	default:
		return fmt.Errorf("config: unsupported bus driver %q", c.Bus.Driver)
	}
	if c.Ledger.LockTimeout <= 0 {
		return errors.New("config: ledger.lock_timeout must be positive")
	}
	if c.Mission.CacheTTL <= 0 {
		return errors.New("config: mission.cache_ttl must be positive")
	}
	return nil
}
