package config

import (
	"errors"
	"os"
	"strings"
	"time"

	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Dev struct {
		Mode bool `yaml:"mode"`
	} `yaml:"dev"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Cache struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	Auth struct {
		SigningKey string `yaml:"signing_key"`
		Issuer     string `yaml:"issuer"`
		Audience   string `yaml:"audience"`
	} `yaml:"auth"`
	Subscription struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"subscription"`
	Guard struct {
		BlockedPath string `yaml:"blocked_path"`
	} `yaml:"guard"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8090"
	cfg.Dev.Mode = true
	cfg.Cache.TTL = 5 * time.Minute
	cfg.Subscription.Timezone = "UTC"
	cfg.Guard.BlockedPath = "/blocked"
	cfg.Log.Level = "info"
	return cfg
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Database.DSN == "" {
		return cfg, errors.New("missing database.dsn (or RH_DB_DSN)")
	}
	if cfg.Auth.SigningKey == "" {
		return cfg, errors.New("missing auth.signing_key (or RH_AUTH_SIGNING_KEY)")
	}
	if _, err := cfg.Location(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Location resolves the zone all subscription day arithmetic runs in.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Subscription.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RH_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("RH_DEV_MODE"); v != "" {
		cfg.Dev.Mode = parseBool(v, cfg.Dev.Mode)
	}
	if v := os.Getenv("RH_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("RH_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("RH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("RH_AUTH_SIGNING_KEY"); v != "" {
		cfg.Auth.SigningKey = v
	}
	if v := os.Getenv("RH_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("RH_AUTH_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("RH_SUBSCRIPTION_TIMEZONE"); v != "" {
		cfg.Subscription.Timezone = v
	}
	if v := os.Getenv("RH_GUARD_BLOCKED_PATH"); v != "" {
		cfg.Guard.BlockedPath = v
	}
	if v := os.Getenv("RH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func parseBool(input string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
