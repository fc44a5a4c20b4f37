package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	RabbitMQ struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"rabbitmq"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
	} `yaml:"auth"`
	Session struct {
		GracePeriod        string `yaml:"gracePeriod"`
		MaxDurationMinutes int    `yaml:"maxDurationMinutes"`
	} `yaml:"session"`
	Progress struct {
		RetryAttempts         int `yaml:"retryAttempts"`
		ModuleLoadConcurrency int `yaml:"moduleLoadConcurrency"`
	} `yaml:"progress"`
	Catalog struct {
		TTL string `yaml:"ttl"`
	} `yaml:"catalog"`
	Sweep struct {
		Schedule     string `yaml:"schedule"`
		AbandonAfter string `yaml:"abandonAfter"`
	} `yaml:"sweep"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
}

// StoreDriver is the configured driver, inferred from connection settings when unset.
func (c Config) StoreDriver() string {
	if d := strings.ToLower(strings.TrimSpace(c.Store.Driver)); d != "" {
		return d
	}
	switch {
	case c.Postgres.URL != "":
		return DriverPostgres
	case c.Mongo.URI != "":
		return DriverMongo
	case c.Redis.Addr != "":
		return DriverRedis
	default:
		return DriverMemory
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
