package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/partygames/gamesnight/internal/store"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Redis struct {
		Addr      string        `yaml:"addr"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		OpTimeout time.Duration `yaml:"op_timeout"`
	} `yaml:"redis"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"nats"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// loadConfig reads the optional YAML config file and applies environment
// variable overrides on top.
func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Addr = getEnv("ADDR", defaultString(config.Server.Addr, ":8080"))
	config.Redis.Addr = getEnv("REDIS_ADDR", defaultString(config.Redis.Addr, "localhost:6379"))
	config.Redis.Password = getEnv("REDIS_PASSWORD", config.Redis.Password)
	config.Redis.DB = getEnvAsInt("REDIS_DB", config.Redis.DB)
	if config.Redis.OpTimeout <= 0 {
		config.Redis.OpTimeout = store.DefaultRedisConfig().OpTimeout
	}
	config.Postgres.DSN = getEnv("POSTGRES_DSN", config.Postgres.DSN)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	config.NATS.Enabled = getEnvAsBool("NATS_ENABLED", config.NATS.Enabled)
	config.Auth.JWTSecret = getEnv("JWT_SECRET", config.Auth.JWTSecret)

	if config.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if config.Postgres.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	return &config, nil
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
