// Package config содержит логику чтения конфигурации сервиса парковки.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultSQLitePath = "parking.db"
	defaultTimezone   = "Local"
	defaultCORS       = "*"
)

// Config содержит параметры конфигурации сервиса парковки.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	SQLitePath  string `env:"SQLITE_PATH"`
	Timezone    string `env:"PARKING_TZ"`
	CORSOrigins string `env:"CORS_ORIGINS"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envSQLitePath, sqliteSet := os.LookupEnv("SQLITE_PATH")
	envTimezone := cfg.Timezone
	envCORS := cfg.CORSOrigins

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "PostgreSQL database URI")
	flag.StringVar(&cfg.SQLitePath, "s", defaultSQLitePath, "SQLite database file, empty for in-memory storage")
	flag.StringVar(&cfg.Timezone, "z", defaultTimezone, "timezone used for daily statistics")
	flag.StringVar(&cfg.CORSOrigins, "o", defaultCORS, "comma-separated list of allowed CORS origins")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if sqliteSet {
		cfg.SQLitePath = envSQLitePath
	}
	if envTimezone != "" {
		cfg.Timezone = envTimezone
	}
	if envCORS != "" {
		cfg.CORSOrigins = envCORS
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location возвращает часовой пояс, в котором считаются календарные дни.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == defaultTimezone {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Origins возвращает список разрешённых CORS-источников.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{defaultCORS}
	}
	return origins
}
