package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type Config struct {
	Port               string        `yaml:"port"`
	Store              string        `yaml:"store"` // "memory" | "sqlite"
	DBDSN              string        `yaml:"db_dsn"`
	QuestionsFile      string        `yaml:"questions_file"`
	LogLevel           string        `yaml:"log_level"`
	AllowedOrigins     []string      `yaml:"allowed_origins"`
	AssessmentDuration time.Duration `yaml:"assessment_duration"`
}

func DefaultConfig() Config {
	return Config{
		Port:               "8080",
		Store:              StoreMemory,
		DBDSN:              MemoryDSN,
		LogLevel:           "info",
		AssessmentDuration: AssessmentDuration,
	}
}

// LoadConfig layers defaults, the optional YAML file at path, then env vars.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("STORE"); v != "" {
		cfg.Store = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("QUESTIONS_FILE"); v != "" {
		cfg.QuestionsFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: port is required")
	}
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.DBDSN == "" {
			return fmt.Errorf("config: db_dsn is required for store %q", c.Store)
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.AssessmentDuration <= 0 {
		return fmt.Errorf("config: assessment_duration must be positive")
	}
	return nil
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Catalog loads QuestionsFile, or the built-in questions when unset.
func (c Config) Catalog() (*Catalog, error) {
	if c.QuestionsFile == "" {
		return DefaultCatalog(), nil
	}
	return LoadCatalog(c.QuestionsFile)
}
