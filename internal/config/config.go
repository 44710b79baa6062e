package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultJWTExpiresIn   = "24h"
	DefaultPGHost         = "127.0.0.1"
	DefaultPGPort         = 5432
	DefaultPGUser         = "postgres"
	DefaultPGDatabase     = "lumen"
	DefaultPGSSLMode      = "disable"
	DefaultModel          = "sonar-large"
	DefaultSearchTimeout  = 15
	DefaultRunnerTimeout  = 30
	DefaultPollInterval   = 3
	DefaultPollAttempts   = 100
	DefaultPollBudget     = 300
	DefaultMaxSources     = 8
	DefaultRetentionHours = 24 * 14
	DefaultPruneSpec      = "@hourly"
)

type Config struct {
	Log         LogConfig         `toml:"log"`
	Server      ServerConfig      `toml:"server"`
	Auth        AuthConfig        `toml:"auth"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Search      SearchConfig      `toml:"search"`
	JobRunner   JobRunnerConfig   `toml:"job_runner"`
	Poll        PollConfig        `toml:"poll"`
	FileContext FileContextConfig `toml:"file_context"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// SearchConfig points the adapter at the web-search and research providers.
type SearchConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxSources     int    `toml:"max_sources"`
	Diversity      string `toml:"diversity"`
}

type JobRunnerConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DefaultModel   string `toml:"default_model"`
}

// PollConfig bounds the completion poller. A poller stops at whichever of
// MaxAttempts or BudgetSeconds is exhausted first.
type PollConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	MaxAttempts     int `toml:"max_attempts"`
	BudgetSeconds   int `toml:"budget_seconds"`
}

type FileContextConfig struct {
	RetentionHours int    `toml:"retention_hours"`
	PruneSpec      string `toml:"prune_spec"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Search: SearchConfig{
			TimeoutSeconds: DefaultSearchTimeout,
			MaxSources:     DefaultMaxSources,
			Diversity:      "balanced",
		},
		JobRunner: JobRunnerConfig{
			TimeoutSeconds: DefaultRunnerTimeout,
			DefaultModel:   DefaultModel,
		},
		Poll: PollConfig{
			IntervalSeconds: DefaultPollInterval,
			MaxAttempts:     DefaultPollAttempts,
			BudgetSeconds:   DefaultPollBudget,
		},
		FileContext: FileContextConfig{
			RetentionHours: DefaultRetentionHours,
			PruneSpec:      DefaultPruneSpec,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
