// Package config loads application configuration from the environment, with
// an optional config.json overlay.
package config

import (
	"fmt"
	"os"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ClientSecretFile is the default path to the Google OAuth credentials JSON.
const ClientSecretFile = "data/client_secret.json"

// DefaultRulesURL is where the versioned email parsing config is published.
const DefaultRulesURL = "https://raw.githubusercontent.com/rushikc/pennywise/main/appScript/emailParsingConfig.json"

// Config holds the application configuration.
type Config struct {
	// Scope is the mailbox to sync. Environment variable: SYNC_SCOPE.
	Scope string `koanf:"SYNC_SCOPE"`

	// RulesURL overrides where the parsing rules are fetched from. Empty
	// means the compiled-in default rules. Environment variable: RULES_URL.
	RulesURL string `koanf:"RULES_URL"`

	// RulesVersion selects the version tag inside the rule document.
	// Environment variable: RULES_VERSION. Defaults to "v1".
	RulesVersion string `koanf:"RULES_VERSION"`

	// Store selects the backing store: "postgres" or "jsonfile".
	// Environment variable: SYNC_STORE. Defaults to "jsonfile".
	Store string `koanf:"SYNC_STORE"`

	// DataDir is the jsonfile store directory.
	// Environment variable: SYNC_DATA_DIR. Defaults to "data".
	DataDir string `koanf:"SYNC_DATA_DIR"`

	// SecretsFilePath points at the OAuth client secret JSON.
	// Environment variable: SYNC_CREDENTIALS.
	SecretsFilePath string `koanf:"SYNC_CREDENTIALS"`

	// IntervalMinutes is the daemon-mode batch interval.
	// Environment variable: SYNC_INTERVAL_MINUTES. Defaults to 60.
	IntervalMinutes int `koanf:"SYNC_INTERVAL_MINUTES"`

	// GmailQuery optionally restricts the message listing.
	// Environment variable: SYNC_GMAIL_QUERY.
	GmailQuery string `koanf:"SYNC_GMAIL_QUERY"`

	Postgres PostgresConfig
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// Load reads configuration from the environment, overlaid on configPath when
// that file exists.
func Load(configPath string) (Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), kjson.Parser()); err != nil {
				return Config{}, fmt.Errorf("loading %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Scope == "" {
		cfg.Scope = "me"
	}
	if cfg.RulesVersion == "" {
		cfg.RulesVersion = "v1"
	}
	if cfg.Store == "" {
		cfg.Store = "jsonfile"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.SecretsFilePath == "" {
		cfg.SecretsFilePath = ClientSecretFile
	}
	if cfg.IntervalMinutes <= 0 {
		cfg.IntervalMinutes = 60
	}

	return cfg, nil
}
