package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "QUIZMATCH"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "quizmatch.db"
	defaultLogLevel         = "info"
	defaultTokenTTLMinutes  = 30
	defaultFreshnessMinutes = 5
	defaultPresenceMinutes  = 5
	defaultReaperMinutes    = 1
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	SigningSecret  string
	DatabasePath   string
	LogLevel       string
	TokenTTL       time.Duration
	MatchFreshness time.Duration
	PresenceWindow time.Duration
	ReaperInterval time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("match.freshness_minutes", defaultFreshnessMinutes)
	configViper.SetDefault("presence.window_minutes", defaultPresenceMinutes)
	configViper.SetDefault("reaper.interval_minutes", defaultReaperMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		TokenTTL:       time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		MatchFreshness: time.Duration(configViper.GetInt("match.freshness_minutes")) * time.Minute,
		PresenceWindow: time.Duration(configViper.GetInt("presence.window_minutes")) * time.Minute,
		ReaperInterval: time.Duration(configViper.GetInt("reaper.interval_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MatchFreshness <= 0 {
		return fmt.Errorf("match.freshness_minutes must be positive")
	}
	if c.PresenceWindow <= 0 {
		return fmt.Errorf("presence.window_minutes must be positive")
	}
	if c.ReaperInterval <= 0 {
		return fmt.Errorf("reaper.interval_minutes must be positive")
	}
	return nil
}
