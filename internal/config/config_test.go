package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "unit-test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address: %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "quizmatch.db" {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
	if cfg.MatchFreshness != 5*time.Minute {
		t.Fatalf("unexpected freshness window: %v", cfg.MatchFreshness)
	}
	if cfg.PresenceWindow != 5*time.Minute {
		t.Fatalf("unexpected presence window: %v", cfg.PresenceWindow)
	}
	if cfg.ReaperInterval != time.Minute {
		t.Fatalf("unexpected reaper interval: %v", cfg.ReaperInterval)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(configViper *viper.Viper)
		expected string
	}{
		{
			name:     "missing signing secret",
			mutate:   func(configViper *viper.Viper) {},
			expected: "auth.signing_secret",
		},
		{
			name: "empty database path",
			mutate: func(configViper *viper.Viper) {
				configViper.Set("auth.signing_secret", "secret")
				configViper.Set("database.path", "  ")
			},
			expected: "database.path",
		},
		{
			name: "non-positive freshness window",
			mutate: func(configViper *viper.Viper) {
				configViper.Set("auth.signing_secret", "secret")
				configViper.Set("match.freshness_minutes", 0)
			},
			expected: "match.freshness_minutes",
		},
		{
			name: "non-positive reaper interval",
			mutate: func(configViper *viper.Viper) {
				configViper.Set("auth.signing_secret", "secret")
				configViper.Set("reaper.interval_minutes", -1)
			},
			expected: "reaper.interval_minutes",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			testCase.mutate(configViper)
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error mentioning %s", testCase.expected)
			}
		})
	}
}
