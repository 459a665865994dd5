package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TRUTHY_FEED_USERNAME", "someuser")
	t.Setenv("TRUTHY_WEBHOOK_URL", "https://hooks.test/abc")
	t.Setenv("TRUTHY_DATABASE_URL", "postgres://localhost:5432/truthy")
	t.Setenv("TRUTHY_PROXY_MODE", "direct")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.FeedInstance != "truthsocial.com" {
		t.Errorf("expected default feed instance, got %q", cfg.FeedInstance)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("expected 5m poll interval, got %v", cfg.PollInterval)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.MaxRetries)
	}
	if cfg.RateCalls != 30 || cfg.RatePeriod != time.Minute {
		t.Errorf("expected 30 calls per minute quota, got %d per %v", cfg.RateCalls, cfg.RatePeriod)
	}
}

func TestLoad_RejectsZeroMaxRetries(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRUTHY_MAX_RETRIES", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for max_retries=0")
	}
}

func TestLoad_ProxyModeValidation(t *testing.T) {
	t.Run("scrapeops requires api key", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TRUTHY_PROXY_MODE", "scrapeops")

		if _, err := Load(); err == nil {
			t.Fatal("expected an error without SCRAPEOPS_API_KEY")
		}
	})

	t.Run("solver requires url", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TRUTHY_PROXY_MODE", "solver")

		if _, err := Load(); err == nil {
			t.Fatal("expected an error without SOLVER_URL")
		}
	})

	t.Run("unknown mode rejected", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TRUTHY_PROXY_MODE", "carrier-pigeon")

		if _, err := Load(); err == nil {
			t.Fatal("expected an error for an unknown proxy mode")
		}
	})
}
