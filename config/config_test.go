package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co/")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "3001" {
		t.Errorf("port = %q, want 3001", cfg.Server.Port)
	}
	if cfg.Server.FrontendURL != "https://app.example.com" {
		t.Errorf("frontend url = %q", cfg.Server.FrontendURL)
	}
	if got := cfg.Supabase.JWTIssuer(); got != "https://project.supabase.co/auth/v1" {
		t.Errorf("issuer = %q", got)
	}
	if cfg.Supabase.AuthEnabled() {
		t.Error("auth should be disabled without SUPABASE_JWT_SECRET")
	}
	if cfg.Reconcile.Interval != time.Minute {
		t.Errorf("reconcile interval = %v", cfg.Reconcile.Interval)
	}
	if cfg.Reconcile.MaxAttempts != 5 {
		t.Errorf("max attempts = %d", cfg.Reconcile.MaxAttempts)
	}
}

func TestLoadRequiresStripeKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("STRIPE_SECRET_KEY", "unset")
	os.Unsetenv("STRIPE_SECRET_KEY")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when STRIPE_SECRET_KEY is missing")
	}
}
