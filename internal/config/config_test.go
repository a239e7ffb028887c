package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"ENV", "PORT", "SESSION_SECRET", "NEGOTIATION_STRICT_TRANSITIONS",
		"NEGOTIATION_MAX_OFFER_CENTS", "DEFAULT_CURRENCY", "WORKER_MODE",
		"OUTREACH_STUB_MODE", "OUTREACH_WEBHOOK_URL", "FOLLOW_UP_SCHEDULE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Env != "development" {
		t.Errorf("expected env development, got %s", cfg.Env)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.SessionSecret == "" {
		t.Error("expected development session secret")
	}
	if cfg.StrictTransitions {
		t.Error("expected liberal transitions by default")
	}
	if cfg.MaxOfferCents != 100_000_000 {
		t.Errorf("expected max offer 100000000, got %d", cfg.MaxOfferCents)
	}
	if cfg.DefaultCurrency != "USD" {
		t.Errorf("expected USD, got %s", cfg.DefaultCurrency)
	}
	if cfg.FollowUpSchedule != "0 * * * *" {
		t.Errorf("expected hourly follow-up scan, got %s", cfg.FollowUpSchedule)
	}
	if cfg.WorkerMode != WorkerModeEmbedded {
		t.Errorf("expected embedded worker, got %s", cfg.WorkerMode)
	}
	if !cfg.OutreachStubMode {
		t.Error("expected outreach stub mode outside production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("NEGOTIATION_STRICT_TRANSITIONS", "true")
	t.Setenv("NEGOTIATION_MAX_OFFER_CENTS", "5000000")
	t.Setenv("DEFAULT_CURRENCY", "eur")
	t.Setenv("WORKER_MODE", "standalone")
	t.Setenv("OUTREACH_WEBHOOK_URL", "https://hooks.example.com/outreach")
	t.Setenv("OUTREACH_STUB_MODE", "")

	cfg := Load()

	if !cfg.StrictTransitions {
		t.Error("expected strict transitions")
	}
	if cfg.MaxOfferCents != 5000000 {
		t.Errorf("expected max offer 5000000, got %d", cfg.MaxOfferCents)
	}
	if cfg.DefaultCurrency != "EUR" {
		t.Errorf("expected EUR, got %s", cfg.DefaultCurrency)
	}
	if cfg.WorkerMode != WorkerModeStandalone {
		t.Errorf("expected standalone worker, got %s", cfg.WorkerMode)
	}
	if cfg.OutreachStubMode {
		t.Error("expected real outreach delivery in production")
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("NEGOTIATION_STRICT_TRANSITIONS", "maybe")
	t.Setenv("NEGOTIATION_MAX_OFFER_CENTS", "-10")
	t.Setenv("WORKER_MODE", "sidecar")

	cfg := Load()

	if cfg.StrictTransitions {
		t.Error("expected invalid bool to fall back to false")
	}
	if cfg.MaxOfferCents != 100_000_000 {
		t.Errorf("expected default max offer, got %d", cfg.MaxOfferCents)
	}
	if cfg.WorkerMode != WorkerModeEmbedded {
		t.Errorf("expected embedded worker, got %s", cfg.WorkerMode)
	}
}
