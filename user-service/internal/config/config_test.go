package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("USER_SERVICE_VERSION", "")
	t.Setenv("DATASTORE", "memory")
	t.Setenv("BROKER_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Version != "v1" || cfg.Firestore.Collection != "users" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	t.Setenv("USER_SERVICE_VERSION", "v3")
	t.Setenv("DATASTORE", "memory")
	t.Setenv("BROKER_DRIVER", "memory")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown version")
	}
}

func TestLoadRejectsUnknownBroker(t *testing.T) {
	t.Setenv("DATASTORE", "memory")
	t.Setenv("BROKER_DRIVER", "rabbit")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown broker driver")
	}
}
