package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, name := range []string{"PORT", "ADMIN_PORT", "SPLIT_READ_TIMEOUT", "SPLIT_SOURCE", "ORDER_URL", "USER_V1_URL", "USER_V2_URL", "ORDER_PATH_PREFIX", "SPLIT_PERCENT"} {
		t.Setenv(name, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SplitSource != SplitSourceRedis || cfg.SplitKey != DefaultSplitKey {
		t.Fatalf("unexpected split settings %q %q", cfg.SplitSource, cfg.SplitKey)
	}
	if cfg.OrderPathPrefix != "/orders" || cfg.OrderURL.Host != "order-service:8080" {
		t.Fatalf("unexpected order settings %q %v", cfg.OrderPathPrefix, cfg.OrderURL)
	}
	if cfg.AdminPort != "9090" || cfg.SplitReadTimeout != DefaultSplitReadTimeout {
		t.Fatalf("unexpected admin/read settings %q %s", cfg.AdminPort, cfg.SplitReadTimeout)
	}
	if cfg.SplitPercent != DefaultSplitPercent {
		t.Fatalf("expected default split %d, got %d", DefaultSplitPercent, cfg.SplitPercent)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown source":   {"SPLIT_SOURCE": "consul"},
		"gcs needs bucket": {"SPLIT_SOURCE": "gcs", "SPLIT_BUCKET": ""},
		"static overflow":  {"SPLIT_SOURCE": "static", "SPLIT_PERCENT": "101"},
		"relative prefix":  {"ORDER_PATH_PREFIX": "orders"},
		"bad order url":    {"ORDER_URL": "order-service"},
		"admin on public":  {"PORT": "8080", "ADMIN_PORT": "8080"},
		"zero read bound":  {"SPLIT_READ_TIMEOUT": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for key, value := range env {
				t.Setenv(key, value)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadGCSSource(t *testing.T) {
	t.Setenv("SPLIT_SOURCE", "GCS")
	t.Setenv("SPLIT_BUCKET", "gateway-config")
	t.Setenv("SPLIT_OBJECT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SplitSource != SplitSourceGCS || cfg.SplitObject != "gateway/config.json" {
		t.Fatalf("unexpected gcs settings %+v", cfg)
	}
}
