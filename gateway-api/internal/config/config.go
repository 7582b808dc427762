package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/envconfig"
)

// Split source kinds.
const (
	SplitSourceRedis  = "redis"
	SplitSourceFile   = "file"
	SplitSourceStatic = "static"
	SplitSourceGCS    = "gcs"
)

// Config holds the gateway process settings.
type Config struct {
	Port string `validate:"required"`
	// AdminPort serves the operator endpoints; it is never exposed through the proxied listener.
	AdminPort string `validate:"required,nefield=Port"`

	OrderURL  *url.URL `validate:"required"`
	UserV1URL *url.URL `validate:"required"`
	UserV2URL *url.URL `validate:"required"`

	// OrderPathPrefix routes matching paths to the order service regardless of the split.
	OrderPathPrefix string `validate:"required,startswith=/"`

	SplitSource  string `validate:"oneof=redis file static gcs"`
	SplitKey     string `validate:"required_if=SplitSource redis"`
	SplitFile    string `validate:"required_if=SplitSource file"`
	SplitPercent int    `validate:"gte=0,lte=100"`
	SplitBucket  string `validate:"required_if=SplitSource gcs"`
	SplitObject  string `validate:"required_if=SplitSource gcs"`
	// SplitReadTimeout bounds each source read made on the request path.
	SplitReadTimeout time.Duration `validate:"gt=0"`

	RedisAddr     string `validate:"required_if=SplitSource redis"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
}

// Load reads the gateway configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:             envconfig.Get("PORT", "8080"),
		AdminPort:        envconfig.Get("ADMIN_PORT", "9090"),
		OrderPathPrefix:  envconfig.Get("ORDER_PATH_PREFIX", "/orders"),
		SplitSource:      strings.ToLower(envconfig.Get("SPLIT_SOURCE", SplitSourceRedis)),
		SplitKey:         envconfig.Get("SPLIT_KEY", DefaultSplitKey),
		SplitFile:        envconfig.Get("SPLIT_FILE", "config.json"),
		SplitPercent:     envconfig.GetInt("SPLIT_PERCENT", DefaultSplitPercent),
		SplitBucket:      envconfig.Get("SPLIT_BUCKET", ""),
		SplitObject:      envconfig.Get("SPLIT_OBJECT", "gateway/config.json"),
		SplitReadTimeout: envconfig.GetDuration("SPLIT_READ_TIMEOUT", DefaultSplitReadTimeout),
		RedisAddr:        envconfig.Get("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    envconfig.Get("REDIS_PASSWORD", ""),
		RedisDB:          envconfig.GetInt("REDIS_DB", 0),
	}

	var err error
	if cfg.OrderURL, err = ParseURLCompat(envconfig.Get("ORDER_URL", "http://order-service:8080")); err != nil {
		return Config{}, fmt.Errorf("ORDER_URL: %w", err)
	}
	if cfg.UserV1URL, err = ParseURLCompat(envconfig.Get("USER_V1_URL", "http://user-service-v1:8080")); err != nil {
		return Config{}, fmt.Errorf("USER_V1_URL: %w", err)
	}
	if cfg.UserV2URL, err = ParseURLCompat(envconfig.Get("USER_V2_URL", "http://user-service-v2:8080")); err != nil {
		return Config{}, fmt.Errorf("USER_V2_URL: %w", err)
	}

	return cfg, envconfig.Validate(cfg)
}

// ParseURLCompat parses a required absolute URL.
// It is intentionally strict (requires scheme + host).
func ParseURLCompat(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("missing url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url: %s", raw)
	}
	return u, nil
}
