package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultSplitPercent applies until a valid split has been read at least once.
	DefaultSplitPercent = 50
	// DefaultSplitKey is the Redis key holding the split percentage.
	DefaultSplitKey = "gateway:split_percent"
	// DefaultSplitReadTimeout bounds one source read so a hung source cannot eat the request deadline.
	DefaultSplitReadTimeout = 250 * time.Millisecond
)

var (
	// ErrSplitOutOfRange is returned for percentages outside [0,100].
	ErrSplitOutOfRange = errors.New("split percent out of range")
	// ErrSplitReadOnly is returned when the configured source cannot be written.
	ErrSplitReadOnly = errors.New("split source is read-only")
)

// SplitSource yields the percentage of user traffic sent to v1.
type SplitSource interface {
	SplitPercent(ctx context.Context) (int, error)
}

// SplitWriter is implemented by sources that accept runtime changes.
type SplitWriter interface {
	SetSplitPercent(ctx context.Context, percent int) error
}

// ValidSplit reports whether p is a usable percentage.
func ValidSplit(p int) bool {
	return p >= 0 && p <= 100
}

// RedisSplitSource keeps the split in a single Redis string key.
type RedisSplitSource struct {
	client redis.UniversalClient
	key    string
}

func NewRedisSplitSource(client redis.UniversalClient, key string) *RedisSplitSource {
	if key == "" {
		key = DefaultSplitKey
	}
	return &RedisSplitSource{client: client, key: key}
}

func (s *RedisSplitSource) SplitPercent(ctx context.Context) (int, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("split key %q not set", s.key)
		}
		return 0, fmt.Errorf("read split key: %w", err)
	}
	p, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse split %q: %w", raw, err)
	}
	return p, nil
}

func (s *RedisSplitSource) SetSplitPercent(ctx context.Context, percent int) error {
	if !ValidSplit(percent) {
		return ErrSplitOutOfRange
	}
	if err := s.client.Set(ctx, s.key, strconv.Itoa(percent), 0).Err(); err != nil {
		return fmt.Errorf("write split key: %w", err)
	}
	return nil
}

// FileSplitSource re-reads a JSON document of the form {"P": 70} on every call.
type FileSplitSource struct {
	path string
}

func NewFileSplitSource(path string) *FileSplitSource {
	return &FileSplitSource{path: path}
}

type splitDocument struct {
	P *int `json:"P"`
}

func (s *FileSplitSource) SplitPercent(context.Context) (int, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read split file: %w", err)
	}
	return parseSplitDocument(raw)
}

func parseSplitDocument(raw []byte) (int, error) {
	var doc splitDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("decode split document: %w", err)
	}
	if doc.P == nil {
		return 0, errors.New("split document has no P")
	}
	return *doc.P, nil
}

// StaticSplitSource always returns the same value. It is writable so local setups can still
// exercise the admin endpoint.
type StaticSplitSource struct {
	percent atomic.Int64
}

func NewStaticSplitSource(percent int) *StaticSplitSource {
	s := &StaticSplitSource{}
	s.percent.Store(int64(percent))
	return s
}

func (s *StaticSplitSource) SplitPercent(context.Context) (int, error) {
	return int(s.percent.Load()), nil
}

func (s *StaticSplitSource) SetSplitPercent(_ context.Context, percent int) error {
	if !ValidSplit(percent) {
		return ErrSplitOutOfRange
	}
	s.percent.Store(int64(percent))
	return nil
}

// Provider serves the current split. The source is consulted on every call; when it fails, is
// slower than the read timeout or returns an out-of-range value the last good value is used instead.
type Provider struct {
	source      SplitSource
	readTimeout time.Duration
	lastGood    atomic.Int64
	logger      *slog.Logger

	mu      sync.Mutex
	lastErr string
}

func NewProvider(source SplitSource, logger *slog.Logger) *Provider {
	p := &Provider{source: source, readTimeout: DefaultSplitReadTimeout, logger: logger}
	p.lastGood.Store(DefaultSplitPercent)
	return p
}

// WithReadTimeout bounds each source read. Call it before the provider is shared.
func (p *Provider) WithReadTimeout(d time.Duration) *Provider {
	if d > 0 {
		p.readTimeout = d
	}
	return p
}

// CurrentSplitPercent never fails; it degrades to the last good value. Failures are logged when
// the source starts failing or the error changes, not on every call.
func (p *Provider) CurrentSplitPercent(ctx context.Context) int {
	percent, err := p.Refresh(ctx)
	p.observe(percent, err)
	return percent
}

func (p *Provider) observe(percent int, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	p.mu.Lock()
	previous := p.lastErr
	p.lastErr = msg
	p.mu.Unlock()

	switch {
	case msg == previous:
	case err != nil:
		p.logger.Warn("split source unavailable, using last known value",
			slog.Int("percent", percent),
			slog.Any("error", err),
		)
	default:
		p.logger.Info("split source recovered", slog.Int("percent", percent))
	}
}

// Refresh reads the source once. On failure it returns the last good value along with the error.
func (p *Provider) Refresh(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.readTimeout)
	defer cancel()

	percent, err := p.source.SplitPercent(ctx)
	if err == nil && !ValidSplit(percent) {
		err = fmt.Errorf("%w: %d", ErrSplitOutOfRange, percent)
	}
	if err != nil {
		return int(p.lastGood.Load()), err
	}
	p.lastGood.Store(int64(percent))
	return percent, nil
}

// SetSplitPercent writes through to the source when it supports writes.
func (p *Provider) SetSplitPercent(ctx context.Context, percent int) error {
	if !ValidSplit(percent) {
		return ErrSplitOutOfRange
	}
	writer, ok := p.source.(SplitWriter)
	if !ok {
		return ErrSplitReadOnly
	}
	if err := writer.SetSplitPercent(ctx, percent); err != nil {
		return err
	}
	p.lastGood.Store(int64(percent))
	return nil
}
