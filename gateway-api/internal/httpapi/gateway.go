package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/gateway-api/internal/config"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/gateway-api/internal/proxy"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/gateway-api/internal/routing"
	sharederrors "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/errors"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/logging"
	sharedserver "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/server"
)

var (
	routingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_routing_decisions_total",
			Help: "Requests routed by the gateway, by backend.",
		},
		[]string{"backend"},
	)
	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_upstream_duration_seconds",
			Help:    "Upstream round trip latency, by backend and outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "outcome"},
	)
)

// unavailableResponse is the fixed body returned when an upstream cannot be reached.
type unavailableResponse struct {
	Error string `json:"error"`
}

var backendUnavailable = unavailableResponse{Error: "Backend unavailable"}

// SplitProvider supplies and updates the v1 traffic percentage.
type SplitProvider interface {
	CurrentSplitPercent(ctx context.Context) int
	SetSplitPercent(ctx context.Context, percent int) error
}

// Forwarder relays a request upstream.
type Forwarder interface {
	Forward(ctx context.Context, req proxy.ForwardRequest) (*proxy.Response, error)
}

// Targets maps each backend to its base URL.
type Targets struct {
	Order  *url.URL
	UserV1 *url.URL
	UserV2 *url.URL
}

func (t Targets) url(b routing.Backend) *url.URL {
	switch b {
	case routing.BackendOrder:
		return t.Order
	case routing.BackendUserV1:
		return t.UserV1
	default:
		return t.UserV2
	}
}

// Gateway routes every request to exactly one backend. It keeps no per-client state.
type Gateway struct {
	split     SplitProvider
	engine    *routing.Engine
	forwarder Forwarder
	targets   Targets
	logger    *slog.Logger
}

func NewGateway(split SplitProvider, engine *routing.Engine, forwarder Forwarder, targets Targets, logger *slog.Logger) *Gateway {
	return &Gateway{split: split, engine: engine, forwarder: forwarder, targets: targets, logger: logger}
}

// Router builds the public gateway surface. Everything except the health and metrics endpoints is
// proxied; the /_gateway namespace is reserved and answers 404 here.
func Router(g *Gateway) http.Handler {
	return sharedserver.NewRouter("gateway-api", func(r chi.Router) {
		r.Handle("/_gateway", http.HandlerFunc(reserved))
		r.Handle("/_gateway/*", http.HandlerFunc(reserved))
		r.Handle("/*", http.HandlerFunc(g.ServeHTTP))
	})
}

// AdminRouter builds the operator surface served on the admin listener only.
func AdminRouter(g *Gateway) http.Handler {
	return sharedserver.NewRouter("gateway-api-admin", func(r chi.Router) {
		r.Route("/_gateway", func(r chi.Router) {
			r.Get("/split", g.getSplit)
			r.Put("/split", g.putSplit)
		})
	})
}

func reserved(w http.ResponseWriter, r *http.Request) {
	sharedserver.WriteError(w, r, nil, sharederrors.NotFound("not found"))
}

// ServeHTTP proxies one request.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.WithRequestID(ctx, g.logger, middleware.GetReqID(ctx))

	split := g.split.CurrentSplitPercent(ctx)
	decision := g.engine.Route(r.URL.Path, split)
	routingDecisions.WithLabelValues(string(decision.Backend)).Inc()

	logger.Info("routing request",
		slog.String("method", r.Method),
		slog.String("path", decision.Path),
		slog.String("backend", string(decision.Backend)),
		slog.Int("draw", decision.Draw),
		slog.Int("split", split),
	)

	start := time.Now()
	resp, err := g.forwarder.Forward(ctx, proxy.ForwardRequest{
		Method:   r.Method,
		Target:   g.targets.url(decision.Backend),
		Path:     r.URL.EscapedPath(),
		RawQuery: r.URL.RawQuery,
		Header:   r.Header,
		Body:     r.Body,

		ContentLength: r.ContentLength,
	})
	if err != nil {
		upstreamDuration.WithLabelValues(string(decision.Backend), "unavailable").Observe(time.Since(start).Seconds())
		logger.Error("upstream request failed",
			slog.String("backend", string(decision.Backend)),
			slog.String("path", decision.Path),
			slog.Any("error", err),
		)
		sharedserver.WriteJSON(w, http.StatusServiceUnavailable, backendUnavailable)
		return
	}
	upstreamDuration.WithLabelValues(string(decision.Backend), "ok").Observe(time.Since(start).Seconds())

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

type splitPayload struct {
	Percent *int `json:"percent"`
}

type splitResponse struct {
	Percent int `json:"percent"`
}

func (g *Gateway) getSplit(w http.ResponseWriter, r *http.Request) {
	sharedserver.WriteJSON(w, http.StatusOK, splitResponse{Percent: g.split.CurrentSplitPercent(r.Context())})
}

func (g *Gateway) putSplit(w http.ResponseWriter, r *http.Request) {
	var payload splitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		sharedserver.WriteError(w, r, g.logger, sharederrors.Validation("body", "invalid JSON payload"))
		return
	}
	if payload.Percent == nil {
		sharedserver.WriteError(w, r, g.logger, sharederrors.Validation("percent", "percent is required"))
		return
	}

	err := g.split.SetSplitPercent(r.Context(), *payload.Percent)
	switch {
	case err == nil:
	case errors.Is(err, config.ErrSplitOutOfRange):
		sharedserver.WriteError(w, r, g.logger, sharederrors.Validation("percent", "percent must be between 0 and 100"))
		return
	case errors.Is(err, config.ErrSplitReadOnly):
		sharedserver.WriteError(w, r, g.logger, sharederrors.NotAllowed("split source does not accept updates"))
		return
	default:
		g.logger.Error("split update failed", slog.Any("error", err))
		sharedserver.WriteError(w, r, g.logger, sharederrors.Unavailable("split source unavailable"))
		return
	}

	g.logger.Info("split updated", slog.Int("percent", *payload.Percent))
	sharedserver.WriteJSON(w, http.StatusOK, splitResponse{Percent: *payload.Percent})
}
