package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/dto"
	sharederrors "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/errors"
)

// Version is reported by /healthz.
const Version = "v0.1.0"

// NewRouter returns a chi router pre-configured with default middleware, a health endpoint and /metrics.
func NewRouter(service string, register func(r chi.Router)) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok", Service: service, Version: Version})
	})
	r.Handle("/metrics", promhttp.Handler())

	if register != nil {
		register(r)
	}

	return r
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError renders err using the shared error envelope. Unclassified errors are logged
// and reported as a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body := sharederrors.Response(err)
	body.RequestID = middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("requestId", body.RequestID),
			slog.Any("error", err),
		)
	}
	WriteJSON(w, status, body)
}
