package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	sharederrors "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/errors"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/events"
	sharedserver "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/server"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/user-service/internal/user"
)

const (
	serviceTimeout = 8 * time.Second
	maxBodyBytes   = 64 * 1024
)

// RegisterRoutes registers all user routes
func RegisterRoutes(r chi.Router, service user.Service, logger *slog.Logger) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", createUser(service, logger))
		r.Get("/{id}", getUser(service, logger))
		r.Put("/{id}", updateUser(service, logger))
	})
}

type createResponse struct {
	Status string     `json:"status"`
	User   *user.User `json:"user"`
}

type updateResponse struct {
	Status string     `json:"status"`
	Before *user.User `json:"before"`
	After  *user.User `json:"after"`
}

func createUser(service user.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		defer r.Body.Close()

		var input user.CreateInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			sharedserver.WriteError(w, r, logger, sharederrors.Validation("body", "invalid request body"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		created, err := service.Create(ctx, input)
		if err != nil {
			logRequestError(r, logger, "failed to create user", err, "")
			sharedserver.WriteError(w, r, logger, err)
			return
		}
		sharedserver.WriteJSON(w, http.StatusCreated, createResponse{Status: "success", User: created})
	}
}

func getUser(service user.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		u, err := service.Get(ctx, userID)
		if err != nil {
			logRequestError(r, logger, "failed to load user", err, userID)
			sharedserver.WriteError(w, r, logger, err)
			return
		}
		sharedserver.WriteJSON(w, http.StatusOK, u)
	}
}

func updateUser(service user.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		defer r.Body.Close()

		fields, err := events.DecodeUpdateFields(r.Body)
		if err != nil {
			sharedserver.WriteError(w, r, logger, err)
			return
		}
		logger.Info("update requested", slog.String("userId", userID), slog.Any("fields", fields.Names()))

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		res, err := service.Update(ctx, userID, fields)
		if err != nil {
			logRequestError(r, logger, "failed to update user", err, userID)
			sharedserver.WriteError(w, r, logger, err)
			return
		}
		sharedserver.WriteJSON(w, http.StatusOK, updateResponse{Status: "success", Before: res.Before, After: res.After})
	}
}

func logRequestError(r *http.Request, logger *slog.Logger, message string, err error, userID string) {
	if logger == nil || err == nil {
		return
	}
	// Client errors are expected traffic; WriteError already logs server faults.
	if !errors.Is(err, sharederrors.ErrValidation) && !errors.Is(err, sharederrors.ErrNotFound) && !errors.Is(err, sharederrors.ErrConflict) {
		return
	}
	logger.Warn(message,
		slog.String("userId", userID),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
}
