package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/order-service/internal/order"
	sharederrors "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/errors"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/events"
	sharedserver "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/server"
)

const (
	serviceTimeout = 8 * time.Second
	maxBodyBytes   = 256 * 1024
)

// RegisterRoutes registers all order routes
func RegisterRoutes(r chi.Router, service order.Service, logger *slog.Logger) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", createOrder(service, logger))
		r.Get("/", listOrders(service, logger))
		r.Get("/{id}", getOrder(service, logger))
		r.Put("/{id}/status", updateStatus(service, logger))
		r.Put("/{id}/details", updateDetails(service, logger))
	})
}

type orderResponse struct {
	Status string       `json:"status"`
	Order  *order.Order `json:"order"`
}

type listResponse struct {
	Status string         `json:"status"`
	Orders []*order.Order `json:"orders"`
}

type updateResponse struct {
	Status string       `json:"status"`
	Before *order.Order `json:"before"`
	After  *order.Order `json:"after"`
}

func createOrder(service order.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		defer r.Body.Close()

		var input order.CreateInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			sharedserver.WriteError(w, r, logger, sharederrors.Validation("body", "invalid request body"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		created, err := service.Create(ctx, input)
		if err != nil {
			logRequestError(r, logger, "failed to create order", err, "")
			sharedserver.WriteError(w, r, logger, err)
			return
		}
		sharedserver.WriteJSON(w, http.StatusCreated, orderResponse{Status: "success", Order: created})
	}
}

func listOrders(service order.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		orders, err := service.ListByStatus(ctx, r.URL.Query().Get("status"))
		if err != nil {
			logRequestError(r, logger, "failed to list orders", err, "")
			sharedserver.WriteError(w, r, logger, err)
			return
		}
		sharedserver.WriteJSON(w, http.StatusOK, listResponse{Status: "success", Orders: orders})
	}
}

func getOrder(service order.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "id")

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		o, err := service.Get(ctx, orderID)
		if err != nil {
			logRequestError(r, logger, "failed to load order", err, orderID)
			sharedserver.WriteError(w, r, logger, err)
			return
		}
		sharedserver.WriteJSON(w, http.StatusOK, orderResponse{Status: "success", Order: o})
	}
}

func updateStatus(service order.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		defer r.Body.Close()

		var body struct {
			OrderStatus string `json:"orderStatus"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			sharedserver.WriteError(w, r, logger, sharederrors.Validation("body", "invalid request body"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		res, err := service.UpdateStatus(ctx, orderID, body.OrderStatus)
		if err != nil {
			logRequestError(r, logger, "failed to update order status", err, orderID)
			sharedserver.WriteError(w, r, logger, err)
			return
		}
		sharedserver.WriteJSON(w, http.StatusOK, updateResponse{Status: "success", Before: res.Before, After: res.After})
	}
}

func updateDetails(service order.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		defer r.Body.Close()

		fields, err := events.DecodeUpdateFields(r.Body)
		if err != nil {
			sharedserver.WriteError(w, r, logger, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		res, err := service.UpdateDetails(ctx, orderID, fields)
		if err != nil {
			logRequestError(r, logger, "failed to update order details", err, orderID)
			sharedserver.WriteError(w, r, logger, err)
			return
		}
		sharedserver.WriteJSON(w, http.StatusOK, updateResponse{Status: "success", Before: res.Before, After: res.After})
	}
}

func logRequestError(r *http.Request, logger *slog.Logger, message string, err error, orderID string) {
	if logger == nil || err == nil {
		return
	}
	// WriteError logs server faults; only client errors are logged here.
	if !errors.Is(err, sharederrors.ErrValidation) && !errors.Is(err, sharederrors.ErrNotFound) {
		return
	}
	logger.Warn(message,
		slog.String("orderId", orderID),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
}
