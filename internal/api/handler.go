// Package api exposes the order service HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/ordway/order-service/internal/domain/order"
)

// Machine-readable error codes carried on every failure response. Calling
// services use these to decide whether a retry is safe.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeProductNotFound    = "PRODUCT_NOT_FOUND"
	CodeProductUnavailable = "PRODUCT_SERVICE_UNAVAILABLE"
	CodeProductTimeout     = "PRODUCT_SERVICE_TIMEOUT"
	CodeOrderNotFound      = "ORDER_NOT_FOUND"
	CodeInternal           = "INTERNAL"
)

// Handler implements the HTTP endpoints, delegating business logic to the
// order service and reads to the repository.
type Handler struct {
	orders *order.Service
	store  Reader
}

// Reader covers the plain read endpoints.
type Reader interface {
	GetByID(ctx context.Context, id int64) (*order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(orders *order.Service, store Reader) *Handler {
	return &Handler{
		orders: orders,
		store:  store,
	}
}

// Routes registers the handler's endpoints on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", h.createOrder)
	mux.HandleFunc("GET /{$}", h.listOrders)
	mux.HandleFunc("GET /{id}", h.getOrder)
	return mux
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, r, status, errorResponse{Code: code, Message: message})
}
