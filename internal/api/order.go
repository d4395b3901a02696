package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/ordway/order-service/internal/domain/order"
	"github.com/ordway/order-service/internal/domain/product"
)

// createOrderRequest is the POST / body.
type createOrderRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// createOrder handles POST /. The response does not wait on event delivery:
// a 201 means the order and its outbox event are durable, nothing more.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		h.mapCreateError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, o)
}

// mapCreateError translates the service's error taxonomy to status codes:
// validation 400, unknown product 404, catalog unreachable 502, catalog
// timeout 504, everything else 500. A caller may safely retry on 502/504 but
// not on 400/404.
func (h *Handler) mapCreateError(w http.ResponseWriter, r *http.Request, err error) {
	var iqErr *order.InvalidQuantityError
	switch {
	case errors.Is(err, order.ErrMissingProduct):
		writeError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.As(err, &iqErr):
		writeError(w, r, http.StatusBadRequest, CodeValidation, iqErr.Error())
	case errors.Is(err, product.ErrNotFound):
		writeError(w, r, http.StatusNotFound, CodeProductNotFound, "product not found")
	case errors.Is(err, product.ErrTimeout):
		writeError(w, r, http.StatusGatewayTimeout, CodeProductTimeout, "product service timed out")
	default:
		var uErr *product.UnavailableError
		if errors.As(err, &uErr) {
			writeError(w, r, http.StatusBadGateway, CodeProductUnavailable, "product service unavailable")
			return
		}
		zctx.From(r.Context()).Error("create order", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

// listOrders handles GET /, most recent order first.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("list orders", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
		return
	}
	if list == nil {
		list = []order.Order{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

// getOrder handles GET /{id}.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusNotFound, CodeOrderNotFound, "order not found")
		return
	}

	o, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, CodeOrderNotFound, "order not found")
			return
		}
		zctx.From(r.Context()).Error("get order", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
		return
	}

	writeJSON(w, r, http.StatusOK, o)
}
