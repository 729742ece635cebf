package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matica-life/storefront/internal/platform/httpx"
	"github.com/matica-life/storefront/internal/shipping"
)

const maxShippingBodySize = 64 * 1024

// Courier is the shipping pass-through used by the staff routes.
type Courier interface {
	CheckServiceability(ctx context.Context, rawQuery string) (shipping.Response, error)
	CreateShipment(ctx context.Context, body json.RawMessage) (shipping.Response, error)
	RequestPickup(ctx context.Context, body json.RawMessage) (shipping.Response, error)
}

// ShippingHandlers forwards staff shipping calls to the courier and relays its answers unchanged.
type ShippingHandlers struct {
	courier     Courier
	idempotency func(http.Handler) http.Handler
}

// ShippingOption customises ShippingHandlers.
type ShippingOption func(*ShippingHandlers)

// WithShippingIdempotency guards the mutating routes with mw.
func WithShippingIdempotency(mw func(http.Handler) http.Handler) ShippingOption {
	return func(h *ShippingHandlers) {
		h.idempotency = mw
	}
}

// NewShippingHandlers constructs shipping handlers.
func NewShippingHandlers(courier Courier, opts ...ShippingOption) *ShippingHandlers {
	h := &ShippingHandlers{courier: courier}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /shipping group.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/serviceability", h.serviceability)
	mutating := r
	if h.idempotency != nil {
		mutating = r.With(h.idempotency)
	}
	mutating.Post("/shipments", h.createShipment)
	mutating.Post("/pickups", h.requestPickup)
}

func (h *ShippingHandlers) serviceability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	resp, err := h.courier.CheckServiceability(ctx, r.URL.RawQuery)
	h.relay(ctx, w, resp, err)
}

func (h *ShippingHandlers) createShipment(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, func(ctx context.Context, body json.RawMessage) (shipping.Response, error) {
		return h.courier.CreateShipment(ctx, body)
	})
}

func (h *ShippingHandlers) requestPickup(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, func(ctx context.Context, body json.RawMessage) (shipping.Response, error) {
		return h.courier.RequestPickup(ctx, body)
	})
}

func (h *ShippingHandlers) forward(w http.ResponseWriter, r *http.Request, call func(context.Context, json.RawMessage) (shipping.Response, error)) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	body, err := readLimitedBody(r, maxShippingBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	resp, err := call(ctx, json.RawMessage(body))
	h.relay(ctx, w, resp, err)
}

func (h *ShippingHandlers) relay(ctx context.Context, w http.ResponseWriter, resp shipping.Response, err error) {
	var courierErr *shipping.CourierError
	switch {
	case err == nil:
		setNoStore(w)
		httpx.WriteRaw(w, resp.Status, resp.ContentType, resp.Body)
	case errors.As(err, &courierErr):
		httpx.WriteRaw(w, courierErr.Status, courierErr.ContentType, courierErr.Body)
	case errors.Is(err, shipping.ErrInvalidBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, shipping.ErrNotConfigured):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_not_configured", "courier integration is not configured", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("courier_timeout", "courier did not respond in time", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("courier_unavailable", "courier unavailable", http.StatusBadGateway))
	}
}

func (h *ShippingHandlers) ready(ctx context.Context, w http.ResponseWriter) bool {
	if h == nil || h.courier == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}
