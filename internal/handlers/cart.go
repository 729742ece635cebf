package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matica-life/storefront/internal/platform/auth"
	"github.com/matica-life/storefront/internal/platform/httpx"
	"github.com/matica-life/storefront/internal/platform/session"
	"github.com/matica-life/storefront/internal/services"
)

const (
	maxCartBodySize = 16 * 1024
	maxCartQuantity = 99
)

// CartHandlers exposes cart endpoints for signed-in shoppers and guests.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs cart handlers. Identity is optional; guests are keyed by the session cookie.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart group.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Delete("/items/{productID}", h.removeItem)
}

// RootRoutes wires /cart:merge, which needs a signed-in shopper.
func (h *CartHandlers) RootRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.With(h.authn.RequireFirebaseAuth()).Post("/cart:merge", h.mergeCart)
		return
	}
	r.Post("/cart:merge", h.mergeCart)
}

type cartItemPayload struct {
	ProductID string  `json:"productId"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	ImageURL  string  `json:"imageUrl"`
	Quantity  int     `json:"quantity"`
}

type cartPayload struct {
	Items      []cartItemPayload `json:"items"`
	TotalItems int               `json:"totalItems"`
	Subtotal   float64           `json:"subtotal"`
}

type addCartItemRequest struct {
	ProductID string  `json:"productId"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	ImageURL  string  `json:"imageUrl"`
	Quantity  *int    `json:"quantity"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	owner := h.owner(r, false)
	if owner == (services.CartOwner{}) {
		writeCart(w, http.StatusOK, services.CartSnapshot{})
		return
	}
	snapshot, err := h.carts.GetCart(ctx, owner)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, snapshot)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	item, err := parseAddCartItemRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	snapshot, err := h.carts.AddItem(ctx, h.owner(r, true), item)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, snapshot)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productID is required", http.StatusBadRequest))
		return
	}
	owner := h.owner(r, false)
	if owner == (services.CartOwner{}) {
		writeCart(w, http.StatusOK, services.CartSnapshot{})
		return
	}
	snapshot, err := h.carts.RemoveItem(ctx, owner, productID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, snapshot)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	owner := h.owner(r, false)
	if owner == (services.CartOwner{}) {
		writeCart(w, http.StatusOK, services.CartSnapshot{})
		return
	}
	snapshot, err := h.carts.Clear(ctx, owner)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, snapshot)
}

func (h *CartHandlers) mergeCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	identity := currentIdentity(r)
	if identity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	snapshot, err := h.carts.MergeGuestCart(ctx, identity.UID, session.GuestID(ctx))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, snapshot)
}

func (h *CartHandlers) ready(ctx context.Context, w http.ResponseWriter) bool {
	if h == nil || h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

// owner resolves the cart owner. Only adds mint a guest session; a request with neither identity nor
// session has an empty cart by definition.
func (h *CartHandlers) owner(r *http.Request, mint bool) services.CartOwner {
	if identity := currentIdentity(r); identity != nil {
		return services.CartOwner{UserID: identity.UID}
	}
	if mint {
		return services.CartOwner{GuestID: session.EnsureGuestID(r.Context())}
	}
	return services.CartOwner{GuestID: session.GuestID(r.Context())}
}

func parseAddCartItemRequest(body []byte) (services.CartItem, error) {
	var req addCartItemRequest
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return services.CartItem{}, fmt.Errorf("invalid JSON payload: %w", err)
	}
	item := services.CartItem{
		ProductID: strings.TrimSpace(req.ProductID),
		Title:     strings.TrimSpace(req.Title),
		Price:     req.Price,
		ImageURL:  strings.TrimSpace(req.ImageURL),
		Quantity:  1,
	}
	if req.Quantity != nil {
		item.Quantity = *req.Quantity
	}
	switch {
	case item.ProductID == "":
		return services.CartItem{}, errors.New("productId is required")
	case item.Quantity < 1 || item.Quantity > maxCartQuantity:
		return services.CartItem{}, fmt.Errorf("quantity must be between 1 and %d", maxCartQuantity)
	case item.Price < 0:
		return services.CartItem{}, errors.New("price must not be negative")
	}
	return item, nil
}

func writeCart(w http.ResponseWriter, status int, snapshot services.CartSnapshot) {
	payload := cartPayload{
		Items:      make([]cartItemPayload, 0, len(snapshot.Items)),
		TotalItems: snapshot.TotalItems,
		Subtotal:   snapshot.Subtotal,
	}
	for _, item := range snapshot.Items {
		payload.Items = append(payload.Items, cartItemPayload(item))
	}
	setNoStore(w)
	if etag := buildCartETag(payload); etag != "" {
		w.Header().Set("ETag", etag)
	}
	writeJSONResponse(w, status, payload)
}

func buildCartETag(payload cartPayload) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return `W/"` + hex.EncodeToString(sum[:8]) + `"`
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cart_item", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartCorrupt):
		httpx.WriteError(ctx, w, httpx.NewError("cart_corrupt", "stored cart could not be read", http.StatusInternalServerError))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart storage unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}
