package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matica-life/storefront/internal/platform/auth"
	"github.com/matica-life/storefront/internal/platform/httpx"
	"github.com/matica-life/storefront/internal/services"
	"github.com/matica-life/storefront/internal/storefront"
)

const (
	defaultWishlistToggleLimit  = 30
	defaultWishlistToggleWindow = time.Minute
)

// WishlistHandlers exposes the wishlist heart for product cards and the saved-items list.
type WishlistHandlers struct {
	wishlist services.WishlistService
	limiter  rateLimiter
	clock    func() time.Time

	toggleLimit  int
	toggleWindow time.Duration
}

// WishlistOption customises WishlistHandlers.
type WishlistOption func(*WishlistHandlers)

// WithWishlistToggleLimit caps toggles per user within window. A non-positive limit disables it.
func WithWishlistToggleLimit(limit int, window time.Duration) WishlistOption {
	return func(h *WishlistHandlers) {
		h.toggleLimit = limit
		h.toggleWindow = window
	}
}

// WithWishlistClock overrides the clock used by the toggle limiter.
func WithWishlistClock(clock func() time.Time) WishlistOption {
	return func(h *WishlistHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewWishlistHandlers constructs wishlist handlers.
func NewWishlistHandlers(wishlist services.WishlistService, opts ...WishlistOption) *WishlistHandlers {
	h := &WishlistHandlers{
		wishlist:     wishlist,
		clock:        time.Now,
		toggleLimit:  defaultWishlistToggleLimit,
		toggleWindow: defaultWishlistToggleWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.limiter = newWindowLimiter(h.toggleLimit, h.toggleWindow, h.clock)
	return h
}

// Routes wires the /wishlist group.
func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listWishlist)
	r.Get("/{productID}", h.getToggleState)
	r.Post("/{productID}:toggle", h.toggle)
}

type wishlistEntryPayload struct {
	ProductID int64  `json:"productId"`
	AddedAt   string `json:"addedAt,omitempty"`
}

type toggleStatePayload struct {
	ProductID  int64 `json:"productId"`
	InWishlist bool  `json:"inWishlist"`
	Disabled   bool  `json:"disabled"`
}

type toggleResultPayload struct {
	ProductID    int64                    `json:"productId"`
	Result       storefront.ToggleResult  `json:"result"`
	InWishlist   bool                     `json:"inWishlist"`
	Notification *storefront.Notification `json:"notification,omitempty"`
}

func (h *WishlistHandlers) listWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	identity := currentIdentity(r)
	if identity == nil {
		writeAuthRequired(ctx, w, r)
		return
	}
	entries, err := h.wishlist.List(ctx, identity.UID)
	if err != nil {
		writeWishlistError(ctx, w, err)
		return
	}
	items := make([]wishlistEntryPayload, 0, len(entries))
	for _, entry := range entries {
		items = append(items, wishlistEntryPayload{ProductID: entry.ProductID, AddedAt: formatTime(entry.AddedAt)})
	}
	setNoStore(w)
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *WishlistHandlers) getToggleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	toggle, ok := h.newToggle(ctx, w, r, nil, nil)
	if !ok {
		return
	}
	inWishlist, err := toggle.InWishlist(ctx)
	if err != nil {
		writeWishlistError(ctx, w, err)
		return
	}
	setNoStore(w)
	writeJSONResponse(w, http.StatusOK, toggleStatePayload{
		ProductID:  toggle.ProductID(),
		InWishlist: inWishlist,
		Disabled:   toggle.Disabled(),
	})
}

func (h *WishlistHandlers) toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}

	modal := storefront.NewAuthModal()
	var notification *storefront.Notification
	toggle, ok := h.newToggle(ctx, w, r,
		func() { modal.Open(storefront.ParseAuthMode(r.URL.Query().Get("mode"))) },
		func(n storefront.Notification) { notification = &n },
	)
	if !ok {
		return
	}

	if identity := currentIdentity(r); identity != nil && h.limiter != nil {
		if allowed, retryAfter := h.limiter.Allow(identity.UID); !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many wishlist updates", http.StatusTooManyRequests))
			return
		}
	}

	result, err := toggle.Activate(ctx)
	switch result {
	case storefront.ToggleAuthRequired:
		httpx.WriteError(ctx, w, httpx.NewError("auth_required", "sign in to save items", http.StatusUnauthorized).
			WithDetails(map[string]any{"authModal": modal.State()}))
		return
	case storefront.ToggleBusy:
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_busy", "wishlist update already in progress", http.StatusConflict))
		return
	case storefront.ToggleFailed:
		writeWishlistError(ctx, w, err, map[string]any{"notification": notification})
		return
	}

	setNoStore(w)
	writeJSONResponse(w, http.StatusOK, toggleResultPayload{
		ProductID:    toggle.ProductID(),
		Result:       result,
		InWishlist:   result == storefront.ToggleAdded,
		Notification: notification,
	})
}

func (h *WishlistHandlers) newToggle(ctx context.Context, w http.ResponseWriter, r *http.Request, onAuthRequired func(), notify func(storefront.Notification)) (*storefront.WishlistToggle, bool) {
	productID, ok := parsePositiveID(chi.URLParam(r, "productID"))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_product_id", "product id must be a positive integer", http.StatusBadRequest))
		return nil, false
	}
	identity := currentIdentity(r)
	toggle, err := storefront.NewWishlistToggle(storefront.WishlistToggleDeps{
		ProductID:      productID,
		Wishlist:       h.wishlist,
		CurrentUser:    func() *storefront.User { return shopperFromIdentity(identity) },
		OnAuthRequired: onAuthRequired,
		Notify:         notify,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return nil, false
	}
	return toggle, true
}

func (h *WishlistHandlers) ready(ctx context.Context, w http.ResponseWriter) bool {
	if h == nil || h.wishlist == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func shopperFromIdentity(identity *auth.Identity) *storefront.User {
	if identity == nil {
		return nil
	}
	return &storefront.User{ID: identity.UID, Email: identity.Email, DisplayName: identity.DisplayName}
}

// writeAuthRequired answers 401 with an opened auth modal so the client can prompt for sign-in.
func writeAuthRequired(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	modal := storefront.NewAuthModal()
	modal.Open(storefront.ParseAuthMode(r.URL.Query().Get("mode")))
	httpx.WriteError(ctx, w, httpx.NewError("auth_required", "sign in to view your wishlist", http.StatusUnauthorized).
		WithDetails(map[string]any{"authModal": modal.State()}))
}

func writeWishlistError(ctx context.Context, w http.ResponseWriter, err error, details ...map[string]any) {
	var apiErr httpx.Error
	switch {
	case errors.Is(err, services.ErrWishlistUnauthenticated):
		apiErr = httpx.NewError("auth_required", "authentication required", http.StatusUnauthorized)
	case errors.Is(err, services.ErrWishlistInvalidInput):
		apiErr = httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded):
		apiErr = httpx.NewError("wishlist_timeout", "wishlist request timed out", http.StatusGatewayTimeout)
	default:
		apiErr = httpx.NewError("wishlist_unavailable", "wishlist temporarily unavailable", http.StatusServiceUnavailable)
	}
	for _, d := range details {
		apiErr = apiErr.WithDetails(d)
	}
	httpx.WriteError(ctx, w, apiErr)
}
