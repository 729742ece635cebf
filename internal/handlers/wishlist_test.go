package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matica-life/storefront/internal/platform/auth"
	"github.com/matica-life/storefront/internal/services"
)

type stubWishlistService struct {
	mu       sync.Mutex
	members  map[int64]bool
	mutating bool
	err      error
	toggles  int
}

func newStubWishlistService(members ...int64) *stubWishlistService {
	s := &stubWishlistService{members: make(map[int64]bool)}
	for _, id := range members {
		s.members[id] = true
	}
	return s
}

func (s *stubWishlistService) List(context.Context, string) ([]services.WishlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	entries := make([]services.WishlistEntry, 0, len(s.members))
	for id := range s.members {
		entries = append(entries, services.WishlistEntry{ProductID: id, AddedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)})
	}
	return entries, nil
}

func (s *stubWishlistService) Contains(_ context.Context, _ string, productID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[productID], s.err
}

func (s *stubWishlistService) Toggle(_ context.Context, _ string, productID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toggles++
	if s.err != nil {
		return false, s.err
	}
	s.members[productID] = !s.members[productID]
	return s.members[productID], nil
}

func (s *stubWishlistService) Mutating(string, int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutating
}

func serveWishlist(h *WishlistHandlers, method, target, uid string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Route("/wishlist", h.Routes)
	req := httptest.NewRequest(method, target, nil)
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestWishlistHandlersToggleAnonymousOpensAuthModal(t *testing.T) {
	svc := newStubWishlistService()
	rr := serveWishlist(NewWishlistHandlers(svc), http.MethodPost, "/wishlist/9:toggle?mode=signup", "")

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "auth_required" {
		t.Fatalf("expected auth_required, got %v", body["error"])
	}
	modal, ok := body["authModal"].(map[string]any)
	if !ok {
		t.Fatalf("expected authModal details, got %v", body)
	}
	if modal["open"] != true || modal["mode"] != "signup" {
		t.Fatalf("unexpected modal state %v", modal)
	}
	if svc.toggles != 0 {
		t.Fatalf("expected no toggle for anonymous user")
	}
}

func TestWishlistHandlersToggleAddsThenRemoves(t *testing.T) {
	svc := newStubWishlistService()
	h := NewWishlistHandlers(svc)

	rr := serveWishlist(h, http.MethodPost, "/wishlist/9:toggle", "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["result"] != "added" || body["inWishlist"] != true {
		t.Fatalf("unexpected add response %v", body)
	}
	notification, _ := body["notification"].(map[string]any)
	if notification["message"] != "Added to wishlist" || notification["kind"] != "success" {
		t.Fatalf("unexpected notification %v", notification)
	}

	rr = serveWishlist(h, http.MethodPost, "/wishlist/9:toggle", "user-1")
	body = decodeBody(t, rr)
	if body["result"] != "removed" || body["inWishlist"] != false {
		t.Fatalf("unexpected remove response %v", body)
	}
	notification, _ = body["notification"].(map[string]any)
	if notification["message"] != "Removed from wishlist" {
		t.Fatalf("unexpected notification %v", notification)
	}
}

func TestWishlistHandlersToggleBusy(t *testing.T) {
	svc := newStubWishlistService()
	svc.mutating = true
	rr := serveWishlist(NewWishlistHandlers(svc), http.MethodPost, "/wishlist/9:toggle", "user-1")

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if svc.toggles != 0 {
		t.Fatalf("expected busy toggle to be ignored")
	}
}

func TestWishlistHandlersToggleFailureCarriesNotification(t *testing.T) {
	svc := newStubWishlistService()
	svc.err = services.ErrWishlistUnavailable
	rr := serveWishlist(NewWishlistHandlers(svc), http.MethodPost, "/wishlist/9:toggle", "user-1")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	notification, _ := body["notification"].(map[string]any)
	if notification["kind"] != "error" || notification["message"] != "Could not update wishlist" {
		t.Fatalf("unexpected notification %v", body)
	}
}

func TestWishlistHandlersToggleRateLimited(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newStubWishlistService()
	h := NewWishlistHandlers(svc,
		WithWishlistClock(func() time.Time { return now }),
		WithWishlistToggleLimit(2, time.Minute),
	)

	for i := 0; i < 2; i++ {
		if rr := serveWishlist(h, http.MethodPost, "/wishlist/9:toggle", "user-1"); rr.Code != http.StatusOK {
			t.Fatalf("toggle %d: expected status 200, got %d", i, rr.Code)
		}
	}
	rr := serveWishlist(h, http.MethodPost, "/wishlist/9:toggle", "user-1")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}
	if rr := serveWishlist(h, http.MethodPost, "/wishlist/9:toggle", "user-2"); rr.Code != http.StatusOK {
		t.Fatalf("expected other users unaffected, got %d", rr.Code)
	}

	now = now.Add(time.Minute)
	if rr := serveWishlist(h, http.MethodPost, "/wishlist/9:toggle", "user-1"); rr.Code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", rr.Code)
	}
}

func TestWishlistHandlersToggleState(t *testing.T) {
	svc := newStubWishlistService(9)
	h := NewWishlistHandlers(svc)

	rr := serveWishlist(h, http.MethodGet, "/wishlist/9", "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["inWishlist"] != true || body["disabled"] != false {
		t.Fatalf("unexpected state %v", body)
	}

	rr = serveWishlist(h, http.MethodGet, "/wishlist/9", "")
	body = decodeBody(t, rr)
	if body["inWishlist"] != false {
		t.Fatalf("expected anonymous shoppers to see an empty heart, got %v", body)
	}

	rr = serveWishlist(h, http.MethodGet, "/wishlist/0", "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for invalid id, got %d", rr.Code)
	}
}

func TestWishlistHandlersList(t *testing.T) {
	svc := newStubWishlistService(4)
	h := NewWishlistHandlers(svc)

	rr := serveWishlist(h, http.MethodGet, "/wishlist", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	modal, _ := decodeBody(t, rr)["authModal"].(map[string]any)
	if modal["open"] != true || modal["mode"] != "login" {
		t.Fatalf("expected login modal, got %v", modal)
	}

	rr = serveWishlist(h, http.MethodGet, "/wishlist", "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	items, _ := decodeBody(t, rr)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one item, got %v", items)
	}
}

func TestWindowLimiterReportsRetryAfter(t *testing.T) {
	now := time.Unix(0, 0)
	limiter := newWindowLimiter(1, 10*time.Second, func() time.Time { return now })

	if ok, _ := limiter.Allow("k"); !ok {
		t.Fatalf("expected first call allowed")
	}
	now = now.Add(4 * time.Second)
	ok, retry := limiter.Allow("k")
	if ok || retry != 6*time.Second {
		t.Fatalf("expected rejection with 6s retry, got %v %v", ok, retry)
	}
	if newWindowLimiter(0, time.Second, nil) != nil {
		t.Fatalf("expected disabled limiter to be nil")
	}
}

var _ services.WishlistService = (*stubWishlistService)(nil)
