package services

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/matica-life/storefront/internal/cart"
)

type stubProductLookup struct {
	getFunc func(ctx context.Context, productID int64) (Product, error)
}

func (s *stubProductLookup) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return s.getFunc(ctx, productID)
}

type flakyStorage struct {
	*cart.MemoryStorage
	loadErr error
	saveErr error
}

func (f *flakyStorage) Load(ctx context.Context, key string) ([]byte, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.MemoryStorage.Load(ctx, key)
}

func (f *flakyStorage) Save(ctx context.Context, key string, payload []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStorage.Save(ctx, key, payload)
}

func newTestCartService(t *testing.T, deps CartServiceDeps) (CartService, *cart.MemoryStorage, *cart.MemoryStorage) {
	t.Helper()
	guest := cart.NewMemoryStorage()
	user := cart.NewMemoryStorage()
	if deps.GuestStorage == nil {
		deps.GuestStorage = guest
	}
	if deps.UserStorage == nil {
		deps.UserStorage = user
	}
	service, err := NewCartService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}
	return service, guest, user
}

func TestNewCartServiceRequiresStorages(t *testing.T) {
	if _, err := NewCartService(CartServiceDeps{UserStorage: cart.NewMemoryStorage()}); !errors.Is(err, errCartGuestStorageRequired) {
		t.Fatalf("expected guest storage error, got %v", err)
	}
	if _, err := NewCartService(CartServiceDeps{GuestStorage: cart.NewMemoryStorage()}); !errors.Is(err, errCartUserStorageRequired) {
		t.Fatalf("expected user storage error, got %v", err)
	}
}

func TestCartServiceAddItemMergesByProduct(t *testing.T) {
	service, guest, _ := newTestCartService(t, CartServiceDeps{})
	ctx := context.Background()
	owner := CartOwner{GuestID: "g-1"}

	if _, err := service.AddItem(ctx, owner, CartItem{ProductID: "p1", Title: "Vase", Price: 500, ImageURL: "v.jpg", Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	snap, err := service.AddItem(ctx, owner, CartItem{ProductID: "p1", Title: "Other", Price: 999, Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if len(snap.Items) != 1 || snap.Items[0].Quantity != 3 || snap.Items[0].Title != "Vase" {
		t.Fatalf("expected merged line, got %+v", snap.Items)
	}
	if snap.TotalItems != 3 || snap.Subtotal != 1500 {
		t.Fatalf("unexpected totals %+v", snap)
	}
	if _, err := guest.Load(ctx, cart.OwnerKey("guest:g-1")); err != nil {
		t.Fatalf("expected guest cart persisted under owner key: %v", err)
	}
}

func TestCartServiceRoutesOwnersToStorages(t *testing.T) {
	service, guest, user := newTestCartService(t, CartServiceDeps{})
	ctx := context.Background()

	_, _ = service.AddItem(ctx, CartOwner{UserID: "u-1", GuestID: "g-1"}, CartItem{ProductID: "p1", Title: "Vase", Quantity: 1})

	if _, err := user.Load(ctx, cart.OwnerKey("user:u-1")); err != nil {
		t.Fatalf("expected user storage to hold the cart: %v", err)
	}
	if _, err := guest.Load(ctx, cart.OwnerKey("guest:g-1")); !errors.Is(err, cart.ErrNotFound) {
		t.Fatalf("expected guest storage untouched, got %v", err)
	}
}

func TestCartServiceRejectsInvalidInput(t *testing.T) {
	service, _, _ := newTestCartService(t, CartServiceDeps{})
	ctx := context.Background()

	cases := []struct {
		owner CartOwner
		item  CartItem
	}{
		{CartOwner{}, CartItem{ProductID: "p1", Title: "x", Quantity: 1}},
		{CartOwner{GuestID: "g"}, CartItem{ProductID: " ", Title: "x", Quantity: 1}},
		{CartOwner{GuestID: "g"}, CartItem{ProductID: "p1", Title: "x", Quantity: 0}},
		{CartOwner{GuestID: "g"}, CartItem{ProductID: "p1", Title: "x", Price: -1, Quantity: 1}},
	}
	for _, tc := range cases {
		if _, err := service.AddItem(ctx, tc.owner, tc.item); !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("expected ErrCartInvalidInput for %+v, got %v", tc, err)
		}
	}
}

func TestCartServiceRemoveAndClear(t *testing.T) {
	service, _, _ := newTestCartService(t, CartServiceDeps{})
	ctx := context.Background()
	owner := CartOwner{GuestID: "g-2"}

	_, _ = service.AddItem(ctx, owner, CartItem{ProductID: "p1", Title: "Vase", Quantity: 1})
	_, _ = service.AddItem(ctx, owner, CartItem{ProductID: "p2", Title: "Bowl", Quantity: 1})

	snap, err := service.RemoveItem(ctx, owner, "p1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].ProductID != "p2" {
		t.Fatalf("expected [p2], got %+v", snap.Items)
	}

	snap, err = service.RemoveItem(ctx, owner, "absent")
	if err != nil || len(snap.Items) != 1 {
		t.Fatalf("expected absent removal to be a no-op, got %+v %v", snap, err)
	}

	snap, err = service.Clear(ctx, owner)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(snap.Items) != 0 || snap.TotalItems != 0 {
		t.Fatalf("expected empty cart, got %+v", snap)
	}
	fresh, _ := service.GetCart(ctx, owner)
	if len(fresh.Items) != 0 {
		t.Fatalf("expected cleared cart to stay empty, got %+v", fresh.Items)
	}
}

func TestCartServiceStrictDecodeSurfacesCorruption(t *testing.T) {
	guest := cart.NewMemoryStorage()
	_ = guest.Save(context.Background(), cart.OwnerKey("guest:g-3"), []byte("{broken"))

	lenient, _, _ := newTestCartService(t, CartServiceDeps{GuestStorage: guest})
	snap, err := lenient.GetCart(context.Background(), CartOwner{GuestID: "g-3"})
	if err != nil || len(snap.Items) != 0 {
		t.Fatalf("expected reset to empty cart, got %+v %v", snap, err)
	}

	strict, _, _ := newTestCartService(t, CartServiceDeps{GuestStorage: guest, StrictDecode: true})
	if _, err := strict.GetCart(context.Background(), CartOwner{GuestID: "g-3"}); !errors.Is(err, ErrCartCorrupt) {
		t.Fatalf("expected ErrCartCorrupt, got %v", err)
	}
}

func TestCartServiceStorageFailuresAreUnavailable(t *testing.T) {
	storage := &flakyStorage{MemoryStorage: cart.NewMemoryStorage(), loadErr: errors.New("redis down")}
	service, _, _ := newTestCartService(t, CartServiceDeps{GuestStorage: storage})
	ctx := context.Background()

	if _, err := service.GetCart(ctx, CartOwner{GuestID: "g"}); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected ErrCartUnavailable on load, got %v", err)
	}

	storage.loadErr = nil
	storage.saveErr = errors.New("redis down")
	if _, err := service.AddItem(ctx, CartOwner{GuestID: "g"}, CartItem{ProductID: "p1", Title: "x", Quantity: 1}); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected ErrCartUnavailable on save, got %v", err)
	}
}

func TestCartServiceEnrichesBareItems(t *testing.T) {
	lookup := &stubProductLookup{getFunc: func(_ context.Context, productID int64) (Product, error) {
		if productID != 42 {
			return Product{}, ErrCatalogNotFound
		}
		return Product{ID: 42, Title: "Kantha Throw", Price: 2100, ImageURL: "kantha.jpg"}, nil
	}}
	service, _, _ := newTestCartService(t, CartServiceDeps{Products: lookup})
	ctx := context.Background()

	snap, err := service.AddItem(ctx, CartOwner{GuestID: "g"}, CartItem{ProductID: "42", Quantity: 1})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	want := CartItem{ProductID: "42", Title: "Kantha Throw", Price: 2100, ImageURL: "kantha.jpg", Quantity: 1}
	if snap.Items[0] != want {
		t.Fatalf("expected %+v, got %+v", want, snap.Items[0])
	}

	if _, err := service.AddItem(ctx, CartOwner{GuestID: "g"}, CartItem{ProductID: "7", Quantity: 1}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected unknown product to be invalid, got %v", err)
	}
	if _, err := service.AddItem(ctx, CartOwner{GuestID: "g"}, CartItem{ProductID: "abc", Quantity: 1}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected non-numeric id to be invalid, got %v", err)
	}
}

func TestCartServiceMergeGuestCart(t *testing.T) {
	var events []string
	service, guest, _ := newTestCartService(t, CartServiceDeps{
		Logger: func(_ context.Context, event string, _ map[string]any) { events = append(events, event) },
	})
	ctx := context.Background()

	_, _ = service.AddItem(ctx, CartOwner{UserID: "u-1"}, CartItem{ProductID: "p1", Title: "Vase", Price: 500, Quantity: 1})
	_, _ = service.AddItem(ctx, CartOwner{GuestID: "g-1"}, CartItem{ProductID: "p1", Title: "Vase (guest)", Price: 450, Quantity: 2})
	_, _ = service.AddItem(ctx, CartOwner{GuestID: "g-1"}, CartItem{ProductID: "p2", Title: "Bowl", Price: 200, Quantity: 1})

	snap, err := service.MergeGuestCart(ctx, "u-1", "g-1")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(snap.Items) != 2 || snap.Items[0].Quantity != 3 || snap.Items[0].Price != 500 || snap.Items[1].ProductID != "p2" {
		t.Fatalf("unexpected merged cart %+v", snap.Items)
	}
	if snap.TotalItems != 4 {
		t.Fatalf("expected totalItems 4, got %d", snap.TotalItems)
	}
	if _, err := guest.Load(ctx, cart.OwnerKey("guest:g-1")); !errors.Is(err, cart.ErrNotFound) {
		t.Fatalf("expected guest cart to be deleted, got %v", err)
	}
	if events[len(events)-1] != "cart.merged" {
		t.Fatalf("expected cart.merged event, got %v", events)
	}

	again, err := service.MergeGuestCart(ctx, "u-1", "g-1")
	if err != nil || again.TotalItems != 4 {
		t.Fatalf("expected repeat merge to be a no-op, got %+v %v", again, err)
	}
}

type undeletableStorage struct {
	*cart.MemoryStorage
	deleteErr error
}

func (u *undeletableStorage) Delete(ctx context.Context, key string) error {
	if u.deleteErr != nil {
		return u.deleteErr
	}
	return u.MemoryStorage.Delete(ctx, key)
}

func TestCartServiceMergeRollsBackWhenGuestCleanupFails(t *testing.T) {
	guest := &undeletableStorage{MemoryStorage: cart.NewMemoryStorage(), deleteErr: errors.New("permission denied")}
	var events []string
	service, _, user := newTestCartService(t, CartServiceDeps{
		GuestStorage: guest,
		Logger:       func(_ context.Context, event string, _ map[string]any) { events = append(events, event) },
	})
	ctx := context.Background()

	_, _ = service.AddItem(ctx, CartOwner{UserID: "u-1"}, CartItem{ProductID: "p1", Title: "Vase", Price: 500, Quantity: 1})
	_, _ = service.AddItem(ctx, CartOwner{GuestID: "g-1"}, CartItem{ProductID: "p1", Title: "Vase", Price: 500, Quantity: 2})

	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := service.MergeGuestCart(ctx, "u-1", "g-1"); !errors.Is(err, ErrCartUnavailable) {
			t.Fatalf("attempt %d: expected ErrCartUnavailable, got %v", attempt, err)
		}
		snap, err := service.GetCart(ctx, CartOwner{UserID: "u-1"})
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if snap.TotalItems != 1 {
			t.Fatalf("attempt %d: expected user cart to be rolled back to 1 item, got %d", attempt, snap.TotalItems)
		}
	}
	if _, err := user.Load(ctx, cart.OwnerKey("user:u-1")); err != nil {
		t.Fatalf("expected user cart to stay persisted, got %v", err)
	}
	if !slices.Contains(events, "cart.guest_cleanup_failed") {
		t.Fatalf("expected guest_cleanup_failed event, got %v", events)
	}

	guest.deleteErr = nil
	snap, err := service.MergeGuestCart(ctx, "u-1", "g-1")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if snap.TotalItems != 3 {
		t.Fatalf("expected guest lines merged exactly once, got totalItems %d", snap.TotalItems)
	}
	again, err := service.MergeGuestCart(ctx, "u-1", "g-1")
	if err != nil || again.TotalItems != 3 {
		t.Fatalf("expected repeat merge to be a no-op, got %+v %v", again, err)
	}
}

func TestCartServiceMergeRequiresUser(t *testing.T) {
	service, _, _ := newTestCartService(t, CartServiceDeps{})
	if _, err := service.MergeGuestCart(context.Background(), "", "g-1"); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}
