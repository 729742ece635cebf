package di

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matica-life/storefront/internal/cart"
	domain "github.com/matica-life/storefront/internal/domain"
	"github.com/matica-life/storefront/internal/platform/config"
	"github.com/matica-life/storefront/internal/repositories"
	"github.com/matica-life/storefront/internal/services"
)

type stubCatalogRepository struct {
	products map[int64]domain.Product
}

func (s *stubCatalogRepository) ListProducts(context.Context, repositories.ProductFilter) ([]domain.Product, error) {
	return nil, nil
}

func (s *stubCatalogRepository) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, repositories.NewStorageError("products.get", repositories.StorageErrorNotFound, errors.New("missing"))
	}
	return product, nil
}

func (s *stubCatalogRepository) ListCategories(context.Context) ([]domain.Category, error) {
	return nil, nil
}

func (s *stubCatalogRepository) GetCategory(context.Context, int64) (domain.Category, error) {
	return domain.Category{}, nil
}

type stubHealthRepository struct{}

func (stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

func TestNewContainerRequiresCartStorage(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, Adapters{GuestCarts: cart.NewMemoryStorage()}); err == nil {
		t.Fatalf("expected error when user cart storage is missing")
	}
}

func TestNewContainerWiresCatalogIntoCart(t *testing.T) {
	catalog := &stubCatalogRepository{products: map[int64]domain.Product{
		7: {ID: 7, Title: "Madhubani Print", Price: 2400, ImageURL: "print.jpg"},
	}}
	container, err := NewContainer(context.Background(), config.Config{}, Adapters{
		Catalog:    catalog,
		GuestCarts: cart.NewMemoryStorage(),
		UserCarts:  cart.NewMemoryStorage(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if container.Services.Catalog == nil || container.Services.Cart == nil {
		t.Fatalf("expected catalog and cart services")
	}
	if container.Services.Wishlist != nil || container.Services.System != nil {
		t.Fatalf("expected wishlist and system services to stay unset without adapters")
	}

	snapshot, err := container.Services.Cart.AddItem(context.Background(), services.CartOwner{GuestID: "g1"}, services.CartItem{ProductID: "7", Quantity: 2})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if len(snapshot.Items) != 1 || snapshot.Items[0].Title != "Madhubani Print" || snapshot.Subtotal != 4800 {
		t.Fatalf("expected catalog enrichment, got %+v", snapshot)
	}
}

func TestNewContainerSystemServiceUsesEnvironment(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	container, err := NewContainer(context.Background(), config.Config{Environment: "staging"}, Adapters{
		Health:     stubHealthRepository{},
		GuestCarts: cart.NewMemoryStorage(),
		UserCarts:  cart.NewMemoryStorage(),
	}, WithClock(func() time.Time { return now }), WithBuildInfo(services.BuildInfo{Version: "1.2.3"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err := container.Services.System.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Environment != "staging" || report.Version != "1.2.3" {
		t.Fatalf("unexpected report metadata %+v", report)
	}
}

func TestContainerCloseRunsClosersInReverse(t *testing.T) {
	var order []string
	closeErr := errors.New("redis close failed")
	container, err := NewContainer(context.Background(), config.Config{}, Adapters{
		GuestCarts: cart.NewMemoryStorage(),
		UserCarts:  cart.NewMemoryStorage(),
		Closers: []func(context.Context) error{
			func(context.Context) error { order = append(order, "firestore"); return nil },
			func(context.Context) error { order = append(order, "redis"); return closeErr },
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = container.Close(context.Background())
	if !errors.Is(err, closeErr) {
		t.Fatalf("expected joined close error, got %v", err)
	}
	if len(order) != 2 || order[0] != "redis" || order[1] != "firestore" {
		t.Fatalf("unexpected close order %v", order)
	}
}
