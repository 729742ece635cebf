package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pfirestore "github.com/matica-life/storefront/internal/platform/firestore"
	"github.com/matica-life/storefront/internal/repositories"
)

type stubCatalogRepository struct {
	listProductsFunc   func(ctx context.Context, filter repositories.ProductFilter) ([]Product, error)
	getProductFunc     func(ctx context.Context, productID int64) (Product, error)
	listCategoriesFunc func(ctx context.Context) ([]Category, error)
	getCategoryFunc    func(ctx context.Context, categoryID int64) (Category, error)
}

func (s *stubCatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductFilter) ([]Product, error) {
	return s.listProductsFunc(ctx, filter)
}

func (s *stubCatalogRepository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return s.getProductFunc(ctx, productID)
}

func (s *stubCatalogRepository) ListCategories(ctx context.Context) ([]Category, error) {
	return s.listCategoriesFunc(ctx)
}

func (s *stubCatalogRepository) GetCategory(ctx context.Context, categoryID int64) (Category, error) {
	return s.getCategoryFunc(ctx, categoryID)
}

func sampleProducts(n int) []Product {
	products := make([]Product, n)
	for i := range products {
		products[i] = Product{ID: int64(i + 1), Title: "Product", Featured: true, Published: true}
	}
	return products
}

func TestCatalogServiceFeaturedProductsRespectsLimit(t *testing.T) {
	var gotFilter repositories.ProductFilter
	repo := &stubCatalogRepository{
		listProductsFunc: func(_ context.Context, filter repositories.ProductFilter) ([]Product, error) {
			gotFilter = filter
			return sampleProducts(filter.Limit), nil
		},
	}
	service, err := NewCatalogService(CatalogServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}

	products, err := service.FeaturedProducts(context.Background(), 3)
	if err != nil {
		t.Fatalf("featured: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("expected 3 products, got %d", len(products))
	}
	if !gotFilter.FeaturedOnly || gotFilter.Limit != 3 {
		t.Fatalf("unexpected filter %+v", gotFilter)
	}

	products, _ = service.FeaturedProducts(context.Background(), 0)
	if len(products) != defaultFeaturedLimit {
		t.Fatalf("expected default limit %d, got %d", defaultFeaturedLimit, len(products))
	}
}

func TestCatalogServiceGetProductErrors(t *testing.T) {
	repo := &stubCatalogRepository{
		getProductFunc: func(_ context.Context, productID int64) (Product, error) {
			switch productID {
			case 404:
				return Product{}, pfirestore.NotFound("products.get", "404")
			case 503:
				return Product{}, repositories.NewStorageError("products.get", repositories.StorageErrorUnavailable, errors.New("down"))
			}
			return Product{ID: productID, Title: "Vase"}, nil
		},
	}
	service, _ := NewCatalogService(CatalogServiceDeps{Repository: repo})
	ctx := context.Background()

	if _, err := service.GetProduct(ctx, 0); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
	if _, err := service.GetProduct(ctx, 404); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
	if _, err := service.GetProduct(ctx, 503); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
	product, err := service.GetProduct(ctx, 7)
	if err != nil || product.ID != 7 {
		t.Fatalf("expected product 7, got %+v %v", product, err)
	}
}

func TestCatalogServiceCachesUntilTTL(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	var calls int32
	repo := &stubCatalogRepository{
		listCategoriesFunc: func(context.Context) ([]Category, error) {
			atomic.AddInt32(&calls, 1)
			return []Category{{ID: 1, Name: "Pottery"}}, nil
		},
	}
	service, _ := NewCatalogService(CatalogServiceDeps{
		Repository: repo,
		CacheTTL:   time.Minute,
		Clock:      func() time.Time { return now },
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := service.ListCategories(ctx); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one repository call, got %d", calls)
	}

	now = now.Add(2 * time.Minute)
	_, _ = service.ListCategories(ctx)
	if calls != 2 {
		t.Fatalf("expected refresh after ttl, got %d calls", calls)
	}
}

func TestCatalogServiceDeduplicatesConcurrentMisses(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	repo := &stubCatalogRepository{
		getCategoryFunc: func(_ context.Context, categoryID int64) (Category, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return Category{ID: categoryID, Name: "Textiles"}, nil
		},
	}
	service, _ := NewCatalogService(CatalogServiceDeps{Repository: repo})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.GetCategory(context.Background(), 2); err != nil {
				t.Errorf("get category: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected a single repository call, got %d", calls)
	}
}

func TestCatalogServiceErrorsAreNotCached(t *testing.T) {
	var calls int32
	repo := &stubCatalogRepository{
		listCategoriesFunc: func(context.Context) ([]Category, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, errors.New("transient")
			}
			return []Category{{ID: 1}}, nil
		},
	}
	service, _ := NewCatalogService(CatalogServiceDeps{Repository: repo})

	if _, err := service.ListCategories(context.Background()); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
	categories, err := service.ListCategories(context.Background())
	if err != nil || len(categories) != 1 {
		t.Fatalf("expected retry to succeed, got %+v %v", categories, err)
	}
}

func TestCatalogServiceHomeShelf(t *testing.T) {
	repo := &stubCatalogRepository{
		listProductsFunc: func(_ context.Context, filter repositories.ProductFilter) ([]Product, error) {
			return sampleProducts(filter.Limit), nil
		},
		listCategoriesFunc: func(context.Context) ([]Category, error) {
			return []Category{{ID: 1, Name: "Pottery"}, {ID: 2, Name: "Textiles"}}, nil
		},
	}
	service, _ := NewCatalogService(CatalogServiceDeps{Repository: repo})

	shelf, err := service.HomeShelf(context.Background(), 4)
	if err != nil {
		t.Fatalf("home shelf: %v", err)
	}
	if len(shelf.Featured) != 4 || len(shelf.Categories) != 2 {
		t.Fatalf("unexpected shelf %+v", shelf)
	}

	failing := &stubCatalogRepository{
		listProductsFunc: repo.listProductsFunc,
		listCategoriesFunc: func(context.Context) ([]Category, error) {
			return nil, errors.New("boom")
		},
	}
	service, _ = NewCatalogService(CatalogServiceDeps{Repository: failing})
	if _, err := service.HomeShelf(context.Background(), 4); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestCatalogServiceListProductsValidatesFilter(t *testing.T) {
	service, _ := NewCatalogService(CatalogServiceDeps{Repository: &stubCatalogRepository{}})
	if _, err := service.ListProducts(context.Background(), ProductFilter{Limit: -1}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}
