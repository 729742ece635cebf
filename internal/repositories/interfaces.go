package repositories

import (
	"context"
	"time"

	domain "github.com/matica-life/storefront/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository reads the product and category collections.
type CatalogRepository interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID int64) (domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, categoryID int64) (domain.Category, error)
}

// ProductFilter narrows ListProducts. Zero values mean "no constraint".
type ProductFilter struct {
	CategoryID   int64
	FeaturedOnly bool
	Limit        int
}

// WishlistRepository persists saved products under users/{uid}/wishlist.
type WishlistRepository interface {
	List(ctx context.Context, userID string) ([]domain.WishlistEntry, error)
	Contains(ctx context.Context, userID string, productID int64) (bool, error)
	// Toggle flips membership atomically and reports whether the product is now saved.
	Toggle(ctx context.Context, userID string, productID int64, at time.Time) (bool, error)
}

// HealthRepository checks backend dependencies for readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
