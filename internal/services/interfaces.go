package services

import (
	"context"
	"time"

	"github.com/matica-life/storefront/internal/cart"
	domain "github.com/matica-life/storefront/internal/domain"
	"github.com/matica-life/storefront/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product            = domain.Product
	Category           = domain.Category
	WishlistEntry      = domain.WishlistEntry
	SystemHealthReport = domain.SystemHealthReport
	CartItem           = cart.Item
	ProductFilter      = repositories.ProductFilter
)

// CartService resolves the cart owner, opens a store over the matching adapter and applies one mutation.
type CartService interface {
	GetCart(ctx context.Context, owner CartOwner) (CartSnapshot, error)
	AddItem(ctx context.Context, owner CartOwner, item CartItem) (CartSnapshot, error)
	RemoveItem(ctx context.Context, owner CartOwner, productID string) (CartSnapshot, error)
	Clear(ctx context.Context, owner CartOwner) (CartSnapshot, error)
	// MergeGuestCart folds a guest cart into the user's cart and drops the guest copy.
	MergeGuestCart(ctx context.Context, userID, guestID string) (CartSnapshot, error)
}

// CartOwner identifies whose cart a request addresses. UserID wins over GuestID.
type CartOwner struct {
	UserID  string
	GuestID string
}

// CartSnapshot is the read model returned after every cart operation.
type CartSnapshot struct {
	Items      []CartItem
	TotalItems int
	Subtotal   float64
}

// CatalogService serves read-only product and category view data.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	FeaturedProducts(ctx context.Context, limit int) ([]Product, error)
	GetProduct(ctx context.Context, productID int64) (Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, categoryID int64) (Category, error)
	HomeShelf(ctx context.Context, limit int) (HomeShelf, error)
}

// HomeShelf bundles what the landing page needs in one round trip.
type HomeShelf struct {
	Featured   []Product
	Categories []Category
}

// WishlistService owns wishlist membership. Toggles on the same (user, product) are serialised and
// Mutating reports whether one is in flight.
type WishlistService interface {
	List(ctx context.Context, userID string) ([]WishlistEntry, error)
	Contains(ctx context.Context, userID string, productID int64) (bool, error)
	Toggle(ctx context.Context, userID string, productID int64) (bool, error)
	Mutating(userID string, productID int64) bool
}

// WishlistEvent is published after a successful toggle.
type WishlistEvent struct {
	EventID    string    `json:"eventId"`
	UserID     string    `json:"userId"`
	ProductID  int64     `json:"productId"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurredAt"`
}

const (
	WishlistActionAdded   = "added"
	WishlistActionRemoved = "removed"
)

// WishlistEventPublisher delivers wishlist events to downstream consumers.
type WishlistEventPublisher interface {
	PublishWishlistEvent(ctx context.Context, event WishlistEvent) (string, error)
}

// SystemService aggregates utility endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
