package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/matica-life/storefront/internal/cart"
)

var (
	errCartGuestStorageRequired = errors.New("cart service: guest storage is required")
	errCartUserStorageRequired  = errors.New("cart service: user storage is required")
)

var tracer = otel.Tracer("github.com/matica-life/storefront/internal/services")

type productLookup interface {
	GetProduct(ctx context.Context, productID int64) (Product, error)
}

// CartServiceDeps wires the cart storage adapters.
type CartServiceDeps struct {
	// GuestStorage holds anonymous carts (Redis in production).
	GuestStorage cart.Storage
	// UserStorage holds signed-in users' carts (Firestore in production).
	UserStorage cart.Storage
	// Products, when set, fills title/price/image for items that arrive with only a product id.
	Products     productLookup
	StrictDecode bool
	Logger       func(context.Context, string, map[string]any)
}

type cartService struct {
	guest    cart.Storage
	user     cart.Storage
	products productLookup
	policy   cart.CorruptPolicy
	logger   func(context.Context, string, map[string]any)
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.GuestStorage == nil {
		return nil, errCartGuestStorageRequired
	}
	if deps.UserStorage == nil {
		return nil, errCartUserStorageRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	policy := cart.ResetOnCorrupt
	if deps.StrictDecode {
		policy = cart.FailOnCorrupt
	}
	return &cartService{
		guest:    deps.GuestStorage,
		user:     deps.UserStorage,
		products: deps.Products,
		policy:   policy,
		logger:   logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, owner CartOwner) (CartSnapshot, error) {
	ctx, span := tracer.Start(ctx, "cart.Get")
	defer span.End()

	store, err := s.open(ctx, owner)
	if err != nil {
		return CartSnapshot{}, recordSpanError(span, err)
	}
	return snapshot(store), nil
}

func (s *cartService) AddItem(ctx context.Context, owner CartOwner, item CartItem) (CartSnapshot, error) {
	ctx, span := tracer.Start(ctx, "cart.AddItem")
	defer span.End()
	span.SetAttributes(attribute.String("cart.product_id", item.ProductID), attribute.Int("cart.quantity", item.Quantity))

	item.ProductID = strings.TrimSpace(item.ProductID)
	item.Title = strings.TrimSpace(item.Title)
	if item.ProductID == "" || item.Quantity < 1 || item.Price < 0 {
		return CartSnapshot{}, recordSpanError(span, ErrCartInvalidInput)
	}
	item, err := s.enrich(ctx, item)
	if err != nil {
		return CartSnapshot{}, recordSpanError(span, err)
	}

	store, err := s.open(ctx, owner)
	if err != nil {
		return CartSnapshot{}, recordSpanError(span, err)
	}
	if err := store.AddItem(ctx, item); err != nil {
		return CartSnapshot{}, recordSpanError(span, s.translateStoreError(err))
	}
	s.logger(ctx, "cart.item_added", map[string]any{
		"cartKey":    store.Key(),
		"productId":  item.ProductID,
		"quantity":   item.Quantity,
		"totalItems": store.TotalItems(),
	})
	return snapshot(store), nil
}

func (s *cartService) RemoveItem(ctx context.Context, owner CartOwner, productID string) (CartSnapshot, error) {
	ctx, span := tracer.Start(ctx, "cart.RemoveItem")
	defer span.End()

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return CartSnapshot{}, recordSpanError(span, ErrCartInvalidInput)
	}
	store, err := s.open(ctx, owner)
	if err != nil {
		return CartSnapshot{}, recordSpanError(span, err)
	}
	if err := store.RemoveItem(ctx, productID); err != nil {
		return CartSnapshot{}, recordSpanError(span, s.translateStoreError(err))
	}
	return snapshot(store), nil
}

func (s *cartService) Clear(ctx context.Context, owner CartOwner) (CartSnapshot, error) {
	ctx, span := tracer.Start(ctx, "cart.Clear")
	defer span.End()

	store, err := s.open(ctx, owner)
	if err != nil {
		return CartSnapshot{}, recordSpanError(span, err)
	}
	if err := store.Clear(ctx); err != nil {
		return CartSnapshot{}, recordSpanError(span, s.translateStoreError(err))
	}
	return snapshot(store), nil
}

func (s *cartService) MergeGuestCart(ctx context.Context, userID, guestID string) (CartSnapshot, error) {
	ctx, span := tracer.Start(ctx, "cart.MergeGuest")
	defer span.End()

	userID = strings.TrimSpace(userID)
	guestID = strings.TrimSpace(guestID)
	if userID == "" {
		return CartSnapshot{}, recordSpanError(span, ErrCartInvalidInput)
	}

	userStore, err := s.open(ctx, CartOwner{UserID: userID})
	if err != nil {
		return CartSnapshot{}, recordSpanError(span, err)
	}
	if guestID == "" {
		return snapshot(userStore), nil
	}

	guestStore, err := s.open(ctx, CartOwner{GuestID: guestID})
	if err != nil {
		return CartSnapshot{}, recordSpanError(span, err)
	}
	guestItems := guestStore.Items()
	if len(guestItems) == 0 {
		return snapshot(userStore), nil
	}

	before := userStore.Items()
	if err := userStore.Merge(ctx, guestItems); err != nil {
		return CartSnapshot{}, recordSpanError(span, s.translateStoreError(err))
	}
	// the guest cart must not outlive a committed merge, or the next merge doubles its lines
	if err := s.dropGuest(ctx, guestStore); err != nil {
		s.logger(ctx, "cart.guest_cleanup_failed", map[string]any{
			"cartKey": guestStore.Key(),
			"error":   err.Error(),
		})
		if rbErr := userStore.Replace(ctx, before); rbErr != nil {
			s.logger(ctx, "cart.merge_rollback_failed", map[string]any{
				"cartKey": userStore.Key(),
				"error":   rbErr.Error(),
			})
		}
		return CartSnapshot{}, recordSpanError(span, s.translateStoreError(err))
	}
	s.logger(ctx, "cart.merged", map[string]any{
		"cartKey":     userStore.Key(),
		"mergedLines": len(guestItems),
		"totalItems":  userStore.TotalItems(),
	})
	span.SetAttributes(attribute.Int("cart.merged_lines", len(guestItems)))
	return snapshot(userStore), nil
}

func (s *cartService) dropGuest(ctx context.Context, store *cart.Store) error {
	if deleter, ok := s.guest.(cart.Deleter); ok {
		return deleter.Delete(ctx, store.Key())
	}
	return store.Clear(ctx)
}

func (s *cartService) open(ctx context.Context, owner CartOwner) (*cart.Store, error) {
	storage, key, err := s.resolve(owner)
	if err != nil {
		return nil, err
	}
	store, err := cart.Open(ctx, storage,
		cart.WithStorageKey(key),
		cart.WithCorruptPolicy(s.policy),
		cart.WithLogger(s.logger),
	)
	if err != nil {
		return nil, s.translateStoreError(err)
	}
	return store, nil
}

func (s *cartService) resolve(owner CartOwner) (cart.Storage, string, error) {
	if uid := strings.TrimSpace(owner.UserID); uid != "" {
		return s.user, cart.OwnerKey("user:" + uid), nil
	}
	if gid := strings.TrimSpace(owner.GuestID); gid != "" {
		return s.guest, cart.OwnerKey("guest:" + gid), nil
	}
	return nil, "", fmt.Errorf("%w: cart owner is required", ErrCartInvalidInput)
}

func (s *cartService) enrich(ctx context.Context, item CartItem) (CartItem, error) {
	if s.products == nil || item.Title != "" {
		return item, nil
	}
	id, err := strconv.ParseInt(item.ProductID, 10, 64)
	if err != nil || id <= 0 {
		return CartItem{}, fmt.Errorf("%w: product id must be numeric", ErrCartInvalidInput)
	}
	product, err := s.products.GetProduct(ctx, id)
	switch {
	case errors.Is(err, ErrCatalogNotFound):
		return CartItem{}, fmt.Errorf("%w: unknown product %d", ErrCartInvalidInput, id)
	case err != nil:
		return CartItem{}, ErrCartUnavailable
	}
	item.Title = product.Title
	item.Price = product.Price
	item.ImageURL = product.ImageURL
	return item, nil
}

func (s *cartService) translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, cart.ErrInvalidItem):
		return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	case errors.Is(err, cart.ErrCorrupt):
		return fmt.Errorf("%w: %v", ErrCartCorrupt, err)
	default:
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
}

func snapshot(store *cart.Store) CartSnapshot {
	return CartSnapshot{
		Items:      store.Items(),
		TotalItems: store.TotalItems(),
		Subtotal:   store.Subtotal(),
	}
}

func recordSpanError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
