package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matica-life/storefront/internal/repositories"
)

const (
	defaultCatalogCacheTTL = time.Minute
	defaultFeaturedLimit   = 8
	maxCatalogLimit        = 100
)

var errCatalogRepositoryRequired = errors.New("catalog service: repository is required")

// CatalogServiceDeps wires the catalog repository and cache settings.
type CatalogServiceDeps struct {
	Repository repositories.CatalogRepository
	CacheTTL   time.Duration
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type catalogCacheEntry struct {
	value     any
	expiresAt time.Time
}

type catalogService struct {
	repo   repositories.CatalogRepository
	ttl    time.Duration
	now    func() time.Time
	logger func(context.Context, string, map[string]any)

	mu    sync.RWMutex
	cache map[string]catalogCacheEntry
	group singleflight.Group
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs a CatalogService. Reads are cached for CacheTTL and concurrent
// misses for the same key share one repository call.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errCatalogRepositoryRequired
	}
	ttl := deps.CacheTTL
	if ttl < 0 {
		ttl = 0
	} else if ttl == 0 {
		ttl = defaultCatalogCacheTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		repo:   deps.Repository,
		ttl:    ttl,
		now:    clock,
		logger: logger,
		cache:  make(map[string]catalogCacheEntry),
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	if filter.CategoryID < 0 || filter.Limit < 0 {
		return nil, ErrCatalogInvalidInput
	}
	if filter.Limit == 0 || filter.Limit > maxCatalogLimit {
		filter.Limit = maxCatalogLimit
	}
	key := fmt.Sprintf("products:c=%d:f=%t:l=%d", filter.CategoryID, filter.FeaturedOnly, filter.Limit)
	return cached(ctx, s, key, func(ctx context.Context) ([]Product, error) {
		return s.repo.ListProducts(ctx, filter)
	})
}

func (s *catalogService) FeaturedProducts(ctx context.Context, limit int) ([]Product, error) {
	ctx, span := tracer.Start(ctx, "catalog.Featured")
	defer span.End()

	if limit <= 0 {
		limit = defaultFeaturedLimit
	}
	if limit > maxCatalogLimit {
		limit = maxCatalogLimit
	}
	span.SetAttributes(attribute.Int("catalog.limit", limit))
	products, err := s.ListProducts(ctx, ProductFilter{FeaturedOnly: true, Limit: limit})
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID int64) (Product, error) {
	if productID <= 0 {
		return Product{}, ErrCatalogInvalidInput
	}
	return cached(ctx, s, "product:"+strconv.FormatInt(productID, 10), func(ctx context.Context) (Product, error) {
		return s.repo.GetProduct(ctx, productID)
	})
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	return cached(ctx, s, "categories", func(ctx context.Context) ([]Category, error) {
		return s.repo.ListCategories(ctx)
	})
}

func (s *catalogService) GetCategory(ctx context.Context, categoryID int64) (Category, error) {
	if categoryID <= 0 {
		return Category{}, ErrCatalogInvalidInput
	}
	return cached(ctx, s, "category:"+strconv.FormatInt(categoryID, 10), func(ctx context.Context) (Category, error) {
		return s.repo.GetCategory(ctx, categoryID)
	})
}

func (s *catalogService) HomeShelf(ctx context.Context, limit int) (HomeShelf, error) {
	ctx, span := tracer.Start(ctx, "catalog.HomeShelf")
	defer span.End()

	var shelf HomeShelf
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products, err := s.FeaturedProducts(gctx, limit)
		shelf.Featured = products
		return err
	})
	g.Go(func() error {
		categories, err := s.ListCategories(gctx)
		shelf.Categories = categories
		return err
	})
	if err := g.Wait(); err != nil {
		return HomeShelf{}, recordSpanError(span, err)
	}
	return shelf, nil
}

// cached serves key from the TTL cache or loads it once across concurrent callers.
func cached[T any](ctx context.Context, s *catalogService, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if value, ok := s.lookup(key); ok {
		if typed, ok := value.(T); ok {
			return typed, nil
		}
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// shared by every waiter, so it must outlive the first caller's context
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		s.store(key, value)
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, s.translateRepoError(ctx, key, res.Err)
		}
		typed, ok := res.Val.(T)
		if !ok {
			return zero, ErrCatalogUnavailable
		}
		return typed, nil
	}
}

func (s *catalogService) lookup(key string) (any, bool) {
	if s.ttl == 0 {
		return nil, false
	}
	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (s *catalogService) store(key string, value any) {
	if s.ttl == 0 {
		return
	}
	s.mu.Lock()
	s.cache[key] = catalogCacheEntry{value: value, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

func (s *catalogService) translateRepoError(ctx context.Context, key string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isRepoNotFound(err):
		return ErrCatalogNotFound
	}
	s.logger(ctx, "catalog.load_failed", map[string]any{
		"key":   key,
		"error": err.Error(),
	})
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
