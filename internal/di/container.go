package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matica-life/storefront/internal/cart"
	"github.com/matica-life/storefront/internal/platform/config"
	"github.com/matica-life/storefront/internal/repositories"
	"github.com/matica-life/storefront/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Cart     services.CartService
	Catalog  services.CatalogService
	Wishlist services.WishlistService
	System   services.SystemService
}

// Adapters are the concrete backends chosen by main. Nil members leave the matching service unset,
// except the cart storages which are both required.
type Adapters struct {
	Catalog        repositories.CatalogRepository
	Wishlist       repositories.WishlistRepository
	Health         repositories.HealthRepository
	GuestCarts     cart.Storage
	UserCarts      cart.Storage
	WishlistEvents services.WishlistEventPublisher

	// Closers run in reverse order on Close.
	Closers []func(context.Context) error
}

// Container wires adapters and services for runtime use.
type Container struct {
	Config   config.Config
	Services Services

	closers []func(context.Context) error
}

// Option customises NewContainer.
type Option func(*options)

type options struct {
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
	build  services.BuildInfo
}

// WithClock overrides the clock handed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithEventLogger sets the structured event hook handed to services.
func WithEventLogger(logger func(context.Context, string, map[string]any)) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBuildInfo sets the build metadata reported by the system service.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) {
		o.build = info
	}
}

// NewContainer constructs the runtime services.
func NewContainer(ctx context.Context, cfg config.Config, adapters Adapters, opts ...Option) (*Container, error) {
	if adapters.GuestCarts == nil || adapters.UserCarts == nil {
		return nil, errors.New("di: guest and user cart storage are required")
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	svc, err := buildServices(ctx, cfg, adapters, o)
	if err != nil {
		return nil, err
	}
	return &Container{
		Config:   cfg,
		Services: svc,
		closers:  append([]func(context.Context) error(nil), adapters.Closers...),
	}, nil
}

// Close releases adapter clients. Every closer runs; the errors are joined.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if c.closers[i] == nil {
			continue
		}
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildServices(_ context.Context, cfg config.Config, adapters Adapters, o options) (Services, error) {
	var svc Services

	if adapters.Catalog != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Repository: adapters.Catalog,
			CacheTTL:   cfg.Catalog.CacheTTL,
			Clock:      o.clock,
			Logger:     o.logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	cartDeps := services.CartServiceDeps{
		GuestStorage: adapters.GuestCarts,
		UserStorage:  adapters.UserCarts,
		StrictDecode: cfg.Cart.StrictDecode,
		Logger:       o.logger,
	}
	if svc.Catalog != nil {
		cartDeps.Products = svc.Catalog
	}
	cartSvc, err := services.NewCartService(cartDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	if adapters.Wishlist != nil {
		wishlistSvc, err := services.NewWishlistService(services.WishlistServiceDeps{
			Repository: adapters.Wishlist,
			Publisher:  adapters.WishlistEvents,
			Clock:      o.clock,
			Logger:     o.logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build wishlist service: %w", err)
		}
		svc.Wishlist = wishlistSvc
	}

	if adapters.Health != nil {
		build := o.build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = o.clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: adapters.Health,
			Clock:            o.clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
