package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/matica-life/storefront/internal/cart"
	"github.com/matica-life/storefront/internal/content"
	"github.com/matica-life/storefront/internal/di"
	"github.com/matica-life/storefront/internal/handlers"
	"github.com/matica-life/storefront/internal/platform/auth"
	"github.com/matica-life/storefront/internal/platform/config"
	"github.com/matica-life/storefront/internal/platform/events"
	pfirestore "github.com/matica-life/storefront/internal/platform/firestore"
	"github.com/matica-life/storefront/internal/platform/idempotency"
	"github.com/matica-life/storefront/internal/platform/observability"
	platformredis "github.com/matica-life/storefront/internal/platform/redis"
	"github.com/matica-life/storefront/internal/platform/secrets"
	"github.com/matica-life/storefront/internal/platform/session"
	platformstorage "github.com/matica-life/storefront/internal/platform/storage"
	"github.com/matica-life/storefront/internal/repositories"
	firestoreRepo "github.com/matica-life/storefront/internal/repositories/firestore"
	"github.com/matica-life/storefront/internal/repositories/localfile"
	redisRepo "github.com/matica-life/storefront/internal/repositories/redis"
	"github.com/matica-life/storefront/internal/services"
	"github.com/matica-life/storefront/internal/shipping"
)

const (
	idempotencyCleanupInterval = 10 * time.Minute
	idempotencyCleanupBatch    = 500
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Error(missing))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(cfg, startedAt)
	eventLogger := observability.EventLogger(logger.Named("events"))

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	closers := []func(context.Context) error{firestoreProvider.Close}

	var redisClient *goredis.Client
	if cfg.Cart.Backend == config.CartBackendRedis {
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("failed to initialise redis client", zap.Error(err))
		}
		redisClient = client
		closers = append(closers, func(context.Context) error { return client.Close() })
	}

	guestCarts, err := newGuestCartStorage(cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise guest cart storage", zap.Error(err), zap.String("backend", cfg.Cart.Backend))
	}
	userCarts, err := firestoreRepo.NewCartStorage(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise user cart storage", zap.Error(err))
	}
	catalogRepo, err := firestoreRepo.NewCatalogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}
	wishlistRepo, err := firestoreRepo.NewWishlistRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise wishlist repository", zap.Error(err))
	}

	adapters := di.Adapters{
		Catalog:    catalogRepo,
		Wishlist:   wishlistRepo,
		GuestCarts: guestCarts,
		UserCarts:  userCarts,
	}

	if topicID := strings.TrimSpace(cfg.Events.WishlistTopic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, traceProjectID(cfg), clientOptions(cfg)...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(topicID)
		publisher, err := events.NewPubSubWishlistPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise wishlist publisher", zap.Error(err))
		}
		adapters.WishlistEvents = publisher
		closers = append(closers, func(context.Context) error {
			topic.Stop()
			return pubsubClient.Close()
		})
	}

	var storageClient *cloudstorage.Client
	if strings.TrimSpace(cfg.Content.Bucket) != "" {
		storageClient, err = cloudstorage.NewClient(ctx, clientOptions(cfg)...)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		closers = append(closers, func(context.Context) error { return storageClient.Close() })
	}

	healthRepo, err := newHealthRepository(cfg, firestoreProvider, redisClient, storageClient, fetcher)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	} else {
		adapters.Health = healthRepo
	}
	adapters.Closers = closers

	container, err := di.NewContainer(ctx, cfg, adapters,
		di.WithEventLogger(eventLogger),
		di.WithBuildInfo(buildInfo),
	)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("adapter close error", zap.Error(err))
		}
	}()

	pageSource, err := newPageSource(cfg, storageClient)
	if err != nil {
		logger.Fatal("failed to initialise page source", zap.Error(err))
	}
	pages := content.NewLibrary(content.Options{
		Source:   pageSource,
		CacheTTL: cfg.Content.CacheTTL,
		Logger:   eventLogger,
	})

	sessions, err := session.NewManager(cfg.Session)
	if err != nil {
		logger.Fatal("failed to initialise session manager", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	var idempotencyStore idempotency.Store
	var memoryStore *idempotency.MemoryStore
	if redisClient != nil {
		idempotencyStore = idempotency.NewRedisStore(redisClient)
	} else {
		memoryStore = idempotency.NewMemoryStore()
		idempotencyStore = memoryStore
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	if memoryStore != nil {
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			ticker := time.NewTicker(idempotencyCleanupInterval)
			defer ticker.Stop()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-ticker.C:
					if removed := memoryStore.CleanupExpired(time.Now().UTC(), idempotencyCleanupBatch); removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	svc := container.Services
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart)
	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog, handlers.WithCatalogLocale(cfg.Catalog.Locale))
	pageHandlers := handlers.NewPageHandlers(pages)
	wishlistHandlers := handlers.NewWishlistHandlers(svc.Wishlist)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		sessions.Middleware(),
		authenticator.OptionalFirebaseAuth(),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithPublicRoutes(func(r chi.Router) {
		catalogHandlers.Routes(r)
		pageHandlers.Routes(r)
	}))
	opts = append(opts, handlers.WithCartRoutes(cartHandlers.Routes, cartHandlers.RootRoutes))
	opts = append(opts, handlers.WithWishlistRoutes(wishlistHandlers.Routes))

	if cfg.Features.EnableShipping {
		courier, err := shipping.NewClient(shipping.Options{
			BaseURL: cfg.Courier.BaseURL,
			Token:   cfg.Courier.Token,
			Timeout: cfg.Courier.Timeout,
		})
		if err != nil {
			logger.Fatal("failed to initialise courier client", zap.Error(err))
		}
		if !courier.Configured() {
			logger.Warn("shipping enabled without a courier token; calls will answer 503")
		}
		shippingHandlers := handlers.NewShippingHandlers(courier, handlers.WithShippingIdempotency(idempotencyMiddleware))
		opts = append(opts, handlers.WithShippingRoutes(shippingHandlers.Routes))
		opts = append(opts, handlers.WithShippingMiddlewares(authenticator.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin)))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("matica storefront listening",
			zap.String("environment", cfg.Environment),
			zap.String("cartBackend", cfg.Cart.Backend),
			zap.Bool("shipping", cfg.Features.EnableShipping),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newGuestCartStorage(cfg config.Config, client *goredis.Client) (cart.Storage, error) {
	switch cfg.Cart.Backend {
	case config.CartBackendRedis:
		if client == nil {
			return nil, errors.New("redis client is required for the redis cart backend")
		}
		return redisRepo.NewCartStorage(client, cfg.Cart.GuestTTL)
	case config.CartBackendFile:
		return localfile.NewCartStorage(cfg.Cart.FileDir)
	case config.CartBackendMemory:
		return cart.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown cart backend %q", cfg.Cart.Backend)
	}
}

// newPageSource layers a local directory and the content bucket over the embedded pages.
func newPageSource(cfg config.Config, storageClient *cloudstorage.Client) (content.Source, error) {
	var layers content.LayeredSource
	if dir := strings.TrimSpace(cfg.Content.Dir); dir != "" {
		layers = append(layers, content.DirSource(dir))
	}
	if bucket := strings.TrimSpace(cfg.Content.Bucket); bucket != "" && storageClient != nil {
		reader, err := platformstorage.NewObjectReader(storageClient)
		if err != nil {
			return nil, err
		}
		source, err := content.NewBucketSource(reader, bucket, "")
		if err != nil {
			return nil, err
		}
		layers = append(layers, source)
	}
	layers = append(layers, content.Embedded())
	return layers, nil
}

func newHealthRepository(cfg config.Config, provider *pfirestore.Provider, redisClient *goredis.Client, storageClient *cloudstorage.Client, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check:   provider.Ping,
	}}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return platformredis.Ping(ctx, redisClient)
			},
		})
	}
	if storageClient != nil {
		bucket := strings.TrimSpace(cfg.Content.Bucket)
		checks = append(checks, repositories.DependencyCheck{
			Name:     "contentBucket",
			Timeout:  1500 * time.Millisecond,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := storageClient.Bucket(bucket).Attrs(ctx)
				return err
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://storefront/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:     "secretManager",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version, _ := config.Lookup("BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit, _ := config.Lookup("BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup := func(name string) string {
		value, _ := config.Lookup(name)
		return value
	}
	projectID := lookup("SECRETS_PROJECT_ID")
	if projectID == "" {
		projectID = lookup("FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("SECRETS_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectID != "" {
		opts = append(opts, secrets.WithProject(projectID))
	}
	if credentialsFile := lookup("FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secret fields that must resolve. The courier token is only needed when
// shipping is switched on.
func requiredSecretNames() []string {
	required := []string{"Session.Secret"}
	raw, _ := config.Lookup("FEATURE_SHIPPING")
	if enabled, err := strconv.ParseBool(raw); err == nil && enabled {
		required = append(required, "Courier.Token")
	}
	return required
}

func clientOptions(cfg config.Config) []option.ClientOption {
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
