package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	envPrefix                = "STOREFRONT_"
	defaultEnvFile           = ".env"
	defaultEnvironment       = "local"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultRedisAddr         = "localhost:6379"
	defaultCartBackend       = CartBackendRedis
	defaultCartFileDir       = "./var/carts"
	defaultCartGuestTTL      = 30 * 24 * time.Hour
	defaultCatalogCacheTTL   = time.Minute
	defaultCatalogCurrency   = "INR"
	defaultCatalogLocale     = "en-IN"
	defaultContentCacheTTL   = 10 * time.Minute
	defaultSessionCookie     = "matica_session"
	defaultSessionTTL        = 30 * 24 * time.Hour
	defaultCourierBaseURL    = "https://apiv2.shiprocket.in/v1/external"
	defaultCourierTimeout    = 10 * time.Second
	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultSecretsFallback   = ".secrets.local"
	minSessionSecretLength   = 32
)

// Cart backends selectable through STOREFRONT_CART_BACKEND. Signed-in carts always live in Firestore.
const (
	CartBackendRedis  = "redis"
	CartBackendFile   = "file"
	CartBackendMemory = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Redis       RedisConfig
	Cart        CartConfig
	Catalog     CatalogConfig
	Content     ContentConfig
	Session     SessionConfig
	Courier     CourierConfig
	Events      EventsConfig
	Features    FeatureFlags
	Idempotency IdempotencyConfig
	Secrets     SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RedisConfig points at the shared Redis used for guest carts and idempotency keys.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CartConfig selects the guest cart adapter and its decode policy.
type CartConfig struct {
	Backend      string
	FileDir      string
	GuestTTL     time.Duration
	StrictDecode bool
}

// CatalogConfig tunes product and category reads.
type CatalogConfig struct {
	CacheTTL time.Duration
	Currency string
	Locale   string
}

// ContentConfig locates legal page sources. Embedded pages are used when both are empty.
type ContentConfig struct {
	Dir      string
	Bucket   string
	CacheTTL time.Duration
}

// SessionConfig controls the signed guest session cookie.
type SessionConfig struct {
	Secret       string
	CookieName   string
	CookieSecure bool
	TTL          time.Duration
}

// CourierConfig configures the shipping courier pass-through.
type CourierConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// EventsConfig names Pub/Sub topics. An empty topic disables publishing.
type EventsConfig struct {
	WishlistTopic string
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	EnableShipping bool
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SecretsConfig controls Secret Manager lookups.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
// Names are redacted in the message.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		redacted = append(redacted, redactSecretName(name))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the unredacted secret field names.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the OS environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for sm:// and secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "Courier.Token") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Lookup reads a single STOREFRONT_ variable with the same precedence as Load. It lets main
// build the secret fetcher before the full configuration is resolved.
func Lookup(name string, opts ...Option) (string, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookupFunc()
	if err != nil {
		return "", err
	}
	value, _ := lookup(envPrefix + name)
	return strings.TrimSpace(value), nil
}

// Load assembles configuration from defaults, .env, the process environment and explicit
// overrides, in increasing precedence, then resolves secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookupFunc()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "REDIS_ADDR", defaultRedisAddr),
			Password: stringWithDefault(lookup, "REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "REDIS_DB", 0),
		},
		Cart: CartConfig{
			Backend:      strings.ToLower(stringWithDefault(lookup, "CART_BACKEND", defaultCartBackend)),
			FileDir:      stringWithDefault(lookup, "CART_FILE_DIR", defaultCartFileDir),
			GuestTTL:     durationWithDefault(lookup, "CART_GUEST_TTL", defaultCartGuestTTL),
			StrictDecode: boolWithDefault(lookup, "CART_STRICT_DECODE", false),
		},
		Catalog: CatalogConfig{
			CacheTTL: durationWithDefault(lookup, "CATALOG_CACHE_TTL", defaultCatalogCacheTTL),
			Currency: strings.ToUpper(stringWithDefault(lookup, "CATALOG_CURRENCY", defaultCatalogCurrency)),
			Locale:   stringWithDefault(lookup, "CATALOG_LOCALE", defaultCatalogLocale),
		},
		Content: ContentConfig{
			Dir:      stringWithDefault(lookup, "CONTENT_DIR", ""),
			Bucket:   stringWithDefault(lookup, "CONTENT_BUCKET", ""),
			CacheTTL: durationWithDefault(lookup, "CONTENT_CACHE_TTL", defaultContentCacheTTL),
		},
		Session: SessionConfig{
			Secret:       stringWithDefault(lookup, "SESSION_SECRET", ""),
			CookieName:   stringWithDefault(lookup, "SESSION_COOKIE_NAME", defaultSessionCookie),
			CookieSecure: boolWithDefault(lookup, "SESSION_COOKIE_SECURE", true),
			TTL:          durationWithDefault(lookup, "SESSION_TTL", defaultSessionTTL),
		},
		Courier: CourierConfig{
			BaseURL: strings.TrimRight(stringWithDefault(lookup, "COURIER_BASE_URL", defaultCourierBaseURL), "/"),
			Token:   stringWithDefault(lookup, "COURIER_TOKEN", ""),
			Timeout: durationWithDefault(lookup, "COURIER_TIMEOUT", defaultCourierTimeout),
		},
		Events: EventsConfig{
			WishlistTopic: stringWithDefault(lookup, "EVENTS_WISHLIST_TOPIC", ""),
		},
		Features: FeatureFlags{
			EnableShipping: boolWithDefault(lookup, "FEATURE_SHIPPING", false),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "SECRETS_FALLBACK_FILE", defaultSecretsFallback),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firebase.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Session.Secret", &cfg.Session.Secret},
		{"Courier.Token", &cfg.Courier.Token},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func (o loaderOptions) lookupFunc() (func(string) (string, bool), error) {
	dotEnv, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := o.envMap[key]; ok {
			return value, true
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	switch cfg.Cart.Backend {
	case CartBackendRedis:
		if cfg.Redis.Addr == "" {
			missing = append(missing, "Redis.Addr")
		}
	case CartBackendFile:
		if strings.TrimSpace(cfg.Cart.FileDir) == "" {
			missing = append(missing, "Cart.FileDir")
		}
	case CartBackendMemory:
	default:
		missing = append(missing, "Cart.Backend")
	}
	if cfg.Cart.GuestTTL <= 0 {
		missing = append(missing, "Cart.GuestTTL")
	}
	if len(cfg.Catalog.Currency) != 3 {
		missing = append(missing, "Catalog.Currency")
	}
	if len(strings.TrimSpace(cfg.Session.Secret)) < minSessionSecretLength {
		missing = append(missing, "Session.Secret")
	}
	if cfg.Session.TTL <= 0 {
		missing = append(missing, "Session.TTL")
	}
	if cfg.Features.EnableShipping {
		if cfg.Courier.BaseURL == "" {
			missing = append(missing, "Courier.BaseURL")
		}
		if cfg.Courier.Timeout <= 0 {
			missing = append(missing, "Courier.Timeout")
		}
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{}, len(required))
	var missing []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(envPrefix + key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(envPrefix + key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(envPrefix + key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(envPrefix + key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
