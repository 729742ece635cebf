package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matica-life/storefront/internal/platform/auth"
	"github.com/matica-life/storefront/internal/platform/httpx"
	"github.com/matica-life/storefront/internal/platform/session"
)

const (
	// DefaultHeader carries the client-chosen key.
	DefaultHeader = "Idempotency-Key"
	// ReplayHeader is set on responses served from the store.
	ReplayHeader = "X-Idempotent-Replay"

	maxKeyLength = 255
)

// Logger receives persistence failures that cannot be surfaced to the client.
type Logger interface {
	Printf(format string, args ...any)
}

type options struct {
	header  string
	ttl     time.Duration
	methods map[string]struct{}
	clock   func() time.Time
	logger  Logger
}

// Option customises the middleware.
type Option func(*options)

// WithHeader overrides DefaultHeader.
func WithHeader(name string) Option {
	return func(o *options) {
		if name = strings.TrimSpace(name); name != "" {
			o.header = name
		}
	}
}

// WithTTL controls how long reservations and responses are retained.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMethods restricts which methods require a key. Other methods pass straight through.
func WithMethods(methods ...string) Option {
	return func(o *options) {
		set := make(map[string]struct{}, len(methods))
		for _, method := range methods {
			if method = strings.ToUpper(strings.TrimSpace(method)); method != "" {
				set[method] = struct{}{}
			}
		}
		if len(set) > 0 {
			o.methods = set
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func defaultMethods() map[string]struct{} {
	return map[string]struct{}{
		http.MethodPost:   {},
		http.MethodPut:    {},
		http.MethodPatch:  {},
		http.MethodDelete: {},
	}
}

// Middleware makes guarded requests safe to retry. The first request carrying a key runs the
// handler and its response is stored; repeats with the same fingerprint replay it, repeats with a
// different fingerprint get 409, and repeats while the first is still running get 409 as well.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	o := options{
		header:  DefaultHeader,
		ttl:     DefaultTTL,
		methods: defaultMethods(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, guarded := o.methods[r.Method]; !guarded {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(o.header))
			switch {
			case key == "":
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing "+o.header+" header", http.StatusBadRequest))
				return
			case len(key) > maxKeyLength:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_invalid", o.header+" header is too long", http.StatusBadRequest))
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}

			requester := Requester(ctx)
			fingerprint := fingerprintRequest(r, body, requester)
			scoped := key + "|" + requester

			reservation, err := store.Reserve(ctx, scoped, fingerprint, o.clock().UTC(), o.ttl)
			if err != nil {
				o.writeStoreError(ctx, w, err)
				return
			}
			switch reservation.State {
			case ReservationStateCompleted:
				replay(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this key is still being processed", http.StatusConflict))
				return
			}

			rec := &bufferedWriter{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			resp := Response{Status: rec.statusCode(), Headers: rec.header.Clone(), Body: rec.body.Bytes()}
			if err := store.SaveResponse(ctx, scoped, fingerprint, resp, o.clock().UTC(), o.ttl); err != nil {
				o.logf("idempotency: save response for %s failed: %v", requester, err)
				if relErr := store.Release(ctx, scoped, fingerprint); relErr != nil {
					o.logf("idempotency: release after failed save: %v", relErr)
				}
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to persist idempotency state", http.StatusInternalServerError))
				return
			}
			if err := rec.flushTo(w); err != nil {
				o.logf("idempotency: flush response: %v", err)
			}
		})
	}
}

// Requester scopes keys to the caller: the Firebase uid when signed in, otherwise the guest
// session id, otherwise "anonymous".
func Requester(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		return identity.UID
	}
	if guest := session.GuestID(ctx); guest != "" {
		return "guest:" + guest
	}
	return "anonymous"
}

func (o options) writeStoreError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, ErrFingerprintMismatch) {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
		return
	}
	o.logf("idempotency: reserve failed: %v", err)
	httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusServiceUnavailable))
}

func (o options) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func fingerprintRequest(r *http.Request, body []byte, requester string) string {
	var b strings.Builder
	for _, part := range []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Header.Get("Content-Type"),
		requester,
	} {
		b.WriteString(part)
		b.WriteByte('|')
	}
	if len(body) > 0 {
		b.WriteString(sha256Hex(body))
	}
	return sha256Hex([]byte(b.String()))
}

func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name, values := range record.ResponseHeaders {
		for _, value := range values {
			header.Add(name, value)
		}
	}
	header.Set(ReplayHeader, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// bufferedWriter holds the handler's response until it has been stored.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 && status > 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedWriter) flushTo(w http.ResponseWriter) error {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = append([]string(nil), values...)
	}
	w.WriteHeader(b.statusCode())
	if b.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(b.body.Bytes())
	return err
}
