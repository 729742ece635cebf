// Package session issues the signed guest cookie that scopes anonymous carts.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/matica-life/storefront/internal/platform/config"
)

const (
	issuer        = "matica.life/storefront"
	minSecretSize = 32
)

var errInvalidToken = errors.New("session: invalid token")

// Manager signs and verifies guest session cookies (HS256 JWT, subject = guest uuid).
type Manager struct {
	secret []byte
	cookie string
	secure bool
	ttl    time.Duration
	clock  func() time.Time
	newID  func() string
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithIDGenerator overrides guest id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg config.SessionConfig, opts ...Option) (*Manager, error) {
	if len(strings.TrimSpace(cfg.Secret)) < minSecretSize {
		return nil, errors.New("session: secret must be at least 32 characters")
	}
	m := &Manager{
		secret: []byte(cfg.Secret),
		cookie: cfg.CookieName,
		secure: cfg.CookieSecure,
		ttl:    cfg.TTL,
		clock:  time.Now,
		newID:  uuid.NewString,
	}
	if m.cookie == "" {
		m.cookie = "matica_session"
	}
	if m.ttl <= 0 {
		m.ttl = 30 * 24 * time.Hour
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Sign returns a token for guestID issued now.
func (m *Manager) Sign(guestID string) (string, error) {
	now := m.clock().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   guestID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify returns the guest id and issue time carried by token.
func (m *Manager) Verify(token string) (string, time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return m.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", time.Time{}, errInvalidToken
	}
	if claims.Issuer != issuer || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return "", time.Time{}, errInvalidToken
	}
	if !m.clock().Before(claims.ExpiresAt.Time) {
		return "", time.Time{}, errInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", time.Time{}, errInvalidToken
	}
	return claims.Subject, claims.IssuedAt.Time, nil
}

type state struct {
	mu      sync.Mutex
	m       *Manager
	w       http.ResponseWriter
	guestID string
	refresh bool
}

type contextKey struct{}

// Middleware reads the guest cookie. A valid cookie older than half its lifetime is re-signed.
// Requests without a valid cookie get one only when a handler calls EnsureGuestID.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := &state{m: m, w: w}
			if c, err := r.Cookie(m.cookie); err == nil && c.Value != "" {
				if id, issuedAt, err := m.Verify(c.Value); err == nil {
					st.guestID = id
					st.refresh = m.clock().Sub(issuedAt) > m.ttl/2
				}
			}
			if st.refresh {
				st.issueLocked()
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, st)))
		})
	}
}

// GuestID returns the guest id carried by the request, or "" when none was presented.
func GuestID(ctx context.Context) string {
	st, ok := ctx.Value(contextKey{}).(*state)
	if !ok {
		return ""
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.guestID
}

// EnsureGuestID returns the request's guest id, minting a new one and setting the cookie when
// absent. It returns "" only when the session middleware is not installed.
func EnsureGuestID(ctx context.Context) string {
	st, ok := ctx.Value(contextKey{}).(*state)
	if !ok {
		return ""
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.guestID == "" && st.m != nil {
		st.guestID = st.m.newID()
		st.issueLocked()
	}
	return st.guestID
}

// WithGuestID attaches a fixed guest id without cookie handling, for tests and internal callers.
func WithGuestID(ctx context.Context, guestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, &state{guestID: guestID})
}

func (st *state) issueLocked() {
	if st.m == nil || st.w == nil {
		return
	}
	token, err := st.m.Sign(st.guestID)
	if err != nil {
		return
	}
	http.SetCookie(st.w, &http.Cookie{
		Name:     st.m.cookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(st.m.ttl / time.Second),
		HttpOnly: true,
		Secure:   st.m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
