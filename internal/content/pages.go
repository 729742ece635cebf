// Package content serves the storefront's static legal pages.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultLang is consulted when a page has no translation in the requested language.
	DefaultLang     = "en"
	defaultCacheTTL = 10 * time.Minute
)

// Legal page slugs.
const (
	SlugPrivacyPolicy         = "privacy-policy"
	SlugTermsAndConditions    = "terms-and-conditions"
	SlugShippingPolicy        = "shipping-policy"
	SlugCancellationAndRefund = "cancellation-and-refund"
)

// Slugs lists the published legal pages in display order.
var Slugs = []string{
	SlugPrivacyPolicy,
	SlugTermsAndConditions,
	SlugShippingPolicy,
	SlugCancellationAndRefund,
}

// ErrNotFound is returned for unknown slugs or pages missing in every fallback language.
var ErrNotFound = errors.New("content: page not found")

// Page is a rendered legal page.
type Page struct {
	Slug          string    `json:"slug"`
	Lang          string    `json:"lang"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary,omitempty"`
	HTML          string    `json:"html"`
	Version       string    `json:"version,omitempty"`
	EffectiveDate time.Time `json:"effectiveDate,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// Summary is the index entry for a page.
type Summary struct {
	Slug      string    `json:"slug"`
	Lang      string    `json:"lang"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Options configures a Library.
type Options struct {
	Source   Source
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

// Library renders pages from a Source and caches the results.
type Library struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	logger func(context.Context, string, map[string]any)

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group
}

type cacheEntry struct {
	page    Page
	expires time.Time
}

// NewLibrary builds a Library. A nil Source serves the embedded pages.
func NewLibrary(opts Options) *Library {
	source := opts.Source
	if source == nil {
		source = Embedded()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Library{
		source: source,
		ttl:    ttl,
		now:    clock,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// Get returns slug rendered in lang, falling back to DefaultLang.
func (l *Library) Get(ctx context.Context, slug, lang string) (Page, error) {
	slug = normalizeSlug(slug)
	if !knownSlug(slug) {
		return Page{}, ErrNotFound
	}
	lang = normalizeLang(lang)

	key := lang + "|" + slug
	if page, ok := l.cached(key); ok {
		return page, nil
	}

	result, err, _ := l.group.Do(key, func() (any, error) {
		page, err := l.load(ctx, slug, lang)
		if err != nil {
			return Page{}, err
		}
		l.store(key, page)
		return page, nil
	})
	if err != nil {
		return Page{}, err
	}
	return result.(Page), nil
}

// List returns summaries for every legal page available in lang or DefaultLang.
func (l *Library) List(ctx context.Context, lang string) ([]Summary, error) {
	summaries := make([]Summary, 0, len(Slugs))
	for _, slug := range Slugs {
		page, err := l.Get(ctx, slug, lang)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, Summary{
			Slug:      page.Slug,
			Lang:      page.Lang,
			Title:     page.Title,
			Summary:   page.Summary,
			UpdatedAt: page.UpdatedAt,
		})
	}
	return summaries, nil
}

func (l *Library) load(ctx context.Context, slug, lang string) (Page, error) {
	for _, candidate := range fallbackChain(lang) {
		raw, err := l.source.Read(ctx, candidate, slug)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			l.logger(ctx, "content.read_failed", map[string]any{
				"slug":  slug,
				"lang":  candidate,
				"error": err.Error(),
			})
			return Page{}, fmt.Errorf("content: read %s/%s: %w", candidate, slug, err)
		}
		page, err := render(slug, candidate, raw)
		if err != nil {
			return Page{}, err
		}
		return page, nil
	}
	return Page{}, ErrNotFound
}

func (l *Library) cached(key string) (Page, bool) {
	l.mu.RLock()
	entry, ok := l.cache[key]
	l.mu.RUnlock()
	if !ok || l.now().After(entry.expires) {
		return Page{}, false
	}
	return entry.page, true
}

func (l *Library) store(key string, page Page) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[key] = cacheEntry{page: page, expires: l.now().Add(l.ttl)}
}

func fallbackChain(lang string) []string {
	if lang == DefaultLang {
		return []string{DefaultLang}
	}
	return []string{lang, DefaultLang}
}

func knownSlug(slug string) bool {
	for _, candidate := range Slugs {
		if candidate == slug {
			return true
		}
	}
	return false
}

func normalizeSlug(slug string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(slug)), "/")
}

// normalizeLang reduces "en-IN" or "hi_IN" to the primary subtag.
func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if idx := strings.IndexAny(lang, "-_"); idx >= 0 {
		lang = lang[:idx]
	}
	if lang == "" || strings.ContainsAny(lang, "./\\") {
		return DefaultLang
	}
	return lang
}
