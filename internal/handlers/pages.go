package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/matica-life/storefront/internal/content"
	"github.com/matica-life/storefront/internal/platform/httpx"
)

const pagesCacheControl = "public, max-age=300"

// PageLibrary resolves rendered legal pages.
type PageLibrary interface {
	Get(ctx context.Context, slug, lang string) (content.Page, error)
	List(ctx context.Context, lang string) ([]content.Summary, error)
}

// PageHandlers serves the static legal pages under /public/pages.
type PageHandlers struct {
	pages PageLibrary
}

// NewPageHandlers constructs page handlers.
func NewPageHandlers(pages PageLibrary) *PageHandlers {
	return &PageHandlers{pages: pages}
}

// Routes registers the page endpoints.
func (h *PageHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/pages", h.listPages)
	r.Get("/pages/{slug}", h.getPage)
}

type pagePayload struct {
	Slug          string `json:"slug"`
	Lang          string `json:"lang"`
	Title         string `json:"title"`
	Summary       string `json:"summary,omitempty"`
	HTML          string `json:"html"`
	Version       string `json:"version,omitempty"`
	EffectiveDate string `json:"effectiveDate,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

type pageSummaryPayload struct {
	Slug      string `json:"slug"`
	Lang      string `json:"lang"`
	Title     string `json:"title"`
	Summary   string `json:"summary,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func (h *PageHandlers) listPages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	summaries, err := h.pages.List(ctx, requestLang(r))
	if err != nil {
		writePageError(ctx, w, err)
		return
	}
	items := make([]pageSummaryPayload, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, pageSummaryPayload{
			Slug:      s.Slug,
			Lang:      s.Lang,
			Title:     s.Title,
			Summary:   s.Summary,
			UpdatedAt: formatTime(s.UpdatedAt),
		})
	}
	w.Header().Set("Cache-Control", pagesCacheControl)
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *PageHandlers) getPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	page, err := h.pages.Get(ctx, slug, requestLang(r))
	if err != nil {
		writePageError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", pagesCacheControl)
	w.Header().Set("Content-Language", page.Lang)
	if !page.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", page.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	writeJSONResponse(w, http.StatusOK, pagePayload{
		Slug:          page.Slug,
		Lang:          page.Lang,
		Title:         page.Title,
		Summary:       page.Summary,
		HTML:          page.HTML,
		Version:       page.Version,
		EffectiveDate: formatDate(page.EffectiveDate),
		UpdatedAt:     formatTime(page.UpdatedAt),
	})
}

func (h *PageHandlers) ready(ctx context.Context, w http.ResponseWriter) bool {
	if h == nil || h.pages == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pages_unavailable", "pages are unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

// requestLang prefers ?lang= and then the first Accept-Language entry. The library falls back to
// English for anything it cannot serve.
func requestLang(r *http.Request) string {
	if lang := strings.TrimSpace(r.URL.Query().Get("lang")); lang != "" {
		return lang
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return content.DefaultLang
	}
	base, _ := tags[0].Base()
	return base.String()
}

func writePageError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, content.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("page_not_found", "page not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("pages_unavailable", "page could not be loaded", http.StatusServiceUnavailable))
	}
}
