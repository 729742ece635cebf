package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matica-life/storefront/internal/content"
)

type stubPageLibrary struct {
	getFunc  func(ctx context.Context, slug, lang string) (content.Page, error)
	listFunc func(ctx context.Context, lang string) ([]content.Summary, error)
}

func (s *stubPageLibrary) Get(ctx context.Context, slug, lang string) (content.Page, error) {
	return s.getFunc(ctx, slug, lang)
}

func (s *stubPageLibrary) List(ctx context.Context, lang string) ([]content.Summary, error) {
	return s.listFunc(ctx, lang)
}

func servePages(pages PageLibrary, req *http.Request) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Route("/public", NewPageHandlers(pages).Routes)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestPageHandlersGetPage(t *testing.T) {
	updated := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	lib := &stubPageLibrary{
		getFunc: func(_ context.Context, slug, lang string) (content.Page, error) {
			assert.Equal(t, "privacy-policy", slug)
			assert.Equal(t, "hi", lang)
			return content.Page{
				Slug:          slug,
				Lang:          "en",
				Title:         "Privacy Policy",
				HTML:          "<h1>Privacy Policy</h1>",
				Version:       "2024-05",
				EffectiveDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
				UpdatedAt:     updated,
			}, nil
		},
	}

	rr := servePages(lib, httptest.NewRequest(http.MethodGet, "/public/pages/privacy-policy?lang=hi", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "en", rr.Header().Get("Content-Language"))
	assert.Equal(t, updated.Format(http.TimeFormat), rr.Header().Get("Last-Modified"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Privacy Policy", body["title"])
	assert.Equal(t, "2024-05-01", body["effectiveDate"])
	assert.Equal(t, "<h1>Privacy Policy</h1>", body["html"])
}

func TestPageHandlersLangFromAcceptLanguage(t *testing.T) {
	lib := &stubPageLibrary{
		getFunc: func(_ context.Context, _ string, lang string) (content.Page, error) {
			assert.Equal(t, "fr", lang)
			return content.Page{Slug: "shipping-policy", Lang: "en"}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/public/pages/shipping-policy", nil)
	req.Header.Set("Accept-Language", "fr-CA,fr;q=0.9,en;q=0.5")

	rr := servePages(lib, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPageHandlersNotFound(t *testing.T) {
	lib := &stubPageLibrary{
		getFunc: func(context.Context, string, string) (content.Page, error) {
			return content.Page{}, content.ErrNotFound
		},
	}
	rr := servePages(lib, httptest.NewRequest(http.MethodGet, "/public/pages/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "page_not_found"))
}

func TestPageHandlersSourceFailure(t *testing.T) {
	lib := &stubPageLibrary{
		listFunc: func(context.Context, string) ([]content.Summary, error) {
			return nil, errors.New("bucket offline")
		},
	}
	rr := servePages(lib, httptest.NewRequest(http.MethodGet, "/public/pages", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPageHandlersServeEmbeddedLibrary(t *testing.T) {
	lib := content.NewLibrary(content.Options{})

	rr := servePages(lib, httptest.NewRequest(http.MethodGet, "/public/pages", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var index struct {
		Items []pageSummaryPayload `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &index))
	require.Len(t, index.Items, len(content.Slugs))
	for i, slug := range content.Slugs {
		assert.Equal(t, slug, index.Items[i].Slug)
	}

	rr = servePages(lib, httptest.NewRequest(http.MethodGet, "/public/pages/terms-and-conditions?lang=ta", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var page pagePayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, "en", page.Lang)
	assert.NotEmpty(t, page.HTML)
}
