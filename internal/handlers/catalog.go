package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matica-life/storefront/internal/platform/httpx"
	"github.com/matica-life/storefront/internal/services"
	"github.com/matica-life/storefront/internal/storefront"
)

const (
	defaultProductPageSize = 24
	maxProductPageSize     = 100
	catalogCacheControl    = "public, max-age=60"
)

// CatalogHandlers serves the public product and category views.
type CatalogHandlers struct {
	catalog services.CatalogService
	locale  string
}

// CatalogOption customises CatalogHandlers.
type CatalogOption func(*CatalogHandlers)

// WithCatalogLocale sets the locale used to format display prices.
func WithCatalogLocale(locale string) CatalogOption {
	return func(h *CatalogHandlers) {
		if locale = strings.TrimSpace(locale); locale != "" {
			h.locale = locale
		}
	}
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService, opts ...CatalogOption) *CatalogHandlers {
	h := &CatalogHandlers{catalog: catalog, locale: "en-IN"}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the catalogue endpoints under /public.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/home", h.home)
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Get("/categories/{categoryID}", h.getCategory)
}

type productDetailPayload struct {
	storefront.ProductCard
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type productListPayload struct {
	Items []storefront.ProductCard `json:"items"`
	Count int                      `json:"count"`
}

type categoryDetailPayload struct {
	storefront.CategoryCard
	Products []storefront.ProductCard `json:"products"`
}

type homePayload struct {
	Featured   []storefront.ProductCard  `json:"featured"`
	Categories []storefront.CategoryCard `json:"categories"`
}

func (h *CatalogHandlers) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	limit, ok := parseLimit(r.URL.Query().Get("limit"), 0)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_query", "limit must be a positive integer", http.StatusBadRequest))
		return
	}
	shelf, err := h.catalog.HomeShelf(ctx, limit)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", catalogCacheControl)
	writeJSONResponse(w, http.StatusOK, homePayload{
		Featured:   storefront.NewProductCards(shelf.Featured, h.locale),
		Categories: storefront.NewCategoryCards(shelf.Categories),
	})
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	query := r.URL.Query()
	limit, ok := parseLimit(query.Get("limit"), defaultProductPageSize)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_query", "limit must be a positive integer", http.StatusBadRequest))
		return
	}
	filter := services.ProductFilter{Limit: limit}
	if raw := strings.TrimSpace(query.Get("categoryId")); raw != "" {
		id, ok := parsePositiveID(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_query", "categoryId must be a positive integer", http.StatusBadRequest))
			return
		}
		filter.CategoryID = id
	}
	if raw := strings.TrimSpace(query.Get("featured")); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_query", "featured must be a boolean", http.StatusBadRequest))
			return
		}
		filter.FeaturedOnly = featured
	}

	products, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	cards := storefront.NewProductCards(products, h.locale)
	w.Header().Set("Cache-Control", catalogCacheControl)
	writeJSONResponse(w, http.StatusOK, productListPayload{Items: cards, Count: len(cards)})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	id, ok := parsePositiveID(chi.URLParam(r, "productID"))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_product_id", "product id must be a positive integer", http.StatusBadRequest))
		return
	}
	product, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", catalogCacheControl)
	writeJSONResponse(w, http.StatusOK, productDetailPayload{
		ProductCard: storefront.NewProductCard(product, h.locale),
		Description: product.Description,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", catalogCacheControl)
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items": storefront.NewCategoryCards(categories),
	})
}

func (h *CatalogHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	id, ok := parsePositiveID(chi.URLParam(r, "categoryID"))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_category_id", "category id must be a positive integer", http.StatusBadRequest))
		return
	}
	category, err := h.catalog.GetCategory(ctx, id)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	products, err := h.catalog.ListProducts(ctx, services.ProductFilter{CategoryID: id, Limit: maxProductPageSize})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	cards := storefront.NewCategoryCards([]services.Category{category})
	w.Header().Set("Cache-Control", catalogCacheControl)
	writeJSONResponse(w, http.StatusOK, categoryDetailPayload{
		CategoryCard: cards[0],
		Products:     storefront.NewProductCards(products, h.locale),
	})
}

func (h *CatalogHandlers) ready(ctx context.Context, w http.ResponseWriter) bool {
	if h == nil || h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

// parseLimit accepts an empty value (returning fallback) or an integer in 1..maxProductPageSize.
// Larger values are clamped.
func parseLimit(raw string, fallback int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > maxProductPageSize {
		n = maxProductPageSize
	}
	return n, true
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_timeout", "catalog request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog temporarily unavailable", http.StatusServiceUnavailable))
	}
}
