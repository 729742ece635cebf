package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/matica-life/storefront/internal/domain"
	pfirestore "github.com/matica-life/storefront/internal/platform/firestore"
	"github.com/matica-life/storefront/internal/repositories"
)

const (
	productCollection  = "products"
	categoryCollection = "categories"
	maxProductPageSize = 200
)

// CatalogRepository reads products and categories. Document ids are the decimal product/category id.
type CatalogRepository struct {
	products   *pfirestore.Collection[productDocument]
	categories *pfirestore.Collection[categoryDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		products:   pfirestore.NewCollection[productDocument](provider, productCollection, nil),
		categories: pfirestore.NewCollection[categoryDocument](provider, categoryCollection, nil),
	}, nil
}

// ListProducts returns published products, newest first.
func (r *CatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductFilter) ([]domain.Product, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxProductPageSize {
		limit = maxProductPageSize
	}
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("published", "==", true)
		if filter.FeaturedOnly {
			q = q.Where("featured", "==", true)
		}
		if filter.CategoryID > 0 {
			q = q.Where("categoryId", "==", filter.CategoryID)
		}
		return q.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

// GetProduct fetches a published product by id.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	if productID <= 0 {
		return domain.Product{}, pfirestore.NotFound("products.get", strconv.FormatInt(productID, 10))
	}
	id := strconv.FormatInt(productID, 10)
	doc, err := r.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !doc.Data.Published {
		return domain.Product{}, pfirestore.NotFound("products.get", id)
	}
	return doc.Data.toDomain(doc.ID)
}

// ListCategories returns categories ordered by sortOrder then name.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.categories.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("sortOrder", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		category, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].SortOrder != categories[j].SortOrder {
			return categories[i].SortOrder < categories[j].SortOrder
		}
		return categories[i].Name < categories[j].Name
	})
	return categories, nil
}

// GetCategory fetches a category by id.
func (r *CatalogRepository) GetCategory(ctx context.Context, categoryID int64) (domain.Category, error) {
	if categoryID <= 0 {
		return domain.Category{}, pfirestore.NotFound("categories.get", strconv.FormatInt(categoryID, 10))
	}
	doc, err := r.categories.Get(ctx, strconv.FormatInt(categoryID, 10))
	if err != nil {
		return domain.Category{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

type productDocument struct {
	Title       string    `firestore:"title"`
	Description string    `firestore:"description"`
	Price       float64   `firestore:"price"`
	Currency    string    `firestore:"currency"`
	ImageURL    string    `firestore:"imageUrl"`
	Images      []string  `firestore:"images"`
	CategoryID  int64     `firestore:"categoryId"`
	Artisan     string    `firestore:"artisan"`
	Featured    bool      `firestore:"featured"`
	Published   bool      `firestore:"published"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(docID string) (domain.Product, error) {
	id, err := parseNumericID(docID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("products/%s: %w", docID, err)
	}
	imageURL := strings.TrimSpace(d.ImageURL)
	if imageURL == "" && len(d.Images) > 0 {
		imageURL = d.Images[0]
	}
	return domain.Product{
		ID:          id,
		Title:       strings.TrimSpace(d.Title),
		Description: d.Description,
		Price:       d.Price,
		Currency:    strings.ToUpper(strings.TrimSpace(d.Currency)),
		ImageURL:    imageURL,
		Images:      append([]string(nil), d.Images...),
		CategoryID:  d.CategoryID,
		Artisan:     strings.TrimSpace(d.Artisan),
		Featured:    d.Featured,
		Published:   d.Published,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

type categoryDocument struct {
	Name      string `firestore:"name"`
	Slug      string `firestore:"slug"`
	ImageURL  string `firestore:"imageUrl"`
	SortOrder int    `firestore:"sortOrder"`
}

func (d categoryDocument) toDomain(docID string) (domain.Category, error) {
	id, err := parseNumericID(docID)
	if err != nil {
		return domain.Category{}, fmt.Errorf("categories/%s: %w", docID, err)
	}
	return domain.Category{
		ID:        id,
		Name:      strings.TrimSpace(d.Name),
		Slug:      strings.TrimSpace(d.Slug),
		ImageURL:  strings.TrimSpace(d.ImageURL),
		SortOrder: d.SortOrder,
	}, nil
}

func parseNumericID(docID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(docID), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("document id %q is not a positive integer", docID)
	}
	return id, nil
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
