package storefront

import (
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/matica-life/storefront/internal/domain"
)

const (
	defaultCurrency = "INR"
	defaultLocale   = "en-IN"
)

// ProductCard is the listing tile view model.
type ProductCard struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Artisan      string   `json:"artisan,omitempty"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency"`
	DisplayPrice string   `json:"displayPrice"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	Images       []string `json:"images,omitempty"`
	CategoryID   int64    `json:"categoryId,omitempty"`
	Featured     bool     `json:"featured"`
}

// CategoryCard is the navigation tile view model.
type CategoryCard struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// NewProductCard builds a card, formatting the price for locale. Products without a currency are
// priced in INR and an unparseable locale falls back to en-IN.
func NewProductCard(product domain.Product, locale string) ProductCard {
	code := strings.ToUpper(strings.TrimSpace(product.Currency))
	if code == "" {
		code = defaultCurrency
	}
	image := product.ImageURL
	if image == "" && len(product.Images) > 0 {
		image = product.Images[0]
	}
	return ProductCard{
		ID:           product.ID,
		Title:        product.Title,
		Artisan:      product.Artisan,
		Price:        product.Price,
		Currency:     code,
		DisplayPrice: FormatPrice(product.Price, code, locale),
		ImageURL:     image,
		Images:       append([]string(nil), product.Images...),
		CategoryID:   product.CategoryID,
		Featured:     product.Featured,
	}
}

// NewProductCards maps a slice of products.
func NewProductCards(products []domain.Product, locale string) []ProductCard {
	cards := make([]ProductCard, 0, len(products))
	for _, product := range products {
		cards = append(cards, NewProductCard(product, locale))
	}
	return cards
}

// NewCategoryCards maps a slice of categories.
func NewCategoryCards(categories []domain.Category) []CategoryCard {
	cards := make([]CategoryCard, 0, len(categories))
	for _, category := range categories {
		cards = append(cards, CategoryCard{
			ID:       category.ID,
			Name:     category.Name,
			Slug:     category.Slug,
			ImageURL: category.ImageURL,
		})
	}
	return cards
}

// FormatPrice renders amount with the currency symbol and digit grouping of locale.
func FormatPrice(amount float64, code, locale string) string {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		unit = currency.INR
	}
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.MustParse(defaultLocale)
	}
	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(amount)))
}
