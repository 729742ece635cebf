package storefront

import (
	"strings"
	"testing"

	"github.com/matica-life/storefront/internal/domain"
)

func TestNewProductCardDefaultsToRupees(t *testing.T) {
	card := NewProductCard(domain.Product{
		ID:      3,
		Title:   "Terracotta Lamp",
		Price:   1250.5,
		Images:  []string{"lamp-1.jpg", "lamp-2.jpg"},
		Artisan: "Kumhar Collective",
	}, "")

	if card.Currency != "INR" {
		t.Fatalf("expected INR, got %s", card.Currency)
	}
	if !strings.Contains(card.DisplayPrice, "₹") || !strings.Contains(card.DisplayPrice, "50") {
		t.Fatalf("expected rupee formatted price, got %q", card.DisplayPrice)
	}
	if card.ImageURL != "lamp-1.jpg" {
		t.Fatalf("expected first image as cover, got %q", card.ImageURL)
	}
}

func TestFormatPriceHonoursCurrency(t *testing.T) {
	if got := FormatPrice(20, "usd", "en"); !strings.Contains(got, "$") {
		t.Fatalf("expected dollar sign, got %q", got)
	}
	if got := FormatPrice(20, "not-a-code", "en-IN"); !strings.Contains(got, "₹") {
		t.Fatalf("expected rupee fallback, got %q", got)
	}
}

func TestNewCategoryCards(t *testing.T) {
	cards := NewCategoryCards([]domain.Category{{ID: 1, Name: "Pottery", Slug: "pottery"}})
	if len(cards) != 1 || cards[0].Slug != "pottery" {
		t.Fatalf("unexpected cards %+v", cards)
	}
}
