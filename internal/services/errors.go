package services

import (
	"errors"

	"github.com/matica-life/storefront/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied an invalid item or owner.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartUnavailable indicates the cart backend could not be read or written.
	ErrCartUnavailable = errors.New("cart service: unavailable")
	// ErrCartCorrupt is returned under strict decoding when the stored cart cannot be parsed.
	ErrCartCorrupt = errors.New("cart service: stored cart is corrupt")

	// ErrCatalogInvalidInput indicates a malformed id or filter.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogNotFound indicates the product or category does not exist.
	ErrCatalogNotFound = errors.New("catalog service: not found")
	// ErrCatalogUnavailable indicates the catalog backend failed.
	ErrCatalogUnavailable = errors.New("catalog service: unavailable")

	// ErrWishlistUnauthenticated indicates the operation needs a signed-in user.
	ErrWishlistUnauthenticated = errors.New("wishlist service: authentication required")
	// ErrWishlistInvalidInput indicates a malformed product id.
	ErrWishlistInvalidInput = errors.New("wishlist service: invalid input")
	// ErrWishlistUnavailable indicates the wishlist backend failed.
	ErrWishlistUnavailable = errors.New("wishlist service: unavailable")
)

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
