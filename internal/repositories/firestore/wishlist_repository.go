package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/matica-life/storefront/internal/domain"
	pfirestore "github.com/matica-life/storefront/internal/platform/firestore"
	"github.com/matica-life/storefront/internal/repositories"
)

const (
	wishlistCollectionPattern = "users/%s/wishlist"
	maxWishlistEntries        = 500
)

// WishlistRepository persists saved products per user.
type WishlistRepository struct {
	provider *pfirestore.Provider
	entries  *pfirestore.Collection[wishlistDocument]
}

// NewWishlistRepository constructs a Firestore-backed wishlist repository.
func NewWishlistRepository(provider *pfirestore.Provider) (*WishlistRepository, error) {
	if provider == nil {
		return nil, errors.New("wishlist repository requires firestore provider")
	}
	return &WishlistRepository{
		provider: provider,
		entries:  pfirestore.NewCollection[wishlistDocument](provider, "users", nil),
	}, nil
}

// List returns entries ordered by most recent addition.
func (r *WishlistRepository) List(ctx context.Context, userID string) ([]domain.WishlistEntry, error) {
	coll, err := r.collection(userID)
	if err != nil {
		return nil, err
	}
	docs, err := coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("addedAt", firestore.Desc).Limit(maxWishlistEntries)
	})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.WishlistEntry, 0, len(docs))
	for _, doc := range docs {
		entry, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Contains reports whether productID is saved.
func (r *WishlistRepository) Contains(ctx context.Context, userID string, productID int64) (bool, error) {
	coll, err := r.collection(userID)
	if err != nil {
		return false, err
	}
	_, err = coll.Get(ctx, strconv.FormatInt(productID, 10))
	switch {
	case err == nil:
		return true, nil
	case repositories.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Toggle adds productID when absent and removes it when present, inside one transaction.
func (r *WishlistRepository) Toggle(ctx context.Context, userID string, productID int64, at time.Time) (bool, error) {
	if productID <= 0 {
		return false, errors.New("wishlist repository: product id must be positive")
	}
	coll, err := r.collection(userID)
	if err != nil {
		return false, err
	}
	docRef, err := coll.Doc(ctx, strconv.FormatInt(productID, 10))
	if err != nil {
		return false, err
	}

	var added bool
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(docRef)
		switch {
		case err == nil:
			added = false
			return tx.Delete(docRef)
		case status.Code(err) != codes.NotFound:
			return err
		}
		added = true
		return tx.Set(docRef, wishlistDocument{
			ProductRef: productDocPath(productID),
			AddedAt:    at.UTC(),
		})
	})
	if err != nil {
		return false, pfirestore.WrapError("wishlist.toggle", err)
	}
	return added, nil
}

func (r *WishlistRepository) collection(userID string) (*pfirestore.Collection[wishlistDocument], error) {
	if r == nil || r.entries == nil {
		return nil, errors.New("wishlist repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" || strings.Contains(uid, "/") {
		return nil, errors.New("wishlist repository: valid user id is required")
	}
	return r.entries.Sub(fmt.Sprintf(wishlistCollectionPattern, uid)), nil
}

type wishlistDocument struct {
	ProductRef string    `firestore:"productRef"`
	AddedAt    time.Time `firestore:"addedAt"`
}

func (d wishlistDocument) toDomain(docID string) (domain.WishlistEntry, error) {
	id, err := parseNumericID(docID)
	if err != nil {
		if id, err = parseNumericID(strings.TrimPrefix(d.ProductRef, "/"+productCollection+"/")); err != nil {
			return domain.WishlistEntry{}, fmt.Errorf("wishlist/%s: %w", docID, err)
		}
	}
	return domain.WishlistEntry{ProductID: id, AddedAt: d.AddedAt.UTC()}, nil
}

func productDocPath(productID int64) string {
	return "/" + productCollection + "/" + strconv.FormatInt(productID, 10)
}

var _ repositories.WishlistRepository = (*WishlistRepository)(nil)
