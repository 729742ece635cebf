package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/matica-life/storefront/internal/cart"
	pfirestore "github.com/matica-life/storefront/internal/platform/firestore"
	"github.com/matica-life/storefront/internal/repositories"
)

const cartCollection = "carts"

// CartStorage keeps signed-in users' carts as carts/{key} documents holding the serialised array.
type CartStorage struct {
	carts *pfirestore.Collection[cartDocument]
	clock func() time.Time
}

// NewCartStorage constructs a Firestore-backed cart.Storage.
func NewCartStorage(provider *pfirestore.Provider) (*CartStorage, error) {
	if provider == nil {
		return nil, errors.New("cart storage requires firestore provider")
	}
	return &CartStorage{
		carts: pfirestore.NewCollection[cartDocument](provider, cartCollection, nil),
		clock: time.Now,
	}, nil
}

// Load implements cart.Storage.
func (s *CartStorage) Load(ctx context.Context, key string) ([]byte, error) {
	doc, err := s.carts.Get(ctx, documentID(key))
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, cart.ErrNotFound
		}
		return nil, err
	}
	return []byte(doc.Data.Payload), nil
}

// Save implements cart.Storage.
func (s *CartStorage) Save(ctx context.Context, key string, payload []byte) error {
	return s.carts.Set(ctx, documentID(key), cartDocument{
		Payload:   string(payload),
		UpdatedAt: s.clock().UTC(),
	})
}

// Delete implements cart.Deleter.
func (s *CartStorage) Delete(ctx context.Context, key string) error {
	return s.carts.Delete(ctx, documentID(key))
}

type cartDocument struct {
	Payload   string    `firestore:"payload"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// documentID keeps keys usable as a single path segment.
func documentID(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(key), "/", "_")
}

var (
	_ cart.Storage = (*CartStorage)(nil)
	_ cart.Deleter = (*CartStorage)(nil)
)
