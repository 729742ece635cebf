package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
)

// Item is a single cart line. JSON field names match the persisted document format.
type Item struct {
	ProductID string  `json:"productId"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	ImageURL  string  `json:"imageUrl"`
	Quantity  int     `json:"quantity"`
}

// CorruptPolicy decides how Open treats a stored payload that cannot be decoded.
type CorruptPolicy int

const (
	// ResetOnCorrupt starts with an empty cart and logs the discarded payload.
	ResetOnCorrupt CorruptPolicy = iota
	// FailOnCorrupt makes Open return ErrCorrupt.
	FailOnCorrupt
)

var (
	// ErrInvalidItem is returned when an item has no product id, a non-positive quantity, or a
	// quantity that would overflow the cart total.
	ErrInvalidItem = errors.New("cart: invalid item")
	// ErrCorrupt is returned by Open under FailOnCorrupt when the stored payload is unreadable.
	ErrCorrupt = errors.New("cart: stored cart is corrupt")
	// ErrPersist wraps storage failures raised after an in-memory mutation was applied.
	ErrPersist = errors.New("cart: persist failed")
)

// Logger receives structured store events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Option customises Store construction.
type Option func(*Store)

// WithStorageKey overrides DefaultStorageKey.
func WithStorageKey(key string) Option {
	return func(s *Store) {
		if key = strings.TrimSpace(key); key != "" {
			s.key = key
		}
	}
}

// WithCorruptPolicy selects how unreadable stored payloads are handled.
func WithCorruptPolicy(policy CorruptPolicy) Option {
	return func(s *Store) {
		s.policy = policy
	}
}

// WithLogger attaches a logger hook.
func WithLogger(logger Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store holds the ordered cart lines for one owner and mirrors every mutation to Storage.
type Store struct {
	mu      sync.Mutex
	storage Storage
	key     string
	policy  CorruptPolicy
	logger  Logger

	items []Item
	total int
}

// Open hydrates a store from storage. An absent key yields an empty cart.
func Open(ctx context.Context, storage Storage, opts ...Option) (*Store, error) {
	if storage == nil {
		return nil, errors.New("cart: storage is required")
	}
	s := &Store{
		storage: storage,
		key:     DefaultStorageKey,
		policy:  ResetOnCorrupt,
		logger:  func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	payload, err := storage.Load(ctx, s.key)
	switch {
	case errors.Is(err, ErrNotFound):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("cart: load %s: %w", s.key, err)
	}

	items, err := Decode(payload)
	if err != nil {
		if s.policy == FailOnCorrupt {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.key, err)
		}
		s.logger(ctx, "cart.corrupt_reset", map[string]any{
			"key":   s.key,
			"bytes": len(payload),
			"error": err.Error(),
		})
		return s, nil
	}
	s.items = items
	s.total = sumQuantities(items)
	return s, nil
}

// AddItem merges item into the cart. An existing line keeps its title, price and image and only
// gains quantity; a new product is appended.
func (s *Store) AddItem(ctx context.Context, item Item) error {
	if err := validateItem(item); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total > math.MaxInt-item.Quantity {
		return fmt.Errorf("%w: quantity overflow for %q", ErrInvalidItem, item.ProductID)
	}
	s.addLocked(item)
	return s.commitLocked(ctx)
}

// Merge adds every item with AddItem semantics and persists once. Nothing is applied when any
// item is invalid or the combined quantity would overflow.
func (s *Store) Merge(ctx context.Context, items []Item) error {
	incoming := 0
	for _, item := range items {
		if err := validateItem(item); err != nil {
			return err
		}
		if incoming > math.MaxInt-item.Quantity {
			return fmt.Errorf("%w: quantity overflow for %q", ErrInvalidItem, item.ProductID)
		}
		incoming += item.Quantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total > math.MaxInt-incoming {
		return fmt.Errorf("%w: quantity overflow", ErrInvalidItem)
	}
	for _, item := range items {
		s.addLocked(item)
	}
	return s.commitLocked(ctx)
}

// Replace swaps the whole line sequence for items and persists it. items must satisfy the same
// rules Decode enforces.
func (s *Store) Replace(ctx context.Context, items []Item) error {
	if err := validateItems(items); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = cloneItems(items)
	return s.commitLocked(ctx)
}

// RemoveItem drops the line for productID. Removing an absent product is not an error.
func (s *Store) RemoveItem(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexOf(productID); idx >= 0 {
		s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	}
	return s.commitLocked(ctx)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	return s.commitLocked(ctx)
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

// TotalItems is the sum of quantities across all lines.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Subtotal is the sum of price * quantity across all lines.
func (s *Store) Subtotal() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var subtotal float64
	for _, item := range s.items {
		subtotal += item.Price * float64(item.Quantity)
	}
	return subtotal
}

// Key reports the storage key backing this store.
func (s *Store) Key() string {
	return s.key
}

// commitLocked recomputes derived state and writes the full sequence. Callers must hold s.mu.
func (s *Store) commitLocked(ctx context.Context) error {
	s.total = sumQuantities(s.items)

	payload, err := Encode(s.items)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersist, err)
	}
	if err := s.storage.Save(ctx, s.key, payload); err != nil {
		s.logger(ctx, "cart.persist_failed", map[string]any{
			"key":   s.key,
			"items": len(s.items),
			"error": err.Error(),
		})
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *Store) addLocked(item Item) {
	if idx := s.indexOf(item.ProductID); idx >= 0 {
		s.items[idx].Quantity += item.Quantity
		return
	}
	s.items = append(s.items, item)
}

func (s *Store) indexOf(productID string) int {
	for i := range s.items {
		if s.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Encode serialises items as a JSON array. A nil slice is written as [].
func Encode(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(items)
}

// Decode parses a stored payload and enforces line invariants. Empty payloads and JSON null
// decode to an empty cart.
func Decode(payload []byte) ([]Item, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var items []Item
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		return nil, err
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}

func validateItems(items []Item) error {
	seen := make(map[string]struct{}, len(items))
	total := 0
	for i, item := range items {
		if err := validateItem(item); err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
		if _, dup := seen[item.ProductID]; dup {
			return fmt.Errorf("line %d: duplicate product %q", i, item.ProductID)
		}
		if total > math.MaxInt-item.Quantity {
			return fmt.Errorf("line %d: quantity overflow", i)
		}
		seen[item.ProductID] = struct{}{}
		total += item.Quantity
	}
	return nil
}

func validateItem(item Item) error {
	if strings.TrimSpace(item.ProductID) == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidItem)
	}
	if item.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidItem)
	}
	return nil
}

func sumQuantities(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

func cloneItems(items []Item) []Item {
	if len(items) == 0 {
		return []Item{}
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
