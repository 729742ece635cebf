package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/matica-life/storefront/internal/repositories"
)

var errWishlistRepositoryRequired = errors.New("wishlist service: repository is required")

// WishlistServiceDeps wires the wishlist repository and optional event publisher.
type WishlistServiceDeps struct {
	Repository  repositories.WishlistRepository
	Publisher   WishlistEventPublisher
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type wishlistService struct {
	repo      repositories.WishlistRepository
	publisher WishlistEventPublisher
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
	newID     func() string

	mu    sync.Mutex
	locks map[string]*toggleLock
}

// toggleLock serialises toggles for one (user, product) key. holders counts waiters plus the owner.
type toggleLock struct {
	sem     chan struct{}
	holders int
	active  bool
}

var _ WishlistService = (*wishlistService)(nil)

// NewWishlistService constructs a WishlistService enforcing dependency validation.
func NewWishlistService(deps WishlistServiceDeps) (WishlistService, error) {
	if deps.Repository == nil {
		return nil, errWishlistRepositoryRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &wishlistService{
		repo:      deps.Repository,
		publisher: deps.Publisher,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
		newID:     idGen,
		locks:     make(map[string]*toggleLock),
	}, nil
}

func (s *wishlistService) List(ctx context.Context, userID string) ([]WishlistEntry, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, ErrWishlistUnauthenticated
	}
	entries, err := s.repo.List(ctx, uid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return entries, nil
}

func (s *wishlistService) Contains(ctx context.Context, userID string, productID int64) (bool, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return false, nil
	}
	if productID <= 0 {
		return false, ErrWishlistInvalidInput
	}
	ok, err := s.repo.Contains(ctx, uid, productID)
	if err != nil {
		return false, s.translateRepoError(err)
	}
	return ok, nil
}

func (s *wishlistService) Toggle(ctx context.Context, userID string, productID int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "wishlist.Toggle")
	defer span.End()
	span.SetAttributes(attribute.Int64("wishlist.product_id", productID))

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return false, recordSpanError(span, ErrWishlistUnauthenticated)
	}
	if productID <= 0 {
		return false, recordSpanError(span, ErrWishlistInvalidInput)
	}

	key := toggleKey(uid, productID)
	if err := s.acquire(ctx, key); err != nil {
		return false, recordSpanError(span, err)
	}
	defer s.release(key)

	added, err := s.repo.Toggle(ctx, uid, productID, s.now())
	if err != nil {
		return false, recordSpanError(span, s.translateRepoError(err))
	}

	action := WishlistActionRemoved
	if added {
		action = WishlistActionAdded
	}
	s.logger(ctx, "wishlist.toggled", map[string]any{
		"userId":    uid,
		"productId": productID,
		"action":    action,
	})
	s.publish(ctx, WishlistEvent{
		EventID:    s.newID(),
		UserID:     uid,
		ProductID:  productID,
		Action:     action,
		OccurredAt: s.now(),
	})
	return added, nil
}

func (s *wishlistService) Mutating(userID string, productID int64) bool {
	key := toggleKey(strings.TrimSpace(userID), productID)
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	return ok && lock.active
}

func (s *wishlistService) acquire(ctx context.Context, key string) error {
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &toggleLock{sem: make(chan struct{}, 1)}
		s.locks[key] = lock
	}
	lock.holders++
	s.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
		s.mu.Lock()
		lock.active = true
		s.mu.Unlock()
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		s.dropHolderLocked(key, lock)
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *wishlistService) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		return
	}
	lock.active = false
	<-lock.sem
	s.dropHolderLocked(key, lock)
}

func (s *wishlistService) dropHolderLocked(key string, lock *toggleLock) {
	lock.holders--
	if lock.holders <= 0 {
		delete(s.locks, key)
	}
}

func (s *wishlistService) publish(ctx context.Context, event WishlistEvent) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishWishlistEvent(ctx, event); err != nil {
		s.logger(ctx, "wishlist.publish_failed", map[string]any{
			"eventId": event.EventID,
			"error":   err.Error(),
		})
	}
}

func (s *wishlistService) translateRepoError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrWishlistUnavailable, err)
	}
}

func toggleKey(userID string, productID int64) string {
	return fmt.Sprintf("%s|%d", userID, productID)
}
