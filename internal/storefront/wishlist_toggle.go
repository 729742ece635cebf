package storefront

import (
	"context"
	"errors"
	"strings"
)

// Notification messages shown after a toggle.
const (
	MessageWishlistAdded   = "Added to wishlist"
	MessageWishlistRemoved = "Removed from wishlist"
	MessageWishlistFailed  = "Could not update wishlist"
)

// NotificationKind classifies a toast.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

// Notification is a user-facing toast emitted by the toggle.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
}

// User is the signed-in shopper as seen by view models.
type User struct {
	ID          string
	Email       string
	DisplayName string
}

// ToggleResult reports what Activate did.
type ToggleResult string

const (
	ToggleAdded        ToggleResult = "added"
	ToggleRemoved      ToggleResult = "removed"
	ToggleAuthRequired ToggleResult = "auth_required"
	ToggleBusy         ToggleResult = "busy"
	ToggleFailed       ToggleResult = "failed"
)

// Wishlist is the membership service the toggle delegates to.
type Wishlist interface {
	Contains(ctx context.Context, userID string, productID int64) (bool, error)
	Toggle(ctx context.Context, userID string, productID int64) (bool, error)
	Mutating(userID string, productID int64) bool
}

// WishlistToggleDeps wires a toggle for one product.
type WishlistToggleDeps struct {
	ProductID      int64
	Wishlist       Wishlist
	CurrentUser    func() *User
	OnAuthRequired func()
	Notify         func(Notification)
}

// WishlistToggle is the heart button on a product card. It owns no membership state; every read
// goes to the wishlist service.
type WishlistToggle struct {
	productID      int64
	wishlist       Wishlist
	currentUser    func() *User
	onAuthRequired func()
	notify         func(Notification)
}

// NewWishlistToggle validates deps and fills no-op callbacks.
func NewWishlistToggle(deps WishlistToggleDeps) (*WishlistToggle, error) {
	if deps.Wishlist == nil {
		return nil, errors.New("wishlist toggle: wishlist is required")
	}
	if deps.ProductID <= 0 {
		return nil, errors.New("wishlist toggle: product id must be positive")
	}
	t := &WishlistToggle{
		productID:      deps.ProductID,
		wishlist:       deps.Wishlist,
		currentUser:    deps.CurrentUser,
		onAuthRequired: deps.OnAuthRequired,
		notify:         deps.Notify,
	}
	if t.currentUser == nil {
		t.currentUser = func() *User { return nil }
	}
	if t.onAuthRequired == nil {
		t.onAuthRequired = func() {}
	}
	if t.notify == nil {
		t.notify = func(Notification) {}
	}
	return t, nil
}

// ProductID returns the product this toggle controls.
func (t *WishlistToggle) ProductID() int64 {
	return t.productID
}

func (t *WishlistToggle) userID() string {
	user := t.currentUser()
	if user == nil {
		return ""
	}
	return strings.TrimSpace(user.ID)
}

// InWishlist reports membership for the current user. Anonymous shoppers never have members.
func (t *WishlistToggle) InWishlist(ctx context.Context) (bool, error) {
	uid := t.userID()
	if uid == "" {
		return false, nil
	}
	return t.wishlist.Contains(ctx, uid, t.productID)
}

// Disabled is true while a toggle for this user and product is in flight.
func (t *WishlistToggle) Disabled() bool {
	uid := t.userID()
	if uid == "" {
		return false
	}
	return t.wishlist.Mutating(uid, t.productID)
}

// Activate handles a click. Failures are reported through Notify and the returned result; the
// error is only for callers that want to log it.
func (t *WishlistToggle) Activate(ctx context.Context) (ToggleResult, error) {
	uid := t.userID()
	if uid == "" {
		t.onAuthRequired()
		return ToggleAuthRequired, nil
	}
	if t.wishlist.Mutating(uid, t.productID) {
		return ToggleBusy, nil
	}

	added, err := t.wishlist.Toggle(ctx, uid, t.productID)
	if err != nil {
		t.notify(Notification{Kind: NotificationError, Message: MessageWishlistFailed})
		return ToggleFailed, err
	}
	if added {
		t.notify(Notification{Kind: NotificationSuccess, Message: MessageWishlistAdded})
		return ToggleAdded, nil
	}
	t.notify(Notification{Kind: NotificationSuccess, Message: MessageWishlistRemoved})
	return ToggleRemoved, nil
}
