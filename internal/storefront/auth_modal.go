package storefront

import (
	"strings"
	"sync"
)

// AuthMode selects which form the auth modal shows.
type AuthMode string

const (
	ModeLogin  AuthMode = "login"
	ModeSignup AuthMode = "signup"
)

// ParseAuthMode normalises a client supplied mode. Anything unrecognised is ModeLogin.
func ParseAuthMode(raw string) AuthMode {
	switch AuthMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeSignup:
		return ModeSignup
	default:
		return ModeLogin
	}
}

// AuthModalState is the serialisable snapshot returned to clients.
type AuthModalState struct {
	Open bool     `json:"open"`
	Mode AuthMode `json:"mode"`
}

// AuthModal tracks whether the sign-in dialog is showing and in which mode. The zero value is
// closed in login mode and ready to use.
type AuthModal struct {
	mu   sync.Mutex
	open bool
	mode AuthMode
}

// NewAuthModal returns a closed modal.
func NewAuthModal() *AuthModal {
	return &AuthModal{mode: ModeLogin}
}

// Open shows the modal in the given mode.
func (m *AuthModal) Open(mode AuthMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	m.mode = ParseAuthMode(string(mode))
}

// Close hides the modal. The last mode is kept so reopening without a mode is stable.
func (m *AuthModal) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
}

func (m *AuthModal) State() AuthModalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode := m.mode
	if mode == "" {
		mode = ModeLogin
	}
	return AuthModalState{Open: m.open, Mode: mode}
}
