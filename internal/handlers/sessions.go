package handlers

import (
	"errors"
	"regexp"
	"sync"

	"github.com/avasa-home/checkout/internal/services"
)

// SessionHeader identifies the checkout session. The client mints the id and
// keeps presenting it; all state for the session hangs off this value.
const SessionHeader = "X-Checkout-Session"

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ErrInvalidSessionID is returned for a missing or malformed session header.
var ErrInvalidSessionID = errors.New("handlers: invalid session id")

// ControllerFactory builds the coordinator for a new session id.
type ControllerFactory func(sessionID string) (*services.Controller, error)

// SessionManager hands out one controller per session id, creating it on
// first use. Controllers serialize their own mutations, so the manager only
// guards the map.
type SessionManager struct {
	factory ControllerFactory

	mu          sync.Mutex
	controllers map[string]*services.Controller
}

// NewSessionManager constructs the per-session controller registry.
func NewSessionManager(factory ControllerFactory) (*SessionManager, error) {
	if factory == nil {
		return nil, errors.New("handlers: controller factory is required")
	}
	return &SessionManager{
		factory:     factory,
		controllers: make(map[string]*services.Controller),
	}, nil
}

// Controller resolves the coordinator for the session id.
func (m *SessionManager) Controller(sessionID string) (*services.Controller, error) {
	if !sessionIDRe.MatchString(sessionID) {
		return nil, ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.controllers[sessionID]; ok {
		return c, nil
	}
	c, err := m.factory(sessionID)
	if err != nil {
		return nil, err
	}
	m.controllers[sessionID] = c
	return c, nil
}
