package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
)

// ErrStoreRequired indicates the session was constructed without a store.
var ErrStoreRequired = errors.New("session: store is required")

// Identity is exactly one of Anonymous (temporary cart id, possibly empty) or
// Authenticated (bearer token). The constructors are the only way to build
// one, which keeps the xor invariant in this package.
type Identity struct {
	authenticated bool
	bearer        string
	tempCartID    string
}

// Anonymous builds an identity around a temporary cart id. An empty id is
// valid: the server assigns one on the first cart-mutating call.
func Anonymous(tempCartID string) Identity {
	return Identity{tempCartID: strings.TrimSpace(tempCartID)}
}

// Authenticated builds an identity around a bearer credential.
func Authenticated(bearer string) Identity {
	return Identity{authenticated: true, bearer: strings.TrimSpace(bearer)}
}

// IsAuthenticated reports whether the identity holds a bearer credential.
func (i Identity) IsAuthenticated() bool { return i.authenticated }

// TempCartID returns the temporary cart id for anonymous identities.
func (i Identity) TempCartID() string { return i.tempCartID }

// Credentials maps the identity onto the wire credentials attached to
// commerce calls. Authenticated identities never leak the temp id.
func (i Identity) Credentials() commerce.Credentials {
	if i.authenticated {
		return commerce.Credentials{Bearer: i.bearer}
	}
	return commerce.Credentials{CartID: i.tempCartID}
}

// Deps wires the dependencies required to resolve a session.
type Deps struct {
	Store Store
	Clock func() time.Time
	// ClientGeneratedCartID mints a temporary cart id locally instead of
	// waiting for the server to assign one.
	ClientGeneratedCartID bool
}

// Session owns the identity for one checkout session. It is the single writer
// of persisted identity state; every other component reads through it.
type Session struct {
	mu    sync.Mutex
	store Store
	state domain.SessionState
	clock func() time.Time
}

// New resolves the session from persisted state. An expired bearer token is
// discarded so the session falls back to anonymous rather than issuing calls
// that can only fail.
func New(deps Deps) (*Session, error) {
	if deps.Store == nil {
		return nil, ErrStoreRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	state, err := deps.Store.Load()
	if err != nil {
		return nil, err
	}

	if token := strings.TrimSpace(state.BearerToken); token != "" && tokenExpired(token, clock()) {
		state.BearerToken = ""
	}

	if state.BearerToken == "" && state.TempCartID == "" && deps.ClientGeneratedCartID {
		state.TempCartID = ulid.Make().String()
		state.UpdatedAt = clock().UTC()
		if err := deps.Store.Save(state); err != nil {
			return nil, err
		}
	}

	return &Session{store: deps.Store, state: state, clock: clock}, nil
}

// Identity resolves the current identity: Authenticated when a bearer token is
// held, Anonymous otherwise.
func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(s.state.BearerToken) != "" {
		return Authenticated(s.state.BearerToken)
	}
	return Anonymous(s.state.TempCartID)
}

// Profile returns the cached display fields used to prefill the payment
// widget.
func (s *Session) Profile() domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := s.state.Profile
	if token := strings.TrimSpace(s.state.BearerToken); token != "" {
		fillProfileFromToken(&profile, token)
	}
	return profile
}

// SetAuthenticated transitions the session to an authenticated identity,
// persisting the credential before returning. The temporary cart id is
// invalidated for cart purposes: the cart is re-homed server-side.
func (s *Session) SetAuthenticated(token string, profile domain.Profile) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("session: bearer token is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.BearerToken = token
	next.TempCartID = ""
	next.Profile = profile
	next.UpdatedAt = s.clock().UTC()
	if err := s.store.Save(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// CaptureTempCartID records a server-assigned temporary cart id for an
// anonymous session. Ignored once authenticated.
func (s *Session) CaptureTempCartID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(s.state.BearerToken) != "" || s.state.TempCartID == id {
		return nil
	}
	next := s.state
	next.TempCartID = id
	next.UpdatedAt = s.clock().UTC()
	if err := s.store.Save(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// Logout destroys the session identity and persisted state.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Clear(); err != nil {
		return err
	}
	s.state = domain.SessionState{}
	return nil
}

type tokenClaims struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile"`
	jwt.RegisteredClaims
}

// tokenExpired parses the bearer token without verifying its signature; the
// commerce API is the verifier. Tokens that do not parse are kept and left for
// the server to reject.
func tokenExpired(token string, now time.Time) bool {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && claims.ExpiresAt.Before(now)
}

func fillProfileFromToken(profile *domain.Profile, token string) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return
	}
	if profile.Name == "" {
		profile.Name = claims.Name
	}
	if profile.Email == "" {
		profile.Email = claims.Email
	}
	if profile.Mobile == "" {
		profile.Mobile = claims.Mobile
	}
}
