package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/avasa-home/checkout/internal/domain"
)

func signedToken(t *testing.T, claims tokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestNew_AuthenticatedWinsOverTempCartID(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(domain.SessionState{BearerToken: signedToken(t, tokenClaims{}), TempCartID: "temp-1"})

	sess, err := New(Deps{Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	identity := sess.Identity()
	if !identity.IsAuthenticated() {
		t.Fatalf("expected authenticated identity")
	}
	creds := identity.Credentials()
	if creds.Bearer == "" || creds.CartID != "" {
		t.Fatalf("authenticated credentials must carry only the bearer, got %+v", creds)
	}
}

func TestNew_ExpiredTokenFallsBackToAnonymous(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	expired := signedToken(t, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour))},
	})
	store := NewMemoryStore()
	store.Seed(domain.SessionState{BearerToken: expired, TempCartID: "temp-7"})

	sess, err := New(Deps{Store: store, Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	identity := sess.Identity()
	if identity.IsAuthenticated() {
		t.Fatalf("expired token must not authenticate")
	}
	if identity.TempCartID() != "temp-7" {
		t.Fatalf("temp cart id lost: %q", identity.TempCartID())
	}
}

func TestNew_ClientGeneratedCartID(t *testing.T) {
	store := NewMemoryStore()
	sess, err := New(Deps{Store: store, ClientGeneratedCartID: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sess.Identity().TempCartID() == "" {
		t.Fatalf("expected minted temp cart id")
	}
	persisted, _ := store.Load()
	if persisted.TempCartID == "" {
		t.Fatalf("minted id must be persisted")
	}
}

func TestSetAuthenticated_InvalidatesTempCartID(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(domain.SessionState{TempCartID: "temp-3"})
	sess, err := New(Deps{Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	token := signedToken(t, tokenClaims{Name: "Asha"})
	if err := sess.SetAuthenticated(token, domain.Profile{Name: "Asha", Mobile: "9876543210"}); err != nil {
		t.Fatalf("SetAuthenticated: %v", err)
	}

	identity := sess.Identity()
	if !identity.IsAuthenticated() {
		t.Fatalf("expected authenticated identity after promotion")
	}
	persisted, _ := store.Load()
	if persisted.TempCartID != "" {
		t.Fatalf("temp cart id must be invalidated after promotion, got %q", persisted.TempCartID)
	}
	if persisted.BearerToken != token {
		t.Fatalf("bearer token must be persisted before returning")
	}
}

func TestCaptureTempCartID(t *testing.T) {
	store := NewMemoryStore()
	sess, err := New(Deps{Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sess.CaptureTempCartID("srv-assigned-1"); err != nil {
		t.Fatalf("CaptureTempCartID: %v", err)
	}
	if got := sess.Identity().TempCartID(); got != "srv-assigned-1" {
		t.Fatalf("temp cart id = %q", got)
	}

	// Once authenticated the temp id is ignored.
	if err := sess.SetAuthenticated(signedToken(t, tokenClaims{}), domain.Profile{}); err != nil {
		t.Fatalf("SetAuthenticated: %v", err)
	}
	if err := sess.CaptureTempCartID("srv-assigned-2"); err != nil {
		t.Fatalf("CaptureTempCartID: %v", err)
	}
	persisted, _ := store.Load()
	if persisted.TempCartID != "" {
		t.Fatalf("authenticated session must not record temp cart ids")
	}
}

func TestProfile_PrefilledFromTokenClaims(t *testing.T) {
	token := signedToken(t, tokenClaims{Name: "Asha Rao", Email: "asha@example.in", Mobile: "9876543210"})
	store := NewMemoryStore()
	store.Seed(domain.SessionState{BearerToken: token})
	sess, err := New(Deps{Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	profile := sess.Profile()
	if profile.Name != "Asha Rao" || profile.Mobile != "9876543210" {
		t.Fatalf("profile not filled from claims: %+v", profile)
	}
}

func TestFileStore_RoundTripAndLogout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	sess, err := New(Deps{Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sess.CaptureTempCartID("temp-file-1"); err != nil {
		t.Fatalf("CaptureTempCartID: %v", err)
	}

	reloaded, err := New(Deps{Store: store})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Identity().TempCartID() != "temp-file-1" {
		t.Fatalf("state did not survive reload")
	}

	if err := reloaded.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	fresh, err := New(Deps{Store: store})
	if err != nil {
		t.Fatalf("fresh: %v", err)
	}
	if fresh.Identity().IsAuthenticated() || fresh.Identity().TempCartID() != "" {
		t.Fatalf("logout must destroy persisted identity")
	}
}
