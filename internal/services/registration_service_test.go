package services

import (
	"context"
	"errors"
	"testing"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
	"github.com/avasa-home/checkout/internal/session"
)

func TestPromoteGuestPersistsBearerAndCartID(t *testing.T) {
	gateway := &stubAccountGateway{
		result: commerce.MakeUserResult{
			Token:   "bearer-1",
			Profile: domain.Profile{Name: "Asha Rao", Email: "asha@example.com", Mobile: "9876543210"},
		},
	}
	sess := &stubSession{identity: session.Anonymous("temp-42")}
	svc := newTestRegistrationService(t, gateway, sess)

	cmd := PromoteGuestCommand{Name: "Asha Rao", Email: "asha@example.com", Mobile: "9876543210"}
	if err := svc.PromoteGuest(context.Background(), cmd); err != nil {
		t.Fatalf("PromoteGuest: %v", err)
	}
	if gateway.lastReq.CartID != "temp-42" {
		t.Fatalf("expected temp cart id forwarded, got %q", gateway.lastReq.CartID)
	}
	if sess.token != "bearer-1" {
		t.Fatalf("expected bearer persisted, got %q", sess.token)
	}
	if !sess.identity.IsAuthenticated() {
		t.Fatal("expected authenticated identity after promotion")
	}
	if sess.profile.Name != "Asha Rao" {
		t.Fatalf("expected profile persisted, got %+v", sess.profile)
	}
}

func TestPromoteGuestAlreadyAuthenticatedNoOp(t *testing.T) {
	gateway := &stubAccountGateway{err: errors.New("must not be called")}
	sess := &stubSession{identity: session.Authenticated("existing")}
	svc := newTestRegistrationService(t, gateway, sess)

	if err := svc.PromoteGuest(context.Background(), PromoteGuestCommand{}); err != nil {
		t.Fatalf("PromoteGuest: %v", err)
	}
	if gateway.calls != 0 {
		t.Fatalf("expected no upstream call, got %d", gateway.calls)
	}
}

func TestPromoteGuestUpstreamRefusalStaysAnonymous(t *testing.T) {
	gateway := &stubAccountGateway{err: &commerce.APIError{Status: 422, Message: "email already registered"}}
	sess := &stubSession{identity: session.Anonymous("temp-42")}
	svc := newTestRegistrationService(t, gateway, sess)

	err := svc.PromoteGuest(context.Background(), PromoteGuestCommand{Mobile: "9876543210"})
	if !errors.Is(err, ErrPromotionFailed) {
		t.Fatalf("expected ErrPromotionFailed, got %v", err)
	}
	if sess.identity.IsAuthenticated() {
		t.Fatal("failed promotion must leave the session anonymous")
	}
}

func newTestRegistrationService(t *testing.T, gateway AccountGateway, sess IdentitySource) RegistrationService {
	t.Helper()
	svc, err := NewRegistrationService(RegistrationServiceDeps{Gateway: gateway, Session: sess})
	if err != nil {
		t.Fatalf("NewRegistrationService: %v", err)
	}
	return svc
}

type stubAccountGateway struct {
	result  commerce.MakeUserResult
	err     error
	calls   int
	lastReq commerce.MakeUserRequest
}

func (g *stubAccountGateway) MakeUser(ctx context.Context, req commerce.MakeUserRequest) (commerce.MakeUserResult, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return commerce.MakeUserResult{}, g.err
	}
	return g.result, nil
}
