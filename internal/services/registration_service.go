package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
)

// ErrPromotionFailed is returned when the upstream refuses to promote the
// guest. The session stays anonymous and no dependent write should proceed.
var ErrPromotionFailed = errors.New("registration: account creation failed")

// RegistrationServiceDeps bundles the dependencies of the registration
// service.
type RegistrationServiceDeps struct {
	Gateway AccountGateway
	Session IdentitySource
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type registrationService struct {
	gateway AccountGateway
	session IdentitySource
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewRegistrationService builds the service that promotes an anonymous
// guest into an authenticated account after OTP verification.
func NewRegistrationService(deps RegistrationServiceDeps) (RegistrationService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("registration service requires a gateway")
	}
	if deps.Session == nil {
		return nil, errors.New("registration service requires a session")
	}
	if deps.Logger == nil {
		deps.Logger = func(context.Context, string, map[string]any) {}
	}
	return &registrationService{
		gateway: deps.Gateway,
		session: deps.Session,
		logger:  deps.Logger,
	}, nil
}

func (s *registrationService) PromoteGuest(ctx context.Context, cmd PromoteGuestCommand) error {
	identity := s.session.Identity()
	if identity.IsAuthenticated() {
		return nil
	}

	result, err := s.gateway.MakeUser(ctx, commerce.MakeUserRequest{
		Name:   cmd.Name,
		Email:  cmd.Email,
		Mobile: cmd.Mobile,
		CartID: identity.TempCartID(),
	})
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPromotionFailed, commerce.UpstreamMessage(err, "account creation failed"))
	}

	profile := result.Profile
	if profile == (domain.Profile{}) {
		profile = domain.Profile{Name: cmd.Name, Email: cmd.Email, Mobile: cmd.Mobile}
	}

	// The bearer must be durable before any authenticated write fires, or
	// a crash in between would strand the new account.
	if err := s.session.SetAuthenticated(result.Token, profile); err != nil {
		return fmt.Errorf("registration: persist session: %w", err)
	}

	s.logger(ctx, "registration.promoted", map[string]any{"mobile": cmd.Mobile})
	return nil
}
