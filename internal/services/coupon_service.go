package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
)

const removeCouponTimeout = 5 * time.Second

var (
	// ErrEmptyCouponCode is returned for a blank code. No server call is made.
	ErrEmptyCouponCode = errors.New("coupon: enter a coupon code")
	// ErrLoginRequired is returned when an anonymous session tries to apply
	// a coupon. Callers surface the login prompt instead of dispatching.
	ErrLoginRequired = errors.New("coupon: login required")
	// ErrCouponRejected is returned when the upstream refuses the code.
	ErrCouponRejected = errors.New("coupon: not applicable")
)

// CouponServiceDeps bundles the dependencies of the coupon service.
type CouponServiceDeps struct {
	Gateway CouponGateway
	Session IdentitySource
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type couponService struct {
	gateway CouponGateway
	session IdentitySource
	logger  func(ctx context.Context, event string, fields map[string]any)

	mu    sync.Mutex
	state domain.CouponState
}

// NewCouponService builds the coupon controller. At most one coupon is
// applied at a time; a rejected apply leaves the previous state intact.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("coupon service requires a gateway")
	}
	if deps.Session == nil {
		return nil, errors.New("coupon service requires a session")
	}
	if deps.Logger == nil {
		deps.Logger = func(context.Context, string, map[string]any) {}
	}
	return &couponService{
		gateway: deps.Gateway,
		session: deps.Session,
		logger:  deps.Logger,
	}, nil
}

func (s *couponService) Apply(ctx context.Context, code string) (domain.CouponState, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return s.State(), ErrEmptyCouponCode
	}
	identity := s.session.Identity()
	if !identity.IsAuthenticated() {
		return s.State(), ErrLoginRequired
	}

	result, err := s.gateway.ApplyCoupon(ctx, identity.Credentials().Bearer, code)
	if err != nil {
		return s.State(), fmt.Errorf("%w: %s", ErrCouponRejected, commerce.UpstreamMessage(err, "coupon not applicable"))
	}

	s.mu.Lock()
	s.state = domain.CouponState{Code: code, DiscountAmount: result.Discount, Applied: true}
	state := s.state
	s.mu.Unlock()

	s.logger(ctx, "coupon.applied", map[string]any{"code": code, "discount": result.Discount})
	return state, nil
}

func (s *couponService) Remove(ctx context.Context) domain.CouponState {
	s.mu.Lock()
	prev := s.state
	s.state = domain.CouponState{}
	s.mu.Unlock()

	if !prev.Applied {
		return domain.CouponState{}
	}

	// Fire-and-forget: local state is already cleared and a server failure
	// here must not resurrect the discount.
	identity := s.session.Identity()
	if identity.IsAuthenticated() {
		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeCouponTimeout)
			defer cancel()
			if err := s.gateway.RemoveCoupon(ctx, identity.Credentials().Bearer, prev.Code); err != nil {
				s.logger(ctx, "coupon.remove_failed", map[string]any{"code": prev.Code, "error": err.Error()})
			}
		}()
	}
	return domain.CouponState{}
}

func (s *couponService) State() domain.CouponState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
