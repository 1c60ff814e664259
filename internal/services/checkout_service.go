package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
	"github.com/avasa-home/checkout/internal/payments"
)

var (
	// ErrNoAddressSelected is returned when no shipping address is chosen.
	ErrNoAddressSelected = errors.New("checkout: select a shipping address")
	// ErrCartEmpty is returned when the cart has no lines at submit time.
	ErrCartEmpty = errors.New("checkout: cart is empty")
	// ErrStaleAddressSelection is returned when the selected address id is no
	// longer present in the account's address list.
	ErrStaleAddressSelection = errors.New("checkout: selected address no longer exists")
	// ErrOrderInFlight is returned when a submission is already running.
	ErrOrderInFlight = errors.New("checkout: order submission already in progress")
	// ErrOrderRejected is returned when the upstream refuses the order.
	ErrOrderRejected = errors.New("checkout: order could not be placed")
	// ErrPaymentRejected is returned when payment verification fails. The
	// order stays pending upstream.
	ErrPaymentRejected = errors.New("checkout: payment verification failed")
)

// CheckoutServiceDeps bundles the dependencies of the checkout service.
type CheckoutServiceDeps struct {
	Gateway  OrderGateway
	Session  IdentitySource
	Payments *payments.Manager
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	gateway  OrderGateway
	session  IdentitySource
	payments *payments.Manager
	logger   func(ctx context.Context, event string, fields map[string]any)

	placing atomic.Bool
}

// NewCheckoutService builds the order submitter.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("checkout service requires a gateway")
	}
	if deps.Session == nil {
		return nil, errors.New("checkout service requires a session")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service requires a payments manager")
	}
	if deps.Logger == nil {
		deps.Logger = func(context.Context, string, map[string]any) {}
	}
	return &checkoutService{
		gateway:  deps.Gateway,
		session:  deps.Session,
		payments: deps.Payments,
		logger:   deps.Logger,
	}, nil
}

func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	if strings.TrimSpace(cmd.SelectedAddressID) == "" {
		return PlaceOrderResult{}, ErrNoAddressSelected
	}
	if len(cmd.Lines) == 0 {
		return PlaceOrderResult{}, ErrCartEmpty
	}
	selected, ok := findAddress(cmd.Addresses, cmd.SelectedAddressID)
	if !ok {
		return PlaceOrderResult{}, ErrStaleAddressSelection
	}

	if !s.placing.CompareAndSwap(false, true) {
		return PlaceOrderResult{}, ErrOrderInFlight
	}
	defer s.placing.Store(false)

	req := domain.OrderRequest{
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.OrderStatusPending,
		ShippingAddress: formatShippingAddress(selected),
		ShippingCharge:  cmd.ShippingCharge,
	}
	if cmd.Coupon.Applied {
		req.CouponCode = cmd.Coupon.Code
	}

	outcome, err := s.gateway.CreateOrder(ctx, s.session.Identity().Credentials(), req)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("%w: %s", ErrOrderRejected, commerce.UpstreamMessage(err, "order could not be placed"))
	}

	if outcome.Gateway != nil {
		handoff, err := s.payments.BuildHandoff("", *outcome.Gateway, s.session.Profile())
		if err != nil {
			return PlaceOrderResult{}, fmt.Errorf("checkout: payment handoff: %w", err)
		}
		s.logger(ctx, "order.awaiting_payment", map[string]any{"order_ref": outcome.Gateway.OrderID})
		return PlaceOrderResult{Handoff: &handoff}, nil
	}

	s.logger(ctx, "order.completed", map[string]any{"address_id": selected.ID})
	return PlaceOrderResult{Completed: true}, nil
}

func (s *checkoutService) ConfirmPayment(ctx context.Context, cb domain.PaymentCallback) error {
	if err := s.payments.PrecheckCallback("", cb); err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentRejected, err)
	}
	if err := s.gateway.VerifyPayment(ctx, s.session.Identity().Credentials(), cb); err != nil {
		return fmt.Errorf("%w: %s", ErrPaymentRejected, commerce.UpstreamMessage(err, "payment verification failed"))
	}
	s.logger(ctx, "order.payment_confirmed", map[string]any{"order_ref": cb.OrderID})
	return nil
}

func findAddress(addresses []domain.Address, id string) (domain.Address, bool) {
	for _, a := range addresses {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Address{}, false
}

// formatShippingAddress flattens a stored address into the single line the
// order endpoint expects.
func formatShippingAddress(a domain.Address) string {
	parts := []string{a.Name, a.ContactNo, a.City, a.State, a.Country, a.PostalCode, a.Line1}
	if strings.TrimSpace(a.Line2) != "" {
		parts = append(parts, a.Line2)
	}
	return strings.Join(parts, ", ")
}
