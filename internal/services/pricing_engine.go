package services

import (
	"context"
	"errors"

	"github.com/avasa-home/checkout/internal/domain"
)

// PricingEngineDeps bundles the dependencies of the pricing engine.
type PricingEngineDeps struct {
	Shipping ShippingGateway
	Session  IdentitySource
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type pricingEngine struct {
	shipping ShippingGateway
	session  IdentitySource
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewPricingEngine builds the snapshot calculator. Tax and the shipping
// fallback are local rules; the carrier rate for a stored address comes from
// the shipping gateway when one is reachable.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.Shipping == nil {
		return nil, errors.New("pricing engine requires a shipping gateway")
	}
	if deps.Session == nil {
		return nil, errors.New("pricing engine requires a session")
	}
	if deps.Logger == nil {
		deps.Logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingEngine{
		shipping: deps.Shipping,
		session:  deps.Session,
		logger:   deps.Logger,
	}, nil
}

func (e *pricingEngine) Quote(ctx context.Context, lines []domain.CartLine, selected *domain.Address, coupon domain.CouponState) domain.PricingSnapshot {
	subtotal := domain.Subtotal(lines)
	shipping := e.shippingCharge(ctx, subtotal, selected)
	return domain.ComputePricing(lines, shipping, coupon)
}

func (e *pricingEngine) shippingCharge(ctx context.Context, subtotal float64, selected *domain.Address) float64 {
	if selected == nil || selected.ID == "" {
		return domain.FallbackShipping(subtotal)
	}
	identity := e.session.Identity()
	if !identity.IsAuthenticated() {
		return domain.FallbackShipping(subtotal)
	}
	charge, err := e.shipping.CalculateShipping(ctx, identity.Credentials().Bearer, selected.ID)
	if err != nil {
		// The quote stays usable on carrier failure; the order submit path
		// recomputes with whatever charge is current.
		e.logger(ctx, "pricing.shipping_fallback", map[string]any{
			"address_id": selected.ID,
			"error":      err.Error(),
		})
		return domain.FallbackShipping(subtotal)
	}
	return charge
}
