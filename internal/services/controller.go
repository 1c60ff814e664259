package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
)

// CheckoutState is the full view of one checkout session, assembled after
// every mutation so callers always render from a consistent snapshot.
type CheckoutState struct {
	Authenticated     bool                   `json:"authenticated"`
	Profile           domain.Profile         `json:"profile"`
	Lines             []domain.CartLine      `json:"lines"`
	Addresses         []domain.Address       `json:"addresses"`
	SelectedAddressID string                 `json:"selected_address_id"`
	AddressFormOpen   bool                   `json:"address_form_open"`
	OTPStep           domain.OTPStep         `json:"otp_step"`
	OTPFocus          int                    `json:"otp_focus"`
	OTPError          string                 `json:"otp_error,omitempty"`
	Coupon            domain.CouponState     `json:"coupon"`
	Pricing           domain.PricingSnapshot `json:"pricing"`
	DisplayTotal      string                 `json:"display_total"`
}

// ControllerDeps bundles the services a checkout session coordinates.
type ControllerDeps struct {
	Session      IdentitySource
	Cart         CartService
	Addresses    AddressService
	OTP          OTPService
	Registration RegistrationService
	Pricing      PricingEngine
	Coupons      CouponService
	Checkout     CheckoutService
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// Controller coordinates one checkout session: it resolves identity, loads
// the cart and addresses, keeps the pricing snapshot current, and funnels
// every mutation through a single lock so concurrent requests for the same
// session serialize.
type Controller struct {
	deps ControllerDeps

	mu        sync.Mutex
	lines     []domain.CartLine
	addresses []domain.Address
	selected  string
	pricing   domain.PricingSnapshot
}

// NewController builds the session coordinator.
func NewController(deps ControllerDeps) (*Controller, error) {
	switch {
	case deps.Session == nil:
		return nil, errors.New("controller requires a session")
	case deps.Cart == nil:
		return nil, errors.New("controller requires a cart service")
	case deps.Addresses == nil:
		return nil, errors.New("controller requires an address service")
	case deps.OTP == nil:
		return nil, errors.New("controller requires an otp service")
	case deps.Registration == nil:
		return nil, errors.New("controller requires a registration service")
	case deps.Pricing == nil:
		return nil, errors.New("controller requires a pricing engine")
	case deps.Coupons == nil:
		return nil, errors.New("controller requires a coupon service")
	case deps.Checkout == nil:
		return nil, errors.New("controller requires a checkout service")
	}
	if deps.Logger == nil {
		deps.Logger = func(context.Context, string, map[string]any) {}
	}
	return &Controller{deps: deps}, nil
}

// Load resolves the session identity and assembles the initial state: cart
// first, then the address book for authenticated sessions with the default
// address auto-selected and priced.
func (c *Controller) Load(ctx context.Context) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.reloadLocked(ctx)
	c.repriceLocked(ctx)
	return c.stateLocked(), err
}

// State returns the current snapshot without touching the upstream.
func (c *Controller) State(ctx context.Context) CheckoutState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repriceLocked(ctx)
	return c.stateLocked()
}

func (c *Controller) AddItem(ctx context.Context, req commerce.AddItemRequest) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines, err := c.deps.Cart.AddItem(ctx, req)
	c.lines = lines
	c.repriceLocked(ctx)
	return c.stateLocked(), err
}

func (c *Controller) UpdateQuantity(ctx context.Context, lineID string, quantity int) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.deps.Cart.UpdateQuantity(ctx, lineID, quantity)
	c.lines = c.deps.Cart.Lines()
	c.repriceLocked(ctx)
	return c.stateLocked(), err
}

func (c *Controller) RemoveLine(ctx context.Context, lineID string) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.deps.Cart.RemoveLine(ctx, lineID)
	c.lines = c.deps.Cart.Lines()
	c.repriceLocked(ctx)
	return c.stateLocked(), err
}

// SelectShippingAddress changes the active address and reprices.
func (c *Controller) SelectShippingAddress(ctx context.Context, addressID string) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := findAddress(c.addresses, addressID); !ok {
		return c.stateLocked(), ErrStaleAddressSelection
	}
	c.selected = addressID
	c.repriceLocked(ctx)
	return c.stateLocked(), nil
}

// CreateAddress validates and stores a new address. For a guest session the
// write is deferred behind the OTP challenge: the code is sent to the form's
// contact number and, once verified, the guest is promoted and the address
// write replays under the new account.
func (c *Controller) CreateAddress(ctx context.Context, form AddressForm) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.deps.Addresses.Create(ctx, form)
	switch {
	case err == nil:
		err = c.reloadAddressesLocked(ctx)
	case errors.Is(err, ErrVerificationRequired):
		err = c.deps.OTP.Begin(ctx, strings.TrimSpace(form.ContactNo), func(ctx context.Context) error {
			return c.completeGuestAddressLocked(ctx, form)
		})
	}
	c.repriceLocked(ctx)
	return c.stateLocked(), err
}

// completeGuestAddressLocked runs as the OTP continuation while the
// controller lock is already held by the submitting call.
func (c *Controller) completeGuestAddressLocked(ctx context.Context, form AddressForm) error {
	cmd := PromoteGuestCommand{
		Name:   strings.TrimSpace(form.Name),
		Email:  strings.TrimSpace(form.Email),
		Mobile: strings.TrimSpace(form.ContactNo),
	}
	if err := c.deps.Registration.PromoteGuest(ctx, cmd); err != nil {
		return err
	}
	if err := c.deps.Addresses.Create(ctx, form); err != nil {
		return err
	}
	// The cart was re-homed under the new account; reload everything.
	return c.reloadLocked(ctx)
}

func (c *Controller) EditAddress(ctx context.Context, addressID string, form AddressForm) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.deps.Addresses.Edit(ctx, addressID, form)
	if err == nil {
		err = c.reloadAddressesLocked(ctx)
	}
	c.repriceLocked(ctx)
	return c.stateLocked(), err
}

func (c *Controller) DeleteAddress(ctx context.Context, addressID string) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	addresses, err := c.deps.Addresses.Delete(ctx, addressID)
	if err == nil {
		c.addresses = addresses
		c.reselectLocked()
	}
	c.repriceLocked(ctx)
	return c.stateLocked(), err
}

func (c *Controller) EnterOTPDigit(d byte) { c.deps.OTP.EnterDigit(d) }

func (c *Controller) OTPBackspace() { c.deps.OTP.Backspace() }

func (c *Controller) PasteOTP(code string) { c.deps.OTP.Paste(code) }

// SubmitOTP verifies the entered code. On success the armed continuation
// (guest promotion plus the deferred address write) runs before this returns.
func (c *Controller) SubmitOTP(ctx context.Context) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.deps.OTP.Submit(ctx)
	c.repriceLocked(ctx)
	return c.stateLocked(), err
}

func (c *Controller) ResendOTP(ctx context.Context) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.deps.OTP.Resend(ctx)
	return c.stateLocked(), err
}

func (c *Controller) CancelOTP(ctx context.Context) CheckoutState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.OTP.Cancel()
	return c.stateLocked()
}

func (c *Controller) ApplyCoupon(ctx context.Context, code string) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.deps.Coupons.Apply(ctx, code)
	c.repriceLocked(ctx)
	return c.stateLocked(), err
}

func (c *Controller) RemoveCoupon(ctx context.Context) CheckoutState {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deps.Coupons.Remove(ctx)
	c.repriceLocked(ctx)
	return c.stateLocked()
}

// PlaceOrder submits the order from an atomic read of the session state.
func (c *Controller) PlaceOrder(ctx context.Context) (PlaceOrderResult, CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := PlaceOrderCommand{
		Lines:             c.lines,
		Addresses:         c.addresses,
		SelectedAddressID: c.selected,
		ShippingCharge:    c.pricing.Shipping,
		Coupon:            c.deps.Coupons.State(),
	}
	result, err := c.deps.Checkout.PlaceOrder(ctx, cmd)
	if err != nil {
		return PlaceOrderResult{}, c.stateLocked(), err
	}
	if result.Completed {
		c.finishOrderLocked(ctx)
	}
	return result, c.stateLocked(), nil
}

// ConfirmPayment verifies the gateway callback and, on success, resets the
// consumed cart.
func (c *Controller) ConfirmPayment(ctx context.Context, cb domain.PaymentCallback) (CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.deps.Checkout.ConfirmPayment(ctx, cb); err != nil {
		return c.stateLocked(), err
	}
	c.finishOrderLocked(ctx)
	return c.stateLocked(), nil
}

// finishOrderLocked clears local order inputs after a completed purchase.
func (c *Controller) finishOrderLocked(ctx context.Context) {
	c.deps.Coupons.Remove(ctx)
	if lines, err := c.deps.Cart.Load(ctx); err == nil {
		c.lines = lines
	} else {
		c.lines = nil
	}
	c.repriceLocked(ctx)
}

func (c *Controller) reloadLocked(ctx context.Context) error {
	lines, err := c.deps.Cart.Load(ctx)
	c.lines = lines
	if err != nil {
		return err
	}
	return c.reloadAddressesLocked(ctx)
}

func (c *Controller) reloadAddressesLocked(ctx context.Context) error {
	addresses, err := c.deps.Addresses.List(ctx)
	if err != nil {
		return err
	}
	c.addresses = addresses
	c.reselectLocked()
	return nil
}

// reselectLocked keeps the user's explicit choice while it exists, otherwise
// falls back to the default-else-first rule.
func (c *Controller) reselectLocked() {
	if c.selected != "" {
		if _, ok := findAddress(c.addresses, c.selected); ok {
			return
		}
	}
	if addr, ok := SelectAddress(c.addresses); ok {
		c.selected = addr.ID
		return
	}
	c.selected = ""
}

func (c *Controller) repriceLocked(ctx context.Context) {
	var selected *domain.Address
	if addr, ok := findAddress(c.addresses, c.selected); ok {
		selected = &addr
	}
	c.pricing = c.deps.Pricing.Quote(ctx, c.lines, selected, c.deps.Coupons.State())
}

func (c *Controller) stateLocked() CheckoutState {
	identity := c.deps.Session.Identity()
	return CheckoutState{
		Authenticated:     identity.IsAuthenticated(),
		Profile:           c.deps.Session.Profile(),
		Lines:             c.lines,
		Addresses:         c.addresses,
		SelectedAddressID: c.selected,
		AddressFormOpen:   len(c.addresses) == 0,
		OTPStep:           c.deps.OTP.Step(),
		OTPFocus:          c.deps.OTP.Focus(),
		OTPError:          c.deps.OTP.LastError(),
		Coupon:            c.deps.Coupons.State(),
		Pricing:           c.pricing,
		DisplayTotal:      domain.FormatINR(c.pricing.Total),
	}
}
