package services

import (
	"context"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
	"github.com/avasa-home/checkout/internal/payments"
	"github.com/avasa-home/checkout/internal/session"
)

// IdentitySource exposes the resolved session identity to services. The
// session owns all persisted identity state; services only read it, except
// for the two mutations the orchestration requires: capturing a
// server-assigned temporary cart id and the guest promotion hand-over.
type IdentitySource interface {
	Identity() session.Identity
	Profile() domain.Profile
	SetAuthenticated(token string, profile domain.Profile) error
	CaptureTempCartID(id string) error
}

// CartGateway is the slice of the commerce client the cart service consumes.
type CartGateway interface {
	FetchCart(ctx context.Context, creds commerce.Credentials) ([]domain.CartLine, error)
	AddCartItem(ctx context.Context, creds commerce.Credentials, req commerce.AddItemRequest) (commerce.AddItemResult, error)
	UpdateCartItem(ctx context.Context, creds commerce.Credentials, itemID string, quantity int) error
	RemoveCartItem(ctx context.Context, creds commerce.Credentials, itemID string) error
}

// AddressGateway is the slice of the commerce client the address service consumes.
type AddressGateway interface {
	ListAddresses(ctx context.Context, bearer string) ([]domain.Address, error)
	RegisterAddress(ctx context.Context, bearer string, addr domain.Address) error
	UpdateAddress(ctx context.Context, bearer, addressID string, addr domain.Address) error
	DeleteAddress(ctx context.Context, bearer, addressID string) error
}

// ShippingGateway computes shipping cost for a stored address.
type ShippingGateway interface {
	CalculateShipping(ctx context.Context, bearer, addressID string) (float64, error)
}

// OTPGateway dispatches and verifies one-time codes.
type OTPGateway interface {
	RequestOTP(ctx context.Context, mobile string) (commerce.OTPRequestOutcome, string, error)
	VerifyOTP(ctx context.Context, mobile, otp string) (commerce.OTPVerifyOutcome, string, error)
}

// AccountGateway creates accounts for guest promotion.
type AccountGateway interface {
	MakeUser(ctx context.Context, req commerce.MakeUserRequest) (commerce.MakeUserResult, error)
}

// CouponGateway applies and removes discount codes.
type CouponGateway interface {
	ApplyCoupon(ctx context.Context, bearer, code string) (commerce.ApplyCouponResult, error)
	RemoveCoupon(ctx context.Context, bearer, code string) error
}

// OrderGateway submits orders and verifies gateway payments.
type OrderGateway interface {
	CreateOrder(ctx context.Context, creds commerce.Credentials, req domain.OrderRequest) (commerce.OrderOutcome, error)
	VerifyPayment(ctx context.Context, creds commerce.Credentials, cb domain.PaymentCallback) error
}

// CartService owns the in-memory cart aggregate for one checkout session.
type CartService interface {
	// Load fetches the cart for the current identity. On failure the prior
	// in-memory cart is preserved.
	Load(ctx context.Context) ([]domain.CartLine, error)
	// Lines returns the current in-memory cart.
	Lines() []domain.CartLine
	// AddItem adds a line, capturing a server-assigned temporary cart id for
	// anonymous sessions, then reloads the cart.
	AddItem(ctx context.Context, req commerce.AddItemRequest) ([]domain.CartLine, error)
	// UpdateQuantity sets a line's quantity. Requests below 1 or equal to the
	// current quantity are no-ops.
	UpdateQuantity(ctx context.Context, lineID string, quantity int) error
	// RemoveLine deletes a line after server acknowledgment.
	RemoveLine(ctx context.Context, lineID string) error
}

// AddressForm carries the raw user input for address creation and editing.
type AddressForm struct {
	Name       string
	ContactNo  string
	Email      string
	Line1      string
	Line2      string
	City       string
	State      string
	Country    string
	PostalCode string
}

// AddressService manages the authenticated account's shipping addresses.
type AddressService interface {
	List(ctx context.Context) ([]domain.Address, error)
	// Create validates and writes a new address. For an anonymous identity it
	// refuses with ErrVerificationRequired; the caller must complete the OTP
	// and guest promotion flow first.
	Create(ctx context.Context, form AddressForm) error
	Edit(ctx context.Context, addressID string, form AddressForm) error
	// Delete removes the address and refetches the full list so selection
	// logic re-runs consistently.
	Delete(ctx context.Context, addressID string) ([]domain.Address, error)
}

// OTPService runs one identity verification challenge at a time.
type OTPService interface {
	// Begin requests a code for the mobile number and arms the continuation
	// invoked exactly once on successful verification.
	Begin(ctx context.Context, mobile string, continuation func(context.Context) error) error
	// EnterDigit, Backspace, and Paste mutate the code entry buffer.
	EnterDigit(d byte)
	Backspace()
	Paste(code string)
	// Submit verifies the entered code. Rejected client-side unless exactly
	// six digits are present.
	Submit(ctx context.Context) error
	// Resend re-dispatches the code, clearing entered digits.
	Resend(ctx context.Context) error
	// Cancel discards the challenge.
	Cancel()
	Step() domain.OTPStep
	Focus() int
	LastError() string
}

// PromoteGuestCommand carries the contact details collected for guest
// promotion. The temporary cart id comes from the session.
type PromoteGuestCommand struct {
	Name   string
	Email  string
	Mobile string
}

// RegistrationService converts an anonymous cart-holder into an account.
type RegistrationService interface {
	// PromoteGuest creates the account and persists the returned credential
	// before returning, so any pending address write sees an authenticated
	// identity.
	PromoteGuest(ctx context.Context, cmd PromoteGuestCommand) error
}

// PricingEngine derives the payable snapshot from the current inputs.
type PricingEngine interface {
	// Quote recomputes the snapshot. Shipping is fetched for the selected
	// address; on failure the deterministic local rule applies.
	Quote(ctx context.Context, lines []domain.CartLine, selected *domain.Address, coupon domain.CouponState) domain.PricingSnapshot
}

// CouponService tracks the applied/not-applied coupon state.
type CouponService interface {
	Apply(ctx context.Context, code string) (domain.CouponState, error)
	// Remove clears local coupon state unconditionally; the server
	// notification is best-effort.
	Remove(ctx context.Context) domain.CouponState
	State() domain.CouponState
}

// PlaceOrderCommand is the atomic read of checkout state at submit time.
type PlaceOrderCommand struct {
	Lines             []domain.CartLine
	Addresses         []domain.Address
	SelectedAddressID string
	ShippingCharge    float64
	Coupon            domain.CouponState
}

// PlaceOrderResult is either a direct completion or a payment widget handoff.
type PlaceOrderResult struct {
	Completed bool
	Handoff   *payments.Handoff
}

// CheckoutService creates the pending order and drives payment verification.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
	// ConfirmPayment verifies the gateway callback server-side. Only a
	// successful verification completes the order.
	ConfirmPayment(ctx context.Context, cb domain.PaymentCallback) error
}
