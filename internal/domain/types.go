package domain

import (
	"time"
)

// CartLine stores a single purchasable entry within a cart. Lines are kept in
// the order the commerce API returns them.
type CartLine struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	VariantID    string `json:"variant_id,omitempty"`
	ProductName  string `json:"product_name"`
	VariantLabel string `json:"variant_label,omitempty"`
	UnitPrice    Amount `json:"unit_price"`
	Quantity     int    `json:"quantity"`
	ImageURL     string `json:"image_url,omitempty"`
}

// LineTotal returns the extended price for the line.
func (l CartLine) LineTotal() float64 {
	if l.Quantity < 1 {
		return 0
	}
	return float64(l.UnitPrice) * float64(l.Quantity)
}

// Address represents a shipping address owned by an authenticated account.
type Address struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ContactNo  string `json:"contact_no"`
	Email      string `json:"email,omitempty"`
	Line1      string `json:"address_line1"`
	Line2      string `json:"address_line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
	IsDefault  bool   `json:"is_default"`
}

// Profile caches display fields for the account, used to prefill the payment
// widget. Not authoritative; the commerce API owns the account record.
type Profile struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

// CouponState tracks the discount code applied to the active cart, if any.
type CouponState struct {
	Code           string  `json:"code,omitempty"`
	DiscountAmount float64 `json:"discount_amount"`
	Applied        bool    `json:"applied"`
}

// PricingSnapshot is derived from the cart, selected address, and coupon state.
// It is recomputed on every input change and never stored.
type PricingSnapshot struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Shipping float64 `json:"shipping"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

// OrderStatus enumerates order lifecycle states the orchestrator submits or
// observes.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment completion.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted indicates payment has been verified.
	OrderStatusCompleted OrderStatus = "completed"
)

// OrderRequest is the flattened order payload the commerce API accepts.
type OrderRequest struct {
	Status          OrderStatus
	PaymentStatus   OrderStatus
	ShippingAddress string
	ShippingCharge  float64
	CouponCode      string
}

// GatewayOrder carries the payment-gateway handoff references returned when an
// order requires an external payment step.
type GatewayOrder struct {
	OrderID string
	Key     string
	Amount  int64
}

// PaymentCallback holds the three gateway-issued identifiers reported by the
// payment widget on success.
type PaymentCallback struct {
	OrderID   string
	PaymentID string
	Signature string
}

// OTPStep enumerates the states of an identity verification challenge.
type OTPStep string

const (
	// OTPStepIdle indicates no challenge is in flight.
	OTPStepIdle OTPStep = "idle"
	// OTPStepSent indicates a code has been dispatched and awaits entry.
	OTPStepSent OTPStep = "sent"
	// OTPStepVerifying indicates a submitted code is being checked upstream.
	OTPStepVerifying OTPStep = "verifying"
)

// SessionState is the persisted client-side contract: the bearer token, the
// temporary cart identifier, and cached profile display fields.
type SessionState struct {
	BearerToken string    `json:"bearer_token,omitempty"`
	TempCartID  string    `json:"temp_cart_id,omitempty"`
	Profile     Profile   `json:"profile"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}
