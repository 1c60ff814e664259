package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/avasa-home/checkout/internal/domain"
)

// RazorpayProvider builds checkout widget handoffs and prechecks widget
// callbacks for the Razorpay gateway. The authoritative payment verification
// stays server-side with the commerce API; the local signature check is an
// early rejection for obviously forged callbacks and runs only when the key
// secret is configured.
type RazorpayProvider struct {
	keyID     string
	keySecret string
	currency  string
}

// NewRazorpayProvider constructs the provider. keySecret may be empty, which
// disables the local signature precheck.
func NewRazorpayProvider(keyID, keySecret, currency string) (*RazorpayProvider, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "INR"
	}
	return &RazorpayProvider{
		keyID:     strings.TrimSpace(keyID),
		keySecret: strings.TrimSpace(keySecret),
		currency:  currency,
	}, nil
}

// BuildHandoff prepares the widget payload. The key returned by the order
// endpoint wins over the locally configured key id.
func (p *RazorpayProvider) BuildHandoff(order domain.GatewayOrder, profile domain.Profile) (Handoff, error) {
	orderRef := strings.TrimSpace(order.OrderID)
	if orderRef == "" {
		return Handoff{}, errors.New("payments: gateway order reference is required")
	}
	key := strings.TrimSpace(order.Key)
	if key == "" {
		key = p.keyID
	}
	if key == "" {
		return Handoff{}, errors.New("payments: razorpay key is not configured")
	}
	if order.Amount <= 0 {
		return Handoff{}, errors.New("payments: gateway amount must be positive")
	}
	return Handoff{
		Key:      key,
		OrderRef: orderRef,
		Amount:   order.Amount,
		Currency: p.currency,
		Prefill: Prefill{
			Name:    strings.TrimSpace(profile.Name),
			Email:   strings.TrimSpace(profile.Email),
			Contact: strings.TrimSpace(profile.Mobile),
		},
	}, nil
}

// PrecheckCallback requires all three gateway identifiers and, when the key
// secret is available, verifies the HMAC-SHA256 signature Razorpay computes
// over "order_id|payment_id".
func (p *RazorpayProvider) PrecheckCallback(cb domain.PaymentCallback) error {
	orderID := strings.TrimSpace(cb.OrderID)
	paymentID := strings.TrimSpace(cb.PaymentID)
	signature := strings.TrimSpace(cb.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrIncompleteCallback
	}
	if p.keySecret == "" {
		return nil
	}

	mac := hmac.New(sha256.New, []byte(p.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
