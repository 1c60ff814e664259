package domain

import (
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// TaxRate is the fixed GST rate applied to the cart subtotal.
	TaxRate = 0.18
	// FreeShippingThreshold is the subtotal strictly above which the local
	// shipping fallback charges nothing.
	FreeShippingThreshold = 1000.0
	// FallbackShippingFee is the flat fee charged by the local fallback rule
	// when the shipping endpoint is unreachable.
	FallbackShippingFee = 99.0
)

// Amount is a monetary value that tolerates the commerce API returning prices
// either as JSON numbers or comma-formatted strings ("1,299.00"). Unparsable
// values decode to zero rather than failing the whole payload.
type Amount float64

// UnmarshalJSON accepts numbers, quoted numbers, and comma-grouped strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*a = 0
		return nil
	}
	switch v := raw.(type) {
	case float64:
		*a = Amount(v)
	case string:
		*a = Amount(ParseAmount(v))
	default:
		*a = 0
	}
	return nil
}

// MarshalJSON renders the amount as a plain JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(a))
}

// ParseAmount converts a price string to a float, stripping digit grouping
// commas and surrounding whitespace. Unparsable input yields 0.
func ParseAmount(value string) float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// Subtotal sums the extended line prices over the cart. Arithmetic is carried
// in full precision; rounding happens only in the display formatter.
func Subtotal(lines []CartLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.LineTotal()
	}
	return total
}

// FallbackShipping applies the deterministic local rule used when the shipping
// endpoint fails: free strictly above the threshold, flat fee otherwise.
func FallbackShipping(subtotal float64) float64 {
	if subtotal > FreeShippingThreshold {
		return 0
	}
	return FallbackShippingFee
}

// ComputePricing derives the payable snapshot from the cart lines, the
// resolved shipping cost, and the coupon state.
func ComputePricing(lines []CartLine, shipping float64, coupon CouponState) PricingSnapshot {
	subtotal := Subtotal(lines)
	tax := subtotal * TaxRate
	discount := 0.0
	if coupon.Applied {
		discount = coupon.DiscountAmount
	}
	return PricingSnapshot{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    subtotal + tax + shipping - discount,
	}
}

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders an amount with the rupee symbol and Indian digit grouping
// for display surfaces.
func FormatINR(value float64) string {
	return inrPrinter.Sprintf("%v", currency.Symbol(currency.INR.Amount(value)))
}
