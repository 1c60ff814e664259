package domain

import (
	"encoding/json"
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{"plain", "499", 499},
		{"decimal", "499.50", 499.50},
		{"comma grouped", "1,299.00", 1299},
		{"lakh grouping", "1,29,900", 129900},
		{"whitespace", " 250 ", 250},
		{"empty", "", 0},
		{"garbage", "n/a", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseAmount(tc.input); got != tc.want {
				t.Fatalf("ParseAmount(%q) = %v want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	var payload struct {
		Price Amount `json:"price"`
	}

	if err := json.Unmarshal([]byte(`{"price": 1299.5}`), &payload); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if payload.Price != 1299.5 {
		t.Fatalf("expected 1299.5 got %v", payload.Price)
	}

	if err := json.Unmarshal([]byte(`{"price": "1,299.00"}`), &payload); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if payload.Price != 1299 {
		t.Fatalf("expected 1299 got %v", payload.Price)
	}

	if err := json.Unmarshal([]byte(`{"price": null}`), &payload); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if payload.Price != 0 {
		t.Fatalf("expected 0 for null got %v", payload.Price)
	}
}

func TestSubtotal_MixedPriceShapes(t *testing.T) {
	lines := []CartLine{
		{ID: "a", UnitPrice: 1299, Quantity: 1},
		{ID: "b", UnitPrice: 250.5, Quantity: 2},
		{ID: "c", UnitPrice: 100, Quantity: 0},
	}
	if got := Subtotal(lines); got != 1299+501 {
		t.Fatalf("Subtotal = %v want %v", got, 1299+501.0)
	}
}

func TestFallbackShipping_ThresholdIsStrict(t *testing.T) {
	if got := FallbackShipping(1000); got != FallbackShippingFee {
		t.Fatalf("subtotal of exactly 1000 must pay the flat fee, got %v", got)
	}
	if got := FallbackShipping(1000.01); got != 0 {
		t.Fatalf("subtotal above 1000 must ship free, got %v", got)
	}
	if got := FallbackShipping(0); got != FallbackShippingFee {
		t.Fatalf("empty subtotal pays the flat fee, got %v", got)
	}
}

func TestComputePricing(t *testing.T) {
	lines := []CartLine{{ID: "a", UnitPrice: 600, Quantity: 2}}
	snapshot := ComputePricing(lines, 50, CouponState{Code: "SAVE10", DiscountAmount: 100, Applied: true})

	if snapshot.Subtotal != 1200 {
		t.Fatalf("subtotal = %v", snapshot.Subtotal)
	}
	if math.Abs(snapshot.Tax-216) > 1e-9 {
		t.Fatalf("tax = %v want 216", snapshot.Tax)
	}
	if snapshot.Discount != 100 {
		t.Fatalf("discount = %v", snapshot.Discount)
	}
	if math.Abs(snapshot.Total-(1200+216+50-100)) > 1e-9 {
		t.Fatalf("total = %v", snapshot.Total)
	}
}

func TestComputePricing_CouponNotApplied(t *testing.T) {
	snapshot := ComputePricing([]CartLine{{UnitPrice: 100, Quantity: 1}}, 99, CouponState{Code: "SAVE10", DiscountAmount: 100, Applied: false})
	if snapshot.Discount != 0 {
		t.Fatalf("unapplied coupon must not discount, got %v", snapshot.Discount)
	}
}
