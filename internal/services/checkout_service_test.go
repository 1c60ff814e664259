package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
	"github.com/avasa-home/checkout/internal/payments"
	"github.com/avasa-home/checkout/internal/session"
)

func placeCmd() PlaceOrderCommand {
	return PlaceOrderCommand{
		Lines: []domain.CartLine{{ID: "l1", UnitPrice: 1200, Quantity: 1}},
		Addresses: []domain.Address{{
			ID: "a1", Name: "Asha Rao", ContactNo: "9876543210",
			Line1: "14 Lake View Road", City: "Bengaluru", State: "Karnataka",
			Country: "India", PostalCode: "560001",
		}},
		SelectedAddressID: "a1",
		ShippingCharge:    99,
	}
}

func TestPlaceOrderPreconditions(t *testing.T) {
	gateway := &stubOrderGateway{}
	svc := newTestCheckoutService(t, gateway)

	cmd := placeCmd()
	cmd.SelectedAddressID = ""
	if _, err := svc.PlaceOrder(context.Background(), cmd); !errors.Is(err, ErrNoAddressSelected) {
		t.Fatalf("expected ErrNoAddressSelected, got %v", err)
	}

	cmd = placeCmd()
	cmd.Lines = nil
	if _, err := svc.PlaceOrder(context.Background(), cmd); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}

	cmd = placeCmd()
	cmd.SelectedAddressID = "deleted"
	if _, err := svc.PlaceOrder(context.Background(), cmd); !errors.Is(err, ErrStaleAddressSelection) {
		t.Fatalf("expected ErrStaleAddressSelection, got %v", err)
	}
	if gateway.createCalls != 0 {
		t.Fatalf("failed preconditions must not dispatch, got %d calls", gateway.createCalls)
	}
}

func TestPlaceOrderSubmitsPendingWithFlattenedAddress(t *testing.T) {
	gateway := &stubOrderGateway{outcome: commerce.OrderOutcome{Completed: true}}
	svc := newTestCheckoutService(t, gateway)

	cmd := placeCmd()
	cmd.Coupon = domain.CouponState{Code: "WELCOME", Applied: true}
	result, err := svc.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !result.Completed || result.Handoff != nil {
		t.Fatalf("expected direct completion, got %+v", result)
	}

	req := gateway.lastReq
	if req.Status != domain.OrderStatusPending || req.PaymentStatus != domain.OrderStatusPending {
		t.Fatalf("order must be submitted pending, got %+v", req)
	}
	if req.CouponCode != "WELCOME" {
		t.Fatalf("expected coupon code forwarded, got %q", req.CouponCode)
	}
	want := "Asha Rao, 9876543210, Bengaluru, Karnataka, India, 560001, 14 Lake View Road"
	if req.ShippingAddress != want {
		t.Fatalf("unexpected shipping address:\n got %q\nwant %q", req.ShippingAddress, want)
	}
}

func TestPlaceOrderGatewayHandoff(t *testing.T) {
	gateway := &stubOrderGateway{outcome: commerce.OrderOutcome{
		Gateway: &domain.GatewayOrder{OrderID: "order_9", Key: "rzp_live_x", Amount: 151500},
	}}
	svc := newTestCheckoutService(t, gateway)

	result, err := svc.PlaceOrder(context.Background(), placeCmd())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.Completed || result.Handoff == nil {
		t.Fatalf("expected payment handoff, got %+v", result)
	}
	if result.Handoff.OrderRef != "order_9" || result.Handoff.Key != "rzp_live_x" {
		t.Fatalf("unexpected handoff: %+v", result.Handoff)
	}
}

func TestPlaceOrderInFlightGuard(t *testing.T) {
	release := make(chan struct{})
	gateway := &stubOrderGateway{
		outcome: commerce.OrderOutcome{Completed: true},
		block:   release,
		entered: make(chan struct{}, 1),
	}
	svc := newTestCheckoutService(t, gateway)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := svc.PlaceOrder(context.Background(), placeCmd()); err != nil {
			t.Errorf("blocked PlaceOrder: %v", err)
		}
	}()

	<-gateway.entered
	if _, err := svc.PlaceOrder(context.Background(), placeCmd()); !errors.Is(err, ErrOrderInFlight) {
		t.Fatalf("expected ErrOrderInFlight, got %v", err)
	}
	close(release)
	wg.Wait()

	// The guard resets once the first submission finishes.
	gateway.block = nil
	if _, err := svc.PlaceOrder(context.Background(), placeCmd()); err != nil {
		t.Fatalf("follow-up PlaceOrder: %v", err)
	}
}

func TestPlaceOrderUpstreamRefusalSurfacesMessage(t *testing.T) {
	gateway := &stubOrderGateway{createErr: &commerce.APIError{Status: 422, Message: "cart changed"}}
	svc := newTestCheckoutService(t, gateway)

	_, err := svc.PlaceOrder(context.Background(), placeCmd())
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("expected ErrOrderRejected, got %v", err)
	}
}

func TestConfirmPaymentRejectsIncompleteCallback(t *testing.T) {
	gateway := &stubOrderGateway{}
	svc := newTestCheckoutService(t, gateway)

	err := svc.ConfirmPayment(context.Background(), domain.PaymentCallback{OrderID: "order_9"})
	if !errors.Is(err, ErrPaymentRejected) {
		t.Fatalf("expected ErrPaymentRejected, got %v", err)
	}
	if gateway.verifyCalls != 0 {
		t.Fatalf("incomplete callback must not reach the verify endpoint, got %d calls", gateway.verifyCalls)
	}
}

func TestConfirmPaymentVerifiesServerSide(t *testing.T) {
	gateway := &stubOrderGateway{}
	svc := newTestCheckoutService(t, gateway)

	cb := domain.PaymentCallback{OrderID: "order_9", PaymentID: "pay_1", Signature: "sig"}
	if err := svc.ConfirmPayment(context.Background(), cb); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if gateway.verifyCalls != 1 {
		t.Fatalf("expected one verify call, got %d", gateway.verifyCalls)
	}

	gateway.verifyErr = &commerce.APIError{Status: 400, Message: "signature mismatch"}
	if err := svc.ConfirmPayment(context.Background(), cb); !errors.Is(err, ErrPaymentRejected) {
		t.Fatalf("expected ErrPaymentRejected, got %v", err)
	}
}

func newTestCheckoutService(t *testing.T, gateway OrderGateway) CheckoutService {
	t.Helper()
	provider, err := payments.NewRazorpayProvider("rzp_test_key", "", "INR")
	if err != nil {
		t.Fatalf("NewRazorpayProvider: %v", err)
	}
	manager, err := payments.NewManager(map[string]payments.Provider{"razorpay": provider})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Gateway:  gateway,
		Session:  &stubSession{identity: session.Authenticated("token")},
		Payments: manager,
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	return svc
}

type stubOrderGateway struct {
	outcome     commerce.OrderOutcome
	createErr   error
	createCalls int
	lastReq     domain.OrderRequest

	block   chan struct{}
	entered chan struct{}

	verifyErr   error
	verifyCalls int
}

func (g *stubOrderGateway) CreateOrder(ctx context.Context, creds commerce.Credentials, req domain.OrderRequest) (commerce.OrderOutcome, error) {
	g.createCalls++
	g.lastReq = req
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.block != nil {
		<-g.block
	}
	if g.createErr != nil {
		return commerce.OrderOutcome{}, g.createErr
	}
	return g.outcome, nil
}

func (g *stubOrderGateway) VerifyPayment(ctx context.Context, creds commerce.Credentials, cb domain.PaymentCallback) error {
	g.verifyCalls++
	return g.verifyErr
}
