package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avasa-home/checkout/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestFetchCart_WrapperShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart/fetch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("expected bearer header, got %q", got)
		}
		w.Write([]byte(`{"data":[{"id":"l1","product_name":"Oak Chair","unit_price":"1,299.00","quantity":2}]}`))
	})

	lines, err := client.FetchCart(context.Background(), Credentials{Bearer: "tok-1"})
	if err != nil {
		t.Fatalf("FetchCart: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line got %d", len(lines))
	}
	if lines[0].UnitPrice != 1299 {
		t.Fatalf("comma-priced line parsed to %v", lines[0].UnitPrice)
	}
	if lines[0].Quantity != 2 {
		t.Fatalf("quantity = %d", lines[0].Quantity)
	}
}

func TestFetchCart_BareArrayShape(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`[{"id":"l1","product_name":"Teak Table","unit_price":4999,"quantity":1}]`))
	})

	lines, err := client.FetchCart(context.Background(), Credentials{CartID: "temp-9"})
	if err != nil {
		t.Fatalf("FetchCart: %v", err)
	}
	if len(lines) != 1 || lines[0].ProductName != "Teak Table" {
		t.Fatalf("unexpected lines %+v", lines)
	}
	if gotBody["cart_id"] != "temp-9" {
		t.Fatalf("anonymous fetch must carry cart_id, body %v", gotBody)
	}
}

func TestFetchCart_NoIdentity(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request must not be dispatched without identity")
	})
	if _, err := client.FetchCart(context.Background(), Credentials{}); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity got %v", err)
	}
}

func TestAddCartItem_CapturesServerAssignedCartID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"user_id":"temp-cart-42"}}`))
	})

	result, err := client.AddCartItem(context.Background(), Credentials{}, AddItemRequest{ProductID: "p1", Quantity: 1})
	if err != nil {
		t.Fatalf("AddCartItem: %v", err)
	}
	if result.TempCartID != "temp-cart-42" {
		t.Fatalf("expected captured temp cart id, got %q", result.TempCartID)
	}
}

func TestCalculateShipping_MissingFieldUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	if _, err := client.CalculateShipping(context.Background(), "tok", "a1"); !errors.Is(err, ErrShippingUnavailable) {
		t.Fatalf("expected ErrShippingUnavailable got %v", err)
	}
}

func TestCalculateShipping_Cost(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"shipping_cost":"149.00"}`))
	})
	cost, err := client.CalculateShipping(context.Background(), "tok", "a1")
	if err != nil {
		t.Fatalf("CalculateShipping: %v", err)
	}
	if cost != 149 {
		t.Fatalf("cost = %v", cost)
	}
}

func TestRequestOTP_BusinessRejectionClassified(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"message":"Mobile already validated"}`))
	})
	outcome, message, err := client.RequestOTP(context.Background(), "9876543210")
	if err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	if outcome != OTPAlreadyValidated {
		t.Fatalf("outcome = %s", outcome)
	}
	if message != "Mobile already validated" {
		t.Fatalf("message = %q", message)
	}
}

func TestCreateOrder_GatewayHandoff(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["status"] != "pending" || body["payment_status"] != "pending" {
			t.Errorf("order must be submitted pending/pending, got %v", body)
		}
		w.Write([]byte(`{"razorpay_order_id":"order_abc","razorpay_key":"rzp_test","razorpay_amount":141600}`))
	})

	outcome, err := client.CreateOrder(context.Background(), Credentials{Bearer: "tok"}, domain.OrderRequest{
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.OrderStatusPending,
		ShippingAddress: "Asha Rao, 9876543210, Pune",
		ShippingCharge:  99,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if outcome.Gateway == nil || outcome.Completed {
		t.Fatalf("expected gateway handoff, got %+v", outcome)
	}
	if outcome.Gateway.OrderID != "order_abc" || outcome.Gateway.Amount != 141600 {
		t.Fatalf("unexpected gateway order %+v", outcome.Gateway)
	}
}

func TestCreateOrder_DirectSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	})
	outcome, err := client.CreateOrder(context.Background(), Credentials{CartID: "temp"}, domain.OrderRequest{
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.OrderStatusPending,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !outcome.Completed || outcome.Gateway != nil {
		t.Fatalf("expected direct completion, got %+v", outcome)
	}
}

func TestCreateOrder_FailureSurfacesMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"inventory changed"}`))
	})
	_, err := client.CreateOrder(context.Background(), Credentials{Bearer: "tok"}, domain.OrderRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "inventory changed" {
		t.Fatalf("expected APIError with upstream message, got %v", err)
	}
}

func TestDo_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()
	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.FetchCart(context.Background(), Credentials{Bearer: "tok"}); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport got %v", err)
	}
}

func TestVerifyPayment_Failure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"signature mismatch"}`))
	})
	err := client.VerifyPayment(context.Background(), Credentials{Bearer: "tok"}, domain.PaymentCallback{
		OrderID: "order_abc", PaymentID: "pay_1", Signature: "sig",
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "signature mismatch" {
		t.Fatalf("expected verification rejection, got %v", err)
	}
}
