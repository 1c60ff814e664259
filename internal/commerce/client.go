package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avasa-home/checkout/internal/domain"
)

var tracer = otel.Tracer("github.com/avasa-home/checkout/internal/commerce")

// ErrShippingUnavailable indicates the shipping endpoint responded without a
// usable cost; callers apply the local fallback rule.
var ErrShippingUnavailable = errors.New("commerce: shipping cost unavailable")

const defaultTimeout = 20 * time.Second

// Credentials carries the identity attached to every cart, address, coupon,
// and order call: a bearer token for authenticated accounts or a temporary
// cart id for anonymous sessions. Never both.
type Credentials struct {
	Bearer string
	CartID string
}

// HasIdentity reports whether at least one identity handle is present.
func (c Credentials) HasIdentity() bool {
	return strings.TrimSpace(c.Bearer) != "" || strings.TrimSpace(c.CartID) != ""
}

// Config collects the parameters required to construct a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is the HTTP client for the remote commerce API. It owns the wire
// contract: request shapes, the tagged-union cart decode, and upstream error
// translation. Callers never see raw response bodies.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient validates the configuration and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("commerce: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
	}, nil
}

// FetchCart loads the cart scoped to the supplied identity. The response may
// be a wrapper object with a data field or a bare array; both normalize into
// the same ordered sequence.
func (c *Client) FetchCart(ctx context.Context, creds Credentials) ([]domain.CartLine, error) {
	if !creds.HasIdentity() {
		return nil, ErrNoIdentity
	}
	body := map[string]any{}
	if creds.Bearer == "" {
		body["cart_id"] = creds.CartID
	}
	raw, err := c.do(ctx, "cart.fetch", http.MethodPost, "/cart/fetch", creds, body)
	if err != nil {
		return nil, err
	}
	return decodeCartLines(raw)
}

// AddItemRequest describes a cart line addition.
type AddItemRequest struct {
	ProductID string
	VariantID string
	Quantity  int
}

// AddItemResult reports the outcome of a cart addition. TempCartID is set when
// the server assigned a new temporary cart identifier to an anonymous session;
// the caller must capture and persist it.
type AddItemResult struct {
	TempCartID string
}

// AddCartItem adds a line to the cart. This is the one cart-mutating call
// allowed without prior identity: the server mints the temporary cart id.
func (c *Client) AddCartItem(ctx context.Context, creds Credentials, req AddItemRequest) (AddItemResult, error) {
	body := map[string]any{
		"product_id": req.ProductID,
		"quantity":   req.Quantity,
		"variant_id": req.VariantID,
	}
	if creds.Bearer == "" && creds.CartID != "" {
		body["cart_id"] = creds.CartID
	}
	raw, err := c.do(ctx, "cart.add", http.MethodPost, "/cart/add", creds, body)
	if err != nil {
		return AddItemResult{}, err
	}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			UserID string `json:"user_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return AddItemResult{}, fmt.Errorf("%w: decode cart add response: %v", ErrTransport, err)
	}
	if !resp.Success && !IsSuccessMessage(resp.Message) {
		return AddItemResult{}, &APIError{Status: http.StatusOK, Message: resp.Message}
	}
	return AddItemResult{TempCartID: strings.TrimSpace(resp.Data.UserID)}, nil
}

// UpdateCartItem sets the quantity for a cart line.
func (c *Client) UpdateCartItem(ctx context.Context, creds Credentials, itemID string, quantity int) error {
	if !creds.HasIdentity() {
		return ErrNoIdentity
	}
	body := map[string]any{"quantity": quantity}
	if creds.Bearer == "" {
		body["cart_id"] = creds.CartID
	}
	_, err := c.do(ctx, "cart.update", http.MethodPost, "/cart/update/"+itemID, creds, body)
	return err
}

// RemoveCartItem deletes a cart line entirely.
func (c *Client) RemoveCartItem(ctx context.Context, creds Credentials, itemID string) error {
	if !creds.HasIdentity() {
		return ErrNoIdentity
	}
	var body map[string]any
	if creds.Bearer == "" {
		body = map[string]any{"cart_id": creds.CartID}
	}
	_, err := c.do(ctx, "cart.remove", http.MethodDelete, "/cart/remove/"+itemID, creds, body)
	return err
}

// ListAddresses returns the shipping addresses for the authenticated account.
func (c *Client) ListAddresses(ctx context.Context, bearer string) ([]domain.Address, error) {
	creds := Credentials{Bearer: bearer}
	if !creds.HasIdentity() {
		return nil, ErrNoIdentity
	}
	raw, err := c.do(ctx, "address.list", http.MethodGet, "/address", creds, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []addressDTO `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode address list: %v", ErrTransport, err)
	}
	addresses := make([]domain.Address, 0, len(resp.Data))
	for _, dto := range resp.Data {
		addresses = append(addresses, dto.toDomain())
	}
	return addresses, nil
}

// RegisterAddress creates a new address. The UI contract always submits
// is_default true.
func (c *Client) RegisterAddress(ctx context.Context, bearer string, addr domain.Address) error {
	creds := Credentials{Bearer: bearer}
	if !creds.HasIdentity() {
		return ErrNoIdentity
	}
	raw, err := c.do(ctx, "address.register", http.MethodPost, "/address/register", creds, addressBody(addr))
	if err != nil {
		return err
	}
	return successOrAPIError(raw)
}

// UpdateAddress edits an existing address. Success is signalled through the
// message text.
func (c *Client) UpdateAddress(ctx context.Context, bearer, addressID string, addr domain.Address) error {
	creds := Credentials{Bearer: bearer}
	if !creds.HasIdentity() {
		return ErrNoIdentity
	}
	raw, err := c.do(ctx, "address.update", http.MethodPost, "/address/update/"+addressID, creds, addressBody(addr))
	if err != nil {
		return err
	}
	return successOrAPIError(raw)
}

// DeleteAddress removes an address by id.
func (c *Client) DeleteAddress(ctx context.Context, bearer, addressID string) error {
	creds := Credentials{Bearer: bearer}
	if !creds.HasIdentity() {
		return ErrNoIdentity
	}
	raw, err := c.do(ctx, "address.delete", http.MethodDelete, "/address/"+addressID, creds, nil)
	if err != nil {
		return err
	}
	return successOrAPIError(raw)
}

// CalculateShipping asks the rules engine for the shipping cost of an address.
func (c *Client) CalculateShipping(ctx context.Context, bearer, addressID string) (float64, error) {
	creds := Credentials{Bearer: bearer}
	raw, err := c.do(ctx, "shipping.calculate", http.MethodPost, "/shipping/calculate", creds, map[string]any{"address_id": addressID})
	if err != nil {
		return 0, err
	}
	var resp struct {
		ShippingCost *domain.Amount `json:"shipping_cost"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.ShippingCost == nil {
		return 0, ErrShippingUnavailable
	}
	return float64(*resp.ShippingCost), nil
}

// RequestOTP dispatches a one-time code to the mobile number. Business
// rejections are folded into the classified outcome; only transport failures
// surface as errors.
func (c *Client) RequestOTP(ctx context.Context, mobile string) (OTPRequestOutcome, string, error) {
	raw, err := c.do(ctx, "otp.request", http.MethodPost, "/request-otp", Credentials{}, map[string]any{"mobile": mobile})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return ClassifyOTPRequest(false, apiErr.Message), apiErr.Message, nil
		}
		return OTPRequestFailed, "", err
	}
	success, message := decodeSuccessMessage(raw)
	return ClassifyOTPRequest(success, message), message, nil
}

// VerifyOTP submits a code for the mobile number.
func (c *Client) VerifyOTP(ctx context.Context, mobile, otp string) (OTPVerifyOutcome, string, error) {
	raw, err := c.do(ctx, "otp.verify", http.MethodPost, "/verify-otp", Credentials{}, map[string]any{"mobile": mobile, "otp": otp})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return ClassifyOTPVerify(false, apiErr.Message), apiErr.Message, nil
		}
		return OTPRejected, "", err
	}
	success, message := decodeSuccessMessage(raw)
	return ClassifyOTPVerify(success, message), message, nil
}

// MakeUserRequest carries the contact details for guest promotion.
type MakeUserRequest struct {
	Name   string
	Email  string
	Mobile string
	CartID string
}

// MakeUserResult returns the new account credential and profile. The cart is
// re-homed server-side under the new account.
type MakeUserResult struct {
	Token   string
	Profile domain.Profile
}

// MakeUser converts an anonymous cart-holder into a registered account.
func (c *Client) MakeUser(ctx context.Context, req MakeUserRequest) (MakeUserResult, error) {
	body := map[string]any{
		"name":    req.Name,
		"email":   req.Email,
		"mobile":  req.Mobile,
		"cart_id": req.CartID,
	}
	raw, err := c.do(ctx, "user.create", http.MethodPost, "/make_user", Credentials{}, body)
	if err != nil {
		return MakeUserResult{}, err
	}
	var resp struct {
		Token string `json:"token"`
		User  struct {
			Name   string `json:"name"`
			Email  string `json:"email"`
			Mobile string `json:"mobile"`
		} `json:"user"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return MakeUserResult{}, fmt.Errorf("%w: decode make_user response: %v", ErrTransport, err)
	}
	if strings.TrimSpace(resp.Token) == "" {
		return MakeUserResult{}, &APIError{Status: http.StatusOK, Message: resp.Message}
	}
	return MakeUserResult{
		Token: resp.Token,
		Profile: domain.Profile{
			Name:   resp.User.Name,
			Email:  resp.User.Email,
			Mobile: resp.User.Mobile,
		},
	}, nil
}

// ApplyCouponResult reports the accepted discount.
type ApplyCouponResult struct {
	Discount float64
	Message  string
}

// ApplyCoupon applies a discount code to the authenticated cart.
func (c *Client) ApplyCoupon(ctx context.Context, bearer, code string) (ApplyCouponResult, error) {
	creds := Credentials{Bearer: bearer}
	if !creds.HasIdentity() {
		return ApplyCouponResult{}, ErrNoIdentity
	}
	raw, err := c.do(ctx, "coupon.apply", http.MethodPost, "/coupon/apply", creds, map[string]any{"coupon_code": code})
	if err != nil {
		return ApplyCouponResult{}, err
	}
	var resp struct {
		Success  bool           `json:"success"`
		Discount *domain.Amount `json:"discount"`
		Message  string         `json:"message"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ApplyCouponResult{}, fmt.Errorf("%w: decode coupon response: %v", ErrTransport, err)
	}
	if !resp.Success {
		return ApplyCouponResult{}, &APIError{Status: http.StatusOK, Message: resp.Message}
	}
	result := ApplyCouponResult{Message: resp.Message}
	if resp.Discount != nil {
		result.Discount = float64(*resp.Discount)
	}
	return result, nil
}

// RemoveCoupon notifies the server that the coupon was removed. Callers treat
// this as best-effort.
func (c *Client) RemoveCoupon(ctx context.Context, bearer, code string) error {
	creds := Credentials{Bearer: bearer}
	if !creds.HasIdentity() {
		return ErrNoIdentity
	}
	_, err := c.do(ctx, "coupon.remove", http.MethodPost, "/coupon/remove", creds, map[string]any{"coupon_code": code})
	return err
}

// OrderOutcome is the tagged result of order creation: either a gateway
// handoff or a direct completion.
type OrderOutcome struct {
	Gateway   *domain.GatewayOrder
	Completed bool
}

// CreateOrder submits a pending order built from the current checkout state.
func (c *Client) CreateOrder(ctx context.Context, creds Credentials, req domain.OrderRequest) (OrderOutcome, error) {
	if !creds.HasIdentity() {
		return OrderOutcome{}, ErrNoIdentity
	}
	body := map[string]any{
		"status":           string(req.Status),
		"payment_status":   string(req.PaymentStatus),
		"shipping_address": req.ShippingAddress,
		"shipping_charge":  req.ShippingCharge,
	}
	if req.CouponCode != "" {
		body["coupon_code"] = req.CouponCode
	}
	if creds.Bearer == "" {
		body["cart_id"] = creds.CartID
	}
	raw, err := c.do(ctx, "order.create", http.MethodPost, "/orders", creds, body)
	if err != nil {
		return OrderOutcome{}, err
	}
	var resp struct {
		RazorpayOrderID string `json:"razorpay_order_id"`
		RazorpayKey     string `json:"razorpay_key"`
		RazorpayAmount  int64  `json:"razorpay_amount"`
		Success         bool   `json:"success"`
		Message         string `json:"message"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return OrderOutcome{}, fmt.Errorf("%w: decode order response: %v", ErrTransport, err)
	}
	if strings.TrimSpace(resp.RazorpayOrderID) != "" {
		return OrderOutcome{Gateway: &domain.GatewayOrder{
			OrderID: resp.RazorpayOrderID,
			Key:     resp.RazorpayKey,
			Amount:  resp.RazorpayAmount,
		}}, nil
	}
	if resp.Success {
		return OrderOutcome{Completed: true}, nil
	}
	return OrderOutcome{}, &APIError{Status: http.StatusOK, Message: resp.Message}
}

// VerifyPayment confirms the gateway-issued identifiers server-side. Only a
// successful verification completes the order.
func (c *Client) VerifyPayment(ctx context.Context, creds Credentials, cb domain.PaymentCallback) error {
	if !creds.HasIdentity() {
		return ErrNoIdentity
	}
	body := map[string]any{
		"razorpay_order_id":   cb.OrderID,
		"razorpay_payment_id": cb.PaymentID,
		"razorpay_signature":  cb.Signature,
	}
	raw, err := c.do(ctx, "order.verify_payment", http.MethodPost, "/order/verify-payment", creds, body)
	if err != nil {
		return err
	}
	success, message := decodeSuccessMessage(raw)
	if !success && !IsSuccessMessage(message) {
		return &APIError{Status: http.StatusOK, Message: message}
	}
	return nil
}

// do executes one request against the commerce API, attaching identity and
// translating failures. It returns the raw response body for the caller to
// decode.
func (c *Client) do(ctx context.Context, op, method, path string, creds Credentials, body any) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "commerce."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("commerce.endpoint", path),
	)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%w: encode request: %v", ErrTransport, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if bearer := strings.TrimSpace(creds.Bearer); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	if resp.StatusCode >= 400 {
		_, message := decodeSuccessMessage(data)
		span.SetStatus(codes.Error, message)
		return nil, &APIError{Status: resp.StatusCode, Message: message}
	}
	return data, nil
}

type addressDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ContactNo  string `json:"contact_no"`
	Email      string `json:"email"`
	Line1      string `json:"address_line1"`
	Line2      string `json:"address_line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
	IsDefault  bool   `json:"is_default"`
}

func (d addressDTO) toDomain() domain.Address {
	return domain.Address{
		ID:         d.ID,
		Name:       d.Name,
		ContactNo:  d.ContactNo,
		Email:      d.Email,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		Country:    d.Country,
		PostalCode: d.PostalCode,
		IsDefault:  d.IsDefault,
	}
}

func addressBody(addr domain.Address) map[string]any {
	return map[string]any{
		"name":          addr.Name,
		"contact_no":    addr.ContactNo,
		"email":         addr.Email,
		"address_line1": addr.Line1,
		"address_line2": addr.Line2,
		"city":          addr.City,
		"state":         addr.State,
		"country":       addr.Country,
		"postal_code":   addr.PostalCode,
		"is_default":    true,
	}
}

type cartLineDTO struct {
	ID           string        `json:"id"`
	ProductID    string        `json:"product_id"`
	VariantID    string        `json:"variant_id"`
	ProductName  string        `json:"product_name"`
	VariantLabel string        `json:"variant_label"`
	UnitPrice    domain.Amount `json:"unit_price"`
	Quantity     int           `json:"quantity"`
	ImageURL     string        `json:"image_url"`
}

func (d cartLineDTO) toDomain() domain.CartLine {
	return domain.CartLine{
		ID:           d.ID,
		ProductID:    d.ProductID,
		VariantID:    d.VariantID,
		ProductName:  d.ProductName,
		VariantLabel: d.VariantLabel,
		UnitPrice:    d.UnitPrice,
		Quantity:     d.Quantity,
		ImageURL:     d.ImageURL,
	}
}

// decodeCartLines handles the duck-typed cart response: a wrapper object with
// a data field or a bare array. The union is resolved once, here.
func decodeCartLines(data []byte) ([]domain.CartLine, error) {
	trimmed := bytes.TrimSpace(data)
	var dtos []cartLineDTO
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &dtos); err != nil {
			return nil, fmt.Errorf("%w: decode cart array: %v", ErrTransport, err)
		}
	} else {
		var wrapper struct {
			Data []cartLineDTO `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: decode cart wrapper: %v", ErrTransport, err)
		}
		dtos = wrapper.Data
	}
	lines := make([]domain.CartLine, 0, len(dtos))
	for _, dto := range dtos {
		lines = append(lines, dto.toDomain())
	}
	return lines, nil
}

func decodeSuccessMessage(data []byte) (bool, string) {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, ""
	}
	return resp.Success, strings.TrimSpace(resp.Message)
}

func successOrAPIError(raw []byte) error {
	success, message := decodeSuccessMessage(raw)
	if success || IsSuccessMessage(message) {
		return nil
	}
	return &APIError{Status: http.StatusOK, Message: message}
}
