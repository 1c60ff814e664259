package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
	"github.com/avasa-home/checkout/internal/payments"
	"github.com/avasa-home/checkout/internal/platform/httpx"
	"github.com/avasa-home/checkout/internal/services"
)

const maxBodySize = 16 * 1024

// CheckoutHandlers exposes the checkout orchestration as a session-scoped
// JSON API. Handlers stay thin; behavior lives in the services layer.
type CheckoutHandlers struct {
	sessions *SessionManager
}

// NewCheckoutHandlers constructs handlers over the session registry.
func NewCheckoutHandlers(sessions *SessionManager) (*CheckoutHandlers, error) {
	if sessions == nil {
		return nil, errors.New("handlers: session manager is required")
	}
	return &CheckoutHandlers{sessions: sessions}, nil
}

// Routes wires the checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/state", h.getState)

	r.Post("/cart/items", h.addCartItem)
	r.Patch("/cart/items/{lineID}", h.updateCartItem)
	r.Delete("/cart/items/{lineID}", h.removeCartItem)

	r.Post("/addresses", h.createAddress)
	r.Put("/addresses/{addressID}", h.editAddress)
	r.Delete("/addresses/{addressID}", h.deleteAddress)
	r.Post("/addresses/{addressID}/select", h.selectAddress)

	r.Post("/otp/input", h.otpInput)
	r.Post("/otp/submit", h.otpSubmit)
	r.Post("/otp/resend", h.otpResend)
	r.Post("/otp/cancel", h.otpCancel)

	r.Post("/coupon", h.applyCoupon)
	r.Delete("/coupon", h.removeCoupon)

	r.Post("/order", h.placeOrder)
	r.Post("/order/payment", h.confirmPayment)
}

type stateResponse struct {
	State services.CheckoutState `json:"state"`
}

type orderResponse struct {
	Completed bool                   `json:"completed"`
	Handoff   *payments.Handoff      `json:"handoff,omitempty"`
	State     services.CheckoutState `json:"state"`
}

func (h *CheckoutHandlers) getState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	state, err := c.Load(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state})
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *CheckoutHandlers) addCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product_id is required", http.StatusBadRequest))
		return
	}
	state, err := c.AddItem(ctx, commerce.AddItemRequest{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state})
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CheckoutHandlers) updateCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	state, err := c.UpdateQuantity(ctx, chi.URLParam(r, "lineID"), req.Quantity)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state})
}

func (h *CheckoutHandlers) removeCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	state, err := c.RemoveLine(ctx, chi.URLParam(r, "lineID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state})
}

type addressRequest struct {
	Name       string `json:"name"`
	ContactNo  string `json:"contact_no"`
	Email      string `json:"email"`
	Line1      string `json:"address_line1"`
	Line2      string `json:"address_line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

func (r addressRequest) form() services.AddressForm {
	return services.AddressForm{
		Name:       r.Name,
		ContactNo:  r.ContactNo,
		Email:      r.Email,
		Line1:      r.Line1,
		Line2:      r.Line2,
		City:       r.City,
		State:      r.State,
		Country:    r.Country,
		PostalCode: r.PostalCode,
	}
}

func (h *CheckoutHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	var req addressRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	state, err := c.CreateAddress(ctx, req.form())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state})
}

func (h *CheckoutHandlers) editAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	var req addressRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	state, err := c.EditAddress(ctx, chi.URLParam(r, "addressID"), req.form())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state})
}

func (h *CheckoutHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	state, err := c.DeleteAddress(ctx, chi.URLParam(r, "addressID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state})
}

func (h *CheckoutHandlers) selectAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	state, err := c.SelectShippingAddress(ctx, chi.URLParam(r, "addressID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state})
}

type otpInputRequest struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

func (h *CheckoutHandlers) otpInput(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	var req otpInputRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	switch req.Action {
	case "digit":
		if len(req.Value) != 1 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "value must be a single digit", http.StatusBadRequest))
			return
		}
		c.EnterOTPDigit(req.Value[0])
	case "backspace":
		c.OTPBackspace()
	case "paste":
		c.PasteOTP(req.Value)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "action must be digit, backspace or paste", http.StatusBadRequest))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: c.State(ctx)})
}

func (h *CheckoutHandlers) otpSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	state, err := c.SubmitOTP(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state})
}

func (h *CheckoutHandlers) otpResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	state, err := c.ResendOTP(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state})
}

func (h *CheckoutHandlers) otpCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: c.CancelOTP(ctx)})
}

type couponRequest struct {
	Code string `json:"code"`
}

func (h *CheckoutHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	var req couponRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	state, err := c.ApplyCoupon(ctx, req.Code)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state})
}

func (h *CheckoutHandlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: c.RemoveCoupon(ctx)})
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	result, state, err := c.PlaceOrder(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{
		Completed: result.Completed,
		Handoff:   result.Handoff,
		State:     state,
	})
}

type paymentCallbackRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

func (h *CheckoutHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.controller(ctx, w, r)
	if !ok {
		return
	}
	var req paymentCallbackRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	state, err := c.ConfirmPayment(ctx, domain.PaymentCallback{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Completed: true, State: state})
}

func (h *CheckoutHandlers) controller(ctx context.Context, w http.ResponseWriter, r *http.Request) (*services.Controller, bool) {
	c, err := h.sessions.Controller(r.Header.Get(SessionHeader))
	if err != nil {
		if errors.Is(err, ErrInvalidSessionID) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_session", "missing or malformed session header", http.StatusBadRequest))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "could not initialize checkout session", http.StatusInternalServerError))
		}
		return nil, false
	}
	return c, true
}

func decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "could not read request body", http.StatusBadRequest))
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

// writeServiceError maps service sentinels onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		details := make(map[string]any, len(verr.Fields))
		for field, msg := range verr.Fields {
			details[field] = msg
		}
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", verr.Message, http.StatusUnprocessableEntity).WithDetails(details))
		return
	}

	var apiErr *commerce.APIError
	switch {
	case errors.Is(err, services.ErrLoginRequired):
		httpx.WriteError(ctx, w, httpx.NewError("login_required", "sign in to apply a coupon", http.StatusUnauthorized))
	case errors.Is(err, services.ErrVerificationRequired):
		httpx.WriteError(ctx, w, httpx.NewError("verification_required", "verify the mobile number first", http.StatusForbidden))
	case errors.Is(err, services.ErrMobileAlreadyValidated):
		httpx.WriteError(ctx, w, httpx.NewError("mobile_already_validated", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOTPNotActive),
		errors.Is(err, services.ErrOTPIncomplete),
		errors.Is(err, services.ErrEmptyCouponCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOTPRejected),
		errors.Is(err, services.ErrOTPRequestFailed),
		errors.Is(err, services.ErrCouponRejected),
		errors.Is(err, services.ErrOrderRejected),
		errors.Is(err, services.ErrPaymentRejected),
		errors.Is(err, services.ErrPromotionFailed):
		httpx.WriteError(ctx, w, httpx.NewError("rejected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartLineNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrNoAddressSelected),
		errors.Is(err, services.ErrCartEmpty),
		errors.Is(err, services.ErrStaleAddressSelection),
		errors.Is(err, services.ErrOrderInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.As(err, &apiErr):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_rejected", apiErr.Message, http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "checkout backend is unavailable", http.StatusServiceUnavailable))
	}
}
