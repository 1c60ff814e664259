package services

import (
	"context"
	"errors"
	"testing"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
)

func TestOTPServiceBeginTransitions(t *testing.T) {
	gateway := &stubOTPGateway{requestOutcome: commerce.OTPSent}
	svc := newTestOTPService(t, gateway)

	if err := svc.Begin(context.Background(), "9876543210", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if svc.Step() != domain.OTPStepSent {
		t.Fatalf("expected sent step, got %v", svc.Step())
	}
}

func TestOTPServiceBeginAlreadyValidatedStaysIdle(t *testing.T) {
	gateway := &stubOTPGateway{requestOutcome: commerce.OTPAlreadyValidated, requestMessage: "mobile no already validated"}
	svc := newTestOTPService(t, gateway)

	err := svc.Begin(context.Background(), "9876543210", nil)
	if !errors.Is(err, ErrMobileAlreadyValidated) {
		t.Fatalf("expected ErrMobileAlreadyValidated, got %v", err)
	}
	if svc.Step() != domain.OTPStepIdle {
		t.Fatalf("expected idle step, got %v", svc.Step())
	}
	if svc.LastError() != "mobile no already validated" {
		t.Fatalf("expected upstream message surfaced, got %q", svc.LastError())
	}
}

func TestOTPServiceSubmitRequiresCompleteCode(t *testing.T) {
	gateway := &stubOTPGateway{requestOutcome: commerce.OTPSent}
	svc := newTestOTPService(t, gateway)
	if err := svc.Begin(context.Background(), "9876543210", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	svc.EnterDigit('1')
	svc.EnterDigit('2')
	if err := svc.Submit(context.Background()); !errors.Is(err, ErrOTPIncomplete) {
		t.Fatalf("expected ErrOTPIncomplete, got %v", err)
	}
	if gateway.verifyCalls != 0 {
		t.Fatalf("incomplete code must not dispatch, got %d calls", gateway.verifyCalls)
	}
}

func TestOTPServiceFocusTracking(t *testing.T) {
	gateway := &stubOTPGateway{requestOutcome: commerce.OTPSent}
	svc := newTestOTPService(t, gateway)
	if err := svc.Begin(context.Background(), "9876543210", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	svc.EnterDigit('1')
	svc.EnterDigit('2')
	if svc.Focus() != 2 {
		t.Fatalf("expected focus on third box, got %d", svc.Focus())
	}
	svc.Backspace()
	if svc.Focus() != 2 {
		t.Fatalf("backspace on filled box keeps focus, got %d", svc.Focus())
	}
	svc.Backspace()
	if svc.Focus() != 1 {
		t.Fatalf("backspace on empty box moves back, got %d", svc.Focus())
	}

	svc.Paste("123456")
	if svc.Focus() != 5 {
		t.Fatalf("paste focuses last box, got %d", svc.Focus())
	}
}

func TestOTPServiceVerifySuccessRunsContinuationOnce(t *testing.T) {
	gateway := &stubOTPGateway{
		requestOutcome: commerce.OTPSent,
		verifyOutcome:  commerce.OTPVerified,
	}
	svc := newTestOTPService(t, gateway)

	runs := 0
	continuation := func(ctx context.Context) error {
		runs++
		return nil
	}
	if err := svc.Begin(context.Background(), "9876543210", continuation); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	svc.Paste("123456")
	if err := svc.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if runs != 1 {
		t.Fatalf("continuation must run exactly once, ran %d times", runs)
	}
	if gateway.lastCode != "123456" {
		t.Fatalf("expected pasted code submitted, got %q", gateway.lastCode)
	}
	if svc.Step() != domain.OTPStepIdle {
		t.Fatalf("challenge must be discarded after success, got %v", svc.Step())
	}

	// A second submit has no armed challenge.
	if err := svc.Submit(context.Background()); !errors.Is(err, ErrOTPNotActive) {
		t.Fatalf("expected ErrOTPNotActive, got %v", err)
	}
	if runs != 1 {
		t.Fatalf("continuation re-ran: %d", runs)
	}
}

func TestOTPServiceVerifyRejectionKeepsChallenge(t *testing.T) {
	gateway := &stubOTPGateway{
		requestOutcome: commerce.OTPSent,
		verifyOutcome:  commerce.OTPRejected,
		verifyMessage:  "invalid otp",
	}
	svc := newTestOTPService(t, gateway)
	if err := svc.Begin(context.Background(), "9876543210", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	svc.Paste("111111")

	err := svc.Submit(context.Background())
	if !errors.Is(err, ErrOTPRejected) {
		t.Fatalf("expected ErrOTPRejected, got %v", err)
	}
	if svc.Step() != domain.OTPStepSent {
		t.Fatalf("rejection must return to sent, got %v", svc.Step())
	}
	if svc.LastError() != "invalid otp" {
		t.Fatalf("expected upstream message, got %q", svc.LastError())
	}

	// Digits stay for correction.
	gateway.verifyOutcome = commerce.OTPVerified
	if err := svc.Submit(context.Background()); err != nil {
		t.Fatalf("corrected Submit: %v", err)
	}
	if gateway.lastCode != "111111" {
		t.Fatalf("expected retained digits resubmitted, got %q", gateway.lastCode)
	}
}

func TestOTPServiceResendClearsDigits(t *testing.T) {
	gateway := &stubOTPGateway{requestOutcome: commerce.OTPSent}
	svc := newTestOTPService(t, gateway)
	if err := svc.Begin(context.Background(), "9876543210", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	svc.Paste("123456")

	if err := svc.Resend(context.Background()); err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if svc.Step() != domain.OTPStepSent {
		t.Fatalf("resend keeps sent step, got %v", svc.Step())
	}
	if svc.Focus() != 0 {
		t.Fatalf("resend must focus first box, got %d", svc.Focus())
	}
	if err := svc.Submit(context.Background()); !errors.Is(err, ErrOTPIncomplete) {
		t.Fatalf("expected cleared digits, got %v", err)
	}
}

func TestOTPServiceCancelDiscardsChallenge(t *testing.T) {
	gateway := &stubOTPGateway{requestOutcome: commerce.OTPSent}
	svc := newTestOTPService(t, gateway)
	if err := svc.Begin(context.Background(), "9876543210", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	svc.Cancel()
	if svc.Step() != domain.OTPStepIdle {
		t.Fatalf("expected idle after cancel, got %v", svc.Step())
	}
	if err := svc.Resend(context.Background()); !errors.Is(err, ErrOTPNotActive) {
		t.Fatalf("expected ErrOTPNotActive, got %v", err)
	}
}

func newTestOTPService(t *testing.T, gateway OTPGateway) OTPService {
	t.Helper()
	svc, err := NewOTPService(OTPServiceDeps{Gateway: gateway})
	if err != nil {
		t.Fatalf("NewOTPService: %v", err)
	}
	return svc
}

type stubOTPGateway struct {
	requestOutcome commerce.OTPRequestOutcome
	requestMessage string
	requestErr     error

	verifyOutcome commerce.OTPVerifyOutcome
	verifyMessage string
	verifyErr     error
	verifyCalls   int
	lastCode      string
}

func (g *stubOTPGateway) RequestOTP(ctx context.Context, mobile string) (commerce.OTPRequestOutcome, string, error) {
	if g.requestErr != nil {
		return commerce.OTPRequestFailed, "", g.requestErr
	}
	return g.requestOutcome, g.requestMessage, nil
}

func (g *stubOTPGateway) VerifyOTP(ctx context.Context, mobile, otp string) (commerce.OTPVerifyOutcome, string, error) {
	g.verifyCalls++
	g.lastCode = otp
	if g.verifyErr != nil {
		return commerce.OTPRejected, "", g.verifyErr
	}
	return g.verifyOutcome, g.verifyMessage, nil
}
