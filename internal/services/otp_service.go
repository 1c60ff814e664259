package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
)

var (
	// ErrOTPNotActive is returned for code entry or submission when no
	// challenge is in progress.
	ErrOTPNotActive = errors.New("otp: no verification in progress")
	// ErrOTPIncomplete is returned by Submit when fewer than six digits
	// have been entered. No network call is made.
	ErrOTPIncomplete = errors.New("otp: enter the complete 6-digit code")
	// ErrMobileAlreadyValidated is returned by Begin when the upstream
	// reports the mobile number as already validated.
	ErrMobileAlreadyValidated = errors.New("otp: mobile number already validated")
	// ErrOTPRequestFailed is returned when the challenge could not be sent.
	ErrOTPRequestFailed = errors.New("otp: could not send verification code")
	// ErrOTPRejected is returned by Submit when the upstream rejects the
	// entered code. The challenge stays active for another attempt.
	ErrOTPRejected = errors.New("otp: verification failed")
)

// OTPServiceDeps bundles the dependencies of the OTP service.
type OTPServiceDeps struct {
	Gateway OTPGateway
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type otpService struct {
	gateway OTPGateway
	logger  func(ctx context.Context, event string, fields map[string]any)

	mu           sync.Mutex
	step         domain.OTPStep
	mobile       string
	buffer       codeBuffer
	continuation func(ctx context.Context) error
	lastError    string
}

// NewOTPService builds the OTP challenge state machine. At most one
// challenge is active at a time; beginning a new one discards the previous.
func NewOTPService(deps OTPServiceDeps) (OTPService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("otp service requires a gateway")
	}
	if deps.Logger == nil {
		deps.Logger = func(context.Context, string, map[string]any) {}
	}
	return &otpService{
		gateway: deps.Gateway,
		logger:  deps.Logger,
		step:    domain.OTPStepIdle,
	}, nil
}

func (s *otpService) Begin(ctx context.Context, mobile string, continuation func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.mobile = mobile

	outcome, message, err := s.gateway.RequestOTP(ctx, mobile)
	if err != nil {
		s.lastError = commerce.UpstreamMessage(err, "could not send verification code")
		return fmt.Errorf("%w: %v", ErrOTPRequestFailed, err)
	}
	switch outcome {
	case commerce.OTPSent:
		s.step = domain.OTPStepSent
		s.continuation = continuation
		s.lastError = ""
		s.logger(ctx, "otp.sent", map[string]any{"mobile": mobile})
		return nil
	case commerce.OTPAlreadyValidated:
		s.lastError = message
		return ErrMobileAlreadyValidated
	default:
		if message == "" {
			message = "could not send verification code"
		}
		s.lastError = message
		return fmt.Errorf("%w: %s", ErrOTPRequestFailed, message)
	}
}

func (s *otpService) EnterDigit(d byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != domain.OTPStepSent {
		return
	}
	s.buffer.enterDigit(d)
}

func (s *otpService) Backspace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != domain.OTPStepSent {
		return
	}
	s.buffer.backspace()
}

func (s *otpService) Paste(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != domain.OTPStepSent {
		return
	}
	s.buffer.paste(code)
}

func (s *otpService) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.step != domain.OTPStepSent {
		s.mu.Unlock()
		return ErrOTPNotActive
	}
	if !s.buffer.complete() {
		s.lastError = "enter the complete 6-digit code"
		s.mu.Unlock()
		return ErrOTPIncomplete
	}
	s.step = domain.OTPStepVerifying
	mobile, code := s.mobile, s.buffer.code()
	s.mu.Unlock()

	outcome, message, err := s.gateway.VerifyOTP(ctx, mobile, code)

	s.mu.Lock()
	if err != nil {
		s.step = domain.OTPStepSent
		s.lastError = commerce.UpstreamMessage(err, "verification failed")
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrOTPRejected, err)
	}
	if outcome != commerce.OTPVerified {
		// Entered digits are kept so the user can correct them.
		s.step = domain.OTPStepSent
		if message == "" {
			message = "verification failed"
		}
		s.lastError = message
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOTPRejected, message)
	}

	continuation := s.continuation
	s.reset()
	s.mu.Unlock()

	s.logger(ctx, "otp.verified", map[string]any{"mobile": mobile})
	if continuation != nil {
		return continuation(ctx)
	}
	return nil
}

func (s *otpService) Resend(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != domain.OTPStepSent {
		return ErrOTPNotActive
	}

	s.buffer.clear()
	outcome, message, err := s.gateway.RequestOTP(ctx, s.mobile)
	if err != nil {
		s.lastError = commerce.UpstreamMessage(err, "could not resend verification code")
		return fmt.Errorf("%w: %v", ErrOTPRequestFailed, err)
	}
	if outcome == commerce.OTPRequestFailed {
		if message == "" {
			message = "could not resend verification code"
		}
		s.lastError = message
		return fmt.Errorf("%w: %s", ErrOTPRequestFailed, message)
	}
	s.lastError = ""
	s.logger(ctx, "otp.resent", map[string]any{"mobile": s.mobile})
	return nil
}

func (s *otpService) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *otpService) Step() domain.OTPStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *otpService) Focus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.focus
}

func (s *otpService) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// reset discards the active challenge. Caller holds the lock.
func (s *otpService) reset() {
	s.step = domain.OTPStepIdle
	s.mobile = ""
	s.buffer.clear()
	s.continuation = nil
	s.lastError = ""
}
