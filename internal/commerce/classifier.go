package commerce

import "strings"

// The commerce API drives the OTP flow through free-text messages rather than
// structured codes. The matching lives here, behind named outcomes, so the
// brittle string contract stays in one swappable place.

// OTPRequestOutcome classifies the response to an OTP dispatch request.
type OTPRequestOutcome string

const (
	// OTPSent indicates a code was dispatched to the mobile number.
	OTPSent OTPRequestOutcome = "sent"
	// OTPAlreadyValidated indicates the mobile is already verified and no
	// challenge is needed; the caller must not progress to code entry.
	OTPAlreadyValidated OTPRequestOutcome = "already_validated"
	// OTPRequestFailed indicates the dispatch was rejected.
	OTPRequestFailed OTPRequestOutcome = "failed"
)

// OTPVerifyOutcome classifies the response to a code submission.
type OTPVerifyOutcome string

const (
	// OTPVerified indicates the submitted code was accepted.
	OTPVerified OTPVerifyOutcome = "verified"
	// OTPRejected indicates the submitted code was wrong or expired.
	OTPRejected OTPVerifyOutcome = "rejected"
)

// ClassifyOTPRequest maps the request-otp response onto a named outcome.
// Observed message texts: "otp sent", "otp already verified",
// "mobile already validated".
func ClassifyOTPRequest(success bool, message string) OTPRequestOutcome {
	normalized := strings.ToLower(strings.TrimSpace(message))
	switch {
	case strings.Contains(normalized, "already"):
		return OTPAlreadyValidated
	case strings.Contains(normalized, "sent"):
		return OTPSent
	case success:
		return OTPSent
	default:
		return OTPRequestFailed
	}
}

// ClassifyOTPVerify maps the verify-otp response onto a named outcome.
// Observed message texts: "otp verified successfully", "otp already verified".
func ClassifyOTPVerify(success bool, message string) OTPVerifyOutcome {
	normalized := strings.ToLower(strings.TrimSpace(message))
	switch {
	case strings.Contains(normalized, "verified"):
		return OTPVerified
	case success:
		return OTPVerified
	default:
		return OTPRejected
	}
}

// IsSuccessMessage reports whether a free-text response message signals
// success. Address update and delete respond this way.
func IsSuccessMessage(message string) bool {
	return strings.Contains(strings.ToLower(message), "success")
}
