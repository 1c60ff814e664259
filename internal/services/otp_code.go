package services

import "strings"

const otpCodeLength = 6

// codeBuffer models the six digit-box inputs of the verification form: one
// numeric character per box, focus auto-advancing forward on entry and
// backward on backspace-when-empty, and paste distributing a full code.
type codeBuffer struct {
	digits [otpCodeLength]byte
	focus  int
}

func (b *codeBuffer) enterDigit(d byte) {
	if d < '0' || d > '9' {
		return
	}
	b.digits[b.focus] = d
	if b.focus < otpCodeLength-1 {
		b.focus++
	}
}

func (b *codeBuffer) backspace() {
	if b.digits[b.focus] == 0 && b.focus > 0 {
		b.focus--
	}
	b.digits[b.focus] = 0
}

func (b *codeBuffer) paste(code string) {
	code = strings.TrimSpace(code)
	if len(code) != otpCodeLength {
		return
	}
	for i := 0; i < otpCodeLength; i++ {
		if code[i] < '0' || code[i] > '9' {
			return
		}
	}
	for i := 0; i < otpCodeLength; i++ {
		b.digits[i] = code[i]
	}
	b.focus = otpCodeLength - 1
}

func (b *codeBuffer) clear() {
	*b = codeBuffer{}
}

func (b *codeBuffer) complete() bool {
	for _, d := range b.digits {
		if d == 0 {
			return false
		}
	}
	return true
}

func (b *codeBuffer) code() string {
	var sb strings.Builder
	for _, d := range b.digits {
		if d != 0 {
			sb.WriteByte(d)
		}
	}
	return sb.String()
}
