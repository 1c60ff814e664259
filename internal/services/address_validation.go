package services

import (
	"regexp"
	"strings"
)

// ValidationError reports form validation failures. Field and Message carry
// the first failing field (the primary banner); Fields keeps the full
// field-to-message map for inline display.
type ValidationError struct {
	Field   string
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	nameRe    = regexp.MustCompile(`^[A-Za-z. ]+$`)
	contactRe = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	emailRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	cityRe    = regexp.MustCompile(`^[A-Za-z ]+$`)
	postalRe  = regexp.MustCompile(`^[0-9]{6}$`)
)

// indianStates is the fixed selection list offered by the address form.
var indianStates = []string{
	"Andhra Pradesh", "Arunachal Pradesh", "Assam", "Bihar", "Chhattisgarh",
	"Goa", "Gujarat", "Haryana", "Himachal Pradesh", "Jharkhand", "Karnataka",
	"Kerala", "Madhya Pradesh", "Maharashtra", "Manipur", "Meghalaya",
	"Mizoram", "Nagaland", "Odisha", "Punjab", "Rajasthan", "Sikkim",
	"Tamil Nadu", "Telangana", "Tripura", "Uttar Pradesh", "Uttarakhand",
	"West Bengal",
	"Andaman and Nicobar Islands", "Chandigarh",
	"Dadra and Nagar Haveli and Daman and Diu", "Delhi", "Jammu and Kashmir",
	"Ladakh", "Lakshadweep", "Puducherry",
}

// IndianStates returns the fixed state selection list.
func IndianStates() []string {
	out := make([]string, len(indianStates))
	copy(out, indianStates)
	return out
}

func isKnownState(state string) bool {
	for _, s := range indianStates {
		if strings.EqualFold(s, state) {
			return true
		}
	}
	return false
}

type fieldCheck struct {
	field   string
	message string
	ok      bool
}

// validateAddressForm reproduces the form's field rules. Every field is
// checked so the inline map is complete; the first failure becomes the
// primary error.
func validateAddressForm(form AddressForm, emailRequired bool) *ValidationError {
	name := strings.TrimSpace(form.Name)
	contact := strings.TrimSpace(form.ContactNo)
	email := strings.TrimSpace(form.Email)
	line1 := strings.TrimSpace(form.Line1)
	line2 := strings.TrimSpace(form.Line2)
	city := strings.TrimSpace(form.City)
	state := strings.TrimSpace(form.State)
	country := strings.TrimSpace(form.Country)
	postal := strings.TrimSpace(form.PostalCode)

	checks := []fieldCheck{
		{"name", "enter a valid name (letters, spaces and dots, at least 2 characters)",
			len(name) >= 2 && nameRe.MatchString(name)},
		{"contact_no", "enter a valid 10-digit mobile number",
			contactRe.MatchString(contact)},
		{"email", "enter a valid email address",
			!emailRequired && email == "" || emailRe.MatchString(email)},
		{"address_line1", "address must be between 5 and 250 characters",
			len(line1) >= 5 && len(line1) <= 250},
		{"address_line2", "address line 2 must be at most 250 characters",
			len(line2) <= 250},
		{"city", "enter a valid city name",
			len(city) >= 2 && cityRe.MatchString(city)},
		{"state", "select a state",
			isKnownState(state)},
		{"country", "country is required",
			country != ""},
		{"postal_code", "enter a valid 6-digit pincode",
			postalRe.MatchString(postal)},
	}

	fields := make(map[string]string)
	var first *fieldCheck
	for i := range checks {
		if checks[i].ok {
			continue
		}
		fields[checks[i].field] = checks[i].message
		if first == nil {
			first = &checks[i]
		}
	}
	if first == nil {
		return nil
	}
	return &ValidationError{Field: first.field, Message: first.message, Fields: fields}
}
