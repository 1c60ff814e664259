package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
)

var (
	// ErrAddressUnavailable indicates the address backend could not serve the
	// request.
	ErrAddressUnavailable = errors.New("address: unavailable")
	// ErrVerificationRequired indicates a guest attempted an address write;
	// the contact number must pass the OTP challenge and the guest must be
	// promoted to an account first.
	ErrVerificationRequired = errors.New("address: mobile verification required")
)

// AddressServiceDeps wires the dependencies required by the address service.
type AddressServiceDeps struct {
	Gateway AddressGateway
	Session IdentitySource
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type addressService struct {
	gateway AddressGateway
	session IdentitySource
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewAddressService constructs an AddressService validating required dependencies.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("address service: gateway is required")
	}
	if deps.Session == nil {
		return nil, errors.New("address service: session is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &addressService{gateway: deps.Gateway, session: deps.Session, logger: logger}, nil
}

func (s *addressService) List(ctx context.Context) ([]domain.Address, error) {
	identity := s.session.Identity()
	if !identity.IsAuthenticated() {
		// Guests have no stored addresses.
		return nil, nil
	}
	addresses, err := s.gateway.ListAddresses(ctx, identity.Credentials().Bearer)
	if err != nil {
		s.logger(ctx, "address.list_failed", map[string]any{"error": err.Error()})
		return nil, translateAddressError(err)
	}
	return addresses, nil
}

func (s *addressService) Create(ctx context.Context, form AddressForm) error {
	identity := s.session.Identity()
	if verr := validateAddressForm(form, !identity.IsAuthenticated()); verr != nil {
		return verr
	}
	if !identity.IsAuthenticated() {
		// The address write must never be issued under an anonymous
		// identity; promotion happens first.
		return ErrVerificationRequired
	}
	if err := s.gateway.RegisterAddress(ctx, identity.Credentials().Bearer, formToAddress(form)); err != nil {
		s.logger(ctx, "address.create_failed", map[string]any{"error": err.Error()})
		return translateAddressError(err)
	}
	return nil
}

func (s *addressService) Edit(ctx context.Context, addressID string, form AddressForm) error {
	identity := s.session.Identity()
	if !identity.IsAuthenticated() {
		return ErrVerificationRequired
	}
	// Edits skip the OTP gate: the contact number is already trusted on an
	// authenticated account. Email is never required on edit.
	if verr := validateAddressForm(form, false); verr != nil {
		return verr
	}
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return &ValidationError{Field: "id", Message: "address id is required", Fields: map[string]string{"id": "address id is required"}}
	}
	if err := s.gateway.UpdateAddress(ctx, identity.Credentials().Bearer, addressID, formToAddress(form)); err != nil {
		s.logger(ctx, "address.edit_failed", map[string]any{"addressId": addressID, "error": err.Error()})
		return translateAddressError(err)
	}
	return nil
}

func (s *addressService) Delete(ctx context.Context, addressID string) ([]domain.Address, error) {
	identity := s.session.Identity()
	if !identity.IsAuthenticated() {
		return nil, ErrVerificationRequired
	}
	bearer := identity.Credentials().Bearer
	if err := s.gateway.DeleteAddress(ctx, bearer, strings.TrimSpace(addressID)); err != nil {
		s.logger(ctx, "address.delete_failed", map[string]any{"addressId": addressID, "error": err.Error()})
		return nil, translateAddressError(err)
	}
	// Refetch in full rather than patching locally so default-selection
	// logic re-runs consistently.
	addresses, err := s.gateway.ListAddresses(ctx, bearer)
	if err != nil {
		return nil, translateAddressError(err)
	}
	return addresses, nil
}

// SelectAddress picks the shipping address for a loaded list: the first one
// flagged default, else the first in sequence. Returns false for an empty
// list, which callers treat as "open the create-address flow".
func SelectAddress(addresses []domain.Address) (domain.Address, bool) {
	if len(addresses) == 0 {
		return domain.Address{}, false
	}
	for _, addr := range addresses {
		if addr.IsDefault {
			return addr, true
		}
	}
	return addresses[0], true
}

func formToAddress(form AddressForm) domain.Address {
	return domain.Address{
		Name:       strings.TrimSpace(form.Name),
		ContactNo:  strings.TrimSpace(form.ContactNo),
		Email:      strings.TrimSpace(form.Email),
		Line1:      strings.TrimSpace(form.Line1),
		Line2:      strings.TrimSpace(form.Line2),
		City:       strings.TrimSpace(form.City),
		State:      strings.TrimSpace(form.State),
		Country:    strings.TrimSpace(form.Country),
		PostalCode: strings.TrimSpace(form.PostalCode),
		IsDefault:  true,
	}
}

func translateAddressError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *commerce.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, commerce.ErrNoIdentity) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrAddressUnavailable, err)
}
