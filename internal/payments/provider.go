package payments

import (
	"errors"
	"strings"

	"github.com/avasa-home/checkout/internal/domain"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrIncompleteCallback indicates the widget callback is missing one of the
	// three gateway-issued identifiers.
	ErrIncompleteCallback = errors.New("payments: incomplete gateway callback")
	// ErrSignatureMismatch indicates the local signature precheck failed.
	ErrSignatureMismatch = errors.New("payments: callback signature mismatch")
)

// Prefill carries the stored profile contact fields handed to the payment
// widget.
type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// Handoff is the payload the checkout page passes to the external payment
// widget.
type Handoff struct {
	Provider string  `json:"provider"`
	Key      string  `json:"key"`
	OrderRef string  `json:"order_ref"`
	Amount   int64   `json:"amount"`
	Currency string  `json:"currency"`
	Prefill  Prefill `json:"prefill"`
}

// Provider adapts one payment gateway's handoff and callback conventions.
type Provider interface {
	// BuildHandoff prepares the widget payload for a gateway order reference.
	BuildHandoff(order domain.GatewayOrder, profile domain.Profile) (Handoff, error)
	// PrecheckCallback validates the widget's success callback before the
	// authoritative server-side verification is attempted.
	PrecheckCallback(cb domain.PaymentCallback) error
}

// Manager coordinates provider selection.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copied := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" || v == nil {
			return nil, errors.New("payments: invalid provider registration")
		}
		copied[key] = v
	}
	m := &Manager{providers: copied}
	if _, ok := copied["razorpay"]; ok {
		m.defaultProvider = "razorpay"
	}
	return m, nil
}

func (m *Manager) resolve(preferred string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, ErrUnsupportedProvider
	}
	if key := strings.ToLower(strings.TrimSpace(preferred)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, ErrUnsupportedProvider
	}
	if m.defaultProvider != "" {
		if p, ok := m.providers[m.defaultProvider]; ok {
			return m.defaultProvider, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// BuildHandoff delegates to the resolved provider.
func (m *Manager) BuildHandoff(preferred string, order domain.GatewayOrder, profile domain.Profile) (Handoff, error) {
	key, provider, err := m.resolve(preferred)
	if err != nil {
		return Handoff{}, err
	}
	handoff, err := provider.BuildHandoff(order, profile)
	if err != nil {
		return Handoff{}, err
	}
	handoff.Provider = key
	return handoff, nil
}

// PrecheckCallback delegates to the resolved provider.
func (m *Manager) PrecheckCallback(preferred string, cb domain.PaymentCallback) error {
	_, provider, err := m.resolve(preferred)
	if err != nil {
		return err
	}
	return provider.PrecheckCallback(cb)
}
