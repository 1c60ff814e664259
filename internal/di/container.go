package di

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/handlers"
	"github.com/avasa-home/checkout/internal/payments"
	"github.com/avasa-home/checkout/internal/platform/config"
	"github.com/avasa-home/checkout/internal/platform/observability"
	"github.com/avasa-home/checkout/internal/services"
	"github.com/avasa-home/checkout/internal/session"
)

// Container wires the commerce client, payment providers, and the
// per-session service graph for runtime use.
type Container struct {
	Config   config.Config
	Commerce *commerce.Client
	Payments *payments.Manager
	Sessions *handlers.SessionManager
}

// NewContainer constructs the runtime dependencies. Each checkout session
// gets its own service graph over the shared commerce client; session state
// is persisted as one file per session id under the configured directory.
func NewContainer(cfg config.Config, logger *zap.Logger) (*Container, error) {
	client, err := commerce.NewClient(commerce.Config{
		BaseURL: cfg.Commerce.BaseURL,
		APIKey:  cfg.Commerce.APIKey,
		Timeout: cfg.Commerce.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("commerce client: %w", err)
	}

	keySecret := cfg.Razorpay.KeySecret
	if !cfg.Features.LocalSignatureCheck {
		keySecret = ""
	}
	provider, err := payments.NewRazorpayProvider(cfg.Razorpay.KeyID, keySecret, cfg.Commerce.Currency)
	if err != nil {
		return nil, fmt.Errorf("razorpay provider: %w", err)
	}
	manager, err := payments.NewManager(map[string]payments.Provider{"razorpay": provider})
	if err != nil {
		return nil, fmt.Errorf("payments manager: %w", err)
	}

	eventLog := observability.EventLogger(logger)

	factory := func(sessionID string) (*services.Controller, error) {
		store, err := session.NewFileStore(filepath.Join(cfg.Session.Dir, sessionID+".json"))
		if err != nil {
			return nil, err
		}
		return buildController(store, client, manager, cfg, eventLog)
	}

	sessions, err := handlers.NewSessionManager(factory)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:   cfg,
		Commerce: client,
		Payments: manager,
		Sessions: sessions,
	}, nil
}

// NewTestContainer builds a container with in-memory session stores, for
// tests that should not touch the filesystem.
func NewTestContainer(cfg config.Config, logger *zap.Logger) (*Container, error) {
	container, err := NewContainer(cfg, logger)
	if err != nil {
		return nil, err
	}
	eventLog := observability.EventLogger(logger)
	factory := func(sessionID string) (*services.Controller, error) {
		return buildController(session.NewMemoryStore(), container.Commerce, container.Payments, cfg, eventLog)
	}
	sessions, err := handlers.NewSessionManager(factory)
	if err != nil {
		return nil, err
	}
	container.Sessions = sessions
	return container, nil
}

func buildController(store session.Store, client *commerce.Client, manager *payments.Manager, cfg config.Config, eventLog func(context.Context, string, map[string]any)) (*services.Controller, error) {
	sess, err := session.New(session.Deps{
		Store:                 store,
		ClientGeneratedCartID: cfg.Features.ClientGeneratedCartID,
	})
	if err != nil {
		return nil, err
	}

	cart, err := services.NewCartService(services.CartServiceDeps{Gateway: client, Session: sess, Logger: eventLog})
	if err != nil {
		return nil, err
	}
	addresses, err := services.NewAddressService(services.AddressServiceDeps{Gateway: client, Session: sess, Logger: eventLog})
	if err != nil {
		return nil, err
	}
	otp, err := services.NewOTPService(services.OTPServiceDeps{Gateway: client, Logger: eventLog})
	if err != nil {
		return nil, err
	}
	registration, err := services.NewRegistrationService(services.RegistrationServiceDeps{Gateway: client, Session: sess, Logger: eventLog})
	if err != nil {
		return nil, err
	}
	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{Shipping: client, Session: sess, Logger: eventLog})
	if err != nil {
		return nil, err
	}
	coupons, err := services.NewCouponService(services.CouponServiceDeps{Gateway: client, Session: sess, Logger: eventLog})
	if err != nil {
		return nil, err
	}
	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{Gateway: client, Session: sess, Payments: manager, Logger: eventLog})
	if err != nil {
		return nil, err
	}

	return services.NewController(services.ControllerDeps{
		Session:      sess,
		Cart:         cart,
		Addresses:    addresses,
		OTP:          otp,
		Registration: registration,
		Pricing:      pricing,
		Coupons:      coupons,
		Checkout:     checkout,
		Logger:       eventLog,
	})
}
