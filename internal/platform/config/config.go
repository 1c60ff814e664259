package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultCommerceTimeout = 20 * time.Second
	defaultSessionDir      = ".checkout-sessions"
	defaultCurrency        = "INR"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Commerce CommerceConfig
	Razorpay RazorpayConfig
	Session  SessionConfig
	Features FeatureFlags
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CommerceConfig points at the upstream commerce API.
type CommerceConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Currency string
}

// RazorpayConfig collects payment gateway parameters. KeySecret is optional;
// when present the callback signature is prechecked locally before the
// authoritative server-side verification.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
}

// SessionConfig controls where persisted checkout session state lives.
type SessionConfig struct {
	Dir string
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	ClientGeneratedCartID bool
	LocalSignatureCheck   bool
}

// Option customises configuration loading.
type Option func(*loader)

type loader struct {
	envFile string
	getenv  func(string) string
}

// WithEnvFile overrides the .env file consulted before process environment.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
	}
}

// WithGetenv overrides environment lookup, primarily for tests.
func WithGetenv(fn func(string) string) Option {
	return func(l *loader) {
		if fn != nil {
			l.getenv = fn
		}
	}
}

// Load assembles the configuration from the env file and process environment,
// applying defaults and validating required values.
func Load(opts ...Option) (Config, error) {
	l := &loader{
		envFile: defaultEnvFile,
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(l)
	}

	fileValues, err := readEnvFile(l.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) string {
		if v := strings.TrimSpace(l.getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(fileValues[key])
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         valueOrDefault(lookup("PORT"), defaultPort),
			ReadTimeout:  durationOrDefault(lookup("SERVER_READ_TIMEOUT"), defaultReadTimeout),
			WriteTimeout: durationOrDefault(lookup("SERVER_WRITE_TIMEOUT"), defaultWriteTimeout),
			IdleTimeout:  durationOrDefault(lookup("SERVER_IDLE_TIMEOUT"), defaultIdleTimeout),
		},
		Commerce: CommerceConfig{
			BaseURL:  lookup("COMMERCE_BASE_URL"),
			APIKey:   lookup("COMMERCE_API_KEY"),
			Timeout:  durationOrDefault(lookup("COMMERCE_TIMEOUT"), defaultCommerceTimeout),
			Currency: valueOrDefault(lookup("COMMERCE_CURRENCY"), defaultCurrency),
		},
		Razorpay: RazorpayConfig{
			KeyID:     lookup("RAZORPAY_KEY_ID"),
			KeySecret: lookup("RAZORPAY_KEY_SECRET"),
		},
		Session: SessionConfig{
			Dir: valueOrDefault(lookup("SESSION_DIR"), defaultSessionDir),
		},
		Features: FeatureFlags{
			ClientGeneratedCartID: boolOrDefault(lookup("FEATURE_CLIENT_CART_ID"), false),
			LocalSignatureCheck:   boolOrDefault(lookup("FEATURE_LOCAL_SIGNATURE_CHECK"), true),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	base := strings.TrimSpace(c.Commerce.BaseURL)
	if base == "" {
		return errors.New("config: COMMERCE_BASE_URL is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config: COMMERCE_BASE_URL %q is not a valid absolute URL", base)
	}
	if c.Features.LocalSignatureCheck && strings.TrimSpace(c.Razorpay.KeySecret) == "" {
		// Without a secret the precheck is skipped rather than failing startup.
		// Still treated as valid configuration.
		_ = c
	}
	if strings.TrimSpace(c.Session.Dir) == "" {
		return errors.New("config: SESSION_DIR must not be empty")
	}
	return nil
}

// readEnvFile parses KEY=VALUE lines, ignoring comments and blank lines. A
// missing file is not an error; the process environment stands alone.
func readEnvFile(path string) (map[string]string, error) {
	values := make(map[string]string)
	if strings.TrimSpace(path) == "" {
		return values, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func durationOrDefault(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func boolOrDefault(value string, fallback bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
