package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Store drivers.
const (
	StoreMemory    = "memory"
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
)

// Auth providers.
const (
	AuthFirebase = "firebase"
	AuthJWT      = "jwt"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	StoreDriver        string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	FirestoreProjectID      string
	FirestoreEmulatorHost   string
	FirebaseCredentialsFile string

	AuthProvider string
	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	AccessCookie string

	AdminUser         string
	AdminPasswordHash string

	ShippingFee  float64
	TaxRate      float64
	CurrencyCode string

	CouponRevalidate        bool
	CouponAttemptsPerMinute int
	SessionTTL              time.Duration
	LockTTL                 time.Duration
	IdempotencyTTL          time.Duration

	PaymentKeyID     string
	PaymentKeySecret string
	PaymentBaseURL   string
	PaymentSandbox   bool
	PaymentRateLimit string
	PaymentTimeout   time.Duration

	NotifyEmailEnabled bool
	NotifyEmailFrom    string
	WorkerConcurrency  int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		StoreDriver:        strings.ToLower(valueOrDefault(k.String("STORE_DRIVER"), StoreMemory)),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		FirestoreProjectID:      strings.TrimSpace(k.String("FIRESTORE_PROJECT_ID")),
		FirestoreEmulatorHost:   strings.TrimSpace(k.String("FIRESTORE_EMULATOR_HOST")),
		FirebaseCredentialsFile: strings.TrimSpace(k.String("FIREBASE_CREDENTIALS_FILE")),

		AuthProvider: strings.ToLower(valueOrDefault(k.String("AUTH_PROVIDER"), AuthJWT)),
		JWTSecret:    k.String("JWT_SECRET"),
		JWTIssuer:    valueOrDefault(k.String("JWT_ISSUER"), "storefront"),
		JWTAudience:  valueOrDefault(k.String("JWT_AUDIENCE"), "storefront-web"),
		AccessCookie: strings.TrimSpace(k.String("ACCESS_COOKIE_NAME")),

		AdminUser:         strings.TrimSpace(k.String("ADMIN_USER")),
		AdminPasswordHash: strings.TrimSpace(k.String("ADMIN_PASSWORD_HASH")),

		ShippingFee:  parseFloat(k.String("PRICING_SHIPPING_FEE"), 50),
		TaxRate:      parseFloat(k.String("PRICING_TAX_RATE"), 0.18),
		CurrencyCode: strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "INR")),

		CouponRevalidate:        parseBool(k.String("COUPON_REVALIDATE")),
		CouponAttemptsPerMinute: parseInt(k.String("COUPON_ATTEMPTS_PER_MINUTE"), 10),
		SessionTTL:              parseDuration(k.String("SESSION_TTL"), "168h"),
		LockTTL:                 parseDuration(k.String("LOCK_TTL"), "10s"),
		IdempotencyTTL:          parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		PaymentKeyID:     k.String("PAYMENT_KEY_ID"),
		PaymentKeySecret: k.String("PAYMENT_KEY_SECRET"),
		PaymentBaseURL:   valueOrDefault(k.String("PAYMENT_BASE_URL"), "https://api.razorpay.com"),
		PaymentSandbox:   parseBool(k.String("PAYMENT_SANDBOX")),
		PaymentRateLimit: valueOrDefault(k.String("PAYMENT_RATE_LIMIT"), "20-M"),
		PaymentTimeout:   parseDuration(k.String("PAYMENT_TIMEOUT"), "10s"),

		NotifyEmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED")),
		NotifyEmailFrom:    valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "orders@storefront.local"),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for STORE_DRIVER=postgres")
		}
	case StoreFirestore:
		if c.FirestoreProjectID == "" {
			return errors.New("FIRESTORE_PROJECT_ID is required for STORE_DRIVER=firestore")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.AuthProvider {
	case AuthJWT:
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required for AUTH_PROVIDER=jwt")
		}
	case AuthFirebase:
		if c.FirestoreProjectID == "" {
			return errors.New("FIRESTORE_PROJECT_ID is required for AUTH_PROVIDER=firebase")
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider)
	}
	if c.TaxRate < 0 || c.TaxRate >= 1 {
		return fmt.Errorf("PRICING_TAX_RATE must be in [0, 1), got %v", c.TaxRate)
	}
	if c.ShippingFee < 0 {
		return fmt.Errorf("PRICING_SHIPPING_FEE must not be negative, got %v", c.ShippingFee)
	}
	if !c.PaymentSandbox && (c.PaymentKeyID == "" || c.PaymentKeySecret == "") {
		return errors.New("PAYMENT_KEY_ID and PAYMENT_KEY_SECRET are required unless PAYMENT_SANDBOX is set")
	}
	if c.PaymentSandbox && c.PaymentKeySecret == "" {
		return errors.New("PAYMENT_KEY_SECRET is required to verify payment signatures")
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return f
}

func parseInt(value string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n > 0 {
		return n
	}
	return fallback
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
