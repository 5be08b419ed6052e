package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"REDIS_URL":          "redis://localhost:6379/0",
		"JWT_SECRET":         "secret",
		"PAYMENT_KEY_ID":     "rzp_test",
		"PAYMENT_KEY_SECRET": "shh",
		"STORE_DRIVER":       "",
		"AUTH_PROVIDER":      "",
		"PRICING_TAX_RATE":   "",
		"PAYMENT_SANDBOX":    "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.StoreDriver)
	require.Equal(t, AuthJWT, cfg.AuthProvider)
	require.Equal(t, 50.0, cfg.ShippingFee)
	require.Equal(t, 0.18, cfg.TaxRate)
	require.Equal(t, "INR", cfg.CurrencyCode)
	require.False(t, cfg.CouponRevalidate)
	require.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	require.Equal(t, 10*time.Second, cfg.LockTTL)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PRICING_SHIPPING_FEE"] = "40"
	env["PRICING_TAX_RATE"] = "0.05"
	env["COUPON_REVALIDATE"] = "true"
	env["CURRENCY_CODE"] = "usd"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example, https://b.example"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 40.0, cfg.ShippingFee)
	require.Equal(t, 0.05, cfg.TaxRate)
	require.True(t, cfg.CouponRevalidate)
	require.Equal(t, "USD", cfg.CurrencyCode)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadKeepsExplicitZeroPricing(t *testing.T) {
	env := baseEnv()
	env["PRICING_SHIPPING_FEE"] = "0"
	env["PRICING_TAX_RATE"] = "0"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Zero(t, cfg.ShippingFee)
	require.Zero(t, cfg.TaxRate)

	env["PRICING_TAX_RATE"] = "NaN"
	cfg, err = LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 0.18, cfg.TaxRate)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"missing redis":          {"REDIS_URL": ""},
		"postgres without url":   {"STORE_DRIVER": "postgres", "DATABASE_URL": ""},
		"firestore without id":   {"STORE_DRIVER": "firestore", "FIRESTORE_PROJECT_ID": ""},
		"unknown driver":         {"STORE_DRIVER": "mongo"},
		"jwt without secret":     {"JWT_SECRET": ""},
		"tax out of range":       {"PRICING_TAX_RATE": "1.5"},
		"missing payment keys":   {"PAYMENT_KEY_ID": ""},
		"unknown auth provider":  {"AUTH_PROVIDER": "saml"},
		"sandbox without secret": {"PAYMENT_SANDBOX": "true", "PAYMENT_KEY_SECRET": ""},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			for k, v := range overrides {
				env[k] = v
			}
			_, err := LoadForTests(env)
			require.Error(t, err)
		})
	}
}
