package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func loadEnv(t *testing.T, env map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := loadEnv(t, map[string]string{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Repositories.Backend != BackendMemory || cfg.Repositories.CartBackend != BackendMemory {
		t.Errorf("expected memory backends, got %+v", cfg.Repositories)
	}
	if cfg.Pricing.TaxRate.String() != "0.08" {
		t.Errorf("expected default tax rate 0.08, got %s", cfg.Pricing.TaxRate)
	}
	if cfg.Pricing.TaxBasis != TaxBasisSubtotal {
		t.Errorf("expected tax on subtotal, got %s", cfg.Pricing.TaxBasis)
	}
	if cfg.Pricing.FreeShippingThreshold.StringFixed(2) != "150.00" {
		t.Errorf("unexpected free shipping threshold %s", cfg.Pricing.FreeShippingThreshold)
	}
	if cfg.Pricing.BaseShippingRate.StringFixed(2) != "15.00" {
		t.Errorf("unexpected base shipping rate %s", cfg.Pricing.BaseShippingRate)
	}
	if len(cfg.Pricing.Zones) != 0 {
		t.Errorf("expected no zones, got %v", cfg.Pricing.Zones)
	}
	if cfg.Events.Backend != EventsNone {
		t.Errorf("expected events disabled, got %s", cfg.Events.Backend)
	}
	if cfg.Session.Header != "X-Session-ID" {
		t.Errorf("unexpected session header %s", cfg.Session.Header)
	}
	if cfg.Payments.WalletTimeout != 8*time.Second {
		t.Errorf("unexpected wallet timeout %s", cfg.Payments.WalletTimeout)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_SERVER_PORT":               "9090",
		"STOREFRONT_REPOSITORY_BACKEND":        "firestore",
		"STOREFRONT_CART_BACKEND":              "redis",
		"STOREFRONT_FIRESTORE_PROJECT_ID":      "maison-prod",
		"STOREFRONT_REDIS_ADDR":                "redis:6379",
		"STOREFRONT_REDIS_PASSWORD":            "sm://redis/password",
		"STOREFRONT_PRICING_TAX_RATE":          "0.10",
		"STOREFRONT_PRICING_TAX_BASIS":         "discounted",
		"STOREFRONT_SHIPPING_ZONES":            "jp=0:10.00, US=200:25.00",
		"STOREFRONT_PAYMENTS_STRIPE_API_KEY":   "secret://stripe/api",
		"STOREFRONT_PAYMENTS_WALLET_ENDPOINT":  "https://wallet.example.com/initiate",
		"STOREFRONT_PAYMENTS_WALLET_PROVIDERS": "paypay, linepay",
		"STOREFRONT_EVENTS_BACKEND":            "pubsub",
	}

	resolver := SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
		switch ref {
		case "secret://stripe/api":
			return "sk_live", nil
		case "secret://redis/password":
			return "hunter2", nil
		}
		return "", errors.New("unknown ref")
	})

	cfg, err := loadEnv(t, env, WithSecretResolver(resolver), WithRequiredSecrets("Payments.StripeAPIKey"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.Repositories.CartBackend != BackendRedis {
		t.Errorf("expected redis carts, got %s", cfg.Repositories.CartBackend)
	}
	if cfg.Payments.StripeAPIKey != "sk_live" {
		t.Errorf("expected resolved stripe key, got %q", cfg.Payments.StripeAPIKey)
	}
	if cfg.Redis.Password != "hunter2" {
		t.Errorf("expected resolved redis password, got %q", cfg.Redis.Password)
	}
	if cfg.Pricing.TaxBasis != TaxBasisDiscounted {
		t.Errorf("expected discounted tax basis, got %s", cfg.Pricing.TaxBasis)
	}
	jp, ok := cfg.Pricing.Zones["JP"]
	if !ok || !jp.FreeThreshold.IsZero() || jp.BaseRate.StringFixed(2) != "10.00" {
		t.Errorf("unexpected JP zone %+v", cfg.Pricing.Zones)
	}
	if us := cfg.Pricing.Zones["US"]; us.FreeThreshold.StringFixed(2) != "200.00" {
		t.Errorf("unexpected US zone %+v", us)
	}
	if len(cfg.Payments.WalletProviders) != 2 || cfg.Payments.WalletProviders[1] != "linepay" {
		t.Errorf("unexpected wallet providers %v", cfg.Payments.WalletProviders)
	}
	if cfg.Events.ProjectID != "maison-prod" {
		t.Errorf("expected events project to default to firestore project, got %s", cfg.Events.ProjectID)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local\nexport STOREFRONT_SERVER_PORT=7070\nSTOREFRONT_LOG_LEVEL=\"debug\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from .env, got %s", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level from .env, got %s", cfg.Log.Level)
	}
}

func TestLoadReportsEveryInvalidField(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_REPOSITORY_BACKEND":      "firestore",
		"STOREFRONT_PRICING_TAX_RATE":        "abc",
		"STOREFRONT_PRICING_TAX_BASIS":       "net",
		"STOREFRONT_SHIPPING_BASE_RATE":      "-1",
		"STOREFRONT_SHIPPING_ZONES":          "JP=broken",
		"STOREFRONT_EVENTS_BACKEND":          "kafka",
		"STOREFRONT_PAYMENTS_WALLET_TIMEOUT": "0s",
	}

	_, err := loadEnv(t, env)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	want := map[string]bool{
		"Pricing.TaxRate":          false,
		"Pricing.TaxBasis":         false,
		"Pricing.BaseShippingRate": false,
		"Pricing.Zones":            false,
		"Firestore.ProjectID":      false,
		"Events.KafkaBrokers":      false,
		"Payments.WalletTimeout":   false,
	}
	for _, field := range vErr.Fields() {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in %v", field, vErr.Fields())
		}
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{"STOREFRONT_PAYMENTS_STRIPE_API_KEY": "secret://stripe/api"}
	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	})

	_, err := loadEnv(t, env, WithSecretResolver(resolver))
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if sErr.Ref != "secret://stripe/api" {
		t.Errorf("unexpected ref %s", sErr.Ref)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := loadEnv(t, map[string]string{}, WithRequiredSecrets("Payments.StripeAPIKey"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing secrets error, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Payments.StripeAPIKey" {
		t.Errorf("unexpected names %v", names)
	}
	if len(missing.RedactedNames()[0]) != 16 {
		t.Errorf("expected redacted hash, got %v", missing.RedactedNames())
	}
}

func TestLookupUsesSamePrecedence(t *testing.T) {
	t.Setenv("STOREFRONT_SECRETS_PROJECT_ID", "from-os")

	value, ok, err := Lookup("STOREFRONT_SECRETS_PROJECT_ID", WithEnvFile(""))
	if err != nil || !ok || value != "from-os" {
		t.Fatalf("expected os value, got %q %v %v", value, ok, err)
	}

	value, _, _ = Lookup("STOREFRONT_SECRETS_PROJECT_ID", WithEnvFile(""), WithEnvMap(map[string]string{"STOREFRONT_SECRETS_PROJECT_ID": "from-map"}))
	if value != "from-map" {
		t.Fatalf("expected map to win, got %q", value)
	}
}
