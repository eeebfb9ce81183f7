package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultEnvironment        = "local"
	defaultLogLevel           = "info"
	defaultBackend            = BackendMemory
	defaultRedisCartTTL       = 30 * 24 * time.Hour
	defaultTaxRate            = "0.08"
	defaultTaxBasis           = TaxBasisSubtotal
	defaultFreeThreshold      = "150.00"
	defaultBaseRate           = "15.00"
	defaultWalletTimeout      = 8 * time.Second
	defaultDispatchTimeout    = 20 * time.Second
	defaultBreakerFailures    = 5
	defaultBreakerOpenTimeout = 30 * time.Second
	defaultEventsTopic        = "storefront-orders"
	defaultArchivePrefix      = "receipts"
	defaultSessionHeader      = "X-Session-ID"
	defaultSessionCookie      = "sf_session"
	defaultCheckoutTTL        = 2 * time.Hour
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultIdempotencyCleanup = time.Hour
	defaultSecretsFallback    = ".secrets.local"
)

// Repository backends.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
)

// Event publisher backends.
const (
	EventsNone   = "none"
	EventsPubSub = "pubsub"
	EventsKafka  = "kafka"
)

// Tax bases.
const (
	TaxBasisSubtotal   = "subtotal"
	TaxBasisDiscounted = "discounted"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment  string
	Server       ServerConfig
	Log          LogConfig
	Repositories RepositoryConfig
	Firestore    FirestoreConfig
	Redis        RedisConfig
	Pricing      PricingConfig
	Payments     PaymentsConfig
	Events       EventsConfig
	Archive      ArchiveConfig
	Session      SessionConfig
	Idempotency  IdempotencyConfig
	Secrets      SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string
}

// RepositoryConfig selects storage adapters. Cart storage may differ from the rest.
type RepositoryConfig struct {
	Backend     string
	CartBackend string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RedisConfig configures the Redis cart store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

// ZoneRate is a configured shipping zone.
type ZoneRate struct {
	FreeThreshold decimal.Decimal
	BaseRate      decimal.Decimal
}

// PricingConfig carries tax and shipping policy.
type PricingConfig struct {
	TaxRate               decimal.Decimal
	TaxBasis              string
	FreeShippingThreshold decimal.Decimal
	BaseShippingRate      decimal.Decimal
	Zones                 map[string]ZoneRate
}

// PaymentsConfig collects payment collaborator settings.
type PaymentsConfig struct {
	StripeAPIKey       string
	WalletEndpoint     string
	WalletAPIKey       string
	WalletProviders    []string
	WalletTimeout      time.Duration
	DispatchTimeout    time.Duration
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
}

// EventsConfig selects where order events are published.
type EventsConfig struct {
	Backend      string
	ProjectID    string
	Topic        string
	KafkaBrokers []string
}

// ArchiveConfig configures the Cloud Storage receipt archive. Empty bucket disables it.
type ArchiveConfig struct {
	Bucket string
	Prefix string
}

// SessionConfig controls how storefront sessions are identified.
type SessionConfig struct {
	Header      string
	Cookie      string
	CheckoutTTL time.Duration
}

// IdempotencyConfig controls the payment attempt memo store.
type IdempotencyConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// SecretsConfig configures Secret Manager resolution.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the config field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns hashed identifiers that are safe to log.
func (e *MissingSecretsError) RedactedNames() []string {
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret-bearing fields (e.g. "Payments.StripeAPIKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Lookup returns the effective value for a single key using the same precedence as Load.
// It lets callers configure the secret resolver before the full load runs.
func Lookup(key string, opts ...Option) (string, bool, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := options.lookup()
	if err != nil {
		return "", false, err
	}
	value, ok := lookup(key)
	return value, ok, nil
}

func (o loaderOptions) lookup() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if o.envMap != nil {
			if value, ok := o.envMap[key]; ok {
				return value, true
			}
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}, nil
}

// Load assembles the storefront configuration from STOREFRONT_* variables found in the
// explicit env map, the process environment and the .env file, in that order.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	var invalid []string
	money := func(key, field, fallback string) decimal.Decimal {
		value, err := decimalWithDefault(lookup, key, fallback)
		if err != nil {
			invalid = append(invalid, field)
		}
		return value
	}

	zones, zoneErr := zonesWithDefault(lookup, "STOREFRONT_SHIPPING_ZONES")
	if zoneErr != nil {
		invalid = append(invalid, "Pricing.Zones")
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Log: LogConfig{
			Level: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_LOG_LEVEL", defaultLogLevel)),
		},
		Repositories: RepositoryConfig{
			Backend:     strings.ToLower(stringWithDefault(lookup, "STOREFRONT_REPOSITORY_BACKEND", defaultBackend)),
			CartBackend: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_CART_BACKEND", "")),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "STOREFRONT_FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "STOREFRONT_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "STOREFRONT_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "STOREFRONT_REDIS_DB", 0),
			CartTTL:  durationWithDefault(lookup, "STOREFRONT_REDIS_CART_TTL", defaultRedisCartTTL),
		},
		Pricing: PricingConfig{
			TaxRate:               money("STOREFRONT_PRICING_TAX_RATE", "Pricing.TaxRate", defaultTaxRate),
			TaxBasis:              strings.ToLower(stringWithDefault(lookup, "STOREFRONT_PRICING_TAX_BASIS", defaultTaxBasis)),
			FreeShippingThreshold: money("STOREFRONT_SHIPPING_FREE_THRESHOLD", "Pricing.FreeShippingThreshold", defaultFreeThreshold),
			BaseShippingRate:      money("STOREFRONT_SHIPPING_BASE_RATE", "Pricing.BaseShippingRate", defaultBaseRate),
			Zones:                 zones,
		},
		Payments: PaymentsConfig{
			StripeAPIKey:       stringWithDefault(lookup, "STOREFRONT_PAYMENTS_STRIPE_API_KEY", ""),
			WalletEndpoint:     stringWithDefault(lookup, "STOREFRONT_PAYMENTS_WALLET_ENDPOINT", ""),
			WalletAPIKey:       stringWithDefault(lookup, "STOREFRONT_PAYMENTS_WALLET_API_KEY", ""),
			WalletProviders:    csvWithDefault(lookup, "STOREFRONT_PAYMENTS_WALLET_PROVIDERS"),
			WalletTimeout:      durationWithDefault(lookup, "STOREFRONT_PAYMENTS_WALLET_TIMEOUT", defaultWalletTimeout),
			DispatchTimeout:    durationWithDefault(lookup, "STOREFRONT_PAYMENTS_DISPATCH_TIMEOUT", defaultDispatchTimeout),
			BreakerMaxFailures: intWithDefault(lookup, "STOREFRONT_PAYMENTS_BREAKER_MAX_FAILURES", defaultBreakerFailures),
			BreakerOpenTimeout: durationWithDefault(lookup, "STOREFRONT_PAYMENTS_BREAKER_OPEN_TIMEOUT", defaultBreakerOpenTimeout),
		},
		Events: EventsConfig{
			Backend:      strings.ToLower(stringWithDefault(lookup, "STOREFRONT_EVENTS_BACKEND", EventsNone)),
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_EVENTS_PROJECT_ID", ""),
			Topic:        stringWithDefault(lookup, "STOREFRONT_EVENTS_TOPIC", defaultEventsTopic),
			KafkaBrokers: csvWithDefault(lookup, "STOREFRONT_EVENTS_KAFKA_BROKERS"),
		},
		Archive: ArchiveConfig{
			Bucket: stringWithDefault(lookup, "STOREFRONT_ARCHIVE_BUCKET", ""),
			Prefix: strings.Trim(stringWithDefault(lookup, "STOREFRONT_ARCHIVE_PREFIX", defaultArchivePrefix), "/"),
		},
		Session: SessionConfig{
			Header:      stringWithDefault(lookup, "STOREFRONT_SESSION_HEADER", defaultSessionHeader),
			Cookie:      stringWithDefault(lookup, "STOREFRONT_SESSION_COOKIE", defaultSessionCookie),
			CheckoutTTL: durationWithDefault(lookup, "STOREFRONT_SESSION_CHECKOUT_TTL", defaultCheckoutTTL),
		},
		Idempotency: IdempotencyConfig{
			TTL:             durationWithDefault(lookup, "STOREFRONT_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval: durationWithDefault(lookup, "STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyCleanup),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "STOREFRONT_SECRETS_FALLBACK_FILE", defaultSecretsFallback),
		},
	}

	if cfg.Repositories.CartBackend == "" {
		cfg.Repositories.CartBackend = cfg.Repositories.Backend
	}
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Payments.WalletAPIKey", &cfg.Payments.WalletAPIKey},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}

	var missing []string
	for _, name := range options.requiredSecrets {
		name = strings.TrimSpace(name)
		if name != "" && resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingSecretsError{names: missing}
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	fields := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		fields = append(fields, "Server.Port")
	}

	usesFirestore := cfg.Repositories.Backend == BackendFirestore || cfg.Repositories.CartBackend == BackendFirestore
	switch cfg.Repositories.Backend {
	case BackendMemory, BackendFirestore:
	default:
		fields = append(fields, "Repositories.Backend")
	}
	switch cfg.Repositories.CartBackend {
	case BackendMemory, BackendFirestore, BackendRedis:
	default:
		fields = append(fields, "Repositories.CartBackend")
	}
	if usesFirestore && cfg.Firestore.ProjectID == "" {
		fields = append(fields, "Firestore.ProjectID")
	}
	if cfg.Repositories.CartBackend == BackendRedis && cfg.Redis.Addr == "" {
		fields = append(fields, "Redis.Addr")
	}

	if cfg.Pricing.TaxRate.IsNegative() || cfg.Pricing.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		fields = append(fields, "Pricing.TaxRate")
	}
	if cfg.Pricing.TaxBasis != TaxBasisSubtotal && cfg.Pricing.TaxBasis != TaxBasisDiscounted {
		fields = append(fields, "Pricing.TaxBasis")
	}
	if cfg.Pricing.BaseShippingRate.IsNegative() {
		fields = append(fields, "Pricing.BaseShippingRate")
	}
	if cfg.Pricing.FreeShippingThreshold.IsNegative() {
		fields = append(fields, "Pricing.FreeShippingThreshold")
	}

	if cfg.Payments.WalletTimeout <= 0 {
		fields = append(fields, "Payments.WalletTimeout")
	}
	if cfg.Payments.BreakerMaxFailures <= 0 {
		fields = append(fields, "Payments.BreakerMaxFailures")
	}

	switch cfg.Events.Backend {
	case EventsNone:
	case EventsPubSub:
		if cfg.Events.ProjectID == "" {
			fields = append(fields, "Events.ProjectID")
		}
		if cfg.Events.Topic == "" {
			fields = append(fields, "Events.Topic")
		}
	case EventsKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			fields = append(fields, "Events.KafkaBrokers")
		}
		if cfg.Events.Topic == "" {
			fields = append(fields, "Events.Topic")
		}
	default:
		fields = append(fields, "Events.Backend")
	}

	if strings.TrimSpace(cfg.Session.Header) == "" {
		fields = append(fields, "Session.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		fields = append(fields, "Idempotency.TTL")
	}

	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func decimalWithDefault(lookup func(string) (string, bool), key, fallback string) (decimal.Decimal, error) {
	raw := stringWithDefault(lookup, key, fallback)
	value, err := decimal.NewFromString(raw)
	if err != nil {
		def, _ := decimal.NewFromString(fallback)
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return value, nil
}

// zonesWithDefault parses "JP=0:10.00,US=200:25.00" into country → threshold:rate.
func zonesWithDefault(lookup func(string) (string, bool), key string) (map[string]ZoneRate, error) {
	zones := make(map[string]ZoneRate)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return zones, nil
	}
	var firstErr error
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		country, rule, ok := strings.Cut(entry, "=")
		threshold, rate, ok2 := strings.Cut(rule, ":")
		country = strings.ToUpper(strings.TrimSpace(country))
		if !ok || !ok2 || country == "" {
			if firstErr == nil {
				firstErr = fmt.Errorf("config: %s: malformed zone %q", key, entry)
			}
			continue
		}
		thresholdValue, err := decimal.NewFromString(strings.TrimSpace(threshold))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("config: %s: zone %s threshold: %w", key, country, err)
			}
			continue
		}
		rateValue, err := decimal.NewFromString(strings.TrimSpace(rate))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("config: %s: zone %s rate: %w", key, country, err)
			}
			continue
		}
		zones[country] = ZoneRate{FreeThreshold: thresholdValue, BaseRate: rateValue}
	}
	return zones, firstErr
}
