// Package secrets resolves secret:// references against Google Secret Manager,
// with a local key=value file for development and outage fallback.
package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 15 * time.Minute
	latestVersion       = "latest"
	meterName           = "github.com/maison-luxe/storefront/internal/platform/secrets"
)

var (
	// ErrNotFound reports a reference that neither Secret Manager nor the fallback file knows.
	ErrNotFound = errors.New("secrets: secret not found")

	errEmptyReference = errors.New("secrets: empty reference")
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (accessClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver caches resolved secrets for a bounded time so rotated keys are picked up.
type Resolver struct {
	client     accessClient
	ownsClient bool
	project    string
	logger     *zap.Logger
	clock      func() time.Time
	ttl        time.Duration

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.Mutex
	cache map[string]cachedSecret

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

type resolverConfig struct {
	logger       *zap.Logger
	project      string
	fallbackPath string
	ttl          time.Duration
	clock        func() time.Time
	meter        metric.Meter
	client       accessClient
	clientOpts   []option.ClientOption
}

// Option customises Resolver construction.
type Option func(*resolverConfig)

// WithLogger sets the logger used for diagnostics. Secret values are never logged.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *resolverConfig) { cfg.logger = logger }
}

// WithProject sets the project used when a reference carries no ?project= override.
func WithProject(projectID string) Option {
	return func(cfg *resolverConfig) { cfg.project = strings.TrimSpace(projectID) }
}

// WithFallbackFile points at the local key=value file. An empty path disables it.
func WithFallbackFile(path string) Option {
	return func(cfg *resolverConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithCacheTTL bounds how long a resolved value is served from memory.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *resolverConfig) { cfg.ttl = ttl }
}

// WithClock overrides the time source used for cache expiry.
func WithClock(clock func() time.Time) Option {
	return func(cfg *resolverConfig) { cfg.clock = clock }
}

// WithMeter overrides the meter used for resolution metrics.
func WithMeter(meter metric.Meter) Option {
	return func(cfg *resolverConfig) { cfg.meter = meter }
}

// WithClient injects a Secret Manager client. The resolver does not close injected clients.
func WithClient(client accessClient) Option {
	return func(cfg *resolverConfig) { cfg.client = client }
}

// WithClientOptions passes options to the Secret Manager client the resolver creates.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *resolverConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewResolver builds a resolver. When no project is configured or the client cannot be
// created the resolver serves only from the fallback file.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	cfg := resolverConfig{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		ttl:          defaultCacheTTL,
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}
	if cfg.ttl <= 0 {
		cfg.ttl = defaultCacheTTL
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	r := &Resolver{
		project:      cfg.project,
		logger:       cfg.logger,
		clock:        cfg.clock,
		ttl:          cfg.ttl,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]cachedSecret),
	}

	latency, err := meter.Float64Histogram("secrets.resolve.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution by source"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	} else {
		r.latency = latency
	}
	hits, err := meter.Int64Counter("secrets.resolve.cache_hits",
		metric.WithDescription("Secret resolutions served from memory"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
	} else {
		r.cacheHits = hits
	}

	switch {
	case cfg.client != nil:
		r.client = cfg.client
	case cfg.project != "":
		client, err := newSecretManagerClient(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager unavailable, serving fallback file only", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r == nil || !r.ownsClient || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// ResolveSecret returns the value behind ref, e.g. secret://stripe_api_key?version=3.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := parsed.key()

	if value, ok := r.cached(key); ok {
		if r.cacheHits != nil {
			r.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskReference(key))))
		}
		r.observe(ctx, start, "cache")
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = r.project
	}
	if r.client != nil && project != "" {
		value, err := r.access(ctx, project, parsed)
		if err == nil {
			r.store(key, value)
			r.observe(ctx, start, "remote")
			return value, nil
		}
		if !shouldFallback(err) {
			r.observe(ctx, start, "error")
			if status.Code(err) == codes.NotFound {
				return "", fmt.Errorf("%w: %s", ErrNotFound, parsed.name)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			return "", fmt.Errorf("secrets: access %s: %w", parsed.name, err)
		}
		r.logger.Warn("secrets: secret manager failed, trying fallback file",
			zap.String("secret", maskReference(key)),
			zap.String("code", status.Code(err).String()),
		)
	}

	value, err := r.lookupFallback(parsed)
	if err != nil {
		r.observe(ctx, start, "error")
		return "", err
	}
	r.store(key, value)
	r.observe(ctx, start, "fallback")
	return value, nil
}

// Invalidate drops a cached value so the next resolution goes back to the source.
func (r *Resolver) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	r.mu.Lock()
	delete(r.cache, parsed.key())
	r.mu.Unlock()
}

func (r *Resolver) access(ctx context.Context, project string, ref reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.name, ref.version)
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", ref.name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (r *Resolver) cached(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[key]
	if !ok {
		return "", false
	}
	if !r.clock().Before(entry.expiresAt) {
		delete(r.cache, key)
		return "", false
	}
	return entry.value, true
}

func (r *Resolver) store(key, value string) {
	r.mu.Lock()
	r.cache[key] = cachedSecret{value: value, expiresAt: r.clock().Add(r.ttl)}
	r.mu.Unlock()
}

func (r *Resolver) observe(ctx context.Context, start time.Time, source string) {
	if r.latency == nil {
		return
	}
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	r.latency.Record(ctx, elapsed, metric.WithAttributes(attribute.String("source", source)))
}

func (r *Resolver) lookupFallback(ref reference) (string, error) {
	r.fallbackOnce.Do(func() {
		r.fallback, r.fallbackErr = readFallbackFile(r.fallbackPath)
	})
	if r.fallbackErr != nil {
		return "", r.fallbackErr
	}
	if value, ok := r.fallback[ref.key()]; ok {
		return value, nil
	}
	if value, ok := r.fallback[ref.name]; ok && ref.version == latestVersion {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, ref.name)
}

// readFallbackFile parses lines of `secret://name[?version=N]=value`. Blank lines and
// # comments are skipped. A missing file is an empty set.
func readFallbackFile(path string) (map[string]string, error) {
	values := make(map[string]string)
	if path == "" {
		return values, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("secrets: open fallback file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sep := valueSeparator(line)
		if sep < 0 {
			continue
		}
		rawKey, value := strings.TrimSpace(line[:sep]), strings.TrimSpace(line[sep+1:])
		parsed, err := parseReference(rawKey)
		if err != nil {
			values[rawKey] = value
			continue
		}
		values[parsed.key()] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("secrets: read fallback file: %w", err)
	}
	return values, nil
}

func valueSeparator(line string) int {
	query := strings.Index(line, "?")
	if query < 0 {
		return strings.Index(line, "=")
	}
	// Query parameters are k=v pairs joined by '&'; the separator is the '=' after the last pair.
	pos := query + 1
	for {
		eq := strings.Index(line[pos:], "=")
		if eq < 0 {
			return -1
		}
		valueStart := pos + eq + 1
		next := strings.IndexAny(line[valueStart:], "&=")
		if next < 0 {
			return -1
		}
		if line[valueStart+next] == '=' {
			return valueStart + next
		}
		pos = valueStart + next + 1
	}
}

type reference struct {
	name    string
	version string
	project string
}

func (r reference) key() string {
	return r.name + "#" + r.version
}

func parseReference(ref string) (reference, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return reference{}, errEmptyReference
	}
	if strings.HasPrefix(trimmed, "sm://") {
		trimmed = "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference: %w", err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name")
	}
	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = latestVersion
	}
	return reference{
		name:    name,
		version: version,
		project: strings.TrimSpace(query.Get("project")),
	}, nil
}

func maskReference(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

func shouldFallback(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
