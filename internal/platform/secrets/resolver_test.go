package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const stripeResource = "projects/shop/secrets/stripe_api_key/versions/latest"

func writeFallback(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}
	return path
}

func TestResolveSecretCachesRemoteValue(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[stripeResource] = "sk_live_remote"

	resolver, err := NewResolver(ctx, WithClient(client), WithProject("shop"), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	defer resolver.Close()

	for i := 0; i < 2; i++ {
		got, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key")
		if err != nil {
			t.Fatalf("ResolveSecret %d: %v", i, err)
		}
		if got != "sk_live_remote" {
			t.Fatalf("expected remote value, got %q", got)
		}
	}
	if calls := client.callCount(stripeResource); calls != 1 {
		t.Fatalf("expected one remote access, got %d", calls)
	}
}

func TestResolveSecretCacheExpires(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[stripeResource] = "sk_v1"
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	resolver, err := NewResolver(ctx,
		WithClient(client),
		WithProject("shop"),
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	if _, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key"); err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	client.setValue(stripeResource, "sk_v2")
	now = now.Add(2 * time.Minute)

	got, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("ResolveSecret after expiry: %v", err)
	}
	if got != "sk_v2" {
		t.Fatalf("expected rotated value, got %q", got)
	}
}

func TestResolveSecretInvalidate(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[stripeResource] = "sk_v1"

	resolver, err := NewResolver(ctx, WithClient(client), WithProject("shop"))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key"); err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	resolver.Invalidate("sm://stripe_api_key")
	if _, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key"); err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if calls := client.callCount(stripeResource); calls != 2 {
		t.Fatalf("expected invalidate to force a second access, got %d", calls)
	}
}

func TestResolveSecretVersionAndProjectOverride(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values["projects/payments/secrets/wallet_api_key/versions/4"] = "wallet-v4"

	resolver, err := NewResolver(ctx, WithClient(client), WithProject("shop"))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	got, err := resolver.ResolveSecret(ctx, "secret://wallet_api_key?version=4&project=payments")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "wallet-v4" {
		t.Fatalf("expected pinned version, got %q", got)
	}
}

func TestResolveSecretFallsBackWhenUnavailable(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors[stripeResource] = status.Error(codes.PermissionDenied, "denied")
	path := writeFallback(t, "# local development\nsecret://stripe_api_key=sk_test_local==\n")

	resolver, err := NewResolver(ctx, WithClient(client), WithProject("shop"), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	got, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "sk_test_local==" {
		t.Fatalf("expected fallback value, got %q", got)
	}
}

func TestResolveSecretNotFoundDoesNotFallBack(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	path := writeFallback(t, "secret://stripe_api_key=sk_test_local\n")

	resolver, err := NewResolver(ctx, WithClient(client), WithProject("shop"), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveSecretFallbackOnlyWithoutProject(t *testing.T) {
	ctx := context.Background()
	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (accessClient, error) {
		t.Fatal("client must not be created without a project")
		return nil, nil
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	path := writeFallback(t, "secret://wallet_api_key?version=2=wallet-v2\nsecret://stripe_api_key=sk_test_local\n")
	resolver, err := NewResolver(ctx, WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	got, err := resolver.ResolveSecret(ctx, "secret://wallet_api_key?version=2")
	if err != nil {
		t.Fatalf("ResolveSecret versioned: %v", err)
	}
	if got != "wallet-v2" {
		t.Fatalf("expected versioned fallback, got %q", got)
	}
	if _, err := resolver.ResolveSecret(ctx, "secret://wallet_api_key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected latest lookup to miss a versioned entry, got %v", err)
	}
	if _, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key"); err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
}

func TestResolveSecretClientCreationFailureUsesFallback(t *testing.T) {
	ctx := context.Background()
	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (accessClient, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	path := writeFallback(t, "secret://stripe_api_key=sk_test_local\n")
	resolver, err := NewResolver(ctx, WithProject("shop"), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	got, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "sk_test_local" {
		t.Fatalf("expected fallback value, got %q", got)
	}
}

func TestParseReferenceRejectsInvalid(t *testing.T) {
	for _, ref := range []string{"", "https://example.com/key", "secret://"} {
		if _, err := parseReference(ref); err == nil {
			t.Fatalf("expected %q to be rejected", ref)
		}
	}
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++
	if err, ok := f.errors[name]; ok {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) setValue(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
