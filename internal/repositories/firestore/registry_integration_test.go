//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/platform/config"
	pfirestore "github.com/maison-luxe/storefront/internal/platform/firestore"
	"github.com/maison-luxe/storefront/internal/repositories"
	"github.com/maison-luxe/storefront/internal/repositories/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func newEmulatorRegistry(t *testing.T) (*firestore.Registry, *firestore.DiscountRepository) {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: "storefront-test", EmulatorHost: endpoint})
	registry, err := firestore.NewRegistry(provider)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	discounts, err := firestore.NewDiscountRepository(provider)
	if err != nil {
		t.Fatalf("NewDiscountRepository: %v", err)
	}
	return registry, discounts
}

func TestFirestoreRegistryIntegration(t *testing.T) {
	registry, discounts := newEmulatorRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cart := domain.Cart{
		SessionID: "sess-1",
		Items: []domain.CartItem{{
			ID: "item-1", ProductID: "bag", UnitPrice: domain.MustMoney("125.00"), Quantity: 1, AddedAt: now, UpdatedAt: now,
		}},
		UpdatedAt: now,
	}
	if err := registry.Carts().SaveCart(ctx, cart); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}
	got, err := registry.Carts().GetCart(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(got.Items) != 1 || !got.Items[0].UnitPrice.Equal(domain.MustMoney("125.00")) {
		t.Fatalf("unexpected cart %+v", got)
	}
	if _, err := registry.Carts().GetCart(ctx, "missing"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	limit := 1
	if err := discounts.Upsert(ctx, domain.Discount{Code: "once", Kind: domain.DiscountKindPercentage, Value: domain.MustMoney("10"), UsageLimit: &limit, Enabled: true}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.Discounts().IncrementUsage(ctx, "ONCE")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			var usageErr *repositories.DiscountUsageError
			if !errors.As(err, &usageErr) && !repositories.IsConflict(err) {
				t.Errorf("unexpected increment error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected exactly one redemption, got %d", successes)
	}

	order := domain.Order{
		ID: "ord-1", SessionID: "sess-1", AttemptID: "att-1", Items: cart.Items,
		Subtotal: domain.MustMoney("125.00"), ShippingCost: domain.MustMoney("15.00"), Tax: domain.MustMoney("10.00"),
		DiscountAmount: domain.ZeroMoney, Total: domain.MustMoney("150.00"),
		Address:           domain.ShippingAddress{RecipientName: "Hana Sato", Street: "1-2-3 Ginza", City: "Chuo-ku", PostalCode: "104-0061", Country: "JP"},
		PaymentMethodKind: domain.PaymentMethodCashOnDelivery, PaymentReference: "cod", CreatedAt: now,
	}
	err = registry.RunInTx(ctx, func(ctx context.Context) error {
		return registry.Orders().Insert(ctx, order)
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	duplicate := order
	duplicate.ID = "ord-2"
	if err := registry.Orders().Insert(ctx, duplicate); !repositories.IsConflict(err) {
		t.Fatalf("expected attempt conflict, got %v", err)
	}
	byAttempt, err := registry.Orders().FindByAttempt(ctx, "att-1")
	if err != nil {
		t.Fatalf("FindByAttempt: %v", err)
	}
	if byAttempt.ID != "ord-1" || !byAttempt.Total.Equal(domain.MustMoney("150.00")) {
		t.Fatalf("unexpected order %+v", byAttempt)
	}

	report, err := registry.Health().Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected healthy firestore, got %+v", report)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	// Shorten the ID to match docker CLI behaviour for stop/remove commands.
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
