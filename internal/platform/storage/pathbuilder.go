package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ObjectPurpose captures high-level intent for storage layout decisions.
type ObjectPurpose string

const (
	PurposeReceipt ObjectPurpose = "receipt"

	defaultReceiptPrefix = "receipts"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	OrderID  string
	PlacedAt time.Time
	FileName string
	// Prefix is the leading folder, "receipts" when empty. It may span several segments.
	Prefix string
}

// PathBuilder composes the object path for a given purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[ObjectPurpose]PathBuilder{
		PurposeReceipt: buildReceiptPath,
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose ObjectPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose ObjectPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported object purpose %q", purpose)
	}
	return builder(params)
}

// buildReceiptPath partitions receipts by the UTC month the order was placed.
func buildReceiptPath(params PathParams) (string, error) {
	orderID, err := validateSegment("orderID", params.OrderID)
	if err != nil {
		return "", err
	}
	if params.PlacedAt.IsZero() {
		return "", fmt.Errorf("storage: placedAt is required")
	}
	name := strings.TrimSpace(params.FileName)
	if name == "" {
		name = "receipt.json"
	}
	fileName, err := validateSegment("fileName", name)
	if err != nil {
		return "", err
	}
	prefix := strings.Trim(strings.TrimSpace(params.Prefix), "/")
	if prefix == "" {
		prefix = defaultReceiptPrefix
	}
	if strings.Contains(prefix, "..") || strings.Contains(prefix, "\\") {
		return "", fmt.Errorf("storage: prefix contains invalid path characters")
	}
	placed := params.PlacedAt.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%s/%s", prefix, placed.Year(), int(placed.Month()), orderID, fileName), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
