// Package storage archives order receipts in Cloud Storage and hands out short-lived links to them.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/services"
)

const (
	receiptContentType     = "application/json"
	defaultReceiptLinkTTL  = 5 * time.Minute
	maxReceiptLinkTTL      = 15 * time.Minute
	receiptCacheControl    = "private, max-age=0, no-store"
	receiptDispositionType = "attachment"
)

var (
	errNoBucket        = errors.New("storage: bucket is required")
	errExpiryTooLong   = errors.New("storage: expiry exceeds permitted maximum")
	errObjectExists    = errors.New("storage: object already exists")
	errOrderIncomplete = errors.New("storage: order id and creation time are required")
)

// objectStore is the slice of a bucket the archiver needs.
type objectStore interface {
	// Create writes data only if object does not exist yet; it returns errObjectExists otherwise.
	Create(ctx context.Context, object, contentType string, data []byte) error
	SignedURL(object string, opts *gcs.SignedURLOptions) (string, error)
}

type bucketStore struct {
	bucket *gcs.BucketHandle
}

func (b bucketStore) Create(ctx context.Context, object, contentType string, data []byte) error {
	w := b.bucket.Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = receiptCacheControl
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return errObjectExists
		}
		return err
	}
	return nil
}

func (b bucketStore) SignedURL(object string, opts *gcs.SignedURLOptions) (string, error) {
	return b.bucket.SignedURL(object, opts)
}

// ReceiptArchiver writes one immutable JSON receipt per order.
type ReceiptArchiver struct {
	store   objectStore
	now     func() time.Time
	linkTTL time.Duration
	prefix  string
}

var _ services.ReceiptArchiver = (*ReceiptArchiver)(nil)

// ArchiverOption customises archiver behaviour.
type ArchiverOption func(*ReceiptArchiver)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ArchiverOption {
	return func(a *ReceiptArchiver) {
		if clock != nil {
			a.now = clock
		}
	}
}

// WithLinkTTL overrides how long receipt links stay valid.
func WithLinkTTL(ttl time.Duration) ArchiverOption {
	return func(a *ReceiptArchiver) {
		if ttl > 0 {
			a.linkTTL = ttl
		}
	}
}

// WithPrefix sets the folder receipts are written under.
func WithPrefix(prefix string) ArchiverOption {
	return func(a *ReceiptArchiver) {
		a.prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	}
}

// NewReceiptArchiver constructs an archiver writing to bucket.
func NewReceiptArchiver(client *gcs.Client, bucket string, opts ...ArchiverOption) (*ReceiptArchiver, error) {
	bucket = strings.TrimSpace(bucket)
	if client == nil || bucket == "" {
		return nil, errNoBucket
	}
	return newReceiptArchiver(bucketStore{bucket: client.Bucket(bucket)}, opts...)
}

func newReceiptArchiver(store objectStore, opts ...ArchiverOption) (*ReceiptArchiver, error) {
	archiver := &ReceiptArchiver{store: store, now: time.Now, linkTTL: defaultReceiptLinkTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(archiver)
		}
	}
	if archiver.linkTTL > maxReceiptLinkTTL {
		return nil, errExpiryTooLong
	}
	return archiver, nil
}

// ArchiveReceipt stores the receipt and returns its object path. Archiving an order twice is a
// no-op that returns the same path.
func (a *ReceiptArchiver) ArchiveReceipt(ctx context.Context, order services.Order) (string, error) {
	object, err := a.receiptObject(order)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(newReceiptDocument(order))
	if err != nil {
		return "", fmt.Errorf("storage: encode receipt: %w", err)
	}
	if err := a.store.Create(ctx, object, receiptContentType, data); err != nil {
		if errors.Is(err, errObjectExists) {
			return object, nil
		}
		return "", fmt.Errorf("storage: write receipt: %w", err)
	}
	return object, nil
}

// ReceiptURL returns a signed GET link to the archived receipt.
func (a *ReceiptArchiver) ReceiptURL(ctx context.Context, order services.Order) (string, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return "", time.Time{}, err
	}
	object, err := a.receiptObject(order)
	if err != nil {
		return "", time.Time{}, err
	}
	expires := a.now().UTC().Add(a.linkTTL)
	url, err := a.store.SignedURL(object, &gcs.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: expires,
		Scheme:  gcs.SigningSchemeV4,
		QueryParameters: map[string][]string{
			"response-content-disposition": {fmt.Sprintf("%s; filename=%q", receiptDispositionType, "receipt-"+order.ID+".json")},
			"response-cache-control":       {receiptCacheControl},
		},
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: sign receipt url: %w", err)
	}
	return url, expires, nil
}

func (a *ReceiptArchiver) receiptObject(order services.Order) (string, error) {
	if strings.TrimSpace(order.ID) == "" || order.CreatedAt.IsZero() {
		return "", errOrderIncomplete
	}
	return BuildObjectPath(PurposeReceipt, PathParams{OrderID: order.ID, PlacedAt: order.CreatedAt, Prefix: a.prefix})
}

type receiptDocument struct {
	OrderID        string         `json:"orderId"`
	PlacedAt       time.Time      `json:"placedAt"`
	Items          []receiptLine  `json:"items"`
	Subtotal       string         `json:"subtotal"`
	DiscountCode   string         `json:"discountCode,omitempty"`
	DiscountAmount string         `json:"discountAmount"`
	ShippingCost   string         `json:"shippingCost"`
	Tax            string         `json:"tax"`
	Total          string         `json:"total"`
	PaymentMethod  string         `json:"paymentMethod"`
	ShipTo         receiptAddress `json:"shipTo"`
}

type receiptLine struct {
	ProductID    string `json:"productId"`
	DisplayName  string `json:"displayName"`
	VariantLabel string `json:"variantLabel,omitempty"`
	Quantity     int    `json:"quantity"`
	UnitPrice    string `json:"unitPrice"`
	LineTotal    string `json:"lineTotal"`
}

type receiptAddress struct {
	RecipientName string `json:"recipientName"`
	Street        string `json:"street"`
	City          string `json:"city"`
	Region        string `json:"region"`
	PostalCode    string `json:"postalCode"`
	Country       string `json:"country"`
}

func newReceiptDocument(order services.Order) receiptDocument {
	lines := make([]receiptLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, receiptLine{
			ProductID:    item.ProductID,
			DisplayName:  item.DisplayName,
			VariantLabel: item.VariantLabel,
			Quantity:     item.Quantity,
			UnitPrice:    domain.FormatMoney(item.UnitPrice),
			LineTotal:    domain.FormatMoney(item.LineTotal()),
		})
	}
	addr := order.Address
	return receiptDocument{
		OrderID:        order.ID,
		PlacedAt:       order.CreatedAt.UTC(),
		Items:          lines,
		Subtotal:       domain.FormatMoney(order.Subtotal),
		DiscountCode:   order.DiscountCode,
		DiscountAmount: domain.FormatMoney(order.DiscountAmount),
		ShippingCost:   domain.FormatMoney(order.ShippingCost),
		Tax:            domain.FormatMoney(order.Tax),
		Total:          domain.FormatMoney(order.Total),
		PaymentMethod:  string(order.PaymentMethodKind),
		ShipTo: receiptAddress{
			RecipientName: addr.RecipientName,
			Street:        addr.Street,
			City:          addr.City,
			Region:        addr.Region,
			PostalCode:    addr.PostalCode,
			Country:       addr.Country,
		},
	}
}
