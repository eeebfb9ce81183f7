package firestore

import (
	"fmt"
	"time"

	domain "github.com/maison-luxe/storefront/internal/domain"
)

// Amounts are stored as decimal strings so no float rounding ever touches money.

type cartItemDocument struct {
	ID           string    `firestore:"id"`
	ProductID    string    `firestore:"productId"`
	VariantLabel string    `firestore:"variantLabel,omitempty"`
	DisplayName  string    `firestore:"displayName,omitempty"`
	UnitPrice    string    `firestore:"unitPrice"`
	Quantity     int       `firestore:"quantity"`
	AddedAt      time.Time `firestore:"addedAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

func encodeItems(items []domain.CartItem) []cartItemDocument {
	out := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		out = append(out, cartItemDocument{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantLabel: item.VariantLabel,
			DisplayName:  item.DisplayName,
			UnitPrice:    item.UnitPrice.String(),
			Quantity:     item.Quantity,
			AddedAt:      item.AddedAt.UTC(),
			UpdatedAt:    item.UpdatedAt.UTC(),
		})
	}
	return out
}

func decodeItems(docs []cartItemDocument) ([]domain.CartItem, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	out := make([]domain.CartItem, 0, len(docs))
	for _, doc := range docs {
		price, err := domain.ParseMoney(doc.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", doc.ID, err)
		}
		out = append(out, domain.CartItem{
			ID:           doc.ID,
			ProductID:    doc.ProductID,
			VariantLabel: doc.VariantLabel,
			DisplayName:  doc.DisplayName,
			UnitPrice:    price,
			Quantity:     doc.Quantity,
			AddedAt:      doc.AddedAt.UTC(),
			UpdatedAt:    doc.UpdatedAt.UTC(),
		})
	}
	return out, nil
}

type discountDocument struct {
	Code        string     `firestore:"code"`
	Kind        string     `firestore:"kind"`
	Value       string     `firestore:"value"`
	MinPurchase *string    `firestore:"minPurchase,omitempty"`
	ActiveFrom  time.Time  `firestore:"activeFrom"`
	ActiveUntil *time.Time `firestore:"activeUntil,omitempty"`
	UsageLimit  *int       `firestore:"usageLimit,omitempty"`
	UsageCount  int        `firestore:"usageCount"`
	Enabled     bool       `firestore:"enabled"`
}

func encodeDiscount(d domain.Discount) discountDocument {
	doc := discountDocument{
		Code:        domain.NormalizeDiscountCode(d.Code),
		Kind:        string(d.Kind),
		Value:       d.Value.String(),
		ActiveFrom:  d.ActiveFrom.UTC(),
		ActiveUntil: d.ActiveUntil,
		UsageLimit:  d.UsageLimit,
		UsageCount:  d.UsageCount,
		Enabled:     d.Enabled,
	}
	if d.MinPurchase != nil {
		minimum := d.MinPurchase.String()
		doc.MinPurchase = &minimum
	}
	return doc
}

func (d discountDocument) toDomain() (domain.Discount, error) {
	value, err := domain.ParseMoney(d.Value)
	if err != nil {
		return domain.Discount{}, fmt.Errorf("discount %s value: %w", d.Code, err)
	}
	out := domain.Discount{
		Code:        domain.NormalizeDiscountCode(d.Code),
		Kind:        domain.DiscountKind(d.Kind),
		Value:       value,
		ActiveFrom:  d.ActiveFrom.UTC(),
		ActiveUntil: d.ActiveUntil,
		UsageLimit:  d.UsageLimit,
		UsageCount:  d.UsageCount,
		Enabled:     d.Enabled,
	}
	if d.MinPurchase != nil {
		minimum, err := domain.ParseMoney(*d.MinPurchase)
		if err != nil {
			return domain.Discount{}, fmt.Errorf("discount %s minimum: %w", d.Code, err)
		}
		out.MinPurchase = &minimum
	}
	return out.Clone(), nil
}

type addressDocument struct {
	RecipientName string `firestore:"recipientName"`
	Street        string `firestore:"street"`
	City          string `firestore:"city"`
	Region        string `firestore:"region,omitempty"`
	PostalCode    string `firestore:"postalCode"`
	Country       string `firestore:"country"`
	Phone         string `firestore:"phone,omitempty"`
}

func encodeAddress(a domain.ShippingAddress) addressDocument {
	return addressDocument(a)
}

func (a addressDocument) toDomain() domain.ShippingAddress {
	return domain.ShippingAddress(a)
}

type orderDocument struct {
	SessionID         string             `firestore:"sessionId"`
	AttemptID         string             `firestore:"attemptId"`
	Items             []cartItemDocument `firestore:"items"`
	Subtotal          string             `firestore:"subtotal"`
	ShippingCost      string             `firestore:"shippingCost"`
	Tax               string             `firestore:"tax"`
	DiscountAmount    string             `firestore:"discountAmount"`
	Total             string             `firestore:"total"`
	DiscountCode      string             `firestore:"discountCode,omitempty"`
	Address           addressDocument    `firestore:"address"`
	PaymentMethodKind string             `firestore:"paymentMethodKind"`
	PaymentReference  string             `firestore:"paymentReference"`
	CreatedAt         time.Time          `firestore:"createdAt"`
}

type attemptDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func encodeOrder(o domain.Order) orderDocument {
	return orderDocument{
		SessionID:         o.SessionID,
		AttemptID:         o.AttemptID,
		Items:             encodeItems(o.Items),
		Subtotal:          domain.FormatMoney(o.Subtotal),
		ShippingCost:      domain.FormatMoney(o.ShippingCost),
		Tax:               domain.FormatMoney(o.Tax),
		DiscountAmount:    domain.FormatMoney(o.DiscountAmount),
		Total:             domain.FormatMoney(o.Total),
		DiscountCode:      o.DiscountCode,
		Address:           encodeAddress(o.Address),
		PaymentMethodKind: string(o.PaymentMethodKind),
		PaymentReference:  o.PaymentReference,
		CreatedAt:         o.CreatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	items, err := decodeItems(d.Items)
	if err != nil {
		return domain.Order{}, err
	}
	amounts := make([]domain.Money, 5)
	for i, raw := range []string{d.Subtotal, d.ShippingCost, d.Tax, d.DiscountAmount, d.Total} {
		amount, err := domain.ParseMoney(raw)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s: %w", id, err)
		}
		amounts[i] = amount
	}
	return domain.Order{
		ID:                id,
		SessionID:         d.SessionID,
		AttemptID:         d.AttemptID,
		Items:             items,
		Subtotal:          amounts[0],
		ShippingCost:      amounts[1],
		Tax:               amounts[2],
		DiscountAmount:    amounts[3],
		Total:             amounts[4],
		DiscountCode:      d.DiscountCode,
		Address:           d.Address.toDomain(),
		PaymentMethodKind: domain.PaymentMethodKind(d.PaymentMethodKind),
		PaymentReference:  d.PaymentReference,
		CreatedAt:         d.CreatedAt.UTC(),
	}, nil
}

type paymentIntentDocument struct {
	Kind           string `firestore:"kind"`
	CardToken      string `firestore:"cardToken,omitempty"`
	CardBrand      string `firestore:"cardBrand,omitempty"`
	CardLast4      string `firestore:"cardLast4,omitempty"`
	CardholderName string `firestore:"cardholderName,omitempty"`
	WalletProvider string `firestore:"walletProvider,omitempty"`
}

type sessionDocument struct {
	Step        string                 `firestore:"step"`
	Items       []cartItemDocument     `firestore:"items"`
	Address     *addressDocument       `firestore:"address,omitempty"`
	Payment     *paymentIntentDocument `firestore:"payment,omitempty"`
	Discount    *discountDocument      `firestore:"discount,omitempty"`
	AttemptID   string                 `firestore:"attemptId,omitempty"`
	Attempt     string                 `firestore:"attempt,omitempty"`
	RedirectURL string                 `firestore:"redirectUrl,omitempty"`
	LastFailure string                 `firestore:"lastFailure,omitempty"`
	OrderID     string                 `firestore:"orderId,omitempty"`
	CreatedAt   time.Time              `firestore:"createdAt"`
	UpdatedAt   time.Time              `firestore:"updatedAt"`
}

func encodeSession(s domain.CheckoutSession) sessionDocument {
	doc := sessionDocument{
		Step:        string(s.Step),
		Items:       encodeItems(s.Draft.Items),
		AttemptID:   s.AttemptID,
		Attempt:     string(s.Attempt),
		RedirectURL: s.RedirectURL,
		LastFailure: s.LastFailure,
		OrderID:     s.OrderID,
		CreatedAt:   s.CreatedAt.UTC(),
		UpdatedAt:   s.UpdatedAt.UTC(),
	}
	if s.Draft.Address != nil {
		address := encodeAddress(*s.Draft.Address)
		doc.Address = &address
	}
	if p := s.Draft.Payment; p != nil {
		doc.Payment = &paymentIntentDocument{
			Kind:           string(p.Kind),
			CardToken:      p.CardToken,
			CardBrand:      p.CardBrand,
			CardLast4:      p.CardLast4,
			CardholderName: p.CardholderName,
			WalletProvider: p.WalletProvider,
		}
	}
	if s.Draft.Discount != nil {
		discount := encodeDiscount(*s.Draft.Discount)
		doc.Discount = &discount
	}
	return doc
}

func (d sessionDocument) toDomain(sessionID string) (domain.CheckoutSession, error) {
	items, err := decodeItems(d.Items)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	session := domain.CheckoutSession{
		SessionID:   sessionID,
		Step:        domain.CheckoutStep(d.Step),
		Draft:       domain.OrderDraft{Items: items},
		AttemptID:   d.AttemptID,
		Attempt:     domain.AttemptState(d.Attempt),
		RedirectURL: d.RedirectURL,
		LastFailure: d.LastFailure,
		OrderID:     d.OrderID,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if d.Address != nil {
		address := d.Address.toDomain()
		session.Draft.Address = &address
	}
	if p := d.Payment; p != nil {
		session.Draft.Payment = &domain.PaymentIntent{
			Kind:           domain.PaymentMethodKind(p.Kind),
			CardToken:      p.CardToken,
			CardBrand:      p.CardBrand,
			CardLast4:      p.CardLast4,
			CardholderName: p.CardholderName,
			WalletProvider: p.WalletProvider,
		}
	}
	if d.Discount != nil {
		discount, err := d.Discount.toDomain()
		if err != nil {
			return domain.CheckoutSession{}, err
		}
		session.Draft.Discount = &discount
	}
	return session, nil
}
