package handlers

import (
	"github.com/maison-luxe/storefront/internal/services"
)

// Amounts are rendered as two-decimal strings.

type cartItemPayload struct {
	ID           string `json:"id"`
	ProductID    string `json:"productId"`
	VariantLabel string `json:"variantLabel,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	UnitPrice    string `json:"unitPrice"`
	Quantity     int    `json:"quantity"`
	LineTotal    string `json:"lineTotal"`
	AddedAt      string `json:"addedAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

type pricingPayload struct {
	Subtotal            string `json:"subtotal"`
	DiscountAmount      string `json:"discountAmount"`
	ShippingCost        string `json:"shippingCost"`
	Tax                 string `json:"tax"`
	Total               string `json:"total"`
	DiscountCode        string `json:"discountCode,omitempty"`
	FreeShippingApplied bool   `json:"freeShippingApplied"`
	Zone                string `json:"zone,omitempty"`
}

type addressPayload struct {
	RecipientName string `json:"recipientName"`
	Street        string `json:"street"`
	City          string `json:"city"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postalCode"`
	Country       string `json:"country"`
	Phone         string `json:"phone,omitempty"`
}

type orderPayload struct {
	ID                string            `json:"id"`
	Items             []cartItemPayload `json:"items"`
	Pricing           pricingPayload    `json:"pricing"`
	Address           addressPayload    `json:"shippingAddress"`
	PaymentMethodKind string            `json:"paymentMethod"`
	PaymentReference  string            `json:"paymentReference"`
	CreatedAt         string            `json:"createdAt"`
}

func buildItemsPayload(items []services.CartItem) []cartItemPayload {
	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, cartItemPayload{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantLabel: item.VariantLabel,
			DisplayName:  item.DisplayName,
			UnitPrice:    formatMoney(item.UnitPrice),
			Quantity:     item.Quantity,
			LineTotal:    formatMoney(item.LineTotal()),
			AddedAt:      formatTime(item.AddedAt),
			UpdatedAt:    formatTime(item.UpdatedAt),
		})
	}
	return payload
}

func buildPricingPayload(p services.PricingBreakdown) pricingPayload {
	return pricingPayload{
		Subtotal:            formatMoney(p.Subtotal),
		DiscountAmount:      formatMoney(p.DiscountAmount),
		ShippingCost:        formatMoney(p.ShippingCost),
		Tax:                 formatMoney(p.Tax),
		Total:               formatMoney(p.Total),
		DiscountCode:        p.DiscountCode,
		FreeShippingApplied: p.FreeShippingApplied,
		Zone:                p.Zone,
	}
}

func buildAddressPayload(a services.ShippingAddress) addressPayload {
	return addressPayload(a)
}

func (p addressPayload) toAddress() services.ShippingAddress {
	return services.ShippingAddress(p)
}

// buildOrderPayload renders the frozen order. Stored amounts are shown as recorded, never
// recomputed from the items.
func buildOrderPayload(o services.Order) orderPayload {
	return orderPayload{
		ID:    o.ID,
		Items: buildItemsPayload(o.Items),
		Pricing: pricingPayload{
			Subtotal:       formatMoney(o.Subtotal),
			DiscountAmount: formatMoney(o.DiscountAmount),
			ShippingCost:   formatMoney(o.ShippingCost),
			Tax:            formatMoney(o.Tax),
			Total:          formatMoney(o.Total),
			DiscountCode:   o.DiscountCode,
		},
		Address:           buildAddressPayload(o.Address),
		PaymentMethodKind: string(o.PaymentMethodKind),
		PaymentReference:  o.PaymentReference,
		CreatedAt:         formatTime(o.CreatedAt),
	}
}
