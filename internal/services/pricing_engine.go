package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/maison-luxe/storefront/internal/domain"
)

// TaxBasis selects which amount the tax rate applies to.
type TaxBasis string

const (
	// TaxBasisSubtotal taxes the pre-discount subtotal.
	TaxBasisSubtotal TaxBasis = "subtotal"
	// TaxBasisDiscounted taxes the subtotal after the discount deduction.
	TaxBasisDiscounted TaxBasis = "discounted"
)

// ErrPricingInvalidConfig indicates a negative rate or unknown basis.
var ErrPricingInvalidConfig = errors.New("pricing engine: invalid configuration")

var hundred = decimal.NewFromInt(100)

// PricingEngineConfig carries the deployment's tax and shipping policy.
type PricingEngineConfig struct {
	// TaxRate is a fraction, 0.08 for 8%.
	TaxRate  decimal.Decimal
	TaxBasis TaxBasis
	// DefaultZone applies when the destination has no configured zone.
	DefaultZone *ZoneRule
	// Zones maps ISO country codes to their shipping rule.
	Zones map[string]ZoneRule
}

// PricingEngine computes breakdowns. It holds only immutable configuration, so every call
// with the same inputs yields the same result.
type PricingEngine struct {
	taxRate     decimal.Decimal
	taxBasis    TaxBasis
	defaultZone ZoneRule
	zones       map[string]ZoneRule
}

var (
	_ Pricer       = (*PricingEngine)(nil)
	_ ZoneResolver = (*PricingEngine)(nil)
)

// DefaultPricingEngineConfig is 8% tax on the pre-discount subtotal with the default zone.
func DefaultPricingEngineConfig() PricingEngineConfig {
	return PricingEngineConfig{
		TaxRate:  decimal.RequireFromString("0.08"),
		TaxBasis: TaxBasisSubtotal,
	}
}

// NewPricingEngine validates cfg and returns an engine.
func NewPricingEngine(cfg PricingEngineConfig) (*PricingEngine, error) {
	if cfg.TaxRate.IsNegative() {
		return nil, fmt.Errorf("%w: tax rate must not be negative", ErrPricingInvalidConfig)
	}
	basis := cfg.TaxBasis
	if basis == "" {
		basis = TaxBasisSubtotal
	}
	if basis != TaxBasisSubtotal && basis != TaxBasisDiscounted {
		return nil, fmt.Errorf("%w: unknown tax basis %q", ErrPricingInvalidConfig, basis)
	}

	zone := domain.DefaultZoneRule()
	if cfg.DefaultZone != nil {
		zone = *cfg.DefaultZone
	}
	if err := validateZone(zone); err != nil {
		return nil, err
	}

	zones := make(map[string]ZoneRule, len(cfg.Zones))
	for country, rule := range cfg.Zones {
		key := strings.ToUpper(strings.TrimSpace(country))
		if key == "" {
			continue
		}
		if err := validateZone(rule); err != nil {
			return nil, err
		}
		if rule.Name == "" {
			rule.Name = key
		}
		zones[key] = rule
	}

	return &PricingEngine{
		taxRate:     cfg.TaxRate,
		taxBasis:    basis,
		defaultZone: zone,
		zones:       zones,
	}, nil
}

func validateZone(zone ZoneRule) error {
	if zone.BaseRate.IsNegative() || zone.FreeThreshold.IsNegative() {
		return fmt.Errorf("%w: zone %q has a negative amount", ErrPricingInvalidConfig, zone.Name)
	}
	return nil
}

// ResolveZone returns the configured zone for the address country, or the default zone.
func (e *PricingEngine) ResolveZone(address *ShippingAddress) ZoneRule {
	if address != nil {
		if zone, ok := e.zones[strings.ToUpper(strings.TrimSpace(address.Country))]; ok {
			return zone
		}
	}
	return e.defaultZone
}

// ShippingCost is zero at or above the zone threshold and the base rate below it.
func (e *PricingEngine) ShippingCost(subtotal Money, zone ZoneRule) Money {
	if subtotal.GreaterThanOrEqual(zone.FreeThreshold) {
		return domain.ZeroMoney
	}
	return zone.BaseRate
}

// DiscountAmount returns the monetary deduction, never more than the subtotal.
// FreeShipping deducts nothing here; Price zeroes the shipping cost instead.
func (e *PricingEngine) DiscountAmount(subtotal Money, discount *Discount) Money {
	if discount == nil || !subtotal.IsPositive() {
		return domain.ZeroMoney
	}
	value := discount.Value
	if value.IsNegative() {
		return domain.ZeroMoney
	}
	switch discount.Kind {
	case domain.DiscountKindPercentage:
		return domain.MinMoney(subtotal.Mul(value).Div(hundred), subtotal)
	case domain.DiscountKindFixedAmount:
		return domain.MinMoney(value, subtotal)
	default:
		return domain.ZeroMoney
	}
}

// Tax applies the configured rate to base.
func (e *PricingEngine) Tax(base Money) Money {
	if !base.IsPositive() {
		return domain.ZeroMoney
	}
	return base.Mul(e.taxRate)
}

// Price computes the full breakdown. Components are computed unrounded, rounded once, and the
// total is the sum of the rounded components floored at zero, so displayed lines always add up.
func (e *PricingEngine) Price(cmd PriceCommand) PricingBreakdown {
	zone := e.defaultZone
	if cmd.Zone != nil {
		zone = *cmd.Zone
	}

	breakdown := PricingBreakdown{
		Subtotal:       domain.ZeroMoney,
		DiscountAmount: domain.ZeroMoney,
		ShippingCost:   domain.ZeroMoney,
		Tax:            domain.ZeroMoney,
		Total:          domain.ZeroMoney,
		Zone:           zone.Name,
	}
	if len(cmd.Items) == 0 {
		return breakdown
	}

	subtotal := domain.SubtotalOf(cmd.Items)
	discount := e.DiscountAmount(subtotal, cmd.Discount)
	shipping := e.ShippingCost(subtotal, zone)
	if cmd.Discount != nil {
		breakdown.DiscountCode = cmd.Discount.Code
		if cmd.Discount.Kind == domain.DiscountKindFreeShipping {
			shipping = domain.ZeroMoney
			breakdown.FreeShippingApplied = true
		}
	}

	taxBase := subtotal
	if e.taxBasis == TaxBasisDiscounted {
		taxBase = subtotal.Sub(discount)
	}
	tax := e.Tax(taxBase)

	breakdown.Subtotal = domain.RoundMoney(subtotal)
	breakdown.DiscountAmount = domain.RoundMoney(discount)
	breakdown.ShippingCost = domain.RoundMoney(shipping)
	breakdown.Tax = domain.RoundMoney(tax)
	breakdown.Total = domain.FloorZero(
		breakdown.Subtotal.Sub(breakdown.DiscountAmount).Add(breakdown.ShippingCost).Add(breakdown.Tax),
	)
	return breakdown
}
