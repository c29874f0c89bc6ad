package domain

// PricingConfig holds the organization-level pricing rules. The tax rate is
// carried in basis points so all arithmetic stays integral.
type PricingConfig struct {
	FreeShippingThreshold int64 `json:"free_shipping_threshold"`
	FlatShippingFee       int64 `json:"flat_shipping_fee"`
	TaxRateBps            int64 `json:"tax_rate_bps"`
}

// Pricing is the derived monetary breakdown of an order, in minor currency units.
type Pricing struct {
	Subtotal     int64 `json:"subtotal"`
	ShippingCost int64 `json:"shipping_cost"`
	Tax          int64 `json:"tax"`
	Total        int64 `json:"total"`
}

// CalculatePricing derives subtotal, shipping cost, tax, and total from the
// given lines. Shipping is free at or above the threshold, otherwise the flat
// fee applies. Tax is floor(subtotal * rate); integer division does the floor.
func CalculatePricing(lines []OrderLine, cfg PricingConfig) Pricing {
	var subtotal int64
	for i := range lines {
		subtotal += lines[i].LineTotal()
	}

	var shipping int64
	if subtotal < cfg.FreeShippingThreshold {
		shipping = cfg.FlatShippingFee
	}

	tax := subtotal * cfg.TaxRateBps / 10000

	return Pricing{
		Subtotal:     subtotal,
		ShippingCost: shipping,
		Tax:          tax,
		Total:        subtotal + shipping + tax,
	}
}
