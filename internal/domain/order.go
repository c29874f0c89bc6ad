package domain

import "time"

// Order represents a customer order with its line items. Monetary fields are
// integers in minor currency units.
type Order struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	OrderNumber    string      `json:"order_number"`
	CustomerID     *string     `json:"customer_id,omitempty"`
	CustomerName   string      `json:"customer_name"`
	CustomerEmail  string      `json:"customer_email"`
	Status         Status      `json:"status"`
	PaymentStatus  string      `json:"payment_status"`
	Lines          []OrderLine `json:"lines"`
	Subtotal       int64       `json:"subtotal"`
	ShippingCost   int64       `json:"shipping_cost"`
	Tax            int64       `json:"tax"`
	Total          int64       `json:"total"`
	ShippingAddr   *Address    `json:"shipping_address,omitempty"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	ShippedAt      *time.Time  `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time  `json:"delivered_at,omitempty"`
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target Status) bool {
	return CanTransition(o.Status, target)
}

// Address represents a shipping address.
type Address struct {
	FullName    string `json:"full_name"`
	AddressLine string `json:"address_line"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	Country     string `json:"country"`
	Phone       string `json:"phone,omitempty"`
}

// OrderLine is a line item in an order. Name, SKU, and unit price are frozen
// at order time so they survive later catalog edits.
type OrderLine struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// LineTotal returns the total price for this line item.
func (l *OrderLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// VariantStock is the physical on-hand stock counter for a sellable variant.
type VariantStock struct {
	VariantID      string    `json:"variant_id"`
	OrganizationID string    `json:"organization_id"`
	ProductID      string    `json:"product_id"`
	Stock          int       `json:"stock"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Actor identifies who performed a stock-affecting operation.
type Actor struct {
	ID   string
	Name string
}

// String returns the audit-trail representation of the actor.
func (a Actor) String() string {
	if a.Name != "" {
		return a.Name
	}
	if a.ID != "" {
		return a.ID
	}
	return "system"
}
