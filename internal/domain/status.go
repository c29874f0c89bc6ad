package domain

// Status is an order fulfillment status.
type Status string

// Order lifecycle statuses.
const (
	StatusPlaced     Status = "placed"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Payment statuses.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

// transitions is the single authoritative transition table. Any transition
// not listed here is rejected.
var transitions = map[Status]map[Status]bool{
	StatusPlaced:     {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:  {StatusProcessing: true, StatusShipped: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true, StatusRefunded: true},
	StatusDelivered:  {StatusRefunded: true},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// StockHoldingStatuses are the statuses in which an order softly reserves
// inventory: accepted but not yet shipped, cancelled, or refunded.
var StockHoldingStatuses = []Status{StatusPlaced, StatusConfirmed, StatusProcessing}

// HoldsStock reports whether an order in the given status reserves inventory.
func (s Status) HoldsStock() bool {
	for _, h := range StockHoldingStatuses {
		if s == h {
			return true
		}
	}
	return false
}

// Terminal reports whether no further fulfillment transition is possible.
// Delivered is terminal for fulfillment but still refundable.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// Shippable reports whether an order in this status may be shipped.
func (s Status) Shippable() bool {
	return s == StatusConfirmed || s == StatusProcessing
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s Status) Cancellable() bool {
	return s == StatusPlaced || s == StatusConfirmed || s == StatusProcessing
}

// Refundable reports whether an order in this status may be refunded.
func (s Status) Refundable() bool {
	return s == StatusShipped || s == StatusDelivered
}

// ValidStatuses returns all valid order statuses.
func ValidStatuses() []Status {
	return []Status{
		StatusPlaced,
		StatusConfirmed,
		StatusProcessing,
		StatusShipped,
		StatusDelivered,
		StatusCancelled,
		StatusRefunded,
	}
}

// IsValidStatus checks if a status string is a valid order status.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if string(s) == status {
			return true
		}
	}
	return false
}
