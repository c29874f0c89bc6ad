package repository

import (
	"context"

	"github.com/tmksh/fulfillment/internal/domain"
)

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	OrganizationID string
	CustomerID     *string
	Status         *string
	Page           int
	PerPage        int
}

// OrderRepository is the read path for orders and their lines.
type OrderRepository interface {
	// GetByID retrieves an order by its unique identifier, including lines.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// List returns orders matching the given filter along with the total count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)
}

// StockRepository reads variant stock counters and derived availability.
type StockRepository interface {
	// GetStock retrieves the physical stock counter for a variant.
	GetStock(ctx context.Context, variantID string) (*domain.VariantStock, error)

	// ReservedQuantities returns the quantity held by orders in stock-holding
	// statuses, per variant, for an organization. A non-nil variantID
	// restricts the result to that variant.
	ReservedQuantities(ctx context.Context, organizationID string, variantID *string) (map[string]int, error)

	// AvailableToSell returns physical stock minus current reservations,
	// computed from the live set of non-terminal orders.
	AvailableToSell(ctx context.Context, variantID string) (int, error)
}

// LedgerRepository is the read path for the append-only movement ledger.
// The write path is owned exclusively by the FulfillmentStore transactions.
type LedgerRepository interface {
	// ListByVariant returns a variant's ledger entries ordered by creation time.
	ListByVariant(ctx context.Context, organizationID, variantID string) ([]domain.MovementEntry, error)

	// SumActiveReservations derives the currently reserved quantity for a
	// variant by replaying its ledger. Must agree with the order-line sum.
	SumActiveReservations(ctx context.Context, organizationID, variantID string) (int, error)
}

// SettingsRepository supplies organization-level pricing configuration.
type SettingsRepository interface {
	// PricingConfig returns the organization's pricing rules, falling back to
	// service defaults when the organization has no stored settings.
	PricingConfig(ctx context.Context, organizationID string) (domain.PricingConfig, error)
}

// FulfillmentStore executes the multi-record transactional operations of the
// order lifecycle engine. Each method applies its effects on the order, its
// lines, the variant stock counters, and the movement ledger as one atomic
// unit: on any failure nothing is persisted.
type FulfillmentStore interface {
	// CreateOrder validates availability for every line under row locks,
	// persists the order with its lines, and appends one soft reservation
	// ledger entry per line.
	CreateOrder(ctx context.Context, order *domain.Order, actor domain.Actor) error

	// TransitionStatus applies a stock-neutral transition (confirm, start
	// processing, mark delivered) after re-checking the guard under lock.
	TransitionStatus(ctx context.Context, orderID string, to domain.Status) (*domain.Order, error)

	// ShipOrder commits each line's reservation as a physical decrement,
	// appends real ledger entries, and marks the order shipped.
	ShipOrder(ctx context.Context, orderID, trackingNumber string, actor domain.Actor) (*domain.Order, error)

	// CancelOrder releases the order's reservations (no physical change) and
	// marks it cancelled.
	CancelOrder(ctx context.Context, orderID, reason string, actor domain.Actor) (*domain.Order, error)

	// RefundOrder marks the order refunded, optionally restocking each line.
	RefundOrder(ctx context.Context, orderID string, returnStock bool, actor domain.Actor) (*domain.Order, error)

	// AdjustStock applies a manual physical stock adjustment with a ledger entry.
	AdjustStock(ctx context.Context, organizationID, variantID string, delta int, reason string, actor domain.Actor) (*domain.VariantStock, error)
}
