package postgres

import (
	"context"
	"fmt"

	"github.com/tmksh/fulfillment/internal/domain"
	"github.com/tmksh/fulfillment/pkg/database"
)

// LedgerRepository implements repository.LedgerRepository using PostgreSQL.
// It only ever reads: ledger writes happen inside FulfillmentRepository
// transactions.
type LedgerRepository struct {
	pool database.DBTX
}

// NewLedgerRepository creates a new PostgreSQL-backed ledger repository.
func NewLedgerRepository(pool database.DBTX) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// ListByVariant returns a variant's ledger entries in creation order, oldest
// first, so the result can be replayed directly.
func (r *LedgerRepository) ListByVariant(ctx context.Context, organizationID, variantID string) ([]domain.MovementEntry, error) {
	query := `
		SELECT id, organization_id, product_id, variant_id, type, quantity, previous_stock, new_stock, reason, reference, created_by, created_at
		FROM stock_movements
		WHERE organization_id = $1 AND variant_id = $2
		ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, organizationID, variantID)
	if err != nil {
		return nil, fmt.Errorf("query stock movements: %w", err)
	}
	defer rows.Close()

	var entries []domain.MovementEntry
	for rows.Next() {
		var e domain.MovementEntry
		if err := rows.Scan(
			&e.ID,
			&e.OrganizationID,
			&e.ProductID,
			&e.VariantID,
			&e.Type,
			&e.Quantity,
			&e.PreviousStock,
			&e.NewStock,
			&e.Reason,
			&e.Reference,
			&e.CreatedBy,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock movements: %w", err)
	}

	return entries, nil
}

// SumActiveReservations derives the reserved quantity for a variant by
// replaying its ledger. Agrees with the order-line aggregate by construction:
// every reservation, release, and shipment writes exactly one entry.
func (r *LedgerRepository) SumActiveReservations(ctx context.Context, organizationID, variantID string) (int, error) {
	entries, err := r.ListByVariant(ctx, organizationID, variantID)
	if err != nil {
		return 0, err
	}

	return domain.ActiveReservationsFromLedger(entries), nil
}
