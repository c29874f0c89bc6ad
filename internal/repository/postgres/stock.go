package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tmksh/fulfillment/internal/domain"
	"github.com/tmksh/fulfillment/pkg/database"
	apperrors "github.com/tmksh/fulfillment/pkg/errors"
)

// StockRepository implements repository.StockRepository using PostgreSQL.
type StockRepository struct {
	pool database.DBTX
}

// NewStockRepository creates a new PostgreSQL-backed stock repository.
func NewStockRepository(pool database.DBTX) *StockRepository {
	return &StockRepository{pool: pool}
}

// GetStock retrieves the physical stock counter for a variant.
func (r *StockRepository) GetStock(ctx context.Context, variantID string) (*domain.VariantStock, error) {
	query := `
		SELECT variant_id, organization_id, product_id, stock, updated_at
		FROM variant_stock
		WHERE variant_id = $1`

	var v domain.VariantStock
	err := r.pool.QueryRow(ctx, query, variantID).Scan(
		&v.VariantID,
		&v.OrganizationID,
		&v.ProductID,
		&v.Stock,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("variant", variantID)
		}
		return nil, fmt.Errorf("get variant stock: %w", err)
	}

	return &v, nil
}

// ReservedQuantities returns the quantity held by orders in stock-holding
// statuses, grouped per variant. This is the same aggregate the write path
// computes under lock, taken here without locks for reporting.
func (r *StockRepository) ReservedQuantities(ctx context.Context, organizationID string, variantID *string) (map[string]int, error) {
	query := `
		SELECT ol.variant_id, COALESCE(SUM(ol.quantity), 0)
		FROM order_lines ol
		JOIN orders o ON o.id = ol.order_id
		WHERE o.organization_id = $1 AND o.status = ANY($2)`
	args := []any{organizationID, holdingStatuses}

	if variantID != nil {
		query += ` AND ol.variant_id = $3`
		args = append(args, *variantID)
	}
	query += ` GROUP BY ol.variant_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reserved quantities: %w", err)
	}
	defer rows.Close()

	reserved := make(map[string]int)
	for rows.Next() {
		var (
			id  string
			qty int
		)
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, fmt.Errorf("scan reserved quantity: %w", err)
		}
		reserved[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reserved quantities: %w", err)
	}

	return reserved, nil
}

// AvailableToSell returns physical stock minus current reservations. The two
// reads are not atomic with each other; callers needing a guaranteed value
// go through the fulfillment store, which re-checks under lock.
func (r *StockRepository) AvailableToSell(ctx context.Context, variantID string) (int, error) {
	stock, err := r.GetStock(ctx, variantID)
	if err != nil {
		return 0, err
	}

	reserved, err := r.ReservedQuantities(ctx, stock.OrganizationID, &variantID)
	if err != nil {
		return 0, err
	}

	return stock.Stock - reserved[variantID], nil
}
