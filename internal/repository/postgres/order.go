package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/tmksh/fulfillment/internal/domain"
	"github.com/tmksh/fulfillment/internal/repository"
	"github.com/tmksh/fulfillment/pkg/database"
	apperrors "github.com/tmksh/fulfillment/pkg/errors"
)

const orderColumns = `id, organization_id, order_number, customer_id, customer_name, customer_email,
		status, payment_status, subtotal, shipping_cost, tax, total,
		shipping_address, tracking_number, notes, created_at, updated_at, shipped_at, delivered_at`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanOrder scans one order row in orderColumns order.
func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o        domain.Order
		addrJSON []byte
	)

	err := row.Scan(
		&o.ID,
		&o.OrganizationID,
		&o.OrderNumber,
		&o.CustomerID,
		&o.CustomerName,
		&o.CustomerEmail,
		&o.Status,
		&o.PaymentStatus,
		&o.Subtotal,
		&o.ShippingCost,
		&o.Tax,
		&o.Total,
		&addrJSON,
		&o.TrackingNumber,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.ShippedAt,
		&o.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}

	if len(addrJSON) > 0 && string(addrJSON) != "null" {
		var addr domain.Address
		if err := json.Unmarshal(addrJSON, &addr); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
		o.ShippingAddr = &addr
	}

	return &o, nil
}

// GetByID retrieves an order by its ID, eagerly loading its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	lines, err := loadOrderLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	o.Lines = lines

	return o, nil
}

// List returns orders matching the given filter with the total count.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	conditions := []string{"organization_id = $1"}
	args := []any{filter.OrganizationID}
	argIndex := 2

	if filter.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argIndex))
		args = append(args, *filter.CustomerID)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT `+orderColumns+`,
			   count(*) OVER() AS total_count
		FROM orders
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := make([]domain.Order, 0)

	for rows.Next() {
		var (
			o        domain.Order
			addrJSON []byte
		)

		if err := rows.Scan(
			&o.ID,
			&o.OrganizationID,
			&o.OrderNumber,
			&o.CustomerID,
			&o.CustomerName,
			&o.CustomerEmail,
			&o.Status,
			&o.PaymentStatus,
			&o.Subtotal,
			&o.ShippingCost,
			&o.Tax,
			&o.Total,
			&addrJSON,
			&o.TrackingNumber,
			&o.Notes,
			&o.CreatedAt,
			&o.UpdatedAt,
			&o.ShippedAt,
			&o.DeliveredAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}

		if len(addrJSON) > 0 && string(addrJSON) != "null" {
			var addr domain.Address
			if err := json.Unmarshal(addrJSON, &addr); err != nil {
				return nil, 0, fmt.Errorf("unmarshal shipping address: %w", err)
			}
			o.ShippingAddr = &addr
		}

		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	// Batch-load lines for all orders in a single query to avoid N+1.
	if len(orders) > 0 {
		orderIDs := make([]string, len(orders))
		for i := range orders {
			orderIDs[i] = orders[i].ID
		}

		linesQuery := `
			SELECT id, order_id, product_id, variant_id, name, sku, unit_price, quantity
			FROM order_lines
			WHERE order_id = ANY($1)
			ORDER BY id`

		lineRows, err := r.pool.Query(ctx, linesQuery, orderIDs)
		if err != nil {
			return nil, 0, fmt.Errorf("batch load order lines: %w", err)
		}
		defer lineRows.Close()

		linesByOrderID := make(map[string][]domain.OrderLine, len(orders))
		for lineRows.Next() {
			var l domain.OrderLine
			if err := lineRows.Scan(
				&l.ID, &l.OrderID, &l.ProductID, &l.VariantID,
				&l.Name, &l.SKU, &l.UnitPrice, &l.Quantity,
			); err != nil {
				return nil, 0, fmt.Errorf("scan order line: %w", err)
			}
			linesByOrderID[l.OrderID] = append(linesByOrderID[l.OrderID], l)
		}
		if err := lineRows.Err(); err != nil {
			return nil, 0, fmt.Errorf("iterate order line rows: %w", err)
		}

		for i := range orders {
			if lines, ok := linesByOrderID[orders[i].ID]; ok {
				orders[i].Lines = lines
			} else {
				orders[i].Lines = []domain.OrderLine{}
			}
		}
	}

	return orders, totalCount, nil
}

// loadOrderLines retrieves all lines belonging to a given order. The querier
// may be the pool or an open transaction.
func loadOrderLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, orderID string) ([]domain.OrderLine, error) {
	query := `
		SELECT id, order_id, product_id, variant_id, name, sku, unit_price, quantity
		FROM order_lines
		WHERE order_id = $1
		ORDER BY id`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(
			&l.ID, &l.OrderID, &l.ProductID, &l.VariantID,
			&l.Name, &l.SKU, &l.UnitPrice, &l.Quantity,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order line rows: %w", err)
	}

	if lines == nil {
		lines = []domain.OrderLine{}
	}

	return lines, nil
}
