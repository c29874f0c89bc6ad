package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tmksh/fulfillment/internal/domain"
	"github.com/tmksh/fulfillment/pkg/database"
	apperrors "github.com/tmksh/fulfillment/pkg/errors"
)

// holdingStatuses are the order statuses that softly reserve stock.
var holdingStatuses = []string{
	string(domain.StatusPlaced),
	string(domain.StatusConfirmed),
	string(domain.StatusProcessing),
}

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// conflictError translates Postgres transaction-abort codes (deadlock,
// serialization failure) into a retryable conflict. Returns nil when the
// error is anything else.
func conflictError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == deadlockDetected || pgErr.Code == serializationFailure) {
		return apperrors.Conflict("operation conflicts with a concurrent transaction, retry")
	}
	return nil
}

// FulfillmentRepository implements repository.FulfillmentStore using
// PostgreSQL. Every operation runs in a single transaction with row-level
// locks on the affected variant counters, so concurrent requests observe
// either the pre-state or the fully-applied post-state.
type FulfillmentRepository struct {
	pool database.DBTX
}

// NewFulfillmentRepository creates a new PostgreSQL-backed fulfillment store.
func NewFulfillmentRepository(pool database.DBTX) *FulfillmentRepository {
	return &FulfillmentRepository{pool: pool}
}

// lockedVariant is a variant stock row held under FOR UPDATE for the duration
// of a transaction.
type lockedVariant struct {
	productID string
	stock     int
}

// lockVariant acquires a row lock on the variant's stock counter. Concurrent
// operations touching the same variant serialize here.
func lockVariant(ctx context.Context, tx pgx.Tx, organizationID, variantID string) (*lockedVariant, error) {
	query := `
		SELECT product_id, stock
		FROM variant_stock
		WHERE variant_id = $1 AND organization_id = $2
		FOR UPDATE`

	var v lockedVariant
	err := tx.QueryRow(ctx, query, variantID, organizationID).Scan(&v.productID, &v.stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("variant", variantID)
		}
		if conflict := conflictError(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("lock variant stock: %w", err)
	}

	return &v, nil
}

// reservedQuantity sums the line quantities of orders currently holding stock
// for the variant. Computed live inside the transaction, after the variant
// row lock is held, so the value cannot be stale.
func reservedQuantity(ctx context.Context, tx pgx.Tx, organizationID, variantID string) (int, error) {
	query := `
		SELECT COALESCE(SUM(ol.quantity), 0)
		FROM order_lines ol
		JOIN orders o ON o.id = ol.order_id
		WHERE ol.variant_id = $1 AND o.organization_id = $2 AND o.status = ANY($3)`

	var reserved int
	if err := tx.QueryRow(ctx, query, variantID, organizationID, holdingStatuses).Scan(&reserved); err != nil {
		return 0, fmt.Errorf("sum reserved quantity: %w", err)
	}

	return reserved, nil
}

// appendMovement inserts one ledger entry. The ledger is append-only: this is
// the only statement that ever touches stock_movements.
func appendMovement(ctx context.Context, tx pgx.Tx, e *domain.MovementEntry) error {
	query := `
		INSERT INTO stock_movements (id, organization_id, product_id, variant_id, type, quantity, previous_stock, new_stock, reason, reference, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		e.ID,
		e.OrganizationID,
		e.ProductID,
		e.VariantID,
		e.Type,
		e.Quantity,
		e.PreviousStock,
		e.NewStock,
		e.Reason,
		e.Reference,
		e.CreatedBy,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append stock movement: %w", err)
	}

	return nil
}

// lockOrder loads an order under FOR UPDATE so concurrent transitions on the
// same order serialize and exactly one wins.
func lockOrder(ctx context.Context, tx pgx.Tx, orderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	o, err := scanOrder(tx.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", orderID)
		}
		if conflict := conflictError(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return o, nil
}

// sortedVariantQuantities aggregates requested quantity per variant and
// returns the variant ids in ascending order. Locks are always taken in this
// order to avoid deadlocks between concurrent transactions.
func sortedVariantQuantities(lines []domain.OrderLine) ([]string, map[string]int) {
	quantities := make(map[string]int, len(lines))
	for i := range lines {
		quantities[lines[i].VariantID] += lines[i].Quantity
	}

	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids, quantities
}

// CreateOrder validates availability for every line under row locks, persists
// the order header and lines together, and appends one soft reservation
// ledger entry per line. On any failure the transaction rolls back and
// nothing is persisted.
func (r *FulfillmentRepository) CreateOrder(ctx context.Context, o *domain.Order, actor domain.Actor) error {
	ctx, end := database.TraceQuery(ctx, "CreateOrder", "INSERT INTO orders")
	var opErr error
	defer func() { end(opErr) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		opErr = fmt.Errorf("begin transaction: %w", err)
		return opErr
	}
	defer func() { _ = tx.Rollback(ctx) }()

	variantIDs, requested := sortedVariantQuantities(o.Lines)
	stockByVariant := make(map[string]int, len(variantIDs))

	for _, variantID := range variantIDs {
		locked, err := lockVariant(ctx, tx, o.OrganizationID, variantID)
		if err != nil {
			opErr = err
			return opErr
		}

		reserved, err := reservedQuantity(ctx, tx, o.OrganizationID, variantID)
		if err != nil {
			opErr = err
			return opErr
		}

		available := locked.stock - reserved
		if requested[variantID] > available {
			opErr = &apperrors.InsufficientStockError{
				VariantID: variantID,
				Requested: requested[variantID],
				Available: available,
			}
			return opErr
		}

		stockByVariant[variantID] = locked.stock
	}

	if err := insertOrder(ctx, tx, o); err != nil {
		opErr = err
		return opErr
	}

	lineQuery := `
		INSERT INTO order_lines (id, order_id, product_id, variant_id, name, sku, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, l := range o.Lines {
		if _, err := tx.Exec(ctx, lineQuery,
			l.ID, l.OrderID, l.ProductID, l.VariantID,
			l.Name, l.SKU, l.UnitPrice, l.Quantity,
		); err != nil {
			opErr = fmt.Errorf("insert order line: %w", err)
			return opErr
		}
	}

	// Soft reservations: previous_stock == new_stock because physical stock
	// is untouched until ship.
	now := time.Now().UTC()
	for _, l := range o.Lines {
		entry := &domain.MovementEntry{
			ID:             uuid.New().String(),
			OrganizationID: o.OrganizationID,
			ProductID:      l.ProductID,
			VariantID:      l.VariantID,
			Type:           domain.MovementOut,
			Quantity:       -l.Quantity,
			PreviousStock:  stockByVariant[l.VariantID],
			NewStock:       stockByVariant[l.VariantID],
			Reason:         domain.ReasonOrderPlaced,
			Reference:      o.OrderNumber,
			CreatedBy:      actor.String(),
			CreatedAt:      now,
		}
		if err := appendMovement(ctx, tx, entry); err != nil {
			opErr = err
			return opErr
		}
	}

	if err := tx.Commit(ctx); err != nil {
		opErr = fmt.Errorf("commit transaction: %w", err)
		return opErr
	}

	return nil
}

// insertOrder writes the order header, translating a unique violation on the
// (organization, order number) constraint so the caller can regenerate.
func insertOrder(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	query := `
		INSERT INTO orders (id, organization_id, order_number, customer_id, customer_name, customer_email, status, payment_status, subtotal, shipping_cost, tax, total, shipping_address, tracking_number, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	addrJSON, err := marshalAddress(o.ShippingAddr)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, query,
		o.ID,
		o.OrganizationID,
		o.OrderNumber,
		o.CustomerID,
		o.CustomerName,
		o.CustomerEmail,
		o.Status,
		o.PaymentStatus,
		o.Subtotal,
		o.ShippingCost,
		o.Tax,
		o.Total,
		addrJSON,
		o.TrackingNumber,
		o.Notes,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.AlreadyExists("order", "order_number", o.OrderNumber)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

// TransitionStatus applies a stock-neutral transition (confirm, start
// processing, mark delivered) after re-checking the guard under lock.
func (r *FulfillmentRepository) TransitionStatus(ctx context.Context, orderID string, to domain.Status) (*domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if !o.CanTransitionTo(to) {
		return nil, &apperrors.InvalidTransitionError{From: string(o.Status), To: string(to)}
	}

	now := time.Now().UTC()
	if to == domain.StatusDelivered {
		_, err = tx.Exec(ctx,
			`UPDATE orders SET status = $1, delivered_at = $2, updated_at = $2 WHERE id = $3`,
			to, now, orderID,
		)
		o.DeliveredAt = &now
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
			to, now, orderID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	lines, err := loadOrderLines(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	o.Status = to
	o.UpdatedAt = now
	o.Lines = lines

	return o, nil
}

// ShipOrder commits each line's soft reservation as a real physical
// decrement. Physical stock may have drifted since creation due to manual
// adjustments, so every counter is re-read under lock and the whole operation
// aborts if any line would drive a counter negative.
func (r *FulfillmentRepository) ShipOrder(ctx context.Context, orderID, trackingNumber string, actor domain.Actor) (*domain.Order, error) {
	ctx, end := database.TraceQuery(ctx, "ShipOrder", "UPDATE variant_stock")
	var opErr error
	defer func() { end(opErr) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		opErr = fmt.Errorf("begin transaction: %w", err)
		return nil, opErr
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		opErr = err
		return nil, opErr
	}

	if !o.Status.Shippable() {
		opErr = &apperrors.InvalidTransitionError{From: string(o.Status), To: string(domain.StatusShipped)}
		return nil, opErr
	}

	lines, err := loadOrderLines(ctx, tx, orderID)
	if err != nil {
		opErr = err
		return nil, opErr
	}

	variantIDs, requested := sortedVariantQuantities(lines)
	stockByVariant := make(map[string]int, len(variantIDs))

	for _, variantID := range variantIDs {
		locked, err := lockVariant(ctx, tx, o.OrganizationID, variantID)
		if err != nil {
			opErr = err
			return nil, opErr
		}
		if locked.stock-requested[variantID] < 0 {
			opErr = &apperrors.InsufficientStockError{
				VariantID: variantID,
				Requested: requested[variantID],
				Available: locked.stock,
			}
			return nil, opErr
		}
		stockByVariant[variantID] = locked.stock
	}

	now := time.Now().UTC()
	for _, l := range lines {
		prev := stockByVariant[l.VariantID]
		next := prev - l.Quantity
		stockByVariant[l.VariantID] = next

		entry := &domain.MovementEntry{
			ID:             uuid.New().String(),
			OrganizationID: o.OrganizationID,
			ProductID:      l.ProductID,
			VariantID:      l.VariantID,
			Type:           domain.MovementOut,
			Quantity:       -l.Quantity,
			PreviousStock:  prev,
			NewStock:       next,
			Reason:         domain.ReasonOrderShipped,
			Reference:      o.OrderNumber,
			CreatedBy:      actor.String(),
			CreatedAt:      now,
		}
		if err := appendMovement(ctx, tx, entry); err != nil {
			opErr = err
			return nil, opErr
		}
	}

	for _, variantID := range variantIDs {
		if _, err := tx.Exec(ctx,
			`UPDATE variant_stock SET stock = $1, updated_at = $2 WHERE variant_id = $3 AND organization_id = $4`,
			stockByVariant[variantID], now, variantID, o.OrganizationID,
		); err != nil {
			opErr = fmt.Errorf("decrement variant stock: %w", err)
			return nil, opErr
		}
	}

	paymentStatus := o.PaymentStatus
	if paymentStatus == domain.PaymentPending {
		paymentStatus = domain.PaymentPaid
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1, payment_status = $2, tracking_number = $3, shipped_at = $4, updated_at = $4 WHERE id = $5`,
		domain.StatusShipped, paymentStatus, trackingNumber, now, orderID,
	); err != nil {
		opErr = fmt.Errorf("mark order shipped: %w", err)
		return nil, opErr
	}

	if err := tx.Commit(ctx); err != nil {
		opErr = fmt.Errorf("commit transaction: %w", err)
		return nil, opErr
	}

	o.Status = domain.StatusShipped
	o.PaymentStatus = paymentStatus
	o.TrackingNumber = trackingNumber
	o.ShippedAt = &now
	o.UpdatedAt = now
	o.Lines = lines

	return o, nil
}

// CancelOrder releases the order's soft reservations. Physical stock never
// moved, so the release entries carry previous_stock == new_stock.
func (r *FulfillmentRepository) CancelOrder(ctx context.Context, orderID, reason string, actor domain.Actor) (*domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if !o.Status.Cancellable() {
		return nil, &apperrors.InvalidTransitionError{From: string(o.Status), To: string(domain.StatusCancelled)}
	}

	lines, err := loadOrderLines(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if reason == "" {
		reason = domain.ReasonOrderCancelled
	}

	now := time.Now().UTC()

	variantIDs, _ := sortedVariantQuantities(lines)
	stockByVariant := make(map[string]int, len(variantIDs))
	for _, variantID := range variantIDs {
		locked, err := lockVariant(ctx, tx, o.OrganizationID, variantID)
		if err != nil {
			return nil, err
		}
		stockByVariant[variantID] = locked.stock
	}

	for _, l := range lines {
		entry := &domain.MovementEntry{
			ID:             uuid.New().String(),
			OrganizationID: o.OrganizationID,
			ProductID:      l.ProductID,
			VariantID:      l.VariantID,
			Type:           domain.MovementAdjustment,
			Quantity:       l.Quantity,
			PreviousStock:  stockByVariant[l.VariantID],
			NewStock:       stockByVariant[l.VariantID],
			Reason:         reason,
			Reference:      o.OrderNumber,
			CreatedBy:      actor.String(),
			CreatedAt:      now,
		}
		if err := appendMovement(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		domain.StatusCancelled, now, orderID,
	); err != nil {
		return nil, fmt.Errorf("mark order cancelled: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	o.Status = domain.StatusCancelled
	o.UpdatedAt = now
	o.Lines = lines

	return o, nil
}

// RefundOrder marks the order refunded and, when returnStock is set,
// increments each line's physical counter with a matching ledger entry.
func (r *FulfillmentRepository) RefundOrder(ctx context.Context, orderID string, returnStock bool, actor domain.Actor) (*domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if !o.Status.Refundable() {
		return nil, &apperrors.InvalidTransitionError{From: string(o.Status), To: string(domain.StatusRefunded)}
	}

	lines, err := loadOrderLines(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if returnStock {
		variantIDs, _ := sortedVariantQuantities(lines)
		stockByVariant := make(map[string]int, len(variantIDs))

		for _, variantID := range variantIDs {
			locked, err := lockVariant(ctx, tx, o.OrganizationID, variantID)
			if err != nil {
				return nil, err
			}
			stockByVariant[variantID] = locked.stock
		}

		for _, l := range lines {
			prev := stockByVariant[l.VariantID]
			next := prev + l.Quantity
			stockByVariant[l.VariantID] = next

			entry := &domain.MovementEntry{
				ID:             uuid.New().String(),
				OrganizationID: o.OrganizationID,
				ProductID:      l.ProductID,
				VariantID:      l.VariantID,
				Type:           domain.MovementIn,
				Quantity:       l.Quantity,
				PreviousStock:  prev,
				NewStock:       next,
				Reason:         domain.ReasonOrderRefunded,
				Reference:      o.OrderNumber,
				CreatedBy:      actor.String(),
				CreatedAt:      now,
			}
			if err := appendMovement(ctx, tx, entry); err != nil {
				return nil, err
			}
		}

		for _, variantID := range variantIDs {
			if _, err := tx.Exec(ctx,
				`UPDATE variant_stock SET stock = $1, updated_at = $2 WHERE variant_id = $3 AND organization_id = $4`,
				stockByVariant[variantID], now, variantID, o.OrganizationID,
			); err != nil {
				return nil, fmt.Errorf("restock variant: %w", err)
			}
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1, payment_status = $2, updated_at = $3 WHERE id = $4`,
		domain.StatusRefunded, domain.PaymentRefunded, now, orderID,
	); err != nil {
		return nil, fmt.Errorf("mark order refunded: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	o.Status = domain.StatusRefunded
	o.PaymentStatus = domain.PaymentRefunded
	o.UpdatedAt = now
	o.Lines = lines

	return o, nil
}

// AdjustStock applies a manual physical adjustment to a variant counter with
// a matching ledger entry. The counter is never allowed to go negative.
func (r *FulfillmentRepository) AdjustStock(ctx context.Context, organizationID, variantID string, delta int, reason string, actor domain.Actor) (*domain.VariantStock, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	locked, err := lockVariant(ctx, tx, organizationID, variantID)
	if err != nil {
		return nil, err
	}

	next := locked.stock + delta
	if next < 0 {
		return nil, &apperrors.InsufficientStockError{
			VariantID: variantID,
			Requested: -delta,
			Available: locked.stock,
		}
	}

	if reason == "" {
		reason = domain.ReasonManual
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE variant_stock SET stock = $1, updated_at = $2 WHERE variant_id = $3 AND organization_id = $4`,
		next, now, variantID, organizationID,
	); err != nil {
		return nil, fmt.Errorf("adjust variant stock: %w", err)
	}

	entry := &domain.MovementEntry{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		ProductID:      locked.productID,
		VariantID:      variantID,
		Type:           domain.MovementAdjustment,
		Quantity:       delta,
		PreviousStock:  locked.stock,
		NewStock:       next,
		Reason:         reason,
		CreatedBy:      actor.String(),
		CreatedAt:      now,
	}
	if err := appendMovement(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &domain.VariantStock{
		VariantID:      variantID,
		OrganizationID: organizationID,
		ProductID:      locked.productID,
		Stock:          next,
		UpdatedAt:      now,
	}, nil
}

// marshalAddress serializes an address to JSON for jsonb storage, returning
// nil for a nil address.
func marshalAddress(addr *domain.Address) ([]byte, error) {
	if addr == nil {
		return nil, nil
	}
	data, err := json.Marshal(addr)
	if err != nil {
		return nil, fmt.Errorf("marshal shipping address: %w", err)
	}
	return data, nil
}
