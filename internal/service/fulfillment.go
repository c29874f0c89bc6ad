package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tmksh/fulfillment/internal/customer"
	"github.com/tmksh/fulfillment/internal/domain"
	"github.com/tmksh/fulfillment/internal/event"
	"github.com/tmksh/fulfillment/internal/repository"
	apperrors "github.com/tmksh/fulfillment/pkg/errors"
	"github.com/tmksh/fulfillment/pkg/middleware"
)

// orderNumberAttempts bounds regeneration when a generated order number
// collides with an existing one in the same organization.
const orderNumberAttempts = 5

// FulfillmentService implements the business logic of the order lifecycle
// and inventory reservation engine.
type FulfillmentService struct {
	orders    repository.OrderRepository
	stock     repository.StockRepository
	ledger    repository.LedgerRepository
	settings  repository.SettingsRepository
	store     repository.FulfillmentStore
	customers customer.Directory
	producer  *event.Producer
	logger    *slog.Logger
}

// NewFulfillmentService creates a new fulfillment service.
func NewFulfillmentService(
	orders repository.OrderRepository,
	stock repository.StockRepository,
	ledger repository.LedgerRepository,
	settings repository.SettingsRepository,
	store repository.FulfillmentStore,
	customers customer.Directory,
	producer *event.Producer,
	logger *slog.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		orders:    orders,
		stock:     stock,
		ledger:    ledger,
		settings:  settings,
		store:     store,
		customers: customers,
		producer:  producer,
		logger:    logger,
	}
}

// actorFrom builds the acting identity from request-scoped context values.
func actorFrom(ctx context.Context) domain.Actor {
	return domain.Actor{
		ID:   middleware.ActorIDFromContext(ctx),
		Name: middleware.ActorNameFromContext(ctx),
	}
}

// CreateOrderLineInput holds the parameters for one order line.
type CreateOrderLineInput struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderInput holds the parameters for creating an order.
type CreateOrderInput struct {
	OrganizationID string
	CustomerID     *string
	CustomerName   string
	CustomerEmail  string
	Lines          []CreateOrderLineInput
	ShippingAddr   *domain.Address
	Notes          string
}

// CreateOrder places a new order: it snapshots the customer profile, prices
// the lines, and asks the store to atomically validate availability, persist
// the order, and open the soft reservations.
func (s *FulfillmentService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	if input.OrganizationID == "" {
		return nil, apperrors.InvalidInput("organization_id is required")
	}
	if len(input.Lines) == 0 {
		return nil, apperrors.InvalidInput("order must contain at least one line")
	}
	for i, line := range input.Lines {
		if line.VariantID == "" {
			return nil, apperrors.InvalidInput(fmt.Sprintf("line %d: variant_id is required", i))
		}
		if line.Quantity <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("line %d: quantity must be positive", i))
		}
		if line.UnitPrice < 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("line %d: unit_price must not be negative", i))
		}
	}

	customerName := input.CustomerName
	customerEmail := input.CustomerEmail
	if input.CustomerID != nil {
		profile, err := s.customers.Lookup(ctx, *input.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("lookup customer: %w", err)
		}
		customerName = profile.Name
		customerEmail = profile.Email
	} else if customerName == "" {
		return nil, apperrors.InvalidInput("customer_name is required for guest orders")
	}

	pricingCfg, err := s.settings.PricingConfig(ctx, input.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load pricing config: %w", err)
	}

	now := time.Now().UTC()
	orderID := uuid.New().String()

	lines := make([]domain.OrderLine, len(input.Lines))
	for i, li := range input.Lines {
		lines[i] = domain.OrderLine{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			ProductID: li.ProductID,
			VariantID: li.VariantID,
			Name:      li.Name,
			SKU:       li.SKU,
			UnitPrice: li.UnitPrice,
			Quantity:  li.Quantity,
		}
	}

	pricing := domain.CalculatePricing(lines, pricingCfg)

	order := &domain.Order{
		ID:             orderID,
		OrganizationID: input.OrganizationID,
		CustomerID:     input.CustomerID,
		CustomerName:   customerName,
		CustomerEmail:  customerEmail,
		Status:         domain.StatusPlaced,
		PaymentStatus:  domain.PaymentPending,
		Lines:          lines,
		Subtotal:       pricing.Subtotal,
		ShippingCost:   pricing.ShippingCost,
		Tax:            pricing.Tax,
		Total:          pricing.Total,
		ShippingAddr:   input.ShippingAddr,
		Notes:          input.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	actor := actorFrom(ctx)
	for attempt := 1; ; attempt++ {
		order.OrderNumber = domain.GenerateOrderNumber(now)

		err = s.store.CreateOrder(ctx, order, actor)
		if err == nil {
			break
		}
		if !errors.Is(err, apperrors.ErrAlreadyExists) || attempt >= orderNumberAttempts {
			return nil, fmt.Errorf("create order: %w", err)
		}
	}

	if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.String("organization_id", order.OrganizationID),
		slog.Int64("total", order.Total),
	)

	return order, nil
}

// GetOrder retrieves an order by its ID.
func (s *FulfillmentService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return order, nil
}

// ListOrders returns a filtered, paginated list of orders.
func (s *FulfillmentService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	if filter.OrganizationID == "" {
		return nil, 0, apperrors.InvalidInput("organization_id is required")
	}
	if filter.Status != nil && !domain.IsValidStatus(*filter.Status) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid status %q", *filter.Status))
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	return orders, total, nil
}

// ConfirmOrder moves a placed order to confirmed.
func (s *FulfillmentService) ConfirmOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.StatusConfirmed)
}

// StartProcessing moves a confirmed order to processing.
func (s *FulfillmentService) StartProcessing(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.StatusProcessing)
}

// MarkDelivered moves a shipped order to delivered.
func (s *FulfillmentService) MarkDelivered(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.StatusDelivered)
}

// transition applies a stock-neutral status change. The store re-checks the
// guard under lock; the pre-read only captures the old status for the event.
func (s *FulfillmentService) transition(ctx context.Context, id string, to domain.Status) (*domain.Order, error) {
	current, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order for transition: %w", err)
	}
	oldStatus := current.Status

	order, err := s.store.TransitionStatus(ctx, id, to)
	if err != nil {
		return nil, fmt.Errorf("transition order: %w", err)
	}

	if err := s.producer.PublishOrderStatusChanged(ctx, order, oldStatus); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.status_changed event",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", id),
		slog.String("old_status", string(oldStatus)),
		slog.String("new_status", string(order.Status)),
	)

	return order, nil
}

// ShipOrder ships an order: physical stock is decremented, the reservation
// closes, and payment is captured if still pending.
func (s *FulfillmentService) ShipOrder(ctx context.Context, id, trackingNumber string) (*domain.Order, error) {
	current, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order for ship: %w", err)
	}
	oldStatus := current.Status

	order, err := s.store.ShipOrder(ctx, id, trackingNumber, actorFrom(ctx))
	if err != nil {
		return nil, fmt.Errorf("ship order: %w", err)
	}

	if err := s.producer.PublishOrderStatusChanged(ctx, order, oldStatus); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.status_changed event",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order shipped",
		slog.String("order_id", id),
		slog.String("order_number", order.OrderNumber),
		slog.String("tracking_number", trackingNumber),
	)

	return order, nil
}

// CancelOrder cancels an order that has not shipped, releasing its
// reservations.
func (s *FulfillmentService) CancelOrder(ctx context.Context, id, reason string) (*domain.Order, error) {
	order, err := s.store.CancelOrder(ctx, id, reason, actorFrom(ctx))
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	if err := s.producer.PublishOrderCancelled(ctx, order, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.cancelled event",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", id),
		slog.String("reason", reason),
	)

	return order, nil
}

// RefundOrder refunds a shipped or delivered order, optionally returning its
// lines to physical stock.
func (s *FulfillmentService) RefundOrder(ctx context.Context, id string, returnStock bool) (*domain.Order, error) {
	order, err := s.store.RefundOrder(ctx, id, returnStock, actorFrom(ctx))
	if err != nil {
		return nil, fmt.Errorf("refund order: %w", err)
	}

	if err := s.producer.PublishOrderRefunded(ctx, order, returnStock); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.refunded event",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order refunded",
		slog.String("order_id", id),
		slog.Bool("stock_returned", returnStock),
	)

	return order, nil
}

// Availability is the derived sell-side view of a variant's stock.
type Availability struct {
	VariantID string `json:"variant_id"`
	Stock     int    `json:"stock"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}

// GetAvailability returns a variant's physical stock, reserved quantity, and
// available-to-sell value.
func (s *FulfillmentService) GetAvailability(ctx context.Context, variantID string) (*Availability, error) {
	stock, err := s.stock.GetStock(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("get variant stock: %w", err)
	}

	reserved, err := s.stock.ReservedQuantities(ctx, stock.OrganizationID, &variantID)
	if err != nil {
		return nil, fmt.Errorf("get reserved quantities: %w", err)
	}

	return &Availability{
		VariantID: variantID,
		Stock:     stock.Stock,
		Reserved:  reserved[variantID],
		Available: stock.Stock - reserved[variantID],
	}, nil
}

// ListReservations returns the reserved quantity per variant for an
// organization, optionally narrowed to a single variant.
func (s *FulfillmentService) ListReservations(ctx context.Context, organizationID string, variantID *string) (map[string]int, error) {
	if organizationID == "" {
		return nil, apperrors.InvalidInput("organization_id is required")
	}

	reserved, err := s.stock.ReservedQuantities(ctx, organizationID, variantID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	return reserved, nil
}

// ListMovements returns a variant's ledger entries in creation order.
func (s *FulfillmentService) ListMovements(ctx context.Context, organizationID, variantID string) ([]domain.MovementEntry, error) {
	if organizationID == "" {
		return nil, apperrors.InvalidInput("organization_id is required")
	}

	entries, err := s.ledger.ListByVariant(ctx, organizationID, variantID)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}

	return entries, nil
}

// AuditVariantLedger replays a variant's ledger and cross-checks it against
// the live order-line aggregate. A healthy variant passes both checks: the
// stock snapshots chain without gaps, and the ledger-derived reservation
// equals the reservation computed from open orders.
func (s *FulfillmentService) AuditVariantLedger(ctx context.Context, organizationID, variantID string) error {
	entries, err := s.ledger.ListByVariant(ctx, organizationID, variantID)
	if err != nil {
		return fmt.Errorf("list stock movements: %w", err)
	}

	if err := domain.VerifyChain(entries); err != nil {
		return apperrors.Conflict(fmt.Sprintf("ledger chain broken for variant %s: %v", variantID, err))
	}

	fromLedger := domain.ActiveReservationsFromLedger(entries)

	reserved, err := s.stock.ReservedQuantities(ctx, organizationID, &variantID)
	if err != nil {
		return fmt.Errorf("get reserved quantities: %w", err)
	}

	if fromLedger != reserved[variantID] {
		return apperrors.Conflict(fmt.Sprintf(
			"reservation mismatch for variant %s: ledger says %d, open orders say %d",
			variantID, fromLedger, reserved[variantID],
		))
	}

	return nil
}

// AdjustStock applies a manual physical stock adjustment.
func (s *FulfillmentService) AdjustStock(ctx context.Context, organizationID, variantID string, delta int, reason string) (*domain.VariantStock, error) {
	if organizationID == "" {
		return nil, apperrors.InvalidInput("organization_id is required")
	}
	if variantID == "" {
		return nil, apperrors.InvalidInput("variant_id is required")
	}
	if delta == 0 {
		return nil, apperrors.InvalidInput("delta must not be zero")
	}

	stock, err := s.store.AdjustStock(ctx, organizationID, variantID, delta, reason, actorFrom(ctx))
	if err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}

	if err := s.producer.PublishStockAdjusted(ctx, stock, delta, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish stock.adjusted event",
			slog.String("variant_id", variantID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "stock adjusted",
		slog.String("variant_id", variantID),
		slog.Int("delta", delta),
		slog.Int("new_stock", stock.Stock),
	)

	return stock, nil
}

// QuotePricing prices a prospective set of lines against the organization's
// rules without placing an order.
func (s *FulfillmentService) QuotePricing(ctx context.Context, organizationID string, lines []CreateOrderLineInput) (*domain.Pricing, error) {
	if organizationID == "" {
		return nil, apperrors.InvalidInput("organization_id is required")
	}
	if len(lines) == 0 {
		return nil, apperrors.InvalidInput("at least one line is required")
	}

	cfg, err := s.settings.PricingConfig(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("load pricing config: %w", err)
	}

	domainLines := make([]domain.OrderLine, len(lines))
	for i, li := range lines {
		if li.Quantity <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("line %d: quantity must be positive", i))
		}
		if li.UnitPrice < 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("line %d: unit_price must not be negative", i))
		}
		domainLines[i] = domain.OrderLine{UnitPrice: li.UnitPrice, Quantity: li.Quantity}
	}

	pricing := domain.CalculatePricing(domainLines, cfg)
	return &pricing, nil
}
