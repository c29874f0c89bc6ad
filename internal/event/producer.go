package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmksh/fulfillment/internal/domain"
	pkgkafka "github.com/tmksh/fulfillment/pkg/kafka"
)

// Kafka topic constants for fulfillment domain events.
const (
	TopicOrderCreated       = "fulfillment.order.created"
	TopicOrderStatusChanged = "fulfillment.order.status_changed"
	TopicOrderCancelled     = "fulfillment.order.cancelled"
	TopicOrderRefunded      = "fulfillment.order.refunded"
	TopicStockAdjusted      = "fulfillment.stock.adjusted"
)

// Aggregate type constants.
const (
	AggregateTypeOrder   = "order"
	AggregateTypeVariant = "variant"
)

// Source identifier for events originating from this service.
const SourceFulfillment = "fulfillment-service"

// OrderCreatedData is the payload for an order.created event (full order snapshot).
type OrderCreatedData struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	OrderNumber    string           `json:"order_number"`
	CustomerID     *string          `json:"customer_id,omitempty"`
	CustomerName   string           `json:"customer_name,omitempty"`
	Status         string           `json:"status"`
	Lines          []OrderLineData  `json:"lines"`
	Subtotal       int64            `json:"subtotal"`
	ShippingCost   int64            `json:"shipping_cost"`
	Tax            int64            `json:"tax"`
	Total          int64            `json:"total"`
	ShippingAddr   *domain.Address  `json:"shipping_address,omitempty"`
}

// OrderLineData is the event payload for an order line.
type OrderLineData struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// OrderStatusChangedData is the payload for an order.status_changed event.
type OrderStatusChangedData struct {
	OrderID        string `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	OldStatus      string `json:"old_status"`
	NewStatus      string `json:"new_status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

// OrderCancelledData is the payload for an order.cancelled event.
type OrderCancelledData struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason,omitempty"`
}

// OrderRefundedData is the payload for an order.refunded event.
type OrderRefundedData struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	StockReturned bool   `json:"stock_returned"`
	Total         int64  `json:"total"`
}

// StockAdjustedData is the payload for a stock.adjusted event.
type StockAdjustedData struct {
	OrganizationID string `json:"organization_id"`
	VariantID      string `json:"variant_id"`
	Delta          int    `json:"delta"`
	NewStock       int    `json:"new_stock"`
	Reason         string `json:"reason"`
}

// Producer publishes fulfillment domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the fulfillment service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishOrderCreated publishes an order.created event with the full order snapshot.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	lines := make([]OrderLineData, len(order.Lines))
	for i, l := range order.Lines {
		lines[i] = OrderLineData{
			ID:        l.ID,
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Name:      l.Name,
			SKU:       l.SKU,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}

	data := OrderCreatedData{
		ID:             order.ID,
		OrganizationID: order.OrganizationID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.CustomerID,
		CustomerName:   order.CustomerName,
		Status:         string(order.Status),
		Lines:          lines,
		Subtotal:       order.Subtotal,
		ShippingCost:   order.ShippingCost,
		Tax:            order.Tax,
		Total:          order.Total,
		ShippingAddr:   order.ShippingAddr,
	}

	event, err := pkgkafka.NewEvent(TopicOrderCreated, order.ID, AggregateTypeOrder, SourceFulfillment, data)
	if err != nil {
		return fmt.Errorf("create order.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderCreated, event); err != nil {
		return fmt.Errorf("publish order.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.created event",
		slog.String("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
	)

	return nil
}

// PublishOrderStatusChanged publishes an order.status_changed event.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, order *domain.Order, oldStatus domain.Status) error {
	data := OrderStatusChangedData{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		OldStatus:      string(oldStatus),
		NewStatus:      string(order.Status),
		TrackingNumber: order.TrackingNumber,
	}

	event, err := pkgkafka.NewEvent(TopicOrderStatusChanged, order.ID, AggregateTypeOrder, SourceFulfillment, data)
	if err != nil {
		return fmt.Errorf("create order.status_changed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderStatusChanged, event); err != nil {
		return fmt.Errorf("publish order.status_changed event: %w", err)
	}

	return nil
}

// PublishOrderCancelled publishes an order.cancelled event.
func (p *Producer) PublishOrderCancelled(ctx context.Context, order *domain.Order, reason string) error {
	data := OrderCancelledData{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Reason:      reason,
	}

	event, err := pkgkafka.NewEvent(TopicOrderCancelled, order.ID, AggregateTypeOrder, SourceFulfillment, data)
	if err != nil {
		return fmt.Errorf("create order.cancelled event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderCancelled, event); err != nil {
		return fmt.Errorf("publish order.cancelled event: %w", err)
	}

	return nil
}

// PublishOrderRefunded publishes an order.refunded event.
func (p *Producer) PublishOrderRefunded(ctx context.Context, order *domain.Order, stockReturned bool) error {
	data := OrderRefundedData{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		StockReturned: stockReturned,
		Total:         order.Total,
	}

	event, err := pkgkafka.NewEvent(TopicOrderRefunded, order.ID, AggregateTypeOrder, SourceFulfillment, data)
	if err != nil {
		return fmt.Errorf("create order.refunded event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderRefunded, event); err != nil {
		return fmt.Errorf("publish order.refunded event: %w", err)
	}

	return nil
}

// PublishStockAdjusted publishes a stock.adjusted event after a manual adjustment.
func (p *Producer) PublishStockAdjusted(ctx context.Context, stock *domain.VariantStock, delta int, reason string) error {
	data := StockAdjustedData{
		OrganizationID: stock.OrganizationID,
		VariantID:      stock.VariantID,
		Delta:          delta,
		NewStock:       stock.Stock,
		Reason:         reason,
	}

	event, err := pkgkafka.NewEvent(TopicStockAdjusted, stock.VariantID, AggregateTypeVariant, SourceFulfillment, data)
	if err != nil {
		return fmt.Errorf("create stock.adjusted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicStockAdjusted, event); err != nil {
		return fmt.Errorf("publish stock.adjusted event: %w", err)
	}

	return nil
}
