package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tmksh/fulfillment/internal/customer"
	"github.com/tmksh/fulfillment/internal/domain"
	"github.com/tmksh/fulfillment/internal/event"
	"github.com/tmksh/fulfillment/internal/repository"
	apperrors "github.com/tmksh/fulfillment/pkg/errors"
	pkgkafka "github.com/tmksh/fulfillment/pkg/kafka"
)

// --- Mocks ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if o := args.Get(0); o != nil {
		return o.(*domain.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter)
	if o := args.Get(0); o != nil {
		return o.([]domain.Order), args.Int(1), args.Error(2)
	}
	return nil, args.Int(1), args.Error(2)
}

type mockStockRepository struct {
	mock.Mock
}

func (m *mockStockRepository) GetStock(ctx context.Context, variantID string) (*domain.VariantStock, error) {
	args := m.Called(ctx, variantID)
	if v := args.Get(0); v != nil {
		return v.(*domain.VariantStock), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStockRepository) ReservedQuantities(ctx context.Context, organizationID string, variantID *string) (map[string]int, error) {
	args := m.Called(ctx, organizationID, variantID)
	if v := args.Get(0); v != nil {
		return v.(map[string]int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStockRepository) AvailableToSell(ctx context.Context, variantID string) (int, error) {
	args := m.Called(ctx, variantID)
	return args.Int(0), args.Error(1)
}

type mockLedgerRepository struct {
	mock.Mock
}

func (m *mockLedgerRepository) ListByVariant(ctx context.Context, organizationID, variantID string) ([]domain.MovementEntry, error) {
	args := m.Called(ctx, organizationID, variantID)
	if v := args.Get(0); v != nil {
		return v.([]domain.MovementEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedgerRepository) SumActiveReservations(ctx context.Context, organizationID, variantID string) (int, error) {
	args := m.Called(ctx, organizationID, variantID)
	return args.Int(0), args.Error(1)
}

type mockSettingsRepository struct {
	mock.Mock
}

func (m *mockSettingsRepository) PricingConfig(ctx context.Context, organizationID string) (domain.PricingConfig, error) {
	args := m.Called(ctx, organizationID)
	return args.Get(0).(domain.PricingConfig), args.Error(1)
}

type mockFulfillmentStore struct {
	mock.Mock
}

func (m *mockFulfillmentStore) CreateOrder(ctx context.Context, order *domain.Order, actor domain.Actor) error {
	args := m.Called(ctx, order, actor)
	return args.Error(0)
}

func (m *mockFulfillmentStore) TransitionStatus(ctx context.Context, orderID string, to domain.Status) (*domain.Order, error) {
	args := m.Called(ctx, orderID, to)
	if o := args.Get(0); o != nil {
		return o.(*domain.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockFulfillmentStore) ShipOrder(ctx context.Context, orderID, trackingNumber string, actor domain.Actor) (*domain.Order, error) {
	args := m.Called(ctx, orderID, trackingNumber, actor)
	if o := args.Get(0); o != nil {
		return o.(*domain.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockFulfillmentStore) CancelOrder(ctx context.Context, orderID, reason string, actor domain.Actor) (*domain.Order, error) {
	args := m.Called(ctx, orderID, reason, actor)
	if o := args.Get(0); o != nil {
		return o.(*domain.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockFulfillmentStore) RefundOrder(ctx context.Context, orderID string, returnStock bool, actor domain.Actor) (*domain.Order, error) {
	args := m.Called(ctx, orderID, returnStock, actor)
	if o := args.Get(0); o != nil {
		return o.(*domain.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockFulfillmentStore) AdjustStock(ctx context.Context, organizationID, variantID string, delta int, reason string, actor domain.Actor) (*domain.VariantStock, error) {
	args := m.Called(ctx, organizationID, variantID, delta, reason, actor)
	if v := args.Get(0); v != nil {
		return v.(*domain.VariantStock), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) Lookup(ctx context.Context, customerID string) (*customer.Customer, error) {
	args := m.Called(ctx, customerID)
	if c := args.Get(0); c != nil {
		return c.(*customer.Customer), args.Error(1)
	}
	return nil, args.Error(1)
}

// --- Test Helpers ---

type testDeps struct {
	orders    *mockOrderRepository
	stock     *mockStockRepository
	ledger    *mockLedgerRepository
	settings  *mockSettingsRepository
	store     *mockFulfillmentStore
	directory *mockDirectory
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService() (*FulfillmentService, *testDeps) {
	deps := &testDeps{
		orders:    new(mockOrderRepository),
		stock:     new(mockStockRepository),
		ledger:    new(mockLedgerRepository),
		settings:  new(mockSettingsRepository),
		store:     new(mockFulfillmentStore),
		directory: new(mockDirectory),
	}

	logger := newTestLogger()
	// Create a Kafka producer that will fail silently in tests (no real broker).
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	producer := event.NewProducer(kafkaProducer, logger)

	svc := NewFulfillmentService(
		deps.orders, deps.stock, deps.ledger, deps.settings, deps.store,
		deps.directory, producer, logger,
	)
	return svc, deps
}

func strPtr(s string) *string {
	return &s
}

func testPricing() domain.PricingConfig {
	return domain.PricingConfig{
		FreeShippingThreshold: 5000,
		FlatShippingFee:       500,
		TaxRateBps:            825,
	}
}

func sampleLines() []CreateOrderLineInput {
	return []CreateOrderLineInput{
		{ProductID: "prod-1", VariantID: "var-1", Name: "Widget", SKU: "WDG-001", UnitPrice: 1000, Quantity: 2},
		{ProductID: "prod-2", VariantID: "var-2", Name: "Gadget", SKU: "GDG-001", UnitPrice: 2500, Quantity: 1},
	}
}

// --- CreateOrder Tests ---

func TestCreateOrder_Success(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.settings.On("PricingConfig", ctx, "org-1").Return(testPricing(), nil)
	deps.store.On("CreateOrder", ctx, mock.AnythingOfType("*domain.Order"), mock.AnythingOfType("domain.Actor")).Return(nil)

	input := CreateOrderInput{
		OrganizationID: "org-1",
		CustomerName:   "John Doe",
		CustomerEmail:  "john@example.com",
		Lines:          sampleLines(),
		Notes:          "Leave at door",
	}

	order, err := svc.CreateOrder(ctx, input)

	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.True(t, domain.IsValidOrderNumber(order.OrderNumber), "got %q", order.OrderNumber)
	assert.Equal(t, domain.StatusPlaced, order.Status)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus)
	assert.Len(t, order.Lines, 2)
	assert.Equal(t, int64(4500), order.Subtotal) // 1000*2 + 2500*1
	assert.Equal(t, int64(500), order.ShippingCost)
	assert.Equal(t, int64(371), order.Tax) // floor(4500 * 0.0825)
	assert.Equal(t, int64(5371), order.Total)
	assert.Equal(t, "John Doe", order.CustomerName)
	assert.NotZero(t, order.CreatedAt)

	for _, line := range order.Lines {
		assert.Equal(t, order.ID, line.OrderID)
		assert.NotEmpty(t, line.ID)
	}

	deps.store.AssertExpectations(t)
	deps.settings.AssertExpectations(t)
}

func TestCreateOrder_FreeShippingAboveThreshold(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.settings.On("PricingConfig", ctx, "org-1").Return(testPricing(), nil)
	deps.store.On("CreateOrder", ctx, mock.Anything, mock.Anything).Return(nil)

	input := CreateOrderInput{
		OrganizationID: "org-1",
		CustomerName:   "John Doe",
		Lines: []CreateOrderLineInput{
			{ProductID: "prod-1", VariantID: "var-1", Name: "Widget", UnitPrice: 5000, Quantity: 1},
		},
	}

	order, err := svc.CreateOrder(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, int64(0), order.ShippingCost)
}

func TestCreateOrder_ResolvesCustomerFromDirectory(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.directory.On("Lookup", ctx, "cust-1").Return(&customer.Customer{
		ID:    "cust-1",
		Name:  "Jane Smith",
		Email: "jane@example.com",
	}, nil)
	deps.settings.On("PricingConfig", ctx, "org-1").Return(testPricing(), nil)
	deps.store.On("CreateOrder", ctx, mock.Anything, mock.Anything).Return(nil)

	input := CreateOrderInput{
		OrganizationID: "org-1",
		CustomerID:     strPtr("cust-1"),
		Lines:          sampleLines(),
	}

	order, err := svc.CreateOrder(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", order.CustomerName)
	assert.Equal(t, "jane@example.com", order.CustomerEmail)

	deps.directory.AssertExpectations(t)
}

func TestCreateOrder_CustomerNotFound(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.directory.On("Lookup", ctx, "cust-404").Return(nil, apperrors.NotFound("customer", "cust-404"))

	input := CreateOrderInput{
		OrganizationID: "org-1",
		CustomerID:     strPtr("cust-404"),
		Lines:          sampleLines(),
	}

	_, err := svc.CreateOrder(ctx, input)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	deps.store.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_NoLines(t *testing.T) {
	svc, deps := newTestService()

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		OrganizationID: "org-1",
		CustomerName:   "John Doe",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	deps.store.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_NonPositiveQuantity(t *testing.T) {
	svc, _ := newTestService()

	input := CreateOrderInput{
		OrganizationID: "org-1",
		CustomerName:   "John Doe",
		Lines: []CreateOrderLineInput{
			{ProductID: "prod-1", VariantID: "var-1", Name: "Widget", UnitPrice: 1000, Quantity: 0},
		},
	}

	_, err := svc.CreateOrder(context.Background(), input)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateOrder_GuestWithoutName(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		OrganizationID: "org-1",
		Lines:          sampleLines(),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateOrder_InsufficientStockPropagates(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.settings.On("PricingConfig", ctx, "org-1").Return(testPricing(), nil)
	deps.store.On("CreateOrder", ctx, mock.Anything, mock.Anything).Return(&apperrors.InsufficientStockError{
		VariantID: "var-1",
		Requested: 2,
		Available: 1,
	})

	input := CreateOrderInput{
		OrganizationID: "org-1",
		CustomerName:   "John Doe",
		Lines:          sampleLines(),
	}

	_, err := svc.CreateOrder(ctx, input)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	var stockErr *apperrors.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "var-1", stockErr.VariantID)
	assert.Equal(t, 1, stockErr.Available)
}

func TestCreateOrder_RegeneratesNumberOnCollision(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.settings.On("PricingConfig", ctx, "org-1").Return(testPricing(), nil)
	deps.store.On("CreateOrder", ctx, mock.Anything, mock.Anything).
		Return(apperrors.AlreadyExists("order", "order_number", "ORD-20260301-0001")).Once()
	deps.store.On("CreateOrder", ctx, mock.Anything, mock.Anything).Return(nil).Once()

	input := CreateOrderInput{
		OrganizationID: "org-1",
		CustomerName:   "John Doe",
		Lines:          sampleLines(),
	}

	order, err := svc.CreateOrder(ctx, input)

	require.NoError(t, err)
	assert.True(t, domain.IsValidOrderNumber(order.OrderNumber))
	deps.store.AssertNumberOfCalls(t, "CreateOrder", 2)
}

func TestCreateOrder_GivesUpAfterRepeatedCollisions(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.settings.On("PricingConfig", ctx, "org-1").Return(testPricing(), nil)
	deps.store.On("CreateOrder", ctx, mock.Anything, mock.Anything).
		Return(apperrors.AlreadyExists("order", "order_number", "dup"))

	input := CreateOrderInput{
		OrganizationID: "org-1",
		CustomerName:   "John Doe",
		Lines:          sampleLines(),
	}

	_, err := svc.CreateOrder(ctx, input)

	require.Error(t, err)
	deps.store.AssertNumberOfCalls(t, "CreateOrder", orderNumberAttempts)
}

// --- Query Tests ---

func TestGetOrder_Success(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	want := &domain.Order{ID: "order-1", Status: domain.StatusPlaced}
	deps.orders.On("GetByID", ctx, "order-1").Return(want, nil)

	got, err := svc.GetOrder(ctx, "order-1")

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetOrder_NotFound(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.orders.On("GetByID", ctx, "order-404").Return(nil, apperrors.NotFound("order", "order-404"))

	_, err := svc.GetOrder(ctx, "order-404")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListOrders_DefaultPagination(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.orders.On("List", ctx, repository.OrderFilter{
		OrganizationID: "org-1",
		Page:           1,
		PerPage:        20,
	}).Return([]domain.Order{}, 0, nil)

	_, _, err := svc.ListOrders(ctx, repository.OrderFilter{OrganizationID: "org-1"})

	require.NoError(t, err)
	deps.orders.AssertExpectations(t)
}

func TestListOrders_CapsPerPage(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.orders.On("List", ctx, repository.OrderFilter{
		OrganizationID: "org-1",
		Page:           1,
		PerPage:        100,
	}).Return([]domain.Order{}, 0, nil)

	_, _, err := svc.ListOrders(ctx, repository.OrderFilter{OrganizationID: "org-1", PerPage: 500})

	require.NoError(t, err)
	deps.orders.AssertExpectations(t)
}

func TestListOrders_InvalidStatus(t *testing.T) {
	svc, _ := newTestService()

	_, _, err := svc.ListOrders(context.Background(), repository.OrderFilter{
		OrganizationID: "org-1",
		Status:         strPtr("bogus"),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- Lifecycle Tests ---

func TestConfirmOrder_Success(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.orders.On("GetByID", ctx, "order-1").Return(&domain.Order{ID: "order-1", Status: domain.StatusPlaced}, nil)
	deps.store.On("TransitionStatus", ctx, "order-1", domain.StatusConfirmed).
		Return(&domain.Order{ID: "order-1", Status: domain.StatusConfirmed}, nil)

	order, err := svc.ConfirmOrder(ctx, "order-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, order.Status)
	deps.store.AssertExpectations(t)
}

func TestConfirmOrder_InvalidTransition(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.orders.On("GetByID", ctx, "order-1").Return(&domain.Order{ID: "order-1", Status: domain.StatusShipped}, nil)
	deps.store.On("TransitionStatus", ctx, "order-1", domain.StatusConfirmed).
		Return(nil, &apperrors.InvalidTransitionError{From: "shipped", To: "confirmed"})

	_, err := svc.ConfirmOrder(ctx, "order-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestShipOrder_Success(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.orders.On("GetByID", ctx, "order-1").Return(&domain.Order{ID: "order-1", Status: domain.StatusConfirmed}, nil)
	deps.store.On("ShipOrder", ctx, "order-1", "TRK-123", mock.AnythingOfType("domain.Actor")).
		Return(&domain.Order{
			ID:             "order-1",
			Status:         domain.StatusShipped,
			PaymentStatus:  domain.PaymentPaid,
			TrackingNumber: "TRK-123",
		}, nil)

	order, err := svc.ShipOrder(ctx, "order-1", "TRK-123")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, order.Status)
	assert.Equal(t, domain.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, "TRK-123", order.TrackingNumber)
}

func TestShipOrder_AlreadyShipped(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.orders.On("GetByID", ctx, "order-1").Return(&domain.Order{ID: "order-1", Status: domain.StatusShipped}, nil)
	deps.store.On("ShipOrder", ctx, "order-1", "", mock.Anything).
		Return(nil, &apperrors.InvalidTransitionError{From: "shipped", To: "shipped"})

	_, err := svc.ShipOrder(ctx, "order-1", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestCancelOrder_Success(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.store.On("CancelOrder", ctx, "order-1", "customer request", mock.AnythingOfType("domain.Actor")).
		Return(&domain.Order{ID: "order-1", Status: domain.StatusCancelled}, nil)

	order, err := svc.CancelOrder(ctx, "order-1", "customer request")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, order.Status)
}

func TestCancelOrder_AfterShip(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.store.On("CancelOrder", ctx, "order-1", "", mock.Anything).
		Return(nil, &apperrors.InvalidTransitionError{From: "shipped", To: "cancelled"})

	_, err := svc.CancelOrder(ctx, "order-1", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestRefundOrder_Success(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.store.On("RefundOrder", ctx, "order-1", true, mock.AnythingOfType("domain.Actor")).
		Return(&domain.Order{
			ID:            "order-1",
			Status:        domain.StatusRefunded,
			PaymentStatus: domain.PaymentRefunded,
		}, nil)

	order, err := svc.RefundOrder(ctx, "order-1", true)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, order.Status)
	assert.Equal(t, domain.PaymentRefunded, order.PaymentStatus)
}

// --- Inventory Tests ---

func TestGetAvailability(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.stock.On("GetStock", ctx, "var-1").Return(&domain.VariantStock{
		VariantID:      "var-1",
		OrganizationID: "org-1",
		Stock:          10,
	}, nil)
	deps.stock.On("ReservedQuantities", ctx, "org-1", strPtr("var-1")).
		Return(map[string]int{"var-1": 3}, nil)

	a, err := svc.GetAvailability(ctx, "var-1")

	require.NoError(t, err)
	assert.Equal(t, 10, a.Stock)
	assert.Equal(t, 3, a.Reserved)
	assert.Equal(t, 7, a.Available)
}

func TestGetAvailability_VariantNotFound(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.stock.On("GetStock", ctx, "var-404").Return(nil, apperrors.NotFound("variant", "var-404"))

	_, err := svc.GetAvailability(ctx, "var-404")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAdjustStock_Success(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.store.On("AdjustStock", ctx, "org-1", "var-1", 5, "inbound delivery", mock.AnythingOfType("domain.Actor")).
		Return(&domain.VariantStock{VariantID: "var-1", OrganizationID: "org-1", Stock: 15}, nil)

	stock, err := svc.AdjustStock(ctx, "org-1", "var-1", 5, "inbound delivery")

	require.NoError(t, err)
	assert.Equal(t, 15, stock.Stock)
}

func TestAdjustStock_ZeroDelta(t *testing.T) {
	svc, deps := newTestService()

	_, err := svc.AdjustStock(context.Background(), "org-1", "var-1", 0, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	deps.store.AssertNotCalled(t, "AdjustStock", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdjustStock_WouldGoNegative(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.store.On("AdjustStock", ctx, "org-1", "var-1", -20, "", mock.Anything).
		Return(nil, &apperrors.InsufficientStockError{VariantID: "var-1", Requested: 20, Available: 10})

	_, err := svc.AdjustStock(ctx, "org-1", "var-1", -20, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
}

// --- Ledger Audit Tests ---

func TestAuditVariantLedger_Consistent(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	entries := []domain.MovementEntry{
		{Type: domain.MovementOut, Quantity: -3, PreviousStock: 10, NewStock: 10, Reason: domain.ReasonOrderPlaced},
	}
	deps.ledger.On("ListByVariant", ctx, "org-1", "var-1").Return(entries, nil)
	deps.stock.On("ReservedQuantities", ctx, "org-1", strPtr("var-1")).
		Return(map[string]int{"var-1": 3}, nil)

	err := svc.AuditVariantLedger(ctx, "org-1", "var-1")

	assert.NoError(t, err)
}

func TestAuditVariantLedger_ReservationMismatch(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	entries := []domain.MovementEntry{
		{Type: domain.MovementOut, Quantity: -3, PreviousStock: 10, NewStock: 10, Reason: domain.ReasonOrderPlaced},
	}
	deps.ledger.On("ListByVariant", ctx, "org-1", "var-1").Return(entries, nil)
	deps.stock.On("ReservedQuantities", ctx, "org-1", strPtr("var-1")).
		Return(map[string]int{"var-1": 5}, nil)

	err := svc.AuditVariantLedger(ctx, "org-1", "var-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestAuditVariantLedger_BrokenChain(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	entries := []domain.MovementEntry{
		{Type: domain.MovementOut, Quantity: -3, PreviousStock: 10, NewStock: 7},
		{Type: domain.MovementOut, Quantity: -2, PreviousStock: 10, NewStock: 8},
	}
	deps.ledger.On("ListByVariant", ctx, "org-1", "var-1").Return(entries, nil)

	err := svc.AuditVariantLedger(ctx, "org-1", "var-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

// --- Quote Tests ---

func TestQuotePricing(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.settings.On("PricingConfig", ctx, "org-1").Return(testPricing(), nil)

	p, err := svc.QuotePricing(ctx, "org-1", []CreateOrderLineInput{
		{UnitPrice: 1000, Quantity: 2},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2000), p.Subtotal)
	assert.Equal(t, int64(500), p.ShippingCost)
	assert.Equal(t, int64(165), p.Tax)
	assert.Equal(t, int64(2665), p.Total)
}

func TestQuotePricing_NoLines(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.QuotePricing(context.Background(), "org-1", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
