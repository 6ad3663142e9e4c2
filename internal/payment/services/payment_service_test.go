package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
)

type MockGateway struct{ mock.Mock }

func (m *MockGateway) CreateCharge(ctx context.Context, charge ChargeRequest) (*models.GatewayCharge, error) {
	args := m.Called(ctx, charge)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GatewayCharge), args.Error(1)
}

type MockPaymentStore struct{ mock.Mock }

func (m *MockPaymentStore) SavePayment(ctx context.Context, p *models.Payment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockPaymentStore) UpdateStatus(ctx context.Context, gatewayID string, status models.PaymentStatus, paidAt *time.Time) (*models.Payment, error) {
	args := m.Called(ctx, gatewayID, status, paidAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentStore) ListByOrder(ctx context.Context, orderID string) ([]*models.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payment), args.Error(1)
}

type MockOrders struct{ mock.Mock }

func (m *MockOrders) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

type MockMinter struct{ mock.Mock }

func (m *MockMinter) MintForOrder(ctx context.Context, orderID string) ([]*models.Ticket, bool, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]*models.Ticket), args.Bool(1), args.Error(2)
}

type MockPaid struct{ mock.Mock }

func (m *MockPaid) OrderPaid(ctx context.Context, o *models.Order) { m.Called(ctx, o) }

type fixture struct {
	svc     *PaymentService
	gateway *MockGateway
	store   *MockPaymentStore
	orders  *MockOrders
	minter  *MockMinter
	events  *MockPaid
}

func newFixture() *fixture {
	f := &fixture{
		gateway: new(MockGateway),
		store:   new(MockPaymentStore),
		orders:  new(MockOrders),
		minter:  new(MockMinter),
		events:  new(MockPaid),
	}
	f.svc = NewPaymentService(f.orders, f.store, f.gateway, f.minter, f.events, logger.Discard())
	return f
}

func reservedOrder() *models.Order {
	return &models.Order{ID: "ord-1", BuyerID: "b-1", Status: models.OrderStatusReserved, Total: decimal.NewFromInt(90)}
}

func TestStartPayment_Pix(t *testing.T) {
	f := newFixture()
	f.orders.On("GetOrder", mock.Anything, "ord-1").Return(reservedOrder(), nil)
	f.gateway.On("CreateCharge", mock.Anything, mock.MatchedBy(func(c ChargeRequest) bool {
		return c.BillingType == models.BillingPix && c.Value == 90 && c.Customer == "cus_1" && c.DueDate != ""
	})).Return(&models.GatewayCharge{ID: "pay_1", Status: "PENDING", InvoiceURL: "https://i/pay_1"}, nil)
	f.store.On("SavePayment", mock.Anything, mock.Anything).Return(nil)

	p, err := f.svc.StartPayment(context.Background(), "ord-1", "", models.PaymentRequest{Method: models.BillingPix, CustomerID: "cus_1"})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", p.GatewayPaymentID)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(90)))
	f.minter.AssertNotCalled(t, "MintForOrder", mock.Anything, mock.Anything)
}

func TestStartPayment_CapturedCardMintsImmediately(t *testing.T) {
	f := newFixture()
	f.orders.On("GetOrder", mock.Anything, "ord-1").Return(reservedOrder(), nil)
	f.gateway.On("CreateCharge", mock.Anything, mock.Anything).Return(&models.GatewayCharge{ID: "pay_2", Status: "CONFIRMED"}, nil)
	f.store.On("SavePayment", mock.Anything, mock.Anything).Return(nil)
	f.store.On("UpdateStatus", mock.Anything, "pay_2", models.PaymentStatusPaid, mock.Anything).
		Return(&models.Payment{OrderID: "ord-1", GatewayPaymentID: "pay_2", Status: models.PaymentStatusPaid}, nil)
	f.minter.On("MintForOrder", mock.Anything, "ord-1").Return([]*models.Ticket{{ID: "t1"}}, true, nil)
	f.events.On("OrderPaid", mock.Anything, mock.Anything).Return()

	p, err := f.svc.StartPayment(context.Background(), "ord-1", "10.0.0.1", models.PaymentRequest{
		Method: models.BillingCreditCard, CustomerID: "cus_1", Card: testCard(), Holder: testHolder(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)
	assert.NotNil(t, p.PaidAt)
	f.minter.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestStartPayment_Rejections(t *testing.T) {
	t.Run("order not reserved", func(t *testing.T) {
		f := newFixture()
		o := reservedOrder()
		o.Status = models.OrderStatusDraft
		f.orders.On("GetOrder", mock.Anything, "ord-1").Return(o, nil)

		_, err := f.svc.StartPayment(context.Background(), "ord-1", "", models.PaymentRequest{Method: models.BillingPix, CustomerID: "cus_1"})
		var conflict *apperr.ConflictError
		assert.True(t, errors.As(err, &conflict))
		f.gateway.AssertNotCalled(t, "CreateCharge", mock.Anything, mock.Anything)
	})

	t.Run("missing customer", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.StartPayment(context.Background(), "ord-1", "", models.PaymentRequest{Method: models.BillingPix})
		var ve *apperr.ValidationError
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("gateway down", func(t *testing.T) {
		f := newFixture()
		f.orders.On("GetOrder", mock.Anything, "ord-1").Return(reservedOrder(), nil)
		f.gateway.On("CreateCharge", mock.Anything, mock.Anything).Return(nil, apperr.Unavailable("payment gateway", errors.New("timeout")))

		_, err := f.svc.StartPayment(context.Background(), "ord-1", "", models.PaymentRequest{Method: models.BillingBoleto, CustomerID: "cus_1"})
		var ue *apperr.UpstreamUnavailableError
		assert.True(t, errors.As(err, &ue))
		f.store.AssertNotCalled(t, "SavePayment", mock.Anything, mock.Anything)
	})
}

func TestApplyStatus_PaidMintsAndPublishesOnce(t *testing.T) {
	f := newFixture()
	confirmed := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	paid := &models.Payment{OrderID: "ord-1", GatewayPaymentID: "pay_1", Status: models.PaymentStatusPaid}
	f.store.On("UpdateStatus", mock.Anything, "pay_1", models.PaymentStatusPaid, mock.MatchedBy(func(at *time.Time) bool {
		return at != nil && at.Equal(confirmed)
	})).Return(paid, nil)
	f.minter.On("MintForOrder", mock.Anything, "ord-1").Return([]*models.Ticket{{ID: "t1"}}, true, nil).Once()
	f.minter.On("MintForOrder", mock.Anything, "ord-1").Return([]*models.Ticket{{ID: "t1"}}, false, nil).Once()
	f.orders.On("GetOrder", mock.Anything, "ord-1").Return(reservedOrder(), nil)
	f.events.On("OrderPaid", mock.Anything, mock.Anything).Return().Once()

	evt := models.PaymentStatusEvent{GatewayPaymentID: "pay_1", Status: models.PaymentStatusPaid, ConfirmedAt: &confirmed}
	require.NoError(t, f.svc.ApplyStatus(context.Background(), evt))
	require.NoError(t, f.svc.ApplyStatus(context.Background(), evt))

	f.events.AssertNumberOfCalls(t, "OrderPaid", 1)
}

func TestApplyStatus_NonPaid(t *testing.T) {
	f := newFixture()
	f.store.On("UpdateStatus", mock.Anything, "pay_1", models.PaymentStatusOverdue, (*time.Time)(nil)).
		Return(&models.Payment{OrderID: "ord-1", Status: models.PaymentStatusOverdue}, nil)

	require.NoError(t, f.svc.ApplyStatus(context.Background(), models.PaymentStatusEvent{GatewayPaymentID: "pay_1", Status: models.PaymentStatusOverdue}))
	f.minter.AssertNotCalled(t, "MintForOrder", mock.Anything, mock.Anything)
}

func TestApplyStatus_UnknownPaymentIgnored(t *testing.T) {
	f := newFixture()
	f.store.On("UpdateStatus", mock.Anything, "ghost", models.PaymentStatusPaid, mock.Anything).Return(nil, apperr.NotFound("payment", "ghost"))

	assert.NoError(t, f.svc.ApplyStatus(context.Background(), models.PaymentStatusEvent{GatewayPaymentID: "ghost", Status: models.PaymentStatusPaid}))
}

func TestApplyStatus_StoreDownIsRetryable(t *testing.T) {
	f := newFixture()
	f.store.On("UpdateStatus", mock.Anything, "pay_1", models.PaymentStatusPaid, mock.Anything).
		Return(&models.Payment{OrderID: "ord-1", Status: models.PaymentStatusPaid}, nil)
	f.minter.On("MintForOrder", mock.Anything, "ord-1").Return(nil, false, apperr.Unavailable("database", errors.New("down")))

	err := f.svc.ApplyStatus(context.Background(), models.PaymentStatusEvent{GatewayPaymentID: "pay_1", Status: models.PaymentStatusPaid})
	var ue *apperr.UpstreamUnavailableError
	assert.True(t, errors.As(err, &ue))
}

func TestListPayments(t *testing.T) {
	f := newFixture()
	f.orders.On("GetOrder", mock.Anything, "ord-1").Return(reservedOrder(), nil)
	f.orders.On("GetOrder", mock.Anything, "ghost").Return(nil, apperr.NotFound("order", "ghost"))
	f.store.On("ListByOrder", mock.Anything, "ord-1").Return([]*models.Payment{{ID: "p1"}}, nil)

	list, err := f.svc.ListPayments(context.Background(), "ord-1")
	assert.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListPayments(context.Background(), "ghost")
	assert.True(t, apperr.IsNotFound(err))
	f.store.AssertNotCalled(t, "ListByOrder", mock.Anything, "ghost")
}
