package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
	"ms-club-ticketing/internal/utils"
)

type Gateway interface {
	CreateCharge(ctx context.Context, charge ChargeRequest) (*models.GatewayCharge, error)
}

type PaymentStore interface {
	SavePayment(ctx context.Context, p *models.Payment) error
	UpdateStatus(ctx context.Context, gatewayID string, status models.PaymentStatus, paidAt *time.Time) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]*models.Payment, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
}

// TicketMinter marks an order paid and mints its tickets, reporting whether
// this call did the minting.
type TicketMinter interface {
	MintForOrder(ctx context.Context, orderID string) ([]*models.Ticket, bool, error)
}

type PaidPublisher interface {
	OrderPaid(ctx context.Context, o *models.Order)
}

type PaymentService struct {
	orders  OrderReader
	store   PaymentStore
	gateway Gateway
	minter  TicketMinter
	events  PaidPublisher
	log     *logger.Logger
	now     func() time.Time
}

func NewPaymentService(orders OrderReader, store PaymentStore, gateway Gateway, minter TicketMinter, events PaidPublisher, log *logger.Logger) *PaymentService {
	return &PaymentService{
		orders:  orders,
		store:   store,
		gateway: gateway,
		minter:  minter,
		events:  events,
		log:     log,
		now:     time.Now,
	}
}

// StartPayment opens a gateway charge for a RESERVED order.
func (s *PaymentService) StartPayment(ctx context.Context, orderID, remoteIP string, req models.PaymentRequest) (*models.Payment, error) {
	method, err := MethodFromRequest(req)
	if err != nil {
		return nil, err
	}
	if req.CustomerID == "" {
		return nil, apperr.Validation("customerId", "is required")
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusReserved {
		return nil, apperr.Conflict("order %s is %s, only RESERVED orders can be paid", orderID, order.Status)
	}
	if !order.Total.IsPositive() {
		return nil, apperr.Validation("total", "order total must be positive")
	}

	now := s.now()
	charge, err := s.gateway.CreateCharge(ctx, BuildCharge(method, Charge{
		CustomerID: req.CustomerID,
		OrderID:    order.ID,
		Amount:     order.Total,
		RemoteIP:   remoteIP,
	}, now))
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:               utils.GenerateID(),
		OrderID:          order.ID,
		GatewayPaymentID: charge.ID,
		Method:           method.BillingType(),
		Status:           MapGatewayStatus(charge.Status),
		Amount:           order.Total,
		InvoiceURL:       charge.InvoiceURL,
		CreatedAt:        now.UTC(),
	}
	if payment.InvoiceURL == "" {
		payment.InvoiceURL = charge.BankSlipURL
	}
	if payment.Status == models.PaymentStatusPaid {
		at := now.UTC()
		payment.PaidAt = &at
	}
	if err := s.store.SavePayment(ctx, payment); err != nil {
		s.log.Error("PAYMENT", fmt.Sprintf("charge %s for order %s not recorded: %v", charge.ID, order.ID, err))
		return nil, err
	}
	s.log.LogOrder("PAYMENT_STARTED", order.ID, fmt.Sprintf("charge %s via %s", charge.ID, payment.Method))

	// cards can be captured on the spot
	if payment.Status == models.PaymentStatusPaid {
		if err := s.ApplyStatus(ctx, models.PaymentStatusEvent{GatewayPaymentID: charge.ID, Status: models.PaymentStatusPaid, ConfirmedAt: payment.PaidAt}); err != nil {
			return nil, err
		}
	}
	return payment, nil
}

// ApplyStatus records a gateway status change. A PAID status mints the
// order's tickets; redelivery is harmless. An unknown payment id is logged
// and ignored so the gateway stops retrying.
func (s *PaymentService) ApplyStatus(ctx context.Context, evt models.PaymentStatusEvent) error {
	var paidAt *time.Time
	if evt.Status == models.PaymentStatusPaid {
		at := s.now().UTC()
		if evt.ConfirmedAt != nil {
			at = evt.ConfirmedAt.UTC()
		}
		paidAt = &at
	}

	payment, err := s.store.UpdateStatus(ctx, evt.GatewayPaymentID, evt.Status, paidAt)
	if apperr.IsNotFound(err) {
		s.log.Warn("PAYMENT", "status for unknown payment "+evt.GatewayPaymentID)
		return nil
	}
	if err != nil {
		return err
	}
	if payment.Status != models.PaymentStatusPaid {
		s.log.LogOrder("PAYMENT_"+string(payment.Status), payment.OrderID, "charge "+payment.GatewayPaymentID)
		return nil
	}

	_, minted, err := s.minter.MintForOrder(ctx, payment.OrderID)
	var conflict *apperr.ConflictError
	if errors.As(err, &conflict) {
		// money arrived for an order that can no longer be fulfilled
		s.log.Error("PAYMENT", fmt.Sprintf("charge %s paid but order %s not payable: %v", payment.GatewayPaymentID, payment.OrderID, err))
		return nil
	}
	if err != nil {
		return err
	}
	if !minted {
		return nil
	}

	order, err := s.orders.GetOrder(ctx, payment.OrderID)
	if err != nil {
		s.log.Warn("PAYMENT", fmt.Sprintf("order %s paid but not reloaded for publishing: %v", payment.OrderID, err))
		return nil
	}
	s.events.OrderPaid(ctx, order)
	return nil
}

// ListPayments returns every charge opened for an order, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, orderID string) ([]*models.Payment, error) {
	if _, err := s.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.ListByOrder(ctx, orderID)
}
