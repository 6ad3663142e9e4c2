package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
)

type Store struct {
	db  *bun.DB
	log *logger.Logger
}

func NewStore(db *bun.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log}
}

func storeErr(op string, err error) error {
	return apperr.Unavailable("database", fmt.Errorf("%s: %w", op, err))
}

func (s *Store) SavePayment(ctx context.Context, p *models.Payment) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if _, err := s.db.NewInsert().Model(p).Exec(ctx); err != nil {
		s.log.LogDatabase("INSERT", "payments", fmt.Sprintf("payment for order %s: %v", p.OrderID, err))
		return storeErr("insert payment", err)
	}
	return nil
}

func (s *Store) GetByGatewayID(ctx context.Context, gatewayID string) (*models.Payment, error) {
	p := new(models.Payment)
	err := s.db.NewSelect().Model(p).Where("p.gateway_payment_id = ?", gatewayID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("payment", gatewayID)
	}
	if err != nil {
		return nil, storeErr("select payment", err)
	}
	return p, nil
}

func (s *Store) ListByOrder(ctx context.Context, orderID string) ([]*models.Payment, error) {
	var out []*models.Payment
	err := s.db.NewSelect().Model(&out).Where("p.order_id = ?", orderID).Order("p.created_at DESC").Scan(ctx)
	if err != nil {
		return nil, storeErr("select payments", err)
	}
	return out, nil
}

// UpdateStatus records a gateway status change. A PAID payment keeps its
// status; late PENDING or OVERDUE notifications do not reopen it.
func (s *Store) UpdateStatus(ctx context.Context, gatewayID string, status models.PaymentStatus, paidAt *time.Time) (*models.Payment, error) {
	q := s.db.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("gateway_payment_id = ?", gatewayID).
		Where("status <> ?", models.PaymentStatusPaid)
	if paidAt != nil {
		q = q.Set("paid_at = ?", paidAt.UTC())
	}
	if _, err := q.Exec(ctx); err != nil {
		return nil, storeErr("update payment status", err)
	}
	return s.GetByGatewayID(ctx, gatewayID)
}
