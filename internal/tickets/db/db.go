package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/models"
	"ms-club-ticketing/internal/utils"
)

// MaxTokenAttempts bounds how often a colliding redemption token is redrawn.
const MaxTokenAttempts = 5

type DB struct {
	Bun *bun.DB
}

func storeErr(op string, err error) error {
	return apperr.Unavailable("database", fmt.Errorf("%s: %w", op, err))
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var errTokenTaken = errors.New("token already taken")

// ---------------- LOOKUP ----------------

func (d *DB) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	return d.getBy(ctx, "t.id = ?", id)
}

func (d *DB) GetByToken(ctx context.Context, token string) (*models.Ticket, error) {
	return d.getBy(ctx, "t.token = ?", token)
}

func (d *DB) getBy(ctx context.Context, where, arg string) (*models.Ticket, error) {
	ticket := new(models.Ticket)
	err := d.Bun.NewSelect().
		Model(ticket).
		Relation("Game").
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("ticket", arg)
	}
	if err != nil {
		return nil, storeErr("select ticket", err)
	}
	return ticket, nil
}

func (d *DB) GameExists(ctx context.Context, id string) (bool, error) {
	ok, err := d.Bun.NewSelect().Model((*models.Game)(nil)).Where("g.id = ?", id).Exists(ctx)
	if err != nil {
		return false, storeErr("select game", err)
	}
	return ok, nil
}

// TicketsByOrder returns the tickets minted for an order's lines.
func (d *DB) TicketsByOrder(ctx context.Context, orderID string) ([]*models.Ticket, error) {
	return ticketsByOrder(ctx, d.Bun, orderID)
}

func ticketsByOrder(ctx context.Context, db bun.IDB, orderID string) ([]*models.Ticket, error) {
	var tickets []*models.Ticket
	err := db.NewSelect().
		Model(&tickets).
		Join("JOIN order_lines AS ol ON ol.id = t.order_line_id").
		Where("ol.order_id = ?", orderID).
		OrderExpr("ol.position ASC").
		Scan(ctx)
	if err != nil {
		return nil, storeErr("select order tickets", err)
	}
	return tickets, nil
}

func (d *DB) CountCheckins(ctx context.Context, ticketID string) (int, error) {
	n, err := d.Bun.NewSelect().Model((*models.Checkin)(nil)).Where("ticket_id = ?", ticketID).Count(ctx)
	if err != nil {
		return 0, storeErr("count checkins", err)
	}
	return n, nil
}

// ---------------- ISSUANCE ----------------

// CreateTicket inserts a staff-issued ticket. A token collision surfaces as
// a ConflictError so the caller can draw a new token.
func (d *DB) CreateTicket(ctx context.Context, t *models.Ticket) error {
	if _, err := d.Bun.NewInsert().Model(t).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("token collision for ticket %s", t.ID)
		}
		return storeErr("insert ticket", err)
	}
	return nil
}

// MarkOrderPaid moves a RESERVED order to PAID and mints one VALID ticket per
// line in the same transaction. Redelivery against a PAID order returns the
// tickets already minted and minted=false.
func (d *DB) MarkOrderPaid(ctx context.Context, orderID string, token func() string) (tickets []*models.Ticket, minted bool, err error) {
	for attempt := 0; attempt < MaxTokenAttempts; attempt++ {
		tickets, minted, err = d.markOrderPaid(ctx, orderID, token)
		if !errors.Is(err, errTokenTaken) {
			return tickets, minted, err
		}
	}
	return nil, false, apperr.Conflict("could not mint unique tokens for order %s", orderID)
}

func (d *DB) markOrderPaid(ctx context.Context, orderID string, token func() string) ([]*models.Ticket, bool, error) {
	var (
		tickets []*models.Ticket
		minted  bool
	)
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		res, err := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("status = ?", models.OrderStatusPaid).
			Set("updated_at = ?", now).
			Where("id = ?", orderID).
			Where("status = ?", models.OrderStatusReserved).
			Exec(ctx)
		if err != nil {
			return storeErr("mark order paid", err)
		}

		order := new(models.Order)
		err = tx.NewSelect().
			Model(order).
			Relation("Lines", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Order("ol.position ASC")
			}).
			Where("o.id = ?", orderID).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("order", orderID)
		}
		if err != nil {
			return storeErr("select order", err)
		}

		if n, _ := res.RowsAffected(); n == 0 {
			if order.Status != models.OrderStatusPaid {
				return apperr.Conflict("order %s is %s and cannot be paid", orderID, order.Status)
			}
			tickets, err = ticketsByOrder(ctx, tx, orderID)
			return err
		}

		tickets = make([]*models.Ticket, 0, len(order.Lines))
		for _, line := range order.Lines {
			tickets = append(tickets, &models.Ticket{
				ID:          utils.GenerateID(),
				EventID:     line.EventID,
				OrderLineID: utils.StringPtr(line.ID),
				OwnerID:     utils.StringPtr(order.BuyerID),
				Token:       token(),
				Value:       line.Price,
				Status:      models.TicketStatusValid,
				CreatedAt:   now,
			})
		}
		if len(tickets) > 0 {
			if _, err := tx.NewInsert().Model(&tickets).Exec(ctx); err != nil {
				if isUniqueViolation(err) {
					return errTokenTaken
				}
				return storeErr("insert tickets", err)
			}
		}
		minted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return tickets, minted, nil
}

// ---------------- REDEMPTION ----------------

// Redeem flips a VALID ticket to USED and records the check-in in one
// transaction. It reports false when the ticket was not VALID at the moment
// of the update, in which case nothing is written.
func (d *DB) Redeem(ctx context.Context, ticketID string, checkin *models.Checkin) (bool, error) {
	var redeemed bool
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketStatusUsed).
			Set("used_at = ?", checkin.At).
			Where("id = ?", ticketID).
			Where("status = ?", models.TicketStatusValid).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("mark ticket used: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		checkin.TicketID = ticketID
		if _, err := tx.NewInsert().Model(checkin).Exec(ctx); err != nil {
			return fmt.Errorf("insert checkin: %w", err)
		}
		redeemed = true
		return nil
	})
	if err != nil {
		return false, storeErr("redeem ticket", err)
	}
	return redeemed, nil
}
