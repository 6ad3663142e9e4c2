package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func storeErr(op string, err error) error {
	return apperr.Unavailable("database", fmt.Errorf("%s: %w", op, err))
}

// ---------------- CAPACITY ----------------

// EffectiveCapacity resolves the seat count of a sector for one game. An
// unbound sector inherits its base capacity and is open.
func (d *DB) EffectiveCapacity(ctx context.Context, eventID, sectorID string) (models.SectorCapacity, error) {
	out := models.SectorCapacity{EventID: eventID, SectorID: sectorID}

	var sector models.Sector
	err := d.Bun.NewSelect().Model(&sector).Where("s.id = ?", sectorID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return out, apperr.NotFound("sector", sectorID)
	}
	if err != nil {
		return out, storeErr("select sector", err)
	}

	var binding models.GameSector
	err = d.Bun.NewSelect().
		Model(&binding).
		Where("gs.game_id = ?", eventID).
		Where("gs.sector_id = ?", sectorID).
		Limit(1).
		Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists, err := d.Bun.NewSelect().Model((*models.Game)(nil)).Where("g.id = ?", eventID).Exists(ctx)
		if err != nil {
			return out, storeErr("select game", err)
		}
		if !exists {
			return out, apperr.NotFound("game", eventID)
		}
		out.Capacity = sector.Capacity
		out.Open = true
	case err != nil:
		return out, storeErr("select game_sector", err)
	default:
		out.Capacity = sector.Capacity
		if binding.Capacity != nil {
			out.Capacity = *binding.Capacity
		}
		out.Open = binding.Open
	}
	return out, nil
}

type sectorRow struct {
	SectorID     string `bun:"sector_id"`
	Override     *int   `bun:"override"`
	BaseCapacity int    `bun:"base_capacity"`
	Open         bool   `bun:"open"`
}

// ListEventSectors returns the effective capacity of every sector bound to a
// game.
func (d *DB) ListEventSectors(ctx context.Context, eventID string) ([]models.SectorCapacity, error) {
	exists, err := d.Bun.NewSelect().Model((*models.Game)(nil)).Where("g.id = ?", eventID).Exists(ctx)
	if err != nil {
		return nil, storeErr("select game", err)
	}
	if !exists {
		return nil, apperr.NotFound("game", eventID)
	}

	var rows []sectorRow
	err = d.Bun.NewSelect().
		TableExpr("game_sectors AS gs").
		ColumnExpr("gs.sector_id, gs.capacity AS override, s.capacity AS base_capacity, gs.open").
		Join("JOIN sectors AS s ON s.id = gs.sector_id").
		Where("gs.game_id = ?", eventID).
		OrderExpr("gs.sector_id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, storeErr("list game_sectors", err)
	}

	out := make([]models.SectorCapacity, 0, len(rows))
	for _, r := range rows {
		c := r.BaseCapacity
		if r.Override != nil {
			c = *r.Override
		}
		out = append(out, models.SectorCapacity{EventID: eventID, SectorID: r.SectorID, Capacity: c, Open: r.Open})
	}
	return out, nil
}

// ConfirmedSold counts seats of PAID orders for one pair.
func (d *DB) ConfirmedSold(ctx context.Context, eventID, sectorID string) (int, error) {
	n, err := d.Bun.NewSelect().
		Model((*models.OrderLine)(nil)).
		Join("JOIN orders AS o ON o.id = ol.order_id").
		Where("ol.event_id = ?", eventID).
		Where("ol.sector_id = ?", sectorID).
		Where("o.status = ?", models.OrderStatusPaid).
		Count(ctx)
	if err != nil {
		return 0, storeErr("count sold", err)
	}
	return n, nil
}

// ---------------- ORDERS ----------------

// CreateOrder inserts the order and all of its lines in one transaction.
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if len(order.Lines) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&order.Lines).Exec(ctx); err != nil {
			return fmt.Errorf("insert lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return storeErr("create order", err)
	}
	return nil
}

// GetOrder loads an order with its lines in seat order.
func (d *DB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return getOrder(ctx, d.Bun, id)
}

func getOrder(ctx context.Context, db bun.IDB, id string) (*models.Order, error) {
	order := new(models.Order)
	err := db.NewSelect().
		Model(order).
		Relation("Lines", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("ol.position ASC")
		}).
		Where("o.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("order", id)
	}
	if err != nil {
		return nil, storeErr("select order", err)
	}
	return order, nil
}

// UpdateOrderStatus moves the order to `to` only if it is currently in one
// of `from`. It reports whether a row changed.
func (d *DB) UpdateOrderStatus(ctx context.Context, id string, to models.OrderStatus, from ...models.OrderStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, storeErr("update order status", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteOrder removes an order and its lines unless it is already paid or a
// charge was opened for it.
func (d *DB) DeleteOrder(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		order, err := getOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusPaid {
			return apperr.Conflict("order %s is paid and cannot be deleted", id)
		}
		charged, err := tx.NewSelect().Model((*models.Payment)(nil)).Where("p.order_id = ?", id).Exists(ctx)
		if err != nil {
			return storeErr("select payments", err)
		}
		if charged {
			return apperr.Conflict("order %s has payments and cannot be deleted", id)
		}
		if _, err := tx.NewDelete().Model((*models.OrderLine)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
			return storeErr("delete lines", err)
		}
		if _, err := tx.NewDelete().Model((*models.Order)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
			return storeErr("delete order", err)
		}
		return nil
	})
}

// ---------------- LINES ----------------

// lockDraft bumps updated_at on a DRAFT order and fails otherwise. Inside a
// transaction this also serialises concurrent line edits on the same order.
func lockDraft(ctx context.Context, tx bun.Tx, id string) error {
	res, err := tx.NewUpdate().
		Model((*models.Order)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", models.OrderStatusDraft).
		Exec(ctx)
	if err != nil {
		return storeErr("lock order", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	order, err := getOrder(ctx, tx, id)
	if err != nil {
		return err
	}
	return apperr.Conflict("order %s is %s, items can only change while DRAFT", id, order.Status)
}

func recomputeTotal(ctx context.Context, tx bun.Tx, orderID string) error {
	var sum decimal.NullDecimal
	err := tx.NewSelect().
		Model((*models.OrderLine)(nil)).
		ColumnExpr("SUM(price)").
		Where("order_id = ?", orderID).
		Scan(ctx, &sum)
	if err != nil {
		return storeErr("sum line prices", err)
	}
	total := decimal.Zero
	if sum.Valid {
		total = sum.Decimal
	}
	_, err = tx.NewUpdate().
		Model((*models.Order)(nil)).
		Set("total = ?", total).
		Where("id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return storeErr("update total", err)
	}
	return nil
}

// AddLines appends lines after the current last position.
func (d *DB) AddLines(ctx context.Context, orderID string, lines []*models.OrderLine) (*models.Order, error) {
	var order *models.Order
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockDraft(ctx, tx, orderID); err != nil {
			return err
		}

		var last sql.NullInt64
		err := tx.NewSelect().
			Model((*models.OrderLine)(nil)).
			ColumnExpr("MAX(position)").
			Where("order_id = ?", orderID).
			Scan(ctx, &last)
		if err != nil {
			return storeErr("select max position", err)
		}
		next := 0
		if last.Valid {
			next = int(last.Int64) + 1
		}
		for i, l := range lines {
			l.OrderID = orderID
			l.Position = next + i
		}
		if _, err := tx.NewInsert().Model(&lines).Exec(ctx); err != nil {
			return storeErr("insert lines", err)
		}
		if err := recomputeTotal(ctx, tx, orderID); err != nil {
			return err
		}
		order, err = getOrder(ctx, tx, orderID)
		return err
	})
	return order, err
}

// UpdateLine applies the non-nil fields of patch to one line.
func (d *DB) UpdateLine(ctx context.Context, orderID, lineID string, patch models.OrderLinePatch) (*models.Order, error) {
	var order *models.Order
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockDraft(ctx, tx, orderID); err != nil {
			return err
		}

		q := tx.NewUpdate().
			Model((*models.OrderLine)(nil)).
			Where("id = ?", lineID).
			Where("order_id = ?", orderID)
		if patch.Category != nil {
			q = q.Set("category = ?", *patch.Category)
		}
		if patch.Price != nil {
			q = q.Set("price = ?", *patch.Price)
		}
		if patch.HolderName != nil {
			q = q.Set("holder_name = ?", *patch.HolderName)
		}
		if patch.HolderTaxID != nil {
			q = q.Set("holder_tax_id = ?", *patch.HolderTaxID)
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return storeErr("update line", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("order item", lineID)
		}
		if err := recomputeTotal(ctx, tx, orderID); err != nil {
			return err
		}
		order, err = getOrder(ctx, tx, orderID)
		return err
	})
	return order, err
}

func (d *DB) RemoveLine(ctx context.Context, orderID, lineID string) (*models.Order, error) {
	var order *models.Order
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockDraft(ctx, tx, orderID); err != nil {
			return err
		}
		res, err := tx.NewDelete().
			Model((*models.OrderLine)(nil)).
			Where("id = ?", lineID).
			Where("order_id = ?", orderID).
			Exec(ctx)
		if err != nil {
			return storeErr("delete line", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("order item", lineID)
		}
		if err := recomputeTotal(ctx, tx, orderID); err != nil {
			return err
		}
		order, err = getOrder(ctx, tx, orderID)
		return err
	})
	return order, err
}
