package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
	rediswrap "ms-club-ticketing/internal/order/redis"
	"ms-club-ticketing/internal/utils"
)

type Store interface {
	CapacityStore
	ListEventSectors(ctx context.Context, eventID string) ([]models.SectorCapacity, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, to models.OrderStatus, from ...models.OrderStatus) (bool, error)
	DeleteOrder(ctx context.Context, id string) error
	AddLines(ctx context.Context, orderID string, lines []*models.OrderLine) (*models.Order, error)
	UpdateLine(ctx context.Context, orderID, lineID string, patch models.OrderLinePatch) (*models.Order, error)
	RemoveLine(ctx context.Context, orderID, lineID string) (*models.Order, error)
}

type Ledger interface {
	HoldCounter
	Hold(ctx context.Context, eventID, sectorID string, quantity int) (int, error)
	Release(ctx context.Context, eventID, sectorID string, quantity int) (int, error)
	Peek(ctx context.Context, eventID string) (map[string]int, error)
	TTL() time.Duration
}

type Locker interface {
	Acquire(ctx context.Context, pairs ...rediswrap.Pair) (func(), error)
}

type EventPublisher interface {
	OrderCreated(ctx context.Context, o *models.Order)
	OrderReserved(ctx context.Context, o *models.Order)
	HoldsExpired(ctx context.Context, eventID, sectorID string)
}

type HoldNotifier interface {
	Emit(snap models.HoldSnapshot)
}

type OrderService struct {
	store    Store
	ledger   Ledger
	lock     Locker
	oracle   *Oracle
	events   EventPublisher
	notifier HoldNotifier
	log      *logger.Logger
	now      func() time.Time
}

func NewOrderService(store Store, ledger Ledger, lock Locker, events EventPublisher, notifier HoldNotifier, log *logger.Logger) *OrderService {
	return &OrderService{
		store:    store,
		ledger:   ledger,
		lock:     lock,
		oracle:   NewOracle(store, ledger),
		events:   events,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// ---------------- HOLDS ----------------

// Hold claims seats for a buyer still composing a cart. The capacity check
// and the increment run under the sector lock.
func (s *OrderService) Hold(ctx context.Context, req models.HoldRequest) (models.HoldResponse, error) {
	if err := validateHold(req); err != nil {
		return models.HoldResponse{}, err
	}

	unlock, err := s.lock.Acquire(ctx, rediswrap.Pair{EventID: req.EventID, SectorID: req.SectorID})
	if err != nil {
		return models.HoldResponse{}, err
	}
	defer unlock()

	avail, err := s.oracle.CheckAvailable(ctx, req.EventID, req.SectorID, req.Quantity)
	if err != nil {
		return models.HoldResponse{}, err
	}
	if !avail.OK {
		s.log.LogHold("REJECTED", req.EventID, req.SectorID, fmt.Sprintf("requested=%d remaining=%d", req.Quantity, avail.Remaining))
		return models.HoldResponse{}, shortage(avail, req.Quantity)
	}

	n, err := s.ledger.Hold(ctx, req.EventID, req.SectorID, req.Quantity)
	if err != nil {
		return models.HoldResponse{}, err
	}
	s.broadcast(ctx, req.EventID)

	return models.HoldResponse{Reserved: n, TTLSeconds: int(s.ledger.TTL().Seconds())}, nil
}

// Release gives seats back before the hold window elapses.
func (s *OrderService) Release(ctx context.Context, req models.HoldRequest) (models.ReleaseResponse, error) {
	if err := validateHold(req); err != nil {
		return models.ReleaseResponse{}, err
	}
	n, err := s.ledger.Release(ctx, req.EventID, req.SectorID, req.Quantity)
	if err != nil {
		return models.ReleaseResponse{}, err
	}
	s.broadcast(ctx, req.EventID)
	return models.ReleaseResponse{Reserved: n}, nil
}

func (s *OrderService) Peek(ctx context.Context, eventID string) (models.HoldSnapshot, error) {
	if err := validateID("eventId", eventID); err != nil {
		return models.HoldSnapshot{}, err
	}
	sectors, err := s.ledger.Peek(ctx, eventID)
	if err != nil {
		return models.HoldSnapshot{}, err
	}
	return models.HoldSnapshot{EventID: eventID, Sectors: sectors, TakenAt: s.now().UTC()}, nil
}

func (s *OrderService) CheckAvailable(ctx context.Context, eventID, sectorID string, quantity int) (models.Availability, error) {
	return s.oracle.CheckAvailable(ctx, eventID, sectorID, quantity)
}

// HandleHoldExpired is called when Redis drops a hold counter on TTL.
func (s *OrderService) HandleHoldExpired(ctx context.Context, eventID, sectorID string) {
	s.events.HoldsExpired(ctx, eventID, sectorID)
	s.broadcast(ctx, eventID)
}

func (s *OrderService) broadcast(ctx context.Context, eventID string) {
	if s.notifier == nil {
		return
	}
	snap, err := s.Peek(ctx, eventID)
	if err != nil {
		s.log.Warn("HOLD", fmt.Sprintf("snapshot of event %s not broadcast: %v", eventID, err))
		return
	}
	s.notifier.Emit(snap)
}

// Occupancy reports every bound sector of a game.
func (s *OrderService) Occupancy(ctx context.Context, eventID string) (models.Occupancy, error) {
	sectors, err := s.store.ListEventSectors(ctx, eventID)
	if err != nil {
		return models.Occupancy{}, err
	}
	held, err := s.ledger.Peek(ctx, eventID)
	if err != nil {
		return models.Occupancy{}, err
	}

	out := models.Occupancy{EventID: eventID, Sectors: make([]models.Availability, 0, len(sectors))}
	for _, c := range sectors {
		sold, err := s.store.ConfirmedSold(ctx, eventID, c.SectorID)
		if err != nil {
			return models.Occupancy{}, err
		}
		out.Sectors = append(out.Sectors, evaluate(c, sold, held[c.SectorID], 0))
	}
	return out, nil
}

// ---------------- ORDERS ----------------

// CreateOrder checks every referenced pair and, only if all have room,
// persists the order with one line per seat.
func (s *OrderService) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	if req.BuyerID == "" {
		return nil, apperr.Validation("buyerId", "is required")
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	d := demand(req.Items)
	unlock, err := s.lock.Acquire(ctx, pairsOf(d)...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.checkDemand(ctx, d, false); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:        utils.GenerateID(),
		BuyerID:   req.BuyerID,
		Status:    models.OrderStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: req.ExpiresAt,
	}
	order.Lines = buildLines(order.ID, req.Items, 0, now)
	order.Total = models.SumLines(order.Lines)

	if err := s.store.CreateOrder(ctx, order); err != nil {
		s.log.Error("ORDER", fmt.Sprintf("persist order for buyer %s failed: %v", req.BuyerID, err))
		return nil, err
	}
	s.log.LogOrder("CREATE", order.ID, fmt.Sprintf("buyer=%s seats=%d total=%s", order.BuyerID, len(order.Lines), order.Total.StringFixed(2)))
	s.events.OrderCreated(ctx, order)
	return order, nil
}

// checkDemand runs the oracle for every pair. With all set it reports every
// short pair joined together; otherwise it stops at the first.
func (s *OrderService) checkDemand(ctx context.Context, d map[rediswrap.Pair]int, all bool) error {
	var short []error
	for _, p := range pairsOf(d) {
		avail, err := s.oracle.CheckAvailable(ctx, p.EventID, p.SectorID, d[p])
		if err != nil {
			return err
		}
		if avail.OK {
			continue
		}
		s.log.LogHold("SHORT", p.EventID, p.SectorID, fmt.Sprintf("requested=%d remaining=%d", d[p], avail.Remaining))
		short = append(short, shortage(avail, d[p]))
		if !all {
			break
		}
	}
	return errors.Join(short...)
}

func shortage(a models.Availability, requested int) error {
	return &apperr.CapacityExceededError{
		EventID:   a.EventID,
		SectorID:  a.SectorID,
		Requested: requested,
		Remaining: a.Remaining,
	}
}

// buildLines fans each item out into one line per seat. Holders are
// assigned by index; the rest stay unnamed.
func buildLines(orderID string, items []models.OrderItemRequest, start int, now time.Time) []*models.OrderLine {
	var lines []*models.OrderLine
	pos := start
	for _, it := range items {
		for i := 0; i < it.Quantity; i++ {
			line := &models.OrderLine{
				ID:        utils.GenerateID(),
				OrderID:   orderID,
				EventID:   it.EventID,
				SectorID:  it.SectorID,
				Category:  it.Category,
				Price:     it.Price,
				Position:  pos,
				CreatedAt: now,
			}
			if i < len(it.Holders) {
				line.HolderName = utils.StringPtr(it.Holders[i].Name)
				line.HolderTaxID = utils.StringPtr(it.Holders[i].TaxID)
			}
			lines = append(lines, line)
			pos++
		}
	}
	return lines
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *OrderService) DeleteOrder(ctx context.Context, id string) error {
	if err := s.store.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.log.LogOrder("DELETE", id, "order removed")
	return nil
}

// AddItems appends seats to a DRAFT order after the same availability check
// used on creation.
func (s *OrderService) AddItems(ctx context.Context, orderID string, items []models.OrderItemRequest) (*models.Order, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	current, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.OrderStatusDraft {
		return nil, apperr.Conflict("order %s is %s, items can only change while DRAFT", orderID, current.Status)
	}

	d := demand(items)
	unlock, err := s.lock.Acquire(ctx, pairsOf(d)...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.checkDemand(ctx, d, false); err != nil {
		return nil, err
	}

	// positions are reassigned by the store
	updated, err := s.store.AddLines(ctx, orderID, buildLines(orderID, items, 0, s.now().UTC()))
	if err != nil {
		return nil, err
	}
	s.log.LogOrder("ADD_ITEMS", orderID, fmt.Sprintf("seats=%d total=%s", len(updated.Lines), updated.Total.StringFixed(2)))
	return updated, nil
}

func (s *OrderService) UpdateItem(ctx context.Context, orderID, lineID string, patch models.OrderLinePatch) (*models.Order, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	return s.store.UpdateLine(ctx, orderID, lineID, patch)
}

func (s *OrderService) RemoveItem(ctx context.Context, orderID, lineID string) (*models.Order, error) {
	return s.store.RemoveLine(ctx, orderID, lineID)
}

// Confirm re-verifies capacity for every sector of the order and moves it
// to RESERVED. An order already RESERVED is re-verified and stays so.
func (s *OrderService) Confirm(ctx context.Context, orderID, eventID string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case models.OrderStatusDraft, models.OrderStatusReserved:
	default:
		return nil, apperr.Conflict("order %s is %s and cannot be confirmed", orderID, order.Status)
	}

	if order.Expired(s.now()) {
		if _, err := s.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusExpired, models.OrderStatusDraft, models.OrderStatusReserved); err != nil {
			return nil, err
		}
		s.log.LogOrder("EXPIRE", orderID, "confirmation after expiry")
		return nil, apperr.Conflict("order %s expired", orderID)
	}
	if len(order.Lines) == 0 {
		return nil, apperr.Validation("items", "order has no items")
	}
	if eventID != "" {
		for _, l := range order.Lines {
			if l.EventID != eventID {
				return nil, apperr.Validation("eventId", fmt.Sprintf("order has items for event %s", l.EventID))
			}
		}
	}

	d := lineDemand(order.Lines)
	unlock, err := s.lock.Acquire(ctx, pairsOf(d)...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.checkDemand(ctx, d, true); err != nil {
		return nil, err
	}

	changed, err := s.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusReserved, models.OrderStatusDraft, models.OrderStatusReserved)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperr.Conflict("order %s changed during confirmation", orderID)
	}

	order.Status = models.OrderStatusReserved
	s.log.LogOrder("CONFIRM", orderID, fmt.Sprintf("seats=%d reserved", len(order.Lines)))
	s.events.OrderReserved(ctx, order)
	return order, nil
}
