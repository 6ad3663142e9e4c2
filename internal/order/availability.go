package order

import (
	"context"

	"ms-club-ticketing/internal/models"
)

type CapacityStore interface {
	EffectiveCapacity(ctx context.Context, eventID, sectorID string) (models.SectorCapacity, error)
	ConfirmedSold(ctx context.Context, eventID, sectorID string) (int, error)
}

type HoldCounter interface {
	Count(ctx context.Context, eventID, sectorID string) (int, error)
}

// Oracle computes remaining seats from capacity, paid sales and live holds.
// A reading is a snapshot; callers that act on it hold the sector lock.
type Oracle struct {
	store CapacityStore
	holds HoldCounter
}

func NewOracle(store CapacityStore, holds HoldCounter) *Oracle {
	return &Oracle{store: store, holds: holds}
}

func (o *Oracle) CheckAvailable(ctx context.Context, eventID, sectorID string, quantity int) (models.Availability, error) {
	capacity, err := o.store.EffectiveCapacity(ctx, eventID, sectorID)
	if err != nil {
		return models.Availability{}, err
	}
	sold, err := o.store.ConfirmedSold(ctx, eventID, sectorID)
	if err != nil {
		return models.Availability{}, err
	}
	held, err := o.holds.Count(ctx, eventID, sectorID)
	if err != nil {
		return models.Availability{}, err
	}
	return evaluate(capacity, sold, held, quantity), nil
}

// evaluate never reports negative remaining seats; a closed sector has none.
func evaluate(c models.SectorCapacity, sold, held, quantity int) models.Availability {
	remaining := c.Capacity - sold - held
	if remaining < 0 || !c.Open {
		remaining = 0
	}
	return models.Availability{
		EventID:   c.EventID,
		SectorID:  c.SectorID,
		Capacity:  c.Capacity,
		Sold:      sold,
		Held:      held,
		Remaining: remaining,
		Open:      c.Open,
		OK:        c.Open && remaining >= quantity,
	}
}
