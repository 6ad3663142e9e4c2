package kafka

import (
	"context"
	"fmt"
	"time"

	"ms-club-ticketing/internal/config"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
)

// Events maps domain facts onto topics. Publishing is best effort: a broker
// failure is logged and never fails the request that produced the fact.
type Events struct {
	pub    Publisher
	topics config.TopicConfig
	log    *logger.Logger
}

func NewEvents(pub Publisher, topics config.TopicConfig, log *logger.Logger) *Events {
	return &Events{pub: pub, topics: topics, log: log}
}

func (e *Events) publish(ctx context.Context, topic, key string, value interface{}) {
	if err := e.pub.Publish(ctx, topic, key, value); err != nil {
		e.log.Error("KAFKA", fmt.Sprintf("publish %s key=%s failed: %v", topic, key, err))
	}
}

func (e *Events) OrderCreated(ctx context.Context, o *models.Order) {
	e.publish(ctx, e.topics.OrderCreated, o.ID, models.NewOrderEvent(o))
}

func (e *Events) OrderReserved(ctx context.Context, o *models.Order) {
	e.publish(ctx, e.topics.OrderReserved, o.ID, models.NewOrderEvent(o))
}

func (e *Events) OrderPaid(ctx context.Context, o *models.Order) {
	e.publish(ctx, e.topics.OrderPaid, o.ID, models.NewOrderEvent(o))
}

func (e *Events) TicketRedeemed(ctx context.Context, evt models.TicketRedeemedEvent) {
	e.publish(ctx, e.topics.TicketRedeemed, evt.TicketID, evt)
}

func (e *Events) HoldsExpired(ctx context.Context, eventID, sectorID string) {
	e.publish(ctx, e.topics.HoldsExpired, eventID+":"+sectorID, models.HoldsExpiredEvent{
		EventID:   eventID,
		SectorID:  sectorID,
		ExpiredAt: time.Now().UTC(),
	})
}
