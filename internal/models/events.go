package models

import "time"

// OrderEvent is published to Kafka on every order lifecycle transition.
type OrderEvent struct {
	OrderID    string      `json:"orderId"`
	BuyerID    string      `json:"buyerId"`
	Status     OrderStatus `json:"status"`
	Seats      int         `json:"seats"`
	Total      string      `json:"total"`
	OccurredAt time.Time   `json:"occurredAt"`
}

func NewOrderEvent(o *Order) OrderEvent {
	return OrderEvent{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		Status:     o.Status,
		Seats:      len(o.Lines),
		Total:      o.Total.StringFixed(2),
		OccurredAt: time.Now().UTC(),
	}
}

// TicketRedeemedEvent is published after a successful check-in.
type TicketRedeemedEvent struct {
	TicketID   string    `json:"ticketId"`
	EventID    string    `json:"eventId"`
	Operator   string    `json:"operator,omitempty"`
	Location   string    `json:"location,omitempty"`
	RedeemedAt time.Time `json:"redeemedAt"`
}

// HoldsExpiredEvent is published when a hold counter expires in Redis.
type HoldsExpiredEvent struct {
	EventID   string    `json:"eventId"`
	SectorID  string    `json:"sectorId"`
	ExpiredAt time.Time `json:"expiredAt"`
}
