package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketStatusValid    TicketStatus = "VALID"
	TicketStatusUsed     TicketStatus = "USED"
	TicketStatusPending  TicketStatus = "PENDING"
	TicketStatusCanceled TicketStatus = "CANCELED"
	TicketStatusExpired  TicketStatus = "EXPIRED"
	TicketStatusRefunded TicketStatus = "REFUNDED"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID          string          `bun:"id,pk" json:"id"`
	EventID     string          `bun:"event_id,notnull" json:"eventId"`
	LotID       *string         `bun:"lot_id" json:"lotId,omitempty"`
	OrderLineID *string         `bun:"order_line_id,unique" json:"orderLineId,omitempty"`
	OwnerID     *string         `bun:"owner_id" json:"ownerId,omitempty"`
	Token       string          `bun:"token,unique,notnull" json:"token"`
	Value       decimal.Decimal `bun:"value,type:decimal(12,2),notnull" json:"value"`
	Status      TicketStatus    `bun:"status,notnull" json:"status"`
	UsedAt      *time.Time      `bun:"used_at,nullzero" json:"usedAt,omitempty"`
	CreatedAt   time.Time       `bun:"created_at,notnull" json:"createdAt"`

	Game *Game `bun:"rel:belongs-to,join:event_id=id" json:"game,omitempty"`
}

// Checkin is the immutable audit row of one successful redemption.
type Checkin struct {
	bun.BaseModel `bun:"table:checkins,alias:c"`

	ID       string    `bun:"id,pk" json:"id"`
	TicketID string    `bun:"ticket_id,notnull" json:"ticketId"`
	At       time.Time `bun:"at,notnull" json:"at"`
	Operator *string   `bun:"operator" json:"operator,omitempty"`
	Location *string   `bun:"location" json:"location,omitempty"`
}

type IssueTicketRequest struct {
	EventID string          `json:"eventId"`
	LotID   *string         `json:"lotId,omitempty"`
	OwnerID *string         `json:"ownerId,omitempty"`
	Value   decimal.Decimal `json:"value"`
}

type IssueTicketResponse struct {
	TicketID string `json:"ticketId"`
	Token    string `json:"token"`
	QRPngURL string `json:"qrPngUrl"`
}

// CheckinRequest is what a gate scanner posts. TicketID, Token or QRCode
// identifies the ticket, in that order of preference; QRCode may hold a raw
// token or the JSON payload printed on the ticket.
type CheckinRequest struct {
	TicketID string `json:"ticketId,omitempty"`
	Token    string `json:"token,omitempty"`
	QRCode   string `json:"qrCode,omitempty"`
	Operator string `json:"operator,omitempty"`
	Location string `json:"location,omitempty"`
}

// CheckinStatus is the wire form of a redemption outcome.
type CheckinStatus string

const (
	CheckinValid   CheckinStatus = "VALID"
	CheckinUsed    CheckinStatus = "USED"
	CheckinInvalid CheckinStatus = "INVALID"
)

type CheckinResponse struct {
	Status   CheckinStatus `json:"status"`
	Message  string        `json:"message"`
	TicketID string        `json:"ticketId,omitempty"`
	Event    *EventInfo    `json:"event,omitempty"`
}
