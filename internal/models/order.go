package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusDraft    OrderStatus = "DRAFT"
	OrderStatusReserved OrderStatus = "RESERVED"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusExpired  OrderStatus = "EXPIRED"
)

type TicketCategory string

const (
	CategoryFull TicketCategory = "FULL"
	CategoryHalf TicketCategory = "HALF"
)

func (c TicketCategory) Valid() bool {
	return c == CategoryFull || c == CategoryHalf
}

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID        string          `bun:"id,pk" json:"id"`
	BuyerID   string          `bun:"buyer_id,notnull" json:"buyerId"`
	Total     decimal.Decimal `bun:"total,type:decimal(12,2),notnull" json:"total"`
	Status    OrderStatus     `bun:"status,notnull" json:"status"`
	CreatedAt time.Time       `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
	ExpiresAt *time.Time      `bun:"expires_at,nullzero" json:"expiresAt,omitempty"`

	Lines []*OrderLine `bun:"rel:has-many,join:id=order_id" json:"items"`
}

// Expired reports whether the order carries an expiry that has passed.
func (o *Order) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}

// OrderLine is one seat. It becomes exactly one ticket once the order is paid.
type OrderLine struct {
	bun.BaseModel `bun:"table:order_lines,alias:ol"`

	ID          string          `bun:"id,pk" json:"id"`
	OrderID     string          `bun:"order_id,notnull" json:"orderId"`
	EventID     string          `bun:"event_id,notnull" json:"eventId"`
	SectorID    string          `bun:"sector_id,notnull" json:"sectorId"`
	Category    TicketCategory  `bun:"category,notnull" json:"category"`
	Price       decimal.Decimal `bun:"price,type:decimal(12,2),notnull" json:"price"`
	HolderName  *string         `bun:"holder_name" json:"holderName,omitempty"`
	HolderTaxID *string         `bun:"holder_tax_id" json:"holderTaxId,omitempty"`
	Position    int             `bun:"position,notnull" json:"position"`
	CreatedAt   time.Time       `bun:"created_at,notnull" json:"createdAt"`
}

// Holder is the named person a seat is issued to.
type Holder struct {
	Name  string `json:"name"`
	TaxID string `json:"taxId"`
}

// OrderItemRequest asks for Quantity seats of one category in one sector.
// Holders are index-aligned with the seats; seats past len(Holders) are
// issued without a holder.
type OrderItemRequest struct {
	EventID  string          `json:"eventId"`
	SectorID string          `json:"sectorId"`
	Category TicketCategory  `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Holders  []Holder        `json:"holders,omitempty"`
}

type CreateOrderRequest struct {
	BuyerID   string             `json:"buyerId"`
	ExpiresAt *time.Time         `json:"expiresAt,omitempty"`
	Items     []OrderItemRequest `json:"items"`
}

// OrderLinePatch carries the editable fields of a line; nil means unchanged.
type OrderLinePatch struct {
	Category    *TicketCategory  `json:"category,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	HolderName  *string          `json:"holderName,omitempty"`
	HolderTaxID *string          `json:"holderTaxId,omitempty"`
}

type CreateOrderResponse struct {
	OrderID string `json:"orderId"`
	Order   *Order `json:"order"`
}

// SumLines is the derived order total.
func SumLines(lines []*OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price)
	}
	return total
}
