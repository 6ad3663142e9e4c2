package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusOverdue  PaymentStatus = "OVERDUE"
	PaymentStatusCanceled PaymentStatus = "CANCELED"
)

type BillingType string

const (
	BillingPix        BillingType = "PIX"
	BillingBoleto     BillingType = "BOLETO"
	BillingCreditCard BillingType = "CREDIT_CARD"
	BillingDebitCard  BillingType = "DEBIT_CARD"
)

// Payment links an order to a charge created at the gateway.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID               string          `bun:"id,pk" json:"id"`
	OrderID          string          `bun:"order_id,notnull" json:"orderId"`
	GatewayPaymentID string          `bun:"gateway_payment_id,unique,notnull" json:"gatewayPaymentId"`
	Method           BillingType     `bun:"method,notnull" json:"method"`
	Status           PaymentStatus   `bun:"status,notnull" json:"status"`
	Amount           decimal.Decimal `bun:"amount,type:decimal(12,2),notnull" json:"amount"`
	InvoiceURL       string          `bun:"invoice_url" json:"invoiceUrl,omitempty"`
	PaidAt           *time.Time      `bun:"paid_at,nullzero" json:"paidAt,omitempty"`
	CreatedAt        time.Time       `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt        time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
}

type CardInfo struct {
	HolderName  string `json:"holderName"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CCV         string `json:"ccv"`
}

type CardHolderInfo struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	CpfCnpj       string `json:"cpfCnpj"`
	PostalCode    string `json:"postalCode"`
	AddressNumber string `json:"addressNumber"`
	Phone         string `json:"phone"`
}

// PaymentRequest is the flat JSON body of POST /pedidos/{id}/pagamento. It is
// turned into one concrete payment method before reaching the gateway.
type PaymentRequest struct {
	Method           BillingType     `json:"method"`
	CustomerID       string          `json:"customerId"`
	DueDate          string          `json:"dueDate,omitempty"`
	Card             *CardInfo       `json:"card,omitempty"`
	Holder           *CardHolderInfo `json:"holder,omitempty"`
	InstallmentCount int             `json:"installmentCount,omitempty"`
	Capture          *bool           `json:"capture,omitempty"`
}

// GatewayCharge is what the gateway returns for a new charge.
type GatewayCharge struct {
	ID          string          `json:"id"`
	BillingType BillingType     `json:"billingType"`
	Status      string          `json:"status"`
	Value       decimal.Decimal `json:"value"`
	DueDate     string          `json:"dueDate,omitempty"`
	InvoiceURL  string          `json:"invoiceUrl,omitempty"`
	BankSlipURL string          `json:"bankSlipUrl,omitempty"`
}

// PaymentStatusEvent is a gateway status change, arriving by webhook or Kafka.
type PaymentStatusEvent struct {
	GatewayPaymentID string        `json:"gatewayPaymentId"`
	Status           PaymentStatus `json:"status"`
	ConfirmedAt      *time.Time    `json:"confirmedAt,omitempty"`
}
