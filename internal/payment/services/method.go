package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/models"
)

// Method is one concrete way of paying. Each variant carries only the
// fields its billing type needs.
type Method interface {
	BillingType() models.BillingType
}

type Pix struct {
	DueDate string
}

type Boleto struct {
	DueDate string
}

type CreditCard struct {
	Card             models.CardInfo
	Holder           models.CardHolderInfo
	InstallmentCount int
	Capture          *bool
}

type DebitCard struct {
	Card   models.CardInfo
	Holder models.CardHolderInfo
}

func (Pix) BillingType() models.BillingType        { return models.BillingPix }
func (Boleto) BillingType() models.BillingType     { return models.BillingBoleto }
func (CreditCard) BillingType() models.BillingType { return models.BillingCreditCard }
func (DebitCard) BillingType() models.BillingType  { return models.BillingDebitCard }

// MethodFromRequest turns the flat request body into a method variant.
func MethodFromRequest(req models.PaymentRequest) (Method, error) {
	switch req.Method {
	case models.BillingPix:
		return Pix{DueDate: req.DueDate}, nil
	case models.BillingBoleto:
		return Boleto{DueDate: req.DueDate}, nil
	case models.BillingCreditCard, models.BillingDebitCard:
		if req.Card == nil || req.Card.Number == "" || req.Card.CCV == "" {
			return nil, apperr.Validation("card", "card data is required for "+string(req.Method))
		}
		if req.Holder == nil || req.Holder.CpfCnpj == "" {
			return nil, apperr.Validation("holder", "card holder data is required for "+string(req.Method))
		}
		if req.Method == models.BillingDebitCard {
			return DebitCard{Card: *req.Card, Holder: *req.Holder}, nil
		}
		if req.InstallmentCount < 0 || req.InstallmentCount > 12 {
			return nil, apperr.Validation("installmentCount", "must be between 1 and 12")
		}
		return CreditCard{Card: *req.Card, Holder: *req.Holder, InstallmentCount: req.InstallmentCount, Capture: req.Capture}, nil
	case "":
		return nil, apperr.Validation("method", "is required")
	default:
		return nil, apperr.Validation("method", "unsupported payment method "+string(req.Method))
	}
}

// ChargeRequest is the gateway's POST /payments body.
type ChargeRequest struct {
	Customer             string             `json:"customer"`
	Value                float64            `json:"value"`
	BillingType          models.BillingType `json:"billingType"`
	Description          string             `json:"description"`
	ExternalReference    string             `json:"externalReference,omitempty"`
	DueDate              string             `json:"dueDate,omitempty"`
	CreditCard           *cardPayload       `json:"creditCard,omitempty"`
	DebitCard            *cardPayload       `json:"debitCard,omitempty"`
	CreditCardHolderInfo *holderPayload     `json:"creditCardHolderInfo,omitempty"`
	InstallmentCount     int                `json:"installmentCount,omitempty"`
	Capture              *bool              `json:"capture,omitempty"`
	RemoteIP             string             `json:"remoteIp,omitempty"`
}

type cardPayload struct {
	HolderName  string `json:"holderName"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CCV         string `json:"ccv"`
}

type holderPayload struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	CpfCnpj       string `json:"cpfCnpj"`
	PostalCode    string `json:"postalCode"`
	AddressNumber string `json:"addressNumber"`
	Phone         string `json:"phone"`
}

// Charge holds what every method shares.
type Charge struct {
	CustomerID string
	OrderID    string
	Amount     decimal.Decimal
	RemoteIP   string
}

// BuildCharge is the single dispatch from a method variant to a gateway
// request.
func BuildCharge(m Method, c Charge, now time.Time) ChargeRequest {
	req := ChargeRequest{
		Customer:          c.CustomerID,
		Value:             c.Amount.Round(2).InexactFloat64(),
		BillingType:       m.BillingType(),
		Description:       "Pedido " + c.OrderID,
		ExternalReference: c.OrderID,
	}

	switch v := m.(type) {
	case Pix:
		req.DueDate = dueDate(v.DueDate, now, 1)
	case Boleto:
		req.DueDate = dueDate(v.DueDate, now, 3)
	case CreditCard:
		req.CreditCard = card(v.Card)
		req.CreditCardHolderInfo = holder(v.Holder)
		req.Capture = v.Capture
		req.RemoteIP = c.RemoteIP
		if v.InstallmentCount > 1 {
			req.InstallmentCount = v.InstallmentCount
		}
	case DebitCard:
		req.DebitCard = card(v.Card)
		req.CreditCardHolderInfo = holder(v.Holder)
		req.RemoteIP = c.RemoteIP
	}
	return req
}

func dueDate(given string, now time.Time, days int) string {
	if given != "" {
		return given
	}
	return now.AddDate(0, 0, days).Format("2006-01-02")
}

func card(c models.CardInfo) *cardPayload {
	return &cardPayload{
		HolderName:  c.HolderName,
		Number:      digits(c.Number),
		ExpiryMonth: c.ExpiryMonth,
		ExpiryYear:  c.ExpiryYear,
		CCV:         c.CCV,
	}
}

func holder(h models.CardHolderInfo) *holderPayload {
	return &holderPayload{
		Name:          h.Name,
		Email:         h.Email,
		CpfCnpj:       digits(h.CpfCnpj),
		PostalCode:    digits(h.PostalCode),
		AddressNumber: digits(h.AddressNumber),
		Phone:         digits(h.Phone),
	}
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// MapGatewayStatus folds the gateway's payment statuses into ours.
func MapGatewayStatus(s string) models.PaymentStatus {
	switch strings.ToUpper(s) {
	case "CONFIRMED", "RECEIVED", "RECEIVED_IN_CASH":
		return models.PaymentStatusPaid
	case "OVERDUE":
		return models.PaymentStatusOverdue
	case "CANCELED":
		return models.PaymentStatusCanceled
	default:
		return models.PaymentStatusPending
	}
}
