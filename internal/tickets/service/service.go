package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
	qr "ms-club-ticketing/internal/tickets/qr_genrator"
	"ms-club-ticketing/internal/utils"
)

// MaxIssueAttempts bounds token redraws for staff-issued tickets.
const MaxIssueAttempts = 5

type TicketDBLayer interface {
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	GetByToken(ctx context.Context, token string) (*models.Ticket, error)
	GameExists(ctx context.Context, id string) (bool, error)
	CreateTicket(ctx context.Context, t *models.Ticket) error
	Redeem(ctx context.Context, ticketID string, checkin *models.Checkin) (bool, error)
	MarkOrderPaid(ctx context.Context, orderID string, token func() string) ([]*models.Ticket, bool, error)
	TicketsByOrder(ctx context.Context, orderID string) ([]*models.Ticket, error)
}

type EventPublisher interface {
	TicketRedeemed(ctx context.Context, evt models.TicketRedeemedEvent)
}

// LookupKey identifies a ticket either by id or by redemption token.
type LookupKey interface {
	find(ctx context.Context, db TicketDBLayer) (*models.Ticket, error)
	String() string
}

type ByID string

func (k ByID) find(ctx context.Context, db TicketDBLayer) (*models.Ticket, error) {
	return db.GetByID(ctx, string(k))
}

func (k ByID) String() string { return "id:" + string(k) }

type ByToken string

func (k ByToken) find(ctx context.Context, db TicketDBLayer) (*models.Ticket, error) {
	return db.GetByToken(ctx, string(k))
}

// String hides the token itself.
func (k ByToken) String() string {
	if len(k) <= 4 {
		return "token:****"
	}
	return "token:****" + string(k[len(k)-4:])
}

// ParseLookupKey picks the identifier a scanner sent, preferring ticketId,
// then token, then qrCode. qrCode may carry a raw token or the printed JSON
// payload.
func ParseLookupKey(req models.CheckinRequest) (LookupKey, error) {
	if req.TicketID == "" && req.Token == "" && req.QRCode == "" {
		return nil, apperr.Validation("ticketId", "one of ticketId, token or qrCode is required")
	}

	switch {
	case req.TicketID != "":
		return ByID(req.TicketID), nil
	case req.Token != "":
		return ByToken(req.Token), nil
	}
	p, err := qr.ParsePayload(req.QRCode)
	if err != nil {
		return nil, err
	}
	if p.Token != "" {
		return ByToken(p.Token), nil
	}
	return ByID(p.TicketID), nil
}

type TicketService struct {
	DB       TicketDBLayer
	QR       *qr.QRGenerator
	Events   EventPublisher
	Logger   *logger.Logger
	NewToken func() string
	now      func() time.Time
}

func NewTicketService(db TicketDBLayer, events EventPublisher, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:       db,
		QR:       qr.NewQRGenerator(256),
		Events:   events,
		Logger:   log,
		NewToken: utils.GenerateToken,
		now:      time.Now,
	}
}

// ---------------- REDEMPTION ----------------

// Checkin redeems whatever identifier the gate scanned. An unreadable code
// is a negative outcome, not an error.
func (s *TicketService) Checkin(ctx context.Context, req models.CheckinRequest) (models.CheckinResponse, error) {
	key, err := ParseLookupKey(req)
	if errors.Is(err, qr.ErrUnsupportedPayload) {
		s.Logger.LogCheckin(string(models.CheckinInvalid), "", err.Error())
		return models.CheckinResponse{Status: models.CheckinInvalid, Message: "unrecognised code"}, nil
	}
	if err != nil {
		return models.CheckinResponse{}, err
	}
	return s.Redeem(ctx, key, req.Operator, req.Location)
}

// Redeem marks a VALID ticket USED and writes its check-in row atomically.
// Repeated scans of the same ticket answer USED.
func (s *TicketService) Redeem(ctx context.Context, key LookupKey, operator, location string) (models.CheckinResponse, error) {
	ticket, err := key.find(ctx, s.DB)
	if apperr.IsNotFound(err) {
		s.Logger.LogCheckin(string(models.CheckinInvalid), "", "unknown ticket "+key.String())
		return models.CheckinResponse{Status: models.CheckinInvalid, Message: "ticket not found"}, nil
	}
	if err != nil {
		return models.CheckinResponse{}, err
	}

	if ticket.Status != models.TicketStatusValid {
		return s.reject(ticket), nil
	}

	at := s.now().UTC()
	checkin := &models.Checkin{
		ID:       utils.GenerateID(),
		At:       at,
		Operator: utils.StringPtr(operator),
		Location: utils.StringPtr(location),
	}
	ok, err := s.DB.Redeem(ctx, ticket.ID, checkin)
	if err != nil {
		s.Logger.Error("CHECKIN", fmt.Sprintf("redeem ticket %s failed: %v", ticket.ID, err))
		return models.CheckinResponse{}, err
	}
	if !ok {
		// a concurrent scan got there first
		current, err := s.DB.GetByID(ctx, ticket.ID)
		if err != nil {
			return models.CheckinResponse{}, err
		}
		return s.reject(current), nil
	}

	s.Logger.LogCheckin(string(models.CheckinValid), ticket.ID, fmt.Sprintf("operator=%s location=%s", operator, location))
	s.Events.TicketRedeemed(ctx, models.TicketRedeemedEvent{
		TicketID:   ticket.ID,
		EventID:    ticket.EventID,
		Operator:   operator,
		Location:   location,
		RedeemedAt: at,
	})
	return models.CheckinResponse{
		Status:   models.CheckinValid,
		Message:  "check-in confirmed",
		TicketID: ticket.ID,
		Event:    ticket.Game.Info(),
	}, nil
}

func (s *TicketService) reject(t *models.Ticket) models.CheckinResponse {
	res := models.CheckinResponse{Status: models.CheckinInvalid, TicketID: t.ID, Event: t.Game.Info()}
	switch t.Status {
	case models.TicketStatusUsed:
		res.Status = models.CheckinUsed
		res.Message = "ticket already used"
	case models.TicketStatusPending:
		res.Message = "payment not confirmed"
	case models.TicketStatusCanceled:
		res.Message = "ticket canceled"
	case models.TicketStatusExpired:
		res.Message = "ticket expired"
	case models.TicketStatusRefunded:
		res.Message = "ticket refunded"
	default:
		res.Message = "ticket not redeemable"
	}
	s.Logger.LogCheckin(string(res.Status), t.ID, res.Message)
	return res
}

// ---------------- ISSUANCE ----------------

// Issue mints a VALID ticket outside the order flow.
func (s *TicketService) Issue(ctx context.Context, req models.IssueTicketRequest) (*models.Ticket, error) {
	if req.EventID == "" {
		return nil, apperr.Validation("eventId", "is required")
	}
	if req.Value.LessThan(decimal.Zero) {
		return nil, apperr.Validation("value", "must not be negative")
	}
	exists, err := s.DB.GameExists(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("game", req.EventID)
	}

	ticket := &models.Ticket{
		ID:        utils.GenerateID(),
		EventID:   req.EventID,
		LotID:     req.LotID,
		OwnerID:   req.OwnerID,
		Value:     req.Value,
		Status:    models.TicketStatusValid,
		CreatedAt: s.now().UTC(),
	}
	var conflict *apperr.ConflictError
	for attempt := 1; attempt <= MaxIssueAttempts; attempt++ {
		ticket.Token = s.NewToken()
		err := s.DB.CreateTicket(ctx, ticket)
		if err == nil {
			s.Logger.Info("TICKET", fmt.Sprintf("issued ticket %s for event %s", ticket.ID, ticket.EventID))
			return ticket, nil
		}
		if !errors.As(err, &conflict) {
			return nil, err
		}
		s.Logger.Warn("TICKET", fmt.Sprintf("token collision on attempt %d for ticket %s", attempt, ticket.ID))
	}
	return nil, apperr.Conflict("could not issue a unique token after %d attempts", MaxIssueAttempts)
}

// MintForOrder marks a reserved order paid and mints its tickets.
func (s *TicketService) MintForOrder(ctx context.Context, orderID string) ([]*models.Ticket, bool, error) {
	tickets, minted, err := s.DB.MarkOrderPaid(ctx, orderID, s.NewToken)
	if err != nil {
		return nil, false, err
	}
	if minted {
		s.Logger.LogOrder("PAID", orderID, fmt.Sprintf("minted %d tickets", len(tickets)))
	}
	return tickets, minted, nil
}

func (s *TicketService) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return s.DB.GetByID(ctx, id)
}

// OrderTickets lists the tickets of a paid order in seat order. Unpaid
// orders have none.
func (s *TicketService) OrderTickets(ctx context.Context, orderID string) ([]*models.Ticket, error) {
	tickets, err := s.DB.TicketsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []*models.Ticket{}
	}
	return tickets, nil
}

// QRCode renders the ticket's payload as PNG.
func (s *TicketService) QRCode(ctx context.Context, id string) ([]byte, error) {
	ticket, err := s.DB.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	img, err := s.QR.GeneratePNG(ticket)
	if err != nil {
		return nil, fmt.Errorf("render qr for ticket %s: %w", ticket.ID, err)
	}
	return img, nil
}
