package qr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"ms-club-ticketing/internal/models"
)

const (
	PayloadType    = "ING"
	PayloadVersion = 1
)

var ErrUnsupportedPayload = errors.New("unsupported ticket payload")

// Payload is what the printed QR code encodes.
type Payload struct {
	Type     string `json:"type"`
	TicketID string `json:"ticketId"`
	Token    string `json:"token"`
	Version  int    `json:"version"`
}

func NewPayload(t *models.Ticket) Payload {
	return Payload{Type: PayloadType, TicketID: t.ID, Token: t.Token, Version: PayloadVersion}
}

type QRGenerator struct {
	level qrcode.RecoveryLevel
	size  int
}

func NewQRGenerator(size int) *QRGenerator {
	if size <= 0 {
		size = 256
	}
	return &QRGenerator{level: qrcode.Medium, size: size}
}

// GeneratePNG renders the ticket payload as a PNG image.
func (q *QRGenerator) GeneratePNG(t *models.Ticket) ([]byte, error) {
	data, err := json.Marshal(NewPayload(t))
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(string(data), q.level, q.size)
}

// ParsePayload reads what a scanner captured. A JSON object must be a known
// payload; anything else is taken as a raw token.
func ParsePayload(scanned string) (Payload, error) {
	s := strings.TrimSpace(scanned)
	if s == "" {
		return Payload{}, fmt.Errorf("%w: empty", ErrUnsupportedPayload)
	}
	if !strings.HasPrefix(s, "{") {
		return Payload{Token: s}, nil
	}

	var p Payload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
	}
	if p.Type != PayloadType || p.Version < 1 || p.Version > PayloadVersion {
		return Payload{}, fmt.Errorf("%w: type %q version %d", ErrUnsupportedPayload, p.Type, p.Version)
	}
	if p.Token == "" && p.TicketID == "" {
		return Payload{}, fmt.Errorf("%w: no ticket reference", ErrUnsupportedPayload)
	}
	return p, nil
}
