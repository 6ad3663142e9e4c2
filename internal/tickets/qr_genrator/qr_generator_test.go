package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-club-ticketing/internal/models"
)

func TestGeneratePNG(t *testing.T) {
	gen := NewQRGenerator(0)
	img, err := gen.GeneratePNG(&models.Ticket{ID: "tkt-1", Token: "abc123"})
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, 256, decoded.Bounds().Dx())
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Payload
		wantErr bool
	}{
		{name: "raw token", in: " abc123 ", want: Payload{Token: "abc123"}},
		{
			name: "json payload",
			in:   `{"type":"ING","ticketId":"tkt-1","token":"abc123","version":1}`,
			want: Payload{Type: "ING", TicketID: "tkt-1", Token: "abc123", Version: 1},
		},
		{name: "future version", in: `{"type":"ING","token":"abc","version":2}`, wantErr: true},
		{name: "foreign type", in: `{"type":"BOARDING","token":"abc","version":1}`, wantErr: true},
		{name: "broken json", in: `{"type":`, wantErr: true},
		{name: "no reference", in: `{"type":"ING","version":1}`, wantErr: true},
		{name: "empty", in: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
