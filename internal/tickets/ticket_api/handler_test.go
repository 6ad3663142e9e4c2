package ticket_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
)

type MockTicketService struct {
	mock.Mock
}

func (m *MockTicketService) Checkin(ctx context.Context, req models.CheckinRequest) (models.CheckinResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.CheckinResponse), args.Error(1)
}

func (m *MockTicketService) Issue(ctx context.Context, req models.IssueTicketRequest) (*models.Ticket, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketService) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketService) QRCode(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockTicketService) OrderTickets(ctx context.Context, orderID string) ([]*models.Ticket, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Ticket), args.Error(1)
}

func newRouter(svc TicketService) http.Handler {
	r := chi.NewRouter()
	NewHandler(svc, logger.Discard()).Routes(r)
	return r
}

func post(t *testing.T, h http.Handler, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCheckin_NegativeOutcomesAre200(t *testing.T) {
	for _, status := range []models.CheckinStatus{models.CheckinValid, models.CheckinUsed, models.CheckinInvalid} {
		t.Run(string(status), func(t *testing.T) {
			svc := new(MockTicketService)
			svc.On("Checkin", mock.Anything, mock.Anything).Return(models.CheckinResponse{Status: status, TicketID: "tkt-1"}, nil)

			rec := post(t, newRouter(svc), "/checkin", models.CheckinRequest{Token: "abc", Operator: "op-1"}, nil)
			assert.Equal(t, http.StatusOK, rec.Code)

			var res models.CheckinResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, status, res.Status)
		})
	}
}

func TestCheckin_OperatorFromBearerToken(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("Checkin", mock.Anything, models.CheckinRequest{Token: "abc", Operator: "gate-op-7", Location: "Portao 3"}).
		Return(models.CheckinResponse{Status: models.CheckinValid}, nil)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "gate-op-7"}).SignedString([]byte("k"))
	require.NoError(t, err)

	rec := post(t, newRouter(svc), "/checkin", models.CheckinRequest{Token: "abc", Location: "Portao 3"},
		http.Header{"Authorization": {"Bearer " + tok}})
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestCheckin_Errors(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("Checkin", mock.Anything, models.CheckinRequest{}).Return(models.CheckinResponse{}, apperr.Validation("ticketId", "required"))
	svc.On("Checkin", mock.Anything, models.CheckinRequest{Token: "abc"}).Return(models.CheckinResponse{}, apperr.Unavailable("database", assert.AnError))

	h := newRouter(svc)
	assert.Equal(t, http.StatusBadRequest, post(t, h, "/checkin", models.CheckinRequest{}, nil).Code)

	rec := post(t, h, "/checkin", models.CheckinRequest{Token: "abc"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestIssue(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("Issue", mock.Anything, mock.MatchedBy(func(r models.IssueTicketRequest) bool {
		return r.EventID == "game-1" && r.Value.Equal(decimal.NewFromInt(40))
	})).Return(&models.Ticket{ID: "tkt-1", Token: "abc"}, nil)

	rec := post(t, newRouter(svc), "/ingressos", models.IssueTicketRequest{EventID: "game-1", Value: decimal.NewFromInt(40)}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"ticketId":"tkt-1","token":"abc","qrPngUrl":"/ingressos/tkt-1/qrcode.png"}`, rec.Body.String())
}

func TestGetTicketAndQRCode(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("GetTicket", mock.Anything, "missing").Return(nil, apperr.NotFound("ticket", "missing"))
	svc.On("QRCode", mock.Anything, "tkt-1").Return([]byte("\x89PNG..."), nil)

	h := newRouter(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingressos/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingressos/tkt-1/qrcode.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG...", rec.Body.String())
}

func TestOrderTickets(t *testing.T) {
	svc := new(MockTicketService)
	svc.On("OrderTickets", mock.Anything, "ord-1").Return([]*models.Ticket{{ID: "tkt-1"}, {ID: "tkt-2"}}, nil)

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pedidos/ord-1/ingressos", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got []models.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}
