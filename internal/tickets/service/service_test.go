package tickets_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
	orderdb "ms-club-ticketing/internal/order/db"
	"ms-club-ticketing/internal/tickets/db"
	tickets "ms-club-ticketing/internal/tickets/service"
)

// MockTicketDBLayer is a mock implementation of the TicketDBLayer interface
type MockTicketDBLayer struct {
	mock.Mock
}

func (m *MockTicketDBLayer) ticket(args mock.Arguments) (*models.Ticket, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketDBLayer) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	return m.ticket(m.Called(ctx, id))
}

func (m *MockTicketDBLayer) GetByToken(ctx context.Context, token string) (*models.Ticket, error) {
	return m.ticket(m.Called(ctx, token))
}

func (m *MockTicketDBLayer) GameExists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockTicketDBLayer) CreateTicket(ctx context.Context, t *models.Ticket) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockTicketDBLayer) Redeem(ctx context.Context, ticketID string, checkin *models.Checkin) (bool, error) {
	args := m.Called(ctx, ticketID, checkin)
	return args.Bool(0), args.Error(1)
}

func (m *MockTicketDBLayer) MarkOrderPaid(ctx context.Context, orderID string, token func() string) ([]*models.Ticket, bool, error) {
	args := m.Called(ctx, orderID, token)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]*models.Ticket), args.Bool(1), args.Error(2)
}

func (m *MockTicketDBLayer) TicketsByOrder(ctx context.Context, orderID string) ([]*models.Ticket, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Ticket), args.Error(1)
}

type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) TicketRedeemed(ctx context.Context, evt models.TicketRedeemedEvent) {
	m.Called(ctx, evt)
}

func game() *models.Game {
	return &models.Game{ID: "game-1", Name: "Clube x Rival", Date: time.Date(2026, 11, 1, 16, 0, 0, 0, time.UTC)}
}

func newMockService() (*tickets.TicketService, *MockTicketDBLayer, *MockEvents) {
	store := new(MockTicketDBLayer)
	events := new(MockEvents)
	return tickets.NewTicketService(store, events, logger.Discard()), store, events
}

func TestParseLookupKey(t *testing.T) {
	tests := []struct {
		name    string
		req     models.CheckinRequest
		want    tickets.LookupKey
		wantErr bool
	}{
		{name: "ticket id", req: models.CheckinRequest{TicketID: "tkt-1"}, want: tickets.ByID("tkt-1")},
		{name: "token", req: models.CheckinRequest{Token: "abc"}, want: tickets.ByToken("abc")},
		{name: "raw token in qr", req: models.CheckinRequest{QRCode: "abc"}, want: tickets.ByToken("abc")},
		{
			name: "qr payload",
			req:  models.CheckinRequest{QRCode: `{"type":"ING","ticketId":"tkt-1","token":"abc","version":1}`},
			want: tickets.ByToken("abc"),
		},
		{
			name: "qr payload without token",
			req:  models.CheckinRequest{QRCode: `{"type":"ING","ticketId":"tkt-1","version":1}`},
			want: tickets.ByID("tkt-1"),
		},
		{name: "nothing", req: models.CheckinRequest{}, wantErr: true},
		{name: "id wins over token", req: models.CheckinRequest{TicketID: "a", Token: "b"}, want: tickets.ByID("a")},
		{name: "token wins over qr", req: models.CheckinRequest{Token: "b", QRCode: "c"}, want: tickets.ByToken("b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tickets.ParseLookupKey(tt.req)
			if tt.wantErr {
				var ve *apperr.ValidationError
				assert.True(t, errors.As(err, &ve))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedeem_Valid(t *testing.T) {
	svc, store, events := newMockService()
	ticket := &models.Ticket{ID: "tkt-1", EventID: "game-1", Status: models.TicketStatusValid, Game: game()}

	store.On("GetByToken", mock.Anything, "abc").Return(ticket, nil)
	store.On("Redeem", mock.Anything, "tkt-1", mock.MatchedBy(func(c *models.Checkin) bool {
		return *c.Operator == "op-1" && *c.Location == "Portao 3"
	})).Return(true, nil)
	events.On("TicketRedeemed", mock.Anything, mock.MatchedBy(func(e models.TicketRedeemedEvent) bool {
		return e.TicketID == "tkt-1" && e.EventID == "game-1"
	})).Return()

	res, err := svc.Redeem(context.Background(), tickets.ByToken("abc"), "op-1", "Portao 3")
	require.NoError(t, err)
	assert.Equal(t, models.CheckinValid, res.Status)
	assert.Equal(t, "tkt-1", res.TicketID)
	assert.Equal(t, "Clube x Rival", res.Event.Name)
	store.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestRedeem_PendingIsPaymentNotConfirmed(t *testing.T) {
	svc, store, events := newMockService()
	store.On("GetByID", mock.Anything, "tkt-1").Return(&models.Ticket{ID: "tkt-1", Status: models.TicketStatusPending}, nil)

	res, err := svc.Redeem(context.Background(), tickets.ByID("tkt-1"), "", "")
	require.NoError(t, err)
	assert.Equal(t, models.CheckinInvalid, res.Status)
	assert.Equal(t, "payment not confirmed", res.Message)
	store.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything, mock.Anything)
	events.AssertNotCalled(t, "TicketRedeemed", mock.Anything, mock.Anything)
}

func TestRedeem_TerminalStatuses(t *testing.T) {
	for status, msg := range map[models.TicketStatus]string{
		models.TicketStatusCanceled: "ticket canceled",
		models.TicketStatusExpired:  "ticket expired",
		models.TicketStatusRefunded: "ticket refunded",
	} {
		t.Run(string(status), func(t *testing.T) {
			svc, store, _ := newMockService()
			store.On("GetByID", mock.Anything, "tkt-1").Return(&models.Ticket{ID: "tkt-1", Status: status}, nil)

			res, err := svc.Redeem(context.Background(), tickets.ByID("tkt-1"), "", "")
			require.NoError(t, err)
			assert.Equal(t, models.CheckinInvalid, res.Status)
			assert.Equal(t, msg, res.Message)
		})
	}
}

func TestRedeem_UnknownTicketIsNegativeOutcome(t *testing.T) {
	svc, store, _ := newMockService()
	store.On("GetByToken", mock.Anything, "forged").Return(nil, apperr.NotFound("ticket", "forged"))

	res, err := svc.Redeem(context.Background(), tickets.ByToken("forged"), "", "")
	require.NoError(t, err)
	assert.Equal(t, models.CheckinInvalid, res.Status)
	assert.Empty(t, res.TicketID)
}

func TestRedeem_StoreDownIsError(t *testing.T) {
	svc, store, _ := newMockService()
	store.On("GetByToken", mock.Anything, "abc").Return(nil, apperr.Unavailable("database", errors.New("refused")))

	_, err := svc.Redeem(context.Background(), tickets.ByToken("abc"), "", "")
	var ue *apperr.UpstreamUnavailableError
	assert.True(t, errors.As(err, &ue))
}

func TestRedeem_LostRaceAnswersUsed(t *testing.T) {
	svc, store, events := newMockService()
	store.On("GetByID", mock.Anything, "tkt-1").Return(&models.Ticket{ID: "tkt-1", Status: models.TicketStatusValid}, nil).Once()
	store.On("Redeem", mock.Anything, "tkt-1", mock.Anything).Return(false, nil)
	store.On("GetByID", mock.Anything, "tkt-1").Return(&models.Ticket{ID: "tkt-1", Status: models.TicketStatusUsed}, nil).Once()

	res, err := svc.Redeem(context.Background(), tickets.ByID("tkt-1"), "", "")
	require.NoError(t, err)
	assert.Equal(t, models.CheckinUsed, res.Status)
	events.AssertNotCalled(t, "TicketRedeemed", mock.Anything, mock.Anything)
}

func TestCheckin_UnreadableCode(t *testing.T) {
	svc, _, _ := newMockService()

	res, err := svc.Checkin(context.Background(), models.CheckinRequest{QRCode: `{"type":"OTHER","version":1}`})
	require.NoError(t, err)
	assert.Equal(t, models.CheckinInvalid, res.Status)

	_, err = svc.Checkin(context.Background(), models.CheckinRequest{})
	var ve *apperr.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestIssue_RetriesTokenCollisions(t *testing.T) {
	svc, store, _ := newMockService()
	tokens := []string{"t1", "t2", "t3"}
	svc.NewToken = func() string {
		tk := tokens[0]
		tokens = tokens[1:]
		return tk
	}

	store.On("GameExists", mock.Anything, "game-1").Return(true, nil)
	store.On("CreateTicket", mock.Anything, mock.Anything).Return(apperr.Conflict("collision")).Twice()
	store.On("CreateTicket", mock.Anything, mock.Anything).Return(nil).Once()

	ticket, err := svc.Issue(context.Background(), models.IssueTicketRequest{EventID: "game-1", Value: decimal.NewFromInt(40)})
	require.NoError(t, err)
	assert.Equal(t, "t3", ticket.Token)
	assert.Equal(t, models.TicketStatusValid, ticket.Status)
	store.AssertNumberOfCalls(t, "CreateTicket", 3)
}

func TestIssue_GivesUpAfterMaxAttempts(t *testing.T) {
	svc, store, _ := newMockService()
	store.On("GameExists", mock.Anything, "game-1").Return(true, nil)
	store.On("CreateTicket", mock.Anything, mock.Anything).Return(apperr.Conflict("collision"))

	_, err := svc.Issue(context.Background(), models.IssueTicketRequest{EventID: "game-1"})
	var conflict *apperr.ConflictError
	assert.True(t, errors.As(err, &conflict))
	store.AssertNumberOfCalls(t, "CreateTicket", tickets.MaxIssueAttempts)
}

func TestIssue_Validation(t *testing.T) {
	svc, store, _ := newMockService()
	store.On("GameExists", mock.Anything, "missing").Return(false, nil)

	_, err := svc.Issue(context.Background(), models.IssueTicketRequest{})
	var ve *apperr.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = svc.Issue(context.Background(), models.IssueTicketRequest{EventID: "game-1", Value: decimal.NewFromInt(-1)})
	assert.True(t, errors.As(err, &ve))

	_, err = svc.Issue(context.Background(), models.IssueTicketRequest{EventID: "missing"})
	assert.True(t, apperr.IsNotFound(err))
}

func TestQRCode(t *testing.T) {
	svc, store, _ := newMockService()
	store.On("GetByID", mock.Anything, "tkt-1").Return(&models.Ticket{ID: "tkt-1", Token: "abc"}, nil)

	img, err := svc.QRCode(context.Background(), "tkt-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), img[:4])
}

// ---------------- against a real store ----------------

func setupStore(t *testing.T) (*db.DB, *bun.DB) {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, orderdb.CreateSchema(context.Background(), bunDB))
	t.Cleanup(func() { bunDB.Close() })
	return &db.DB{Bun: bunDB}, bunDB
}

func seedTicket(t *testing.T, store *db.DB, bunDB *bun.DB, status models.TicketStatus) *models.Ticket {
	t.Helper()
	ctx := context.Background()
	g := game()
	g.ID = uuid.NewString()
	g.CreatedAt = time.Now()
	_, err := bunDB.NewInsert().Model(g).Exec(ctx)
	require.NoError(t, err)

	ticket := &models.Ticket{ID: uuid.NewString(), EventID: g.ID, Token: uuid.NewString(), Status: status, CreatedAt: time.Now()}
	require.NoError(t, store.CreateTicket(ctx, ticket))
	return ticket
}

func TestRedeem_Idempotent(t *testing.T) {
	store, bunDB := setupStore(t)
	events := new(MockEvents)
	events.On("TicketRedeemed", mock.Anything, mock.Anything).Return().Once()
	svc := tickets.NewTicketService(store, events, logger.Discard())
	ctx := context.Background()
	ticket := seedTicket(t, store, bunDB, models.TicketStatusValid)

	first, err := svc.Redeem(ctx, tickets.ByToken(ticket.Token), "op-1", "Portao 1")
	require.NoError(t, err)
	second, err := svc.Redeem(ctx, tickets.ByID(ticket.ID), "op-2", "Portao 2")
	require.NoError(t, err)

	assert.Equal(t, models.CheckinValid, first.Status)
	assert.Equal(t, models.CheckinUsed, second.Status)
	assert.Equal(t, "Clube x Rival", second.Event.Name)

	n, err := store.CountCheckins(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	events.AssertExpectations(t)
}

func TestRedeem_AlreadyUsedKeepsSingleCheckin(t *testing.T) {
	store, bunDB := setupStore(t)
	ctx := context.Background()
	ticket := seedTicket(t, store, bunDB, models.TicketStatusValid)
	redeemed, err := store.Redeem(ctx, ticket.ID, &models.Checkin{ID: uuid.NewString(), At: time.Now().UTC()})
	require.NoError(t, err)
	require.True(t, redeemed)

	svc := tickets.NewTicketService(store, new(MockEvents), logger.Discard())
	res, err := svc.Redeem(ctx, tickets.ByID(ticket.ID), "op-1", "Portao 1")
	require.NoError(t, err)
	assert.Equal(t, models.CheckinUsed, res.Status)

	n, err := store.CountCheckins(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedeem_PendingLeavesStatus(t *testing.T) {
	store, bunDB := setupStore(t)
	ctx := context.Background()
	ticket := seedTicket(t, store, bunDB, models.TicketStatusPending)

	svc := tickets.NewTicketService(store, new(MockEvents), logger.Discard())
	res, err := svc.Redeem(ctx, tickets.ByID(ticket.ID), "", "")
	require.NoError(t, err)
	assert.Equal(t, models.CheckinInvalid, res.Status)
	assert.Equal(t, "payment not confirmed", res.Message)

	got, err := store.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusPending, got.Status)
}

func TestOrderTickets_EmptyListForUnpaidOrder(t *testing.T) {
	svc, store, _ := newMockService()
	store.On("TicketsByOrder", mock.Anything, "ord-1").Return(nil, nil)

	got, err := svc.OrderTickets(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
