package tickets_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/tickets/qr"
	tickets "ms-reservation/internal/tickets/service"
)

type MockTicketDBLayer struct {
	mock.Mock
}

func (m *MockTicketDBLayer) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketDBLayer) ListUserTickets(ctx context.Context, userID string) ([]models.Ticket, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockTicketDBLayer) CheckIn(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockTicketDBLayer) CheckOut(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func newService(t *testing.T) (*tickets.TicketService, *MockTicketDBLayer, *qr.Generator) {
	gen, err := qr.NewGenerator("qr-test-secret-0123456789")
	require.NoError(t, err)
	mockDB := new(MockTicketDBLayer)
	return tickets.NewTicketService(mockDB, gen, logger.NewNop()), mockDB, gen
}

func TestCheckIn_ValidPayload(t *testing.T) {
	svc, mockDB, gen := newService(t)
	ctx := context.Background()

	mockDB.On("CheckIn", ctx, int64(101), mock.AnythingOfType("time.Time")).Return(nil)
	mockDB.On("GetTicket", ctx, int64(101)).Return(&models.Ticket{ID: 101, Status: models.TicketCheckedIn}, nil)

	ticket, err := svc.CheckIn(ctx, gen.Payload(101))
	require.NoError(t, err)
	assert.Equal(t, models.TicketCheckedIn, ticket.Status)
	mockDB.AssertExpectations(t)
}

func TestCheckIn_ForgedPayloadNeverTouchesStore(t *testing.T) {
	svc, mockDB, _ := newService(t)

	_, err := svc.CheckIn(context.Background(), "T101.AAAAAAAAAAAAAAAAAAAAAA")
	assert.True(t, errors.Is(err, apperrors.ErrAuthenticity))
	mockDB.AssertNotCalled(t, "CheckIn", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckOut_WrongState(t *testing.T) {
	svc, mockDB, gen := newService(t)
	ctx := context.Background()

	mockDB.On("CheckOut", ctx, int64(7), mock.AnythingOfType("time.Time")).
		Return(&apperrors.ConflictError{Resource: "ticket", ID: 7, Reason: "status_BOOKED"})

	_, err := svc.CheckOut(ctx, gen.Payload(7))
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestGetTicket_OwnershipHidden(t *testing.T) {
	svc, mockDB, _ := newService(t)
	ctx := context.Background()
	mockDB.On("GetTicket", ctx, int64(5)).Return(&models.Ticket{ID: 5, UserID: "owner"}, nil)

	_, err := svc.GetTicket(ctx, 5, "someone-else")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	ticket, err := svc.GetTicket(ctx, 5, "owner")
	require.NoError(t, err)
	assert.Equal(t, int64(5), ticket.ID)
}

func TestQRImage(t *testing.T) {
	svc, mockDB, gen := newService(t)
	ctx := context.Background()
	mockDB.On("GetTicket", ctx, int64(5)).Return(&models.Ticket{ID: 5, UserID: "owner", QRCode: gen.Payload(5)}, nil)
	mockDB.On("GetTicket", ctx, int64(6)).Return(&models.Ticket{ID: 6, UserID: "owner", Status: models.TicketPending}, nil)

	png, err := svc.QRImage(ctx, 5, "owner")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = svc.QRImage(ctx, 6, "owner")
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestListUserTickets(t *testing.T) {
	svc, mockDB, _ := newService(t)
	ctx := context.Background()
	mockDB.On("ListUserTickets", ctx, "user-1").Return(nil, nil)

	list, err := svc.ListUserTickets(ctx, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = svc.ListUserTickets(ctx, "")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}
