package schedule_test

import (
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
	"ms-reservation/internal/schedule"
)

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockDBLayer) ConflictingEvents(ctx context.Context, areaID int64, window schedule.Interval, buffer time.Duration, excludeEventID int64) ([]models.Event, error) {
	args := m.Called(ctx, areaID, window, buffer, excludeEventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockDBLayer) FreeAreas(ctx context.Context, window schedule.Interval, buffer time.Duration) ([]models.VenueArea, error) {
	args := m.Called(ctx, window, buffer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.VenueArea), args.Error(1)
}

func (m *MockDBLayer) InsertEventIfFree(ctx context.Context, event *models.Event, buffer time.Duration) ([]models.Event, error) {
	args := m.Called(ctx, event, buffer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockDBLayer) OpenEventIfFree(ctx context.Context, eventID int64, buffer time.Duration) (*models.Event, []models.Event, error) {
	args := m.Called(ctx, eventID, buffer)
	var event *models.Event
	if args.Get(0) != nil {
		event = args.Get(0).(*models.Event)
	}
	var conflicts []models.Event
	if args.Get(1) != nil {
		conflicts = args.Get(1).([]models.Event)
	}
	return event, conflicts, args.Error(2)
}

func (m *MockDBLayer) SetEventStatus(ctx context.Context, eventID int64, status string, from ...string) error {
	args := m.Called(ctx, eventID, status, from)
	return args.Error(0)
}

func future(h int) time.Time {
	return time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour).Add(time.Duration(h) * time.Hour)
}

func TestHasConflict_UsesBuffer(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := schedule.NewService(mockDB, time.Hour, logger.NewNop())
	ctx := context.Background()
	start, end := future(10), future(11)

	mockDB.On("ConflictingEvents", ctx, int64(2), schedule.Interval{Start: start, End: end}, time.Hour, int64(0)).
		Return([]models.Event{{ID: 7}}, nil)

	conflict, events, err := svc.HasConflict(ctx, 2, start, end, 0)
	require.NoError(t, err)
	assert.True(t, conflict)
	assert.Len(t, events, 1)
	mockDB.AssertExpectations(t)
}

func TestHasConflict_InvalidWindow(t *testing.T) {
	svc := schedule.NewService(new(MockDBLayer), time.Hour, logger.NewNop())

	_, _, err := svc.HasConflict(context.Background(), 2, future(11), future(10), 0)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestScheduleEvent_Conflict(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := schedule.NewService(mockDB, time.Hour, logger.NewNop())
	ctx := context.Background()

	mockDB.On("InsertEventIfFree", ctx, mock.AnythingOfType("*models.Event"), time.Hour).
		Return([]models.Event{{ID: 7}, {ID: 9}}, nil)

	_, err := svc.ScheduleEvent(ctx, schedule.EventDraft{AreaID: 2, Title: "Gala", Start: future(10), End: future(12)})

	var conflict *apperrors.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "area", conflict.Resource)
	assert.Equal(t, int64(2), conflict.ID)
	assert.Contains(t, conflict.Message, "7, 9")
}

func TestScheduleEvent_CreatesDraft(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := schedule.NewService(mockDB, time.Hour, logger.NewNop())
	ctx := context.Background()

	mockDB.On("InsertEventIfFree", ctx, mock.MatchedBy(func(e *models.Event) bool {
		return e.AreaID == 2 && e.Status == models.EventDraft && e.Title == "Gala"
	}), time.Hour).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Event).ID = 42
	}).Return([]models.Event{}, nil)

	event, err := svc.ScheduleEvent(ctx, schedule.EventDraft{AreaID: 2, Title: " Gala ", Start: future(10), End: future(12)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), event.ID)
	assert.Equal(t, models.EventDraft, event.Status)
}

func TestScheduleEvent_Validation(t *testing.T) {
	svc := schedule.NewService(new(MockDBLayer), time.Hour, logger.NewNop())
	ctx := context.Background()
	past := time.Now().Add(-48 * time.Hour)

	drafts := []schedule.EventDraft{
		{Title: "no area", Start: future(1), End: future(2)},
		{AreaID: 2, Start: future(1), End: future(2)},
		{AreaID: 2, Title: "reversed", Start: future(2), End: future(1)},
		{AreaID: 2, Title: "past", Start: past, End: past.Add(time.Hour)},
	}
	for _, d := range drafts {
		_, err := svc.ScheduleEvent(ctx, d)
		assert.True(t, errors.Is(err, apperrors.ErrValidation), "%+v", d)
	}
}

func TestApproveEvent(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := schedule.NewService(mockDB, time.Hour, logger.NewNop())
	ctx := context.Background()

	draft := &models.Event{ID: 11, AreaID: 2, Status: models.EventDraft}
	opened := &models.Event{ID: 11, AreaID: 2, Status: models.EventOpen}
	mockDB.On("GetEvent", ctx, int64(11)).Return(draft, nil)
	mockDB.On("OpenEventIfFree", ctx, int64(11), time.Hour).Return(opened, nil, nil)

	event, err := svc.ApproveEvent(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, models.EventOpen, event.Status)
}

func TestApproveEvent_ConflictAndWrongState(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := schedule.NewService(mockDB, time.Hour, logger.NewNop())
	ctx := context.Background()

	mockDB.On("GetEvent", ctx, int64(11)).Return(&models.Event{ID: 11, AreaID: 2, Status: models.EventDraft}, nil)
	mockDB.On("OpenEventIfFree", ctx, int64(11), time.Hour).
		Return(&models.Event{ID: 11, AreaID: 2, Status: models.EventDraft}, []models.Event{{ID: 10}}, nil)
	mockDB.On("GetEvent", ctx, int64(12)).Return(&models.Event{ID: 12, AreaID: 2, Status: models.EventOpen}, nil)

	_, err := svc.ApproveEvent(ctx, 11)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	_, err = svc.ApproveEvent(ctx, 12)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestCancelEvent(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := schedule.NewService(mockDB, time.Hour, logger.NewNop())
	ctx := context.Background()

	mockDB.On("SetEventStatus", ctx, int64(5), models.EventCancelled, models.ActiveEventStatuses).Return(nil)

	assert.NoError(t, svc.CancelEvent(ctx, 5))
	mockDB.AssertExpectations(t)
}
