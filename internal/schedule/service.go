package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

type DBLayer interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	ConflictingEvents(ctx context.Context, areaID int64, window Interval, buffer time.Duration, excludeEventID int64) ([]models.Event, error)
	FreeAreas(ctx context.Context, window Interval, buffer time.Duration) ([]models.VenueArea, error)
	InsertEventIfFree(ctx context.Context, event *models.Event, buffer time.Duration) ([]models.Event, error)
	OpenEventIfFree(ctx context.Context, eventID int64, buffer time.Duration) (*models.Event, []models.Event, error)
	SetEventStatus(ctx context.Context, eventID int64, status string, from ...string) error
}

// Service schedules events onto venue areas so that no two active events of
// one area come closer than the buffer.
type Service struct {
	DB     DBLayer
	Buffer time.Duration
	Logger *logger.Logger
	now    func() time.Time
}

func NewService(db DBLayer, buffer time.Duration, log *logger.Logger) *Service {
	return &Service{DB: db, Buffer: buffer, Logger: log, now: time.Now}
}

type EventDraft struct {
	AreaID   int64     `json:"area_id"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start_time"`
	End      time.Time `json:"end_time"`
	MaxSeats int       `json:"max_seats"`
}

func (s *Service) window(start, end time.Time) (Interval, error) {
	w := Interval{Start: start.UTC(), End: end.UTC()}
	if !w.Valid() {
		return w, apperrors.Validation("end_time", "end_time must be after start_time")
	}
	return w, nil
}

// HasConflict checks a candidate window for an area against its active events.
func (s *Service) HasConflict(ctx context.Context, areaID int64, start, end time.Time, excludeEventID int64) (bool, []models.Event, error) {
	w, err := s.window(start, end)
	if err != nil {
		return false, nil, err
	}
	conflicts, err := s.DB.ConflictingEvents(ctx, areaID, w, s.Buffer, excludeEventID)
	if err != nil {
		return false, nil, err
	}
	return len(conflicts) > 0, conflicts, nil
}

// FindFreeAreas returns the areas with zero conflicting active events.
func (s *Service) FindFreeAreas(ctx context.Context, start, end time.Time) ([]models.VenueArea, error) {
	w, err := s.window(start, end)
	if err != nil {
		return nil, err
	}
	return s.DB.FreeAreas(ctx, w, s.Buffer)
}

// ScheduleEvent books the area for a new DRAFT event.
func (s *Service) ScheduleEvent(ctx context.Context, draft EventDraft) (*models.Event, error) {
	if draft.AreaID <= 0 {
		return nil, apperrors.Validation("area_id", "area_id is required")
	}
	if strings.TrimSpace(draft.Title) == "" {
		return nil, apperrors.Validation("title", "title is required")
	}
	w, err := s.window(draft.Start, draft.End)
	if err != nil {
		return nil, err
	}
	if !w.Start.After(s.now()) {
		return nil, apperrors.Validation("start_time", "start_time must be in the future")
	}

	event := &models.Event{
		AreaID:    draft.AreaID,
		Title:     strings.TrimSpace(draft.Title),
		StartTime: w.Start,
		EndTime:   w.End,
		Status:    models.EventDraft,
		MaxSeats:  draft.MaxSeats,
		CreatedAt: s.now().UTC(),
	}
	conflicts, err := s.DB.InsertEventIfFree(ctx, event, s.Buffer)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, areaConflict(draft.AreaID, conflicts)
	}

	s.Logger.Info("SCHEDULE", fmt.Sprintf("Event %d scheduled in area %d (%s - %s)", event.ID, event.AreaID, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339)))
	return event, nil
}

// ApproveEvent opens a DRAFT event for sale after re-checking its area.
func (s *Service) ApproveEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	event, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventDraft {
		return nil, apperrors.Validation("status", fmt.Sprintf("event %d is %s, only DRAFT events can be approved", eventID, event.Status))
	}

	event, conflicts, err := s.DB.OpenEventIfFree(ctx, eventID, s.Buffer)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		s.Logger.Warn("SCHEDULE", fmt.Sprintf("Approval of event %d refused: %d conflicting events in area", eventID, len(conflicts)))
		return nil, areaConflict(event.AreaID, conflicts)
	}

	s.Logger.Info("SCHEDULE", fmt.Sprintf("Event %d approved and OPEN", eventID))
	return event, nil
}

// CancelEvent frees the event's slot in the area calendar.
func (s *Service) CancelEvent(ctx context.Context, eventID int64) error {
	err := s.DB.SetEventStatus(ctx, eventID, models.EventCancelled, models.ActiveEventStatuses...)
	if err != nil {
		return err
	}
	s.Logger.Info("SCHEDULE", fmt.Sprintf("Event %d cancelled", eventID))
	return nil
}

func areaConflict(areaID int64, conflicts []models.Event) error {
	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, fmt.Sprintf("%d", c.ID))
	}
	return &apperrors.ConflictError{
		Resource: "area",
		ID:       areaID,
		Reason:   "overlap",
		Message:  "overlaps active event(s) " + strings.Join(ids, ", "),
	}
}
