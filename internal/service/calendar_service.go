package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tazhate/calbridge/internal/domain"
	"github.com/tazhate/calbridge/internal/provider"
	"github.com/tazhate/calbridge/internal/recurrence"
)

// farFuture is the default end of the RemoveEvents search window
var farFuture = time.Date(4001, time.January, 1, 0, 0, 0, 0, time.UTC)

// systemCalendars are hidden from the selection list
var systemCalendars = map[string]bool{
	"":                 true,
	"Siri Suggestions": true,
	"Birthdays":        true,
	"Contacts":         true,
	"Family":           true,
}

type accessState int

const (
	accessUnknown accessState = iota
	accessGranted
	accessDenied
)

// MaxReminderMinutes is the largest reminder offset a request may carry (four weeks)
const MaxReminderMinutes = 40320

// CreateEventRequest describes a new event
type CreateEventRequest struct {
	Title                 string         `validate:"required,max=255"`
	Notes                 string         `validate:"max=4096"`
	Location              string         `validate:"max=255"`
	Start                 time.Time      `validate:"required"`
	End                   time.Time      `validate:"required,gtfield=Start"`
	ReminderMinutesBefore int            `validate:"gte=0,lte=40320"` // MaxReminderMinutes
	RecurrenceDays        []time.Weekday `validate:"omitempty,max=7,dive,gte=0,lte=6"`
	// CalendarID targets a specific calendar; empty means the provider default
	CalendarID string
}

// CalendarService mediates all interaction with the calendar provider
type CalendarService struct {
	provider   provider.Provider
	selections *SelectionService
	metrics    *MetricsService
	logger     *zap.Logger
	validate   *validator.Validate
	timezone   *time.Location
	appName    string
	appColor   string
	now        func() time.Time

	mu     sync.Mutex
	access accessState
}

// CalendarOptions holds the non-collaborator settings of CalendarService
type CalendarOptions struct {
	Timezone         *time.Location
	AppCalendarName  string
	AppCalendarColor string
}

// NewCalendarService creates a new calendar service
func NewCalendarService(p provider.Provider, selections *SelectionService, metrics *MetricsService, logger *zap.Logger, opts CalendarOptions) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	tz := opts.Timezone
	if tz == nil {
		tz = time.UTC
	}
	return &CalendarService{
		provider:   p,
		selections: selections,
		metrics:    metrics,
		logger:     logger,
		validate:   validator.New(),
		timezone:   tz,
		appName:    opts.AppCalendarName,
		appColor:   opts.AppCalendarColor,
		now:        time.Now,
	}
}

// AppCalendarName returns the name of the calendar this app manages
func (s *CalendarService) AppCalendarName() string {
	return s.appName
}

// Timezone returns the display timezone
func (s *CalendarService) Timezone() *time.Location {
	return s.timezone
}

// RequestAccess asks the provider for calendar access and remembers the answer
func (s *CalendarService) RequestAccess(ctx context.Context) (granted bool, err error) {
	defer func(started time.Time) { s.metrics.Observe("request_access", started, err) }(time.Now())

	granted, err = s.provider.RequestAccess(ctx)

	s.mu.Lock()
	if granted {
		s.access = accessGranted
	} else {
		s.access = accessDenied
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("calendar access request failed", zap.Error(err))
		return false, domain.WrapError(err, domain.ErrPermissionDenied.Code, domain.ErrPermissionDenied.Message)
	}
	if !granted {
		s.logger.Info("calendar access denied")
	}
	return granted, nil
}

// ensureAccess re-requests access unless it was already granted
func (s *CalendarService) ensureAccess(ctx context.Context) error {
	s.mu.Lock()
	state := s.access
	s.mu.Unlock()
	if state == accessGranted {
		return nil
	}

	granted, err := s.RequestAccess(ctx)
	if err != nil {
		return err
	}
	if !granted {
		return domain.ErrPermissionDenied
	}
	return nil
}

// CreateCalendar creates a calendar in the provider's default source.
// Duplicate names are not checked here; see CalendarExists.
func (s *CalendarService) CreateCalendar(ctx context.Context, name, color string) (cal *domain.Calendar, err error) {
	defer func(started time.Time) { s.metrics.Observe("create_calendar", started, err) }(time.Now())

	if err := s.ensureAccess(ctx); err != nil {
		return nil, err
	}

	source, err := s.provider.DefaultSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("get default source: %w", err)
	}
	if source == nil {
		return nil, domain.ErrNoDefaultSource
	}

	cal = &domain.Calendar{
		Title:    name,
		Color:    color,
		SourceID: source.ID,
	}
	if err := s.provider.SaveCalendar(ctx, cal); err != nil {
		return nil, fmt.Errorf("save calendar: %w", err)
	}

	s.logger.Info("calendar created", zap.String("name", name), zap.String("calendar_id", cal.ID))
	return cal, nil
}

// RemoveCalendar deletes a calendar by identifier
func (s *CalendarService) RemoveCalendar(ctx context.Context, id string) (err error) {
	defer func(started time.Time) { s.metrics.Observe("remove_calendar", started, err) }(time.Now())

	if err := s.ensureAccess(ctx); err != nil {
		return err
	}

	cal, err := s.provider.Calendar(ctx, id)
	if err != nil {
		return fmt.Errorf("get calendar: %w", err)
	}
	if cal == nil {
		return domain.NotFound("calendar")
	}

	if err := s.provider.RemoveCalendar(ctx, id); err != nil {
		return fmt.Errorf("remove calendar: %w", err)
	}

	s.logger.Info("calendar removed", zap.String("name", cal.Title), zap.String("calendar_id", id))
	return nil
}

// CreateEvent adds an event with one reminder and an optional weekly rule.
// It fails with ErrConflict if an event with the same title already lies inside [Start, End)
// on the target calendar.
func (s *CalendarService) CreateEvent(ctx context.Context, req CreateEventRequest) (ev *domain.Event, err error) {
	defer func(started time.Time) { s.metrics.Observe("create_event", started, err) }(time.Now())

	if err := s.validate.Struct(req); err != nil {
		return nil, domain.WrapError(err, domain.ErrValidation.Code, domain.ErrValidation.Message)
	}

	if err := s.ensureAccess(ctx); err != nil {
		return nil, err
	}

	cal, err := s.resolveCalendar(ctx, req.CalendarID)
	if err != nil {
		return nil, err
	}

	existing, err := s.provider.Events(ctx, provider.Query{
		Start:       req.Start,
		End:         req.End,
		CalendarIDs: []string{cal.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("query existing events: %w", err)
	}
	for _, e := range existing {
		if e.Title == req.Title && !e.End.After(req.End) {
			s.logger.Info("event already exists",
				zap.String("title", req.Title),
				zap.String("calendar_id", cal.ID),
				zap.String("event_id", e.ID),
			)
			return nil, domain.ErrConflict
		}
	}

	ev = &domain.Event{
		CalendarID: cal.ID,
		Title:      req.Title,
		Notes:      req.Notes,
		Location:   req.Location,
		Timezone:   s.timezone,
		Start:      req.Start,
		End:        req.End,
		Alarms:     []domain.Alarm{domain.AlarmMinutesBefore(req.ReminderMinutesBefore)},
		Recurrence: recurrence.Weekly(req.RecurrenceDays),
	}

	if err := s.provider.SaveEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("save event: %w", err)
	}

	if s.selections != nil {
		s.selections.RecordCreatedEvent(ctx, ev.ID)
	}

	s.logger.Info("event created",
		zap.String("title", ev.Title),
		zap.String("event_id", ev.ID),
		zap.String("calendar_id", cal.ID),
		zap.Bool("recurring", ev.Recurrence != nil),
	)
	return ev, nil
}

// RemoveEvents deletes every event titled exactly title whose start lies in [from, to).
// Zero from means now, zero to means far future. The first failure stops the loop and is
// returned as *domain.PartialRemovalError carrying the number already removed.
func (s *CalendarService) RemoveEvents(ctx context.Context, title, calendarID string, from, to time.Time) (removed int, err error) {
	defer func(started time.Time) { s.metrics.Observe("remove_events", started, err) }(time.Now())

	if err := s.ensureAccess(ctx); err != nil {
		return 0, err
	}

	cal, err := s.resolveCalendar(ctx, calendarID)
	if err != nil {
		return 0, err
	}

	if from.IsZero() {
		from = s.now()
	}
	if to.IsZero() {
		to = farFuture
	}

	events, err := s.provider.Events(ctx, provider.Query{
		Start:       from,
		End:         to,
		CalendarIDs: []string{cal.ID},
	})
	if err != nil {
		return 0, fmt.Errorf("query events: %w", err)
	}

	seen := make(map[string]bool)
	for _, e := range events {
		if e.Title != title || seen[e.ID] {
			continue
		}
		seen[e.ID] = true

		if err := s.provider.RemoveEvent(ctx, e.ID); err != nil {
			s.logger.Warn("remove events stopped",
				zap.String("title", title),
				zap.Int("removed", removed),
				zap.Error(err),
			)
			return removed, &domain.PartialRemovalError{Removed: removed, Err: err}
		}
		removed++
	}

	s.logger.Info("events removed", zap.String("title", title), zap.String("calendar_id", cal.ID), zap.Int("count", removed))
	return removed, nil
}

// RemoveEvent deletes one event by identifier
func (s *CalendarService) RemoveEvent(ctx context.Context, id string) (err error) {
	defer func(started time.Time) { s.metrics.Observe("remove_event", started, err) }(time.Now())

	if err := s.ensureAccess(ctx); err != nil {
		return err
	}

	ev, err := s.provider.Event(ctx, id)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if ev == nil {
		return domain.NotFound("event")
	}

	if err := s.provider.RemoveEvent(ctx, id); err != nil {
		return fmt.Errorf("remove event: %w", err)
	}

	s.logger.Info("event removed", zap.String("event_id", id), zap.String("title", ev.Title))
	return nil
}

// ListEvents returns events of the selected calendars starting within windowDays from now.
// Selections that no longer resolve to a calendar are skipped.
func (s *CalendarService) ListEvents(ctx context.Context, selections []domain.CalendarSelection, windowDays int) (views []domain.EventView, err error) {
	defer func(started time.Time) { s.metrics.Observe("list_events", started, err) }(time.Now())

	views = []domain.EventView{}
	if len(selections) == 0 {
		return views, nil
	}
	if windowDays <= 0 {
		windowDays = domain.DefaultListWindowDays
	}

	var ids []string
	for _, sel := range selections {
		cal, err := s.provider.Calendar(ctx, sel.Identifier)
		if err != nil {
			s.logger.Warn("resolve selected calendar failed", zap.String("calendar_id", sel.Identifier), zap.Error(err))
			continue
		}
		if cal == nil {
			s.logger.Info("selected calendar not found", zap.String("calendar_id", sel.Identifier), zap.String("name", sel.DisplayName))
			continue
		}
		ids = append(ids, cal.ID)
	}
	if len(ids) == 0 {
		return views, nil
	}

	start := s.now()
	events, err := s.provider.Events(ctx, provider.Query{
		Start:       start,
		End:         start.AddDate(0, 0, windowDays),
		CalendarIDs: ids,
	})
	if err != nil {
		return views, fmt.Errorf("query events: %w", err)
	}

	for i := range events {
		views = append(views, s.project(&events[i]))
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Start.Before(views[j].Start)
	})
	return views, nil
}

// ListSelectedEvents lists events of the stored selection
func (s *CalendarService) ListSelectedEvents(ctx context.Context, windowDays int) ([]domain.EventView, error) {
	if s.selections == nil {
		return []domain.EventView{}, nil
	}
	return s.ListEvents(ctx, s.selections.List(ctx), windowDays)
}

// project maps a provider event to its display form
func (s *CalendarService) project(e *domain.Event) domain.EventView {
	v := domain.EventView{
		Title:                 e.Title,
		Start:                 e.Start.In(s.timezone),
		End:                   e.End.In(s.timezone),
		CalendarID:            e.CalendarID,
		EventID:               e.ID,
		Notes:                 e.Notes,
		Latitude:              domain.NoCoordinate,
		Longitude:             domain.NoCoordinate,
		ReminderMinutesBefore: domain.NoReminder,
		LocationName:          e.Location,
	}
	v.StartTime = v.Start.Format(domain.DisplayTimeLayout)
	v.EndTime = v.End.Format(domain.DisplayTimeLayout)

	if e.HasGeo() {
		v.Latitude = domain.RoundCoordinate(*e.Latitude)
		v.Longitude = domain.RoundCoordinate(*e.Longitude)
	}
	if e.Timezone != nil {
		_, offset := e.Start.In(e.Timezone).Zone()
		v.TimezoneOffset = domain.FormatOffset(offset)
	}
	if len(e.Alarms) > 0 {
		v.ReminderMinutesBefore = e.Alarms[0].MinutesBefore()
	}
	return v
}

// CalendarExists reports whether a calendar titled exactly name exists
func (s *CalendarService) CalendarExists(ctx context.Context, name string) (bool, error) {
	id, err := s.CalendarIDByTitle(ctx, name)
	if err != nil {
		return false, err
	}
	return id != "", nil
}

// CalendarIDByTitle returns the identifier of the first calendar titled name, or ""
func (s *CalendarService) CalendarIDByTitle(ctx context.Context, name string) (string, error) {
	cals, err := s.provider.Calendars(ctx)
	if err != nil {
		return "", fmt.Errorf("list calendars: %w", err)
	}
	for _, c := range cals {
		if c.Title == name {
			return c.ID, nil
		}
	}
	return "", nil
}

// SelectableCalendars lists provider calendars for the selection screen, hiding system
// calendars (and the app calendar when skipApp is set). Stored selections are marked selected.
func (s *CalendarService) SelectableCalendars(ctx context.Context, skipApp bool) ([]domain.CalendarSelection, error) {
	if err := s.ensureAccess(ctx); err != nil {
		return nil, err
	}

	cals, err := s.provider.Calendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}

	selected := make(map[string]bool)
	if s.selections != nil {
		for _, sel := range s.selections.List(ctx) {
			selected[sel.Identifier] = true
		}
	}

	result := []domain.CalendarSelection{}
	for _, c := range cals {
		if isSystemCalendar(c.Title) || (skipApp && c.Title == s.appName) {
			continue
		}
		result = append(result, domain.CalendarSelection{
			Identifier:  c.ID,
			DisplayName: c.Title,
			IsSelected:  selected[c.ID],
		})
	}
	return result, nil
}

// EnsureAppCalendar requests access and creates the app calendar if it does not exist yet.
// Returns true when a calendar was created.
func (s *CalendarService) EnsureAppCalendar(ctx context.Context) (bool, error) {
	granted, err := s.RequestAccess(ctx)
	if err != nil {
		return false, err
	}
	if !granted {
		return false, domain.ErrPermissionDenied
	}

	exists, err := s.CalendarExists(ctx, s.appName)
	if err != nil {
		return false, err
	}
	if exists {
		s.logger.Debug("app calendar already exists", zap.String("name", s.appName))
		return false, nil
	}

	if _, err := s.CreateCalendar(ctx, s.appName, s.appColor); err != nil {
		return false, err
	}
	return true, nil
}

// resolveCalendar returns the calendar with the given id, or the provider default when id is empty
func (s *CalendarService) resolveCalendar(ctx context.Context, id string) (*domain.Calendar, error) {
	var (
		cal *domain.Calendar
		err error
	)
	if id != "" {
		cal, err = s.provider.Calendar(ctx, id)
	} else {
		cal, err = s.provider.DefaultCalendar(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve calendar: %w", err)
	}
	if cal == nil {
		return nil, domain.NotFound("calendar")
	}
	return cal, nil
}

func isSystemCalendar(title string) bool {
	return systemCalendars[title] || strings.Contains(title, "Holidays")
}
