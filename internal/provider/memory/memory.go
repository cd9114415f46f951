// Package memory is an in-process calendar provider, used by tests and by CALENDAR_PROVIDER=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tazhate/calbridge/internal/domain"
	"github.com/tazhate/calbridge/internal/provider"
	"github.com/tazhate/calbridge/internal/recurrence"
)

// Provider keeps calendars and events in maps
type Provider struct {
	mu sync.RWMutex

	granted   bool
	accessErr error

	source          *domain.Source
	defaultCalendar string
	calendars       map[string]*domain.Calendar
	calendarOrder   []string
	events          map[string]*domain.Event

	// FailRemoveAfter makes RemoveEvent fail once this many removals succeeded (<0 disables)
	FailRemoveAfter int
	removed         int
}

var _ provider.Provider = (*Provider)(nil)

// Option configures a Provider
type Option func(*Provider)

// WithAccess sets the answer RequestAccess gives
func WithAccess(granted bool, err error) Option {
	return func(p *Provider) {
		p.granted = granted
		p.accessErr = err
	}
}

// WithoutSource removes the default source so SaveCalendar callers see no source
func WithoutSource() Option {
	return func(p *Provider) {
		p.source = nil
	}
}

// New creates a provider with one local source and a default "Calendar" calendar
func New(opts ...Option) *Provider {
	p := &Provider{
		granted:         true,
		source:          &domain.Source{ID: "local", Title: "On My Device"},
		calendars:       make(map[string]*domain.Calendar),
		events:          make(map[string]*domain.Event),
		FailRemoveAfter: -1,
	}
	for _, opt := range opts {
		opt(p)
	}

	def := &domain.Calendar{ID: uuid.NewString(), Title: "Calendar", Color: "#1E90FF"}
	if p.source != nil {
		def.SourceID = p.source.ID
	}
	p.addCalendar(def)
	p.defaultCalendar = def.ID
	return p
}

func (p *Provider) addCalendar(cal *domain.Calendar) {
	p.calendars[cal.ID] = cal
	p.calendarOrder = append(p.calendarOrder, cal.ID)
}

// AddCalendar inserts a calendar with a fixed ID (test helper)
func (p *Provider) AddCalendar(cal domain.Calendar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cal.ID == "" {
		cal.ID = uuid.NewString()
	}
	p.addCalendar(&cal)
}

// SetDefaultCalendar changes the calendar used when no explicit target is given
func (p *Provider) SetDefaultCalendar(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultCalendar = id
}

func (p *Provider) RequestAccess(ctx context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.granted, p.accessErr
}

func (p *Provider) Calendars(ctx context.Context) ([]domain.Calendar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]domain.Calendar, 0, len(p.calendarOrder))
	for _, id := range p.calendarOrder {
		if cal, ok := p.calendars[id]; ok {
			result = append(result, *cal)
		}
	}
	return result, nil
}

func (p *Provider) Calendar(ctx context.Context, id string) (*domain.Calendar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cal, ok := p.calendars[id]
	if !ok {
		return nil, nil
	}
	c := *cal
	return &c, nil
}

func (p *Provider) DefaultCalendar(ctx context.Context) (*domain.Calendar, error) {
	return p.Calendar(ctx, p.defaultCalendarID())
}

func (p *Provider) defaultCalendarID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultCalendar
}

func (p *Provider) DefaultSource(ctx context.Context) (*domain.Source, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.source == nil {
		return nil, nil
	}
	s := *p.source
	return &s, nil
}

func (p *Provider) SaveCalendar(ctx context.Context, cal *domain.Calendar) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cal.ID == "" {
		cal.ID = uuid.NewString()
	}
	c := *cal
	if _, exists := p.calendars[c.ID]; exists {
		p.calendars[c.ID] = &c
		return nil
	}
	p.addCalendar(&c)
	return nil
}

func (p *Provider) RemoveCalendar(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.calendars[id]; !ok {
		return fmt.Errorf("calendar %s not found", id)
	}
	delete(p.calendars, id)
	for i, cid := range p.calendarOrder {
		if cid == id {
			p.calendarOrder = append(p.calendarOrder[:i], p.calendarOrder[i+1:]...)
			break
		}
	}
	for eid, ev := range p.events {
		if ev.CalendarID == id {
			delete(p.events, eid)
		}
	}
	if p.defaultCalendar == id {
		p.defaultCalendar = ""
	}
	return nil
}

// Events expands recurring events and returns every occurrence starting in [q.Start, q.End)
func (p *Provider) Events(ctx context.Context, q provider.Query) ([]domain.Event, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	wanted := make(map[string]bool, len(q.CalendarIDs))
	for _, id := range q.CalendarIDs {
		wanted[id] = true
	}

	var result []domain.Event
	for _, ev := range p.events {
		if !wanted[ev.CalendarID] {
			continue
		}
		starts, err := recurrence.Occurrences(ev.Start, ev.Recurrence, q.Start, q.End)
		if err != nil {
			return nil, fmt.Errorf("expand event %s: %w", ev.ID, err)
		}
		duration := ev.End.Sub(ev.Start)
		for _, s := range starts {
			occ := cloneEvent(ev)
			occ.Start = s
			occ.End = s.Add(duration)
			result = append(result, occ)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Start.Equal(result[j].Start) {
			return result[i].ID < result[j].ID
		}
		return result[i].Start.Before(result[j].Start)
	})
	return result, nil
}

func (p *Provider) Event(ctx context.Context, id string) (*domain.Event, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ev, ok := p.events[id]
	if !ok {
		return nil, nil
	}
	e := cloneEvent(ev)
	return &e, nil
}

func (p *Provider) SaveEvent(ctx context.Context, ev *domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.calendars[ev.CalendarID]; !ok {
		return fmt.Errorf("calendar %s not found", ev.CalendarID)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	e := cloneEvent(ev)
	p.events[e.ID] = &e
	return nil
}

func (p *Provider) RemoveEvent(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailRemoveAfter >= 0 && p.removed >= p.FailRemoveAfter {
		return fmt.Errorf("remove event %s: injected failure", id)
	}
	if _, ok := p.events[id]; !ok {
		return fmt.Errorf("event %s not found", id)
	}
	delete(p.events, id)
	p.removed++
	return nil
}

// EventCount returns the number of stored events (series count, not occurrences)
func (p *Provider) EventCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.events)
}

func cloneEvent(ev *domain.Event) domain.Event {
	e := *ev
	if ev.Alarms != nil {
		e.Alarms = append([]domain.Alarm(nil), ev.Alarms...)
	}
	if ev.Recurrence != nil {
		r := *ev.Recurrence
		r.Weekdays = append(r.Weekdays[:0:0], ev.Recurrence.Weekdays...)
		e.Recurrence = &r
	}
	return e
}
