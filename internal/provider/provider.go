// Package provider defines the calendar backend the service talks to.
//
// Getters return (nil, nil) when the calendar or event does not exist; errors are reserved for
// backend failures.
package provider

import (
	"context"
	"time"

	"github.com/tazhate/calbridge/internal/domain"
)

// Query selects event occurrences whose start lies in [Start, End) on the given calendars.
// An empty CalendarIDs slice matches nothing.
type Query struct {
	Start       time.Time
	End         time.Time
	CalendarIDs []string
}

// Provider is the capability surface of a calendar backend
type Provider interface {
	// RequestAccess asks the backend for permission to read and write events
	RequestAccess(ctx context.Context) (bool, error)

	Calendars(ctx context.Context) ([]domain.Calendar, error)
	Calendar(ctx context.Context, id string) (*domain.Calendar, error)
	DefaultCalendar(ctx context.Context) (*domain.Calendar, error)
	DefaultSource(ctx context.Context) (*domain.Source, error)
	// SaveCalendar creates the calendar and fills in its ID
	SaveCalendar(ctx context.Context, cal *domain.Calendar) error
	RemoveCalendar(ctx context.Context, id string) error

	Events(ctx context.Context, q Query) ([]domain.Event, error)
	Event(ctx context.Context, id string) (*domain.Event, error)
	// SaveEvent creates the event and fills in its ID
	SaveEvent(ctx context.Context, ev *domain.Event) error
	RemoveEvent(ctx context.Context, id string) error
}
