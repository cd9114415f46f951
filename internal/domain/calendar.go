package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// Sentinel values used by EventView when the provider event lacks an attribute
const (
	NoCoordinate = -99.0
	NoReminder   = -99
)

// DisplayTimeLayout is the layout used for EventView start/end strings
const DisplayTimeLayout = "2006-01-02 15:04:05"

// DefaultListWindowDays is how far ahead ListEvents looks when no window is given
const DefaultListWindowDays = 30

// Calendar represents a provider calendar
type Calendar struct {
	ID       string
	Title    string
	Color    string // "#RRGGBB"
	SourceID string
	ReadOnly bool
}

// Source is the account a calendar lives in (iCloud, local, ...)
type Source struct {
	ID    string
	Title string
}

// Alarm fires RelativeOffset from the event start (negative = before)
type Alarm struct {
	RelativeOffset time.Duration
}

// AlarmMinutesBefore builds an alarm firing the given number of minutes before start
func AlarmMinutesBefore(minutes int) Alarm {
	return Alarm{RelativeOffset: -time.Duration(minutes) * time.Minute}
}

// MinutesBefore returns the alarm offset as positive minutes before start
func (a Alarm) MinutesBefore() int {
	return int(-a.RelativeOffset / time.Minute)
}

// Recurrence is a weekly rule repeating on a set of weekdays.
// No weekdays means the weekday of the event start. Count and Until bound the series when set.
type Recurrence struct {
	Interval int
	Weekdays []time.Weekday
	Count    int
	Until    time.Time
}

// Event represents a provider event (or a single occurrence of a recurring one)
type Event struct {
	ID         string
	CalendarID string
	Title      string
	Notes      string
	Location   string
	Latitude   *float64
	Longitude  *float64
	Timezone   *time.Location
	Start      time.Time
	End        time.Time
	Alarms     []Alarm
	Recurrence *Recurrence
}

// HasGeo returns true if the event carries coordinates
func (e *Event) HasGeo() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// CalendarSelection is a calendar the user chose to read events from
type CalendarSelection struct {
	Identifier  string `json:"identifier"`
	DisplayName string `json:"name"`
	IsSelected  bool   `json:"isSelected"`
}

// EventView is the display projection of a provider event
type EventView struct {
	Title                 string
	Start                 time.Time
	End                   time.Time
	StartTime             string
	EndTime               string
	CalendarID            string
	EventID               string
	Notes                 string
	Latitude              float64
	Longitude             float64
	TimezoneOffset        string
	ReminderMinutesBefore int
	LocationName          string
}

// HasLocation returns true if the view has a named location or coordinates
func (v *EventView) HasLocation() bool {
	return v.LocationName != "" || (v.Latitude != NoCoordinate && v.Longitude != NoCoordinate)
}

// HasReminder returns true if the projected event had an alarm
func (v *EventView) HasReminder() bool {
	return v.ReminderMinutesBefore != NoReminder
}

// FormatTime returns formatted time for display
func (v *EventView) FormatTime() string {
	if v.End.IsZero() {
		return v.Start.Format("15:04")
	}
	return v.Start.Format("15:04") + "-" + v.End.Format("15:04")
}

// IsToday returns true if event starts today in the view's timezone
func (v *EventView) IsToday(now time.Time) bool {
	now = now.In(v.Start.Location())
	return v.Start.Year() == now.Year() && v.Start.YearDay() == now.YearDay()
}

// RoundCoordinate rounds to 3 decimal places
func RoundCoordinate(c float64) float64 {
	return math.Round(c*1000) / 1000
}

// FormatOffset renders a UTC offset in seconds as "+hh:mm"
func FormatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("%c%02d:%02d", sign, seconds/3600, (seconds/60)%60)
}

// Handle is a short stable reference to a long provider ID, small enough for Telegram callback data
func Handle(id string) string {
	sum := sha1.Sum([]byte(id))
	return hex.EncodeToString(sum[:5])
}
