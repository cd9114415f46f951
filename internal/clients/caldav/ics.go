package caldav

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tazhate/calbridge/internal/domain"
	"github.com/tazhate/calbridge/internal/recurrence"
)

const productID = "-//calbridge//CalDAV//EN"

// eventToICS converts an Event to iCalendar format
func eventToICS(event *domain.Event, uid string) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, uid)
	vevent.Props.SetText(ical.PropSummary, event.Title)

	if event.Notes != "" {
		vevent.Props.SetText(ical.PropDescription, event.Notes)
	}
	if event.Location != "" {
		vevent.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.HasGeo() {
		geo := ical.NewProp(ical.PropGeo)
		geo.Value = strconv.FormatFloat(*event.Latitude, 'f', -1, 64) + ";" + strconv.FormatFloat(*event.Longitude, 'f', -1, 64)
		vevent.Props.Set(geo)
	}

	// Keep the event's own zone so TZID survives the round trip; UTC gets the Z suffix
	start, end := event.Start, event.End
	if event.Timezone != nil {
		start, end = start.In(event.Timezone), end.In(event.Timezone)
	} else {
		start, end = start.UTC(), end.UTC()
	}
	vevent.Props.SetDateTime(ical.PropDateTimeStart, start)
	if !end.IsZero() {
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, end)
	}

	if event.Recurrence != nil {
		rule, err := recurrence.Option(event.Recurrence)
		if err != nil {
			return nil, fmt.Errorf("encode recurrence: %w", err)
		}
		vevent.Props.SetRecurrenceRule(rule)
	}

	for _, a := range event.Alarms {
		alarm := ical.NewComponent(ical.CompAlarm)
		alarm.Props.SetText(ical.PropAction, "DISPLAY")
		alarm.Props.SetText(ical.PropDescription, event.Title)
		trigger := ical.NewProp(ical.PropTrigger)
		trigger.SetDuration(a.RelativeOffset)
		alarm.Props.Set(trigger)
		vevent.Children = append(vevent.Children, alarm)
	}

	vevent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	cal.Children = append(cal.Children, vevent.Component)
	return cal, nil
}

// parseEvent reads the master VEVENT of a calendar object. Overrides (RECURRENCE-ID) are skipped.
func parseEvent(cal *ical.Calendar, loc *time.Location) (*domain.Event, error) {
	master, _, err := splitObject(cal)
	if err != nil {
		return nil, err
	}
	return componentToEvent(master, orUTC(loc))
}

// expandObject returns the occurrences of a calendar object starting within [from, to).
// Overridden instances replace the occurrence they were moved from. A rule that cannot
// be expanded leaves the master as a single event.
func expandObject(cal *ical.Calendar, loc *time.Location, from, to time.Time) ([]domain.Event, error) {
	loc = orUTC(loc)
	master, overrides, err := splitObject(cal)
	if err != nil {
		return nil, err
	}
	ev, err := componentToEvent(master, loc)
	if err != nil {
		return nil, err
	}

	var result []domain.Event
	moved := make([]time.Time, 0, len(overrides))
	for _, comp := range overrides {
		rid, err := comp.Props.DateTime(ical.PropRecurrenceID, loc)
		if err != nil {
			continue
		}
		moved = append(moved, rid)
		occ, err := componentToEvent(comp, loc)
		if err != nil || occ.Start.Before(from) || !occ.Start.Before(to) {
			continue
		}
		result = append(result, *occ)
	}

	var starts []time.Time
	set, err := master.RecurrenceSet(loc)
	if err == nil && set != nil {
		for _, t := range moved {
			set.ExDate(t)
		}
		starts = recurrence.Between(set.Iterator(), from, to)
	} else if !ev.Start.Before(from) && ev.Start.Before(to) {
		starts = []time.Time{ev.Start}
	}

	duration := ev.End.Sub(ev.Start)
	for _, s := range starts {
		occ := *ev
		occ.Start = s
		occ.End = s.Add(duration)
		result = append(result, occ)
	}
	return result, nil
}

// splitObject separates the master VEVENT from its RECURRENCE-ID overrides
func splitObject(cal *ical.Calendar) (*ical.Component, []*ical.Component, error) {
	if cal == nil {
		return nil, nil, fmt.Errorf("no data in calendar object")
	}

	var master *ical.Component
	var overrides []*ical.Component
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		if comp.Props.Get(ical.PropRecurrenceID) != nil {
			overrides = append(overrides, comp)
			continue
		}
		if master == nil {
			master = comp
		}
	}
	if master == nil {
		return nil, nil, fmt.Errorf("no VEVENT in calendar object")
	}
	return master, overrides, nil
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

func componentToEvent(comp *ical.Component, loc *time.Location) (*domain.Event, error) {
	event := &domain.Event{
		Title:    textProp(comp, ical.PropSummary),
		Notes:    textProp(comp, ical.PropDescription),
		Location: textProp(comp, ical.PropLocation),
	}

	prop := comp.Props.Get(ical.PropDateTimeStart)
	if prop == nil {
		return nil, fmt.Errorf("event has no DTSTART")
	}
	start, err := prop.DateTime(loc)
	if err != nil {
		return nil, fmt.Errorf("parse DTSTART: %w", err)
	}
	event.Start = start
	allDay := prop.Params.Get(ical.ParamValue) == string(ical.ValueDate)
	if tzid := prop.Params.Get(ical.ParamTimezoneID); tzid != "" {
		if tz, err := time.LoadLocation(tzid); err == nil {
			event.Timezone = tz
		}
	}

	switch {
	case comp.Props.Get(ical.PropDateTimeEnd) != nil:
		end, err := comp.Props.Get(ical.PropDateTimeEnd).DateTime(loc)
		if err != nil {
			return nil, fmt.Errorf("parse DTEND: %w", err)
		}
		event.End = end
	case comp.Props.Get(ical.PropDuration) != nil:
		d, err := comp.Props.Get(ical.PropDuration).Duration()
		if err != nil {
			return nil, fmt.Errorf("parse DURATION: %w", err)
		}
		event.End = start.Add(d)
	case allDay:
		event.End = start.AddDate(0, 0, 1)
	default:
		event.End = start
	}

	if geo := comp.Props.Get(ical.PropGeo); geo != nil {
		if lat, lon, ok := parseGeo(geo.Value); ok {
			event.Latitude, event.Longitude = &lat, &lon
		}
	}

	// Only weekly rules are modelled; others still expand through the object's recurrence set
	if opt, err := comp.Props.RecurrenceRule(); err == nil && opt != nil {
		if r, err := recurrence.FromOption(opt); err == nil {
			event.Recurrence = r
		}
	}

	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		trigger := child.Props.Get(ical.PropTrigger)
		if trigger == nil || trigger.Params.Get(ical.ParamValue) == string(ical.ValueDateTime) {
			continue
		}
		d, err := trigger.Duration()
		if err != nil {
			continue
		}
		event.Alarms = append(event.Alarms, domain.Alarm{RelativeOffset: d})
	}

	return event, nil
}

func textProp(comp *ical.Component, name string) string {
	prop := comp.Props.Get(name)
	if prop == nil {
		return ""
	}
	if text, err := prop.Text(); err == nil {
		return text
	}
	return prop.Value
}

func parseGeo(value string) (float64, float64, bool) {
	parts := strings.SplitN(value, ";", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// SerializeCalendar converts calendar to string (for debugging)
func SerializeCalendar(cal *ical.Calendar) string {
	var buf bytes.Buffer
	enc := ical.NewEncoder(&buf)
	_ = enc.Encode(cal)
	return buf.String()
}
