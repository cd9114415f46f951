package caldav

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/calbridge/internal/domain"
	"github.com/tazhate/calbridge/internal/recurrence"
)

func decode(t *testing.T, text string) *ical.Calendar {
	t.Helper()
	cal, err := ical.NewDecoder(strings.NewReader(text)).Decode()
	require.NoError(t, err)
	return cal
}

func TestEventRoundTrip(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	lat, lon := 23.81, 90.413
	start := time.Date(2026, 5, 4, 9, 30, 0, 0, kolkata)
	ev := &domain.Event{
		Title:      "Standup",
		Notes:      "Room 4, second floor",
		Location:   "Office",
		Latitude:   &lat,
		Longitude:  &lon,
		Timezone:   kolkata,
		Start:      start,
		End:        start.Add(30 * time.Minute),
		Alarms:     []domain.Alarm{domain.AlarmMinutesBefore(15)},
		Recurrence: recurrence.Weekly([]time.Weekday{time.Monday, time.Wednesday}),
	}

	cal, err := eventToICS(ev, "abc-123")
	require.NoError(t, err)

	text := SerializeCalendar(cal)
	assert.Contains(t, text, "TRIGGER:-PT900S")
	assert.Contains(t, text, "GEO:23.81;90.413")
	assert.Contains(t, text, "TZID=Asia/Kolkata")
	assert.Contains(t, text, "BYDAY=MO,WE")

	got, err := parseEvent(decode(t, text), time.UTC)
	require.NoError(t, err)

	assert.Equal(t, "Standup", got.Title)
	assert.Equal(t, "Room 4, second floor", got.Notes)
	assert.Equal(t, "Office", got.Location)
	assert.True(t, got.Start.Equal(ev.Start))
	assert.True(t, got.End.Equal(ev.End))
	require.NotNil(t, got.Timezone)
	assert.Equal(t, "Asia/Kolkata", got.Timezone.String())
	require.True(t, got.HasGeo())
	assert.InDelta(t, lat, *got.Latitude, 1e-9)
	assert.InDelta(t, lon, *got.Longitude, 1e-9)
	require.Len(t, got.Alarms, 1)
	assert.Equal(t, 15, got.Alarms[0].MinutesBefore())
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, got.Recurrence.Weekdays)
}

func TestParseEventUTCAndDuration(t *testing.T) {
	text := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:1\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"SUMMARY:Dentist\r\n" +
		"DTSTART:20260510T140000Z\r\n" +
		"DURATION:PT1H30M\r\n" +
		"RRULE:FREQ=DAILY\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	ev, err := parseEvent(decode(t, text), time.UTC)
	require.NoError(t, err)

	assert.Equal(t, "Dentist", ev.Title)
	assert.Nil(t, ev.Timezone)
	assert.False(t, ev.HasGeo())
	assert.Nil(t, ev.Recurrence, "non-weekly rules are read as single events")
	assert.Equal(t, 90*time.Minute, ev.End.Sub(ev.Start))
}

func TestParseEventSkipsOverrides(t *testing.T) {
	text := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:1\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"RECURRENCE-ID:20260511T140000Z\r\n" +
		"SUMMARY:Moved\r\n" +
		"DTSTART:20260511T160000Z\r\n" +
		"END:VEVENT\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:1\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"SUMMARY:Weekly sync\r\n" +
		"DTSTART:20260504T140000Z\r\n" +
		"DTEND:20260504T150000Z\r\n" +
		"RRULE:FREQ=WEEKLY;BYDAY=MO\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	ev, err := parseEvent(decode(t, text), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "Weekly sync", ev.Title)
	require.NotNil(t, ev.Recurrence)
	assert.Equal(t, []time.Weekday{time.Monday}, ev.Recurrence.Weekdays)
}

func TestParseEventWithoutVEvent(t *testing.T) {
	cal := ical.NewCalendar()
	_, err := parseEvent(cal, nil)
	assert.Error(t, err)

	_, err = parseEvent(nil, nil)
	assert.Error(t, err)
}

func TestParseEventAlarmTriggers(t *testing.T) {
	text := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:1\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"SUMMARY:Flight\r\n" +
		"DTSTART:20260510T140000Z\r\n" +
		"BEGIN:VALARM\r\n" +
		"ACTION:DISPLAY\r\n" +
		"TRIGGER:-P1DT2H\r\n" +
		"END:VALARM\r\n" +
		"BEGIN:VALARM\r\n" +
		"ACTION:DISPLAY\r\n" +
		"TRIGGER;VALUE=DATE-TIME:20260510T120000Z\r\n" +
		"END:VALARM\r\n" +
		"BEGIN:VALARM\r\n" +
		"ACTION:DISPLAY\r\n" +
		"TRIGGER:-PT15M\r\n" +
		"END:VALARM\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	ev, err := parseEvent(decode(t, text), time.UTC)
	require.NoError(t, err)
	require.Len(t, ev.Alarms, 2)
	assert.Equal(t, -26*time.Hour, ev.Alarms[0].RelativeOffset)
	assert.Equal(t, 15, ev.Alarms[1].MinutesBefore())
	assert.True(t, ev.End.Equal(ev.Start))
}

func weeklyObject(rule string, extra ...string) string {
	text := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:sync\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"SUMMARY:Weekly sync\r\n" +
		"DTSTART:20260504T140000Z\r\n" +
		"DTEND:20260504T150000Z\r\n" +
		"RRULE:" + rule + "\r\n"
	for _, line := range extra {
		text += line + "\r\n"
	}
	return text + "END:VEVENT\r\n" + "END:VCALENDAR\r\n"
}

func TestExpandObjectRules(t *testing.T) {
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		text  string
		count int
	}{
		{"weekly without BYDAY", weeklyObject("FREQ=WEEKLY;INTERVAL=1"), 13},
		{"count", weeklyObject("FREQ=WEEKLY;BYDAY=MO;COUNT=2"), 2},
		{"until", weeklyObject("FREQ=WEEKLY;BYDAY=MO;UNTIL=20260520T000000Z"), 3},
		{"exdate", weeklyObject("FREQ=WEEKLY;COUNT=3", "EXDATE:20260511T140000Z"), 2},
		{"daily", weeklyObject("FREQ=DAILY;COUNT=5"), 5},
		{"unreadable rule", weeklyObject("FREQ=SOMETIMES"), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := expandObject(decode(t, tc.text), time.UTC, from, to)
			require.NoError(t, err)
			require.Len(t, got, tc.count)
			for i, occ := range got {
				assert.Equal(t, "Weekly sync", occ.Title)
				assert.Equal(t, time.Hour, occ.End.Sub(occ.Start))
				if i > 0 {
					assert.True(t, occ.Start.After(got[i-1].Start))
				}
			}
			assert.True(t, got[0].Start.Equal(time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)))
		})
	}
}

func TestExpandObjectWindow(t *testing.T) {
	from := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)

	got, err := expandObject(decode(t, weeklyObject("FREQ=WEEKLY;BYDAY=MO")), time.UTC, from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Start.Equal(time.Date(2026, 5, 11, 14, 0, 0, 0, time.UTC)))
	assert.True(t, got[1].Start.Equal(time.Date(2026, 5, 18, 14, 0, 0, 0, time.UTC)))
}

func TestExpandObjectOverrides(t *testing.T) {
	text := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:1\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"RECURRENCE-ID:20260511T140000Z\r\n" +
		"SUMMARY:Moved sync\r\n" +
		"DTSTART:20260512T160000Z\r\n" +
		"DTEND:20260512T170000Z\r\n" +
		"END:VEVENT\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:1\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"SUMMARY:Weekly sync\r\n" +
		"DTSTART:20260504T140000Z\r\n" +
		"DTEND:20260504T150000Z\r\n" +
		"RRULE:FREQ=WEEKLY;BYDAY=MO;COUNT=3\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	got, err := expandObject(decode(t, text), time.UTC,
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 3)

	titles := map[string]int{}
	for _, occ := range got {
		titles[occ.Title]++
		assert.False(t, occ.Start.Equal(time.Date(2026, 5, 11, 14, 0, 0, 0, time.UTC)))
	}
	assert.Equal(t, 2, titles["Weekly sync"])
	assert.Equal(t, 1, titles["Moved sync"])
}
