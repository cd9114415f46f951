package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tazhate/calbridge/internal/domain"
)

func view(title string, start time.Time) domain.EventView {
	return domain.EventView{
		Title:                 title,
		Start:                 start,
		End:                   start.Add(time.Hour),
		EventID:               "id-" + title,
		Latitude:              domain.NoCoordinate,
		Longitude:             domain.NoCoordinate,
		ReminderMinutesBefore: domain.NoReminder,
	}
}

func TestFormatEventListEmpty(t *testing.T) {
	assert.Equal(t, "Нет событий", FormatEventList(nil))
}

func TestFormatEventListGroupsByDay(t *testing.T) {
	mon := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	views := []domain.EventView{
		view("Standup", mon),
		view("Lunch", mon.Add(3*time.Hour)),
		view("Gym", mon.AddDate(0, 0, 1)),
	}

	text := FormatEventList(views)
	assert.Equal(t, 1, strings.Count(text, "<b>Пн 04.05</b>"))
	assert.Equal(t, 1, strings.Count(text, "<b>Вт 05.05</b>"))
	assert.Contains(t, text, "🕐 09:00-10:00 Standup")
	assert.Contains(t, text, domain.Handle("id-Gym"))
}

func TestFormatEventDetails(t *testing.T) {
	v := view("A & B", time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	v.LocationName = "Office"
	v.ReminderMinutesBefore = 15
	v.TimezoneOffset = "+05:30"

	line := FormatEvent(&v)
	assert.Contains(t, line, "A &amp; B")
	assert.Contains(t, line, "📍 Office")
	assert.Contains(t, line, "🔔 15 мин")
	assert.Contains(t, line, "(UTC+05:30)")

	v.LocationName = ""
	v.Latitude, v.Longitude = 23.81, 90.413
	assert.Contains(t, FormatEvent(&v), "📍 23.810, 90.413")
}

func TestFormatWeekdays(t *testing.T) {
	assert.Equal(t, "Пн, Ср", FormatWeekdays([]time.Weekday{time.Monday, time.Wednesday}))
}
