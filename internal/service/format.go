package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/tazhate/calbridge/internal/domain"
)

var weekdayShort = map[time.Weekday]string{
	time.Monday:    "Пн",
	time.Tuesday:   "Вт",
	time.Wednesday: "Ср",
	time.Thursday:  "Чт",
	time.Friday:    "Пт",
	time.Saturday:  "Сб",
	time.Sunday:    "Вс",
}

// FormatEventList renders events grouped by day, HTML parse mode
func FormatEventList(views []domain.EventView) string {
	if len(views) == 0 {
		return "Нет событий"
	}

	var sb strings.Builder
	lastDay := ""
	for i := range views {
		v := &views[i]
		day := v.Start.Format("02.01")
		if day != lastDay {
			if lastDay != "" {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("<b>%s %s</b>\n", weekdayShort[v.Start.Weekday()], day))
			lastDay = day
		}
		sb.WriteString(FormatEvent(v))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatEvent renders a single event line with optional location and reminder
func FormatEvent(v *domain.EventView) string {
	line := fmt.Sprintf("🕐 %s %s", v.FormatTime(), html.EscapeString(v.Title))
	if v.HasLocation() {
		switch {
		case v.LocationName != "":
			line += " 📍 " + html.EscapeString(v.LocationName)
		default:
			line += fmt.Sprintf(" 📍 %.3f, %.3f", v.Latitude, v.Longitude)
		}
	}
	if v.HasReminder() {
		line += fmt.Sprintf(" 🔔 %d мин", v.ReminderMinutesBefore)
	}
	if v.TimezoneOffset != "" {
		line += " (UTC" + v.TimezoneOffset + ")"
	}
	line += " <code>" + domain.Handle(v.EventID) + "</code>"
	return line
}

// FormatWeekdays renders weekdays as "Пн, Ср"
func FormatWeekdays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, weekdayShort[d])
	}
	return strings.Join(parts, ", ")
}
