package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/calbridge/internal/service"
)

const (
	defaultReminderMinutes = 15
	defaultEventDuration   = time.Hour
)

var weekdayNames = map[string]time.Weekday{
	"вс": time.Sunday, "пн": time.Monday, "вт": time.Tuesday, "ср": time.Wednesday,
	"чт": time.Thursday, "пт": time.Friday, "сб": time.Saturday,
	"su": time.Sunday, "mo": time.Monday, "tu": time.Tuesday, "we": time.Wednesday,
	"th": time.Thursday, "fr": time.Friday, "sa": time.Saturday,
}

var errUsage = errors.New("usage")

// parseEventArgs reads "<дата> <ЧЧ:ММ[-ЧЧ:ММ]> <название> [@место] [!мин] [| заметки]"
func parseEventArgs(args string, now time.Time, loc *time.Location) (service.CreateEventRequest, error) {
	var req service.CreateEventRequest

	fields := strings.Fields(args)
	if len(fields) < 3 {
		return req, errUsage
	}

	day, err := parseDate(fields[0], now.In(loc))
	if err != nil {
		return req, err
	}

	if err := fillTimes(&req, day, fields[1], loc); err != nil {
		return req, err
	}
	if err := fillDetails(&req, strings.Join(fields[2:], " ")); err != nil {
		return req, err
	}
	return req, nil
}

// parseWeeklyArgs reads "<пн,ср> <ЧЧ:ММ[-ЧЧ:ММ]> <название> [@место] [!мин] [| заметки]".
// The first occurrence is the nearest listed weekday whose start is still ahead.
func parseWeeklyArgs(args string, now time.Time, loc *time.Location) (service.CreateEventRequest, error) {
	var req service.CreateEventRequest

	fields := strings.Fields(args)
	if len(fields) < 3 {
		return req, errUsage
	}

	days, err := parseWeekdays(fields[0])
	if err != nil {
		return req, err
	}
	req.RecurrenceDays = days

	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	wanted := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		wanted[d] = true
	}

	for i := 0; i <= 7; i++ {
		day := today.AddDate(0, 0, i)
		if !wanted[day.Weekday()] {
			continue
		}
		if err := fillTimes(&req, day, fields[1], loc); err != nil {
			return req, err
		}
		if req.Start.After(now) {
			break
		}
	}

	if err := fillDetails(&req, strings.Join(fields[2:], " ")); err != nil {
		return req, err
	}
	return req, nil
}

func fillTimes(req *service.CreateEventRequest, day time.Time, value string, loc *time.Location) error {
	startText, endText, hasEnd := strings.Cut(value, "-")

	start, err := parseClock(startText)
	if err != nil {
		return err
	}
	req.Start = time.Date(day.Year(), day.Month(), day.Day(), start.Hour(), start.Minute(), 0, 0, loc)
	req.End = req.Start.Add(defaultEventDuration)

	if hasEnd {
		end, err := parseClock(endText)
		if err != nil {
			return err
		}
		req.End = time.Date(day.Year(), day.Month(), day.Day(), end.Hour(), end.Minute(), 0, 0, loc)
		if !req.End.After(req.Start) {
			return fmt.Errorf("время окончания %s раньше начала", endText)
		}
	}
	return nil
}

// fillDetails splits "<название> [@место] [!мин] [| заметки]"
func fillDetails(req *service.CreateEventRequest, text string) error {
	main, notes, _ := strings.Cut(text, "|")
	req.Notes = strings.TrimSpace(notes)
	req.ReminderMinutesBefore = defaultReminderMinutes

	var title, location []string
	inLocation := false
	for _, f := range strings.Fields(main) {
		switch {
		case strings.HasPrefix(f, "!") && len(f) > 1:
			n, err := strconv.Atoi(f[1:])
			if err != nil || n < 0 {
				return fmt.Errorf("неверное напоминание %q", f)
			}
			req.ReminderMinutesBefore = n
			inLocation = false
		case strings.HasPrefix(f, "@"):
			inLocation = true
			if rest := strings.TrimPrefix(f, "@"); rest != "" {
				location = append(location, rest)
			}
		case inLocation:
			location = append(location, f)
		default:
			title = append(title, f)
		}
	}

	req.Title = strings.Join(title, " ")
	req.Location = strings.Join(location, " ")
	if req.Title == "" {
		return errUsage
	}
	return nil
}

// parseDate accepts сегодня/завтра, DD.MM, DD.MM.YYYY and YYYY-MM-DD.
// DD.MM in the past refers to next year.
func parseDate(value string, now time.Time) (time.Time, error) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch strings.ToLower(value) {
	case "сегодня", "today":
		return today, nil
	case "завтра", "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}

	for _, layout := range []string{"02.01.2006", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}

	t, err := time.ParseInLocation("02.01", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("неверная дата %q", value)
	}
	t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	if t.Before(today) {
		t = t.AddDate(1, 0, 0)
	}
	return t, nil
}

func parseClock(value string) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("неверное время %q", value)
	}
	return t, nil
}

// parseWeekdays reads a comma separated list like "пн,ср,пт"
func parseWeekdays(value string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, part := range strings.Split(strings.ToLower(value), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, ok := weekdayNames[part]
		if !ok {
			return nil, fmt.Errorf("неизвестный день недели %q", part)
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, errUsage
	}
	return days, nil
}
