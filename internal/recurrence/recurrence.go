// Package recurrence converts weekly event rules to and from RRULE values using rrule-go.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/tazhate/calbridge/internal/domain"
)

// maxOccurrences caps expansion of a single event within one query window.
const maxOccurrences = 5000

var byDay = []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Weekly builds a weekly recurrence with interval 1 over the given weekdays.
// Duplicates are dropped; order is preserved.
func Weekly(days []time.Weekday) *domain.Recurrence {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[time.Weekday]bool, len(days))
	var out []time.Weekday
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return &domain.Recurrence{Interval: 1, Weekdays: out}
}

// Option converts the rule into rrule-go options. Dtstart is left for the caller.
func Option(r *domain.Recurrence) (*rrule.ROption, error) {
	if r == nil {
		return nil, errors.New("no recurrence")
	}
	if r.Count < 0 {
		return nil, fmt.Errorf("invalid count %d", r.Count)
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 1
	}
	opt := &rrule.ROption{Freq: rrule.WEEKLY, Interval: interval, Count: r.Count, Until: r.Until}
	for _, d := range r.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return nil, fmt.Errorf("invalid weekday %d", d)
		}
		opt.Byweekday = append(opt.Byweekday, byDay[d])
	}
	return opt, nil
}

// String renders the rule as an RRULE value, e.g. "FREQ=WEEKLY;INTERVAL=1;BYDAY=SU,TH".
func String(r *domain.Recurrence) (string, error) {
	opt, err := Option(r)
	if err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

// FromOption reads weekly options. Other frequencies return an error.
func FromOption(opt *rrule.ROption) (*domain.Recurrence, error) {
	if opt == nil {
		return nil, errors.New("no recurrence")
	}
	if opt.Freq != rrule.WEEKLY {
		return nil, fmt.Errorf("unsupported frequency %v", opt.Freq)
	}
	r := &domain.Recurrence{Interval: opt.Interval, Count: opt.Count, Until: opt.Until}
	if r.Interval <= 0 {
		r.Interval = 1
	}
	for _, wd := range opt.Byweekday {
		// rrule-go counts from Monday = 0
		r.Weekdays = append(r.Weekdays, time.Weekday((wd.Day()+1)%7))
	}
	return r, nil
}

// Parse reads an RRULE value. Only weekly rules are understood.
func Parse(value string) (*domain.Recurrence, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return nil, fmt.Errorf("parse rrule: %w", err)
	}
	return FromOption(opt)
}

// Occurrences returns the start times of a recurring event within [from, to).
// A nil recurrence yields the single start time if it falls in range.
func Occurrences(start time.Time, r *domain.Recurrence, from, to time.Time) ([]time.Time, error) {
	if r == nil {
		if !start.Before(from) && start.Before(to) {
			return []time.Time{start}, nil
		}
		return nil, nil
	}

	opt, err := Option(r)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = start
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}
	return Between(rule.Iterator(), from, to), nil
}

// Between drains an occurrence iterator into the times within [from, to).
func Between(next func() (time.Time, bool), from, to time.Time) []time.Time {
	var out []time.Time
	for {
		t, ok := next()
		if !ok || !t.Before(to) || len(out) >= maxOccurrences {
			break
		}
		if t.Before(from) {
			continue
		}
		out = append(out, t)
	}
	return out
}
