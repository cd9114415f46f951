package scheduler

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tazhate/calbridge/config"
	"github.com/tazhate/calbridge/internal/domain"
	"github.com/tazhate/calbridge/internal/service"
)

type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

// EventLister is the part of the calendar service the scheduler reads from
type EventLister interface {
	ListSelectedEvents(ctx context.Context, windowDays int) ([]domain.EventView, error)
}

type Scheduler struct {
	cron   *cron.Cron
	cfg    *config.Config
	events EventLister
	sender MessageSender
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	notified map[string]time.Time // occurrence key -> start
}

func New(cfg *config.Config, events EventLister, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	location := cfg.Timezone
	if location == nil {
		location = time.UTC
	}

	c := cron.New(cron.WithLocation(location))

	return &Scheduler{
		cron:     c,
		cfg:      cfg,
		events:   events,
		logger:   logger,
		now:      time.Now,
		notified: make(map[string]time.Time),
	}
}

func (s *Scheduler) SetSender(sender MessageSender) {
	s.sender = sender
}

// cronSpec converts "HH:MM" into a daily cron expression
func cronSpec(hhmm string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return "", fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	// Утренняя сводка
	morningSpec, err := cronSpec(s.cfg.MorningTime)
	if err != nil {
		return fmt.Errorf("morning agenda: %w", err)
	}
	if _, err := s.cron.AddFunc(morningSpec, func() { s.morningAgenda(ctx) }); err != nil {
		return fmt.Errorf("add morning agenda: %w", err)
	}

	// Проверка напоминаний каждую минуту
	if _, err := s.cron.AddFunc("* * * * *", func() { s.checkReminders(ctx) }); err != nil {
		return fmt.Errorf("add reminder check: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.Stringer("timezone", s.cron.Location()),
		zap.String("morning", s.cfg.MorningTime))

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) recipients() []int64 {
	ids := []int64{s.cfg.OwnerTelegramID}
	if s.cfg.PartnerTelegramID != 0 {
		ids = append(ids, s.cfg.PartnerTelegramID)
	}
	return ids
}

func (s *Scheduler) send(text string) {
	for _, id := range s.recipients() {
		if err := s.sender.SendMessage(id, text); err != nil {
			s.logger.Warn("send message failed", zap.Int64("chat_id", id), zap.Error(err))
		}
	}
}

func (s *Scheduler) morningAgenda(ctx context.Context) {
	if s.sender == nil {
		return
	}

	views, err := s.events.ListSelectedEvents(ctx, 1)
	if err != nil {
		s.logger.Error("list today events failed", zap.Error(err))
		return
	}

	now := s.now()
	today := views[:0:0]
	for _, v := range views {
		if v.IsToday(now) {
			today = append(today, v)
		}
	}

	text := "☀️ <b>Доброе утро!</b>\n\n"
	if len(today) == 0 {
		text += "На сегодня событий нет."
	} else {
		text += fmt.Sprintf("<b>Сегодня событий: %d</b>\n\n", len(today))
		text += service.FormatEventList(today)
	}
	s.send(text)
}

// reminderWindowDays covers the earliest a reminder can fire before its event
const reminderWindowDays = service.MaxReminderMinutes/(24*60) + 1

// checkReminders notifies about occurrences whose alarm time has passed but which have not started yet
func (s *Scheduler) checkReminders(ctx context.Context) {
	if s.sender == nil {
		return
	}

	views, err := s.events.ListSelectedEvents(ctx, reminderWindowDays)
	if err != nil {
		s.logger.Error("list upcoming events failed", zap.Error(err))
		return
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, start := range s.notified {
		if start.Before(now) {
			delete(s.notified, key)
		}
	}

	for i := range views {
		v := &views[i]
		if !v.HasReminder() {
			continue
		}
		fireAt := v.Start.Add(-time.Duration(v.ReminderMinutesBefore) * time.Minute)
		if now.Before(fireAt) || !now.Before(v.Start) {
			continue
		}
		key := v.EventID + "@" + v.StartTime
		if _, done := s.notified[key]; done {
			continue
		}
		s.notified[key] = v.Start

		text := fmt.Sprintf("🔔 <b>Напоминание</b>\n\n%s в %s", html.EscapeString(v.Title), v.Start.Format("15:04"))
		if v.LocationName != "" {
			text += "\n📍 " + html.EscapeString(v.LocationName)
		}
		s.send(text)
	}
}
