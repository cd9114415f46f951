package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/calbridge/config"
	"github.com/tazhate/calbridge/internal/domain"
)

type stubLister struct {
	views      []domain.EventView
	err        error
	windowDays int
}

func (l *stubLister) ListSelectedEvents(ctx context.Context, windowDays int) ([]domain.EventView, error) {
	l.windowDays = windowDays
	return l.views, l.err
}

type sent struct {
	chatID int64
	text   string
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recordingSender) SendMessage(chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{chatID, text})
	return nil
}

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newScheduler(views []domain.EventView, err error) (*Scheduler, *recordingSender) {
	cfg := &config.Config{OwnerTelegramID: 1, PartnerTelegramID: 2, Timezone: time.UTC, MorningTime: "09:00"}
	s := New(cfg, &stubLister{views: views, err: err}, nil)
	s.now = func() time.Time { return now }
	sender := &recordingSender{}
	s.SetSender(sender)
	return s, sender
}

func event(id, title string, start time.Time, reminder int) domain.EventView {
	return domain.EventView{
		Title:                 title,
		Start:                 start,
		End:                   start.Add(time.Hour),
		StartTime:             start.Format(domain.DisplayTimeLayout),
		EventID:               id,
		Latitude:              domain.NoCoordinate,
		Longitude:             domain.NoCoordinate,
		ReminderMinutesBefore: reminder,
	}
}

func TestCronSpec(t *testing.T) {
	spec, err := cronSpec("09:30")
	require.NoError(t, err)
	assert.Equal(t, "30 9 * * *", spec)

	_, err = cronSpec("9am")
	assert.Error(t, err)
}

func TestMorningAgendaListsTodayOnly(t *testing.T) {
	s, sender := newScheduler([]domain.EventView{
		event("a", "Standup", now.Add(time.Hour), domain.NoReminder),
		event("b", "Tomorrow", now.Add(20*time.Hour), domain.NoReminder),
	}, nil)

	s.morningAgenda(context.Background())

	require.Len(t, sender.msgs, 2)
	assert.Equal(t, int64(1), sender.msgs[0].chatID)
	assert.Equal(t, int64(2), sender.msgs[1].chatID)
	assert.Contains(t, sender.msgs[0].text, "Standup")
	assert.NotContains(t, sender.msgs[0].text, "Tomorrow")
}

func TestMorningAgendaEmpty(t *testing.T) {
	s, sender := newScheduler(nil, nil)
	s.morningAgenda(context.Background())

	require.Len(t, sender.msgs, 2)
	assert.Contains(t, sender.msgs[0].text, "событий нет")
}

func TestMorningAgendaListFailure(t *testing.T) {
	s, sender := newScheduler(nil, errors.New("boom"))
	s.morningAgenda(context.Background())
	assert.Empty(t, sender.msgs)
}

func TestCheckRemindersFiresOnce(t *testing.T) {
	s, sender := newScheduler([]domain.EventView{
		event("due", "Dentist", now.Add(10*time.Minute), 15),
		event("later", "Dinner", now.Add(3*time.Hour), 15),
		event("silent", "Walk", now.Add(5*time.Minute), domain.NoReminder),
	}, nil)
	s.cfg.PartnerTelegramID = 0

	s.checkReminders(context.Background())
	s.checkReminders(context.Background())

	require.Len(t, sender.msgs, 1)
	assert.Contains(t, sender.msgs[0].text, "Dentist в 09:10")
}

func TestCheckRemindersForgetsPastOccurrences(t *testing.T) {
	s, _ := newScheduler([]domain.EventView{
		event("due", "Dentist", now.Add(10*time.Minute), 15),
	}, nil)

	s.checkReminders(context.Background())
	require.Len(t, s.notified, 1)

	s.now = func() time.Time { return now.Add(time.Hour) }
	s.checkReminders(context.Background())
	assert.Empty(t, s.notified)
}

func TestCheckRemindersLooksFarEnoughAhead(t *testing.T) {
	trip := now.Add(27*24*time.Hour + 30*time.Minute)
	s, sender := newScheduler([]domain.EventView{
		event("trip", "Trip", trip, 28*24*60),
	}, nil)
	s.cfg.PartnerTelegramID = 0

	s.checkReminders(context.Background())

	lister := s.events.(*stubLister)
	assert.GreaterOrEqual(t, lister.windowDays*24*60, 28*24*60+30)
	require.Len(t, sender.msgs, 1)
	assert.Contains(t, sender.msgs[0].text, "Trip")
}
