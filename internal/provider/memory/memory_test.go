package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/calbridge/internal/domain"
	"github.com/tazhate/calbridge/internal/provider"
	"github.com/tazhate/calbridge/internal/recurrence"
)

func TestNewHasDefaultCalendar(t *testing.T) {
	ctx := context.Background()
	p := New()

	def, err := p.DefaultCalendar(ctx)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "Calendar", def.Title)

	src, err := p.DefaultSource(ctx)
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, src.ID, def.SourceID)
}

func TestWithoutSource(t *testing.T) {
	src, err := New(WithoutSource()).DefaultSource(context.Background())
	require.NoError(t, err)
	assert.Nil(t, src)
}

func TestMissingGettersReturnNil(t *testing.T) {
	ctx := context.Background()
	p := New()

	cal, err := p.Calendar(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, cal)

	ev, err := p.Event(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestEventsFiltersByCalendarAndRange(t *testing.T) {
	ctx := context.Background()
	p := New()
	p.AddCalendar(domain.Calendar{ID: "work", Title: "Work"})
	p.AddCalendar(domain.Calendar{ID: "home", Title: "Home"})

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for _, ev := range []domain.Event{
		{CalendarID: "work", Title: "in range", Start: base, End: base.Add(time.Hour)},
		{CalendarID: "work", Title: "too late", Start: base.Add(48 * time.Hour), End: base.Add(49 * time.Hour)},
		{CalendarID: "home", Title: "other calendar", Start: base, End: base.Add(time.Hour)},
	} {
		ev := ev
		require.NoError(t, p.SaveEvent(ctx, &ev))
	}

	got, err := p.Events(ctx, provider.Query{Start: base, End: base.Add(24 * time.Hour), CalendarIDs: []string{"work"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "in range", got[0].Title)

	none, err := p.Events(ctx, provider.Query{Start: base, End: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEventsExpandsWeeklyRecurrence(t *testing.T) {
	ctx := context.Background()
	p := New()
	def, _ := p.DefaultCalendar(ctx)

	// Sunday
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	ev := &domain.Event{
		CalendarID: def.ID,
		Title:      "Training",
		Start:      start,
		End:        start.Add(90 * time.Minute),
		Recurrence: recurrence.Weekly([]time.Weekday{time.Sunday, time.Thursday}),
	}
	require.NoError(t, p.SaveEvent(ctx, ev))

	got, err := p.Events(ctx, provider.Query{Start: start, End: start.AddDate(0, 0, 14), CalendarIDs: []string{def.ID}})
	require.NoError(t, err)
	require.Len(t, got, 4)
	for _, occ := range got {
		assert.Equal(t, ev.ID, occ.ID)
		assert.Equal(t, 90*time.Minute, occ.End.Sub(occ.Start))
	}
	assert.Equal(t, time.Thursday, got[1].Start.Weekday())
}

func TestRemoveCalendarDropsEvents(t *testing.T) {
	ctx := context.Background()
	p := New()
	p.AddCalendar(domain.Calendar{ID: "tmp", Title: "Tmp"})
	ev := &domain.Event{CalendarID: "tmp", Title: "x", Start: time.Now(), End: time.Now().Add(time.Hour)}
	require.NoError(t, p.SaveEvent(ctx, ev))

	require.NoError(t, p.RemoveCalendar(ctx, "tmp"))
	assert.Equal(t, 0, p.EventCount())
	require.Error(t, p.RemoveCalendar(ctx, "tmp"))
}

func TestFailRemoveAfter(t *testing.T) {
	ctx := context.Background()
	p := New()
	def, _ := p.DefaultCalendar(ctx)
	var ids []string
	for i := 0; i < 2; i++ {
		ev := &domain.Event{CalendarID: def.ID, Title: "x", Start: time.Now(), End: time.Now().Add(time.Hour)}
		require.NoError(t, p.SaveEvent(ctx, ev))
		ids = append(ids, ev.ID)
	}

	p.FailRemoveAfter = 1
	require.NoError(t, p.RemoveEvent(ctx, ids[0]))
	require.Error(t, p.RemoveEvent(ctx, ids[1]))
	assert.Equal(t, 1, p.EventCount())
}
