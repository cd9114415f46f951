package bot

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/calbridge/internal/domain"
)

func TestCalendarsKeyboard(t *testing.T) {
	longPath := "/calendars/" + strings.Repeat("x", 120) + "/"
	kb := calendarsKeyboard([]domain.CalendarSelection{
		{Identifier: longPath, DisplayName: "Work", IsSelected: true},
		{Identifier: "home", DisplayName: "Home"},
	})

	require.Len(t, kb.InlineKeyboard, 3)
	first := kb.InlineKeyboard[0][0]
	assert.Equal(t, "✅ Work", first.Text)
	require.NotNil(t, first.CallbackData)
	assert.Equal(t, "cal:"+domain.Handle(longPath), *first.CallbackData)
	assert.LessOrEqual(t, len(*first.CallbackData), 64)
	assert.Equal(t, "⬜ Home", kb.InlineKeyboard[1][0].Text)
}

func TestEventsKeyboardDedupesSeries(t *testing.T) {
	start := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	views := []domain.EventView{
		{Title: "Swim", EventID: "series", Start: start},
		{Title: "Swim", EventID: "series", Start: start.AddDate(0, 0, 2)},
		{Title: "Dentist", EventID: "single", Start: start.Add(5 * time.Hour)},
	}

	kb := eventsKeyboard(views)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "del:"+domain.Handle("series"), *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "del:"+domain.Handle("single"), *kb.InlineKeyboard[1][0].CallbackData)
	assert.Contains(t, kb.InlineKeyboard[0][0].Text, "04.05 08:00 Swim")
}

func TestEventsKeyboardLimit(t *testing.T) {
	var views []domain.EventView
	for i := 0; i < 25; i++ {
		views = append(views, domain.EventView{Title: "e", EventID: fmt.Sprintf("id-%d", i)})
	}
	kb := eventsKeyboard(views)
	assert.Len(t, kb.InlineKeyboard, maxDeleteButtons+1)
}

func TestFindByHandle(t *testing.T) {
	views := []domain.EventView{{EventID: "a"}, {EventID: "b"}}

	v := findByHandle(views, strings.ToUpper(domain.Handle("b")))
	require.NotNil(t, v)
	assert.Equal(t, "b", v.EventID)

	assert.Nil(t, findByHandle(views, "nothing"))
}

func TestErrorText(t *testing.T) {
	assert.Contains(t, errorText(domain.ErrPermissionDenied), "/grant")
	assert.Contains(t, errorText(fmt.Errorf("wrap: %w", domain.ErrConflict)), "уже есть")
	assert.Contains(t, errorText(domain.NotFound("calendar")), "calendar not found")
	assert.Contains(t, errorText(errors.New("a<b")), "a&lt;b")
}

func TestParseErrorText(t *testing.T) {
	assert.Equal(t, addEventUsage, parseErrorText(errUsage, addEventUsage))
	assert.True(t, strings.HasPrefix(parseErrorText(errors.New("bad"), addEventUsage), "❌ bad"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Приве…", truncate("Привет мир", 6))
}
