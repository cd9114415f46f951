package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/tazhate/calbridge/internal/domain"
	"github.com/tazhate/calbridge/internal/service"
)

const (
	addEventUsage  = "Формат: /addevent 10.05 14:00-15:00 Стоматолог @Клиника !30 | взять полис"
	addWeeklyUsage = "Формат: /addweekly пн,ср 08:00-09:00 Бассейн @Спорткомплекс !15"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	switch cmd {
	case "start":
		b.cmdStart(chatID, msg.From)
	case "help":
		b.cmdHelp(chatID)
	case "grant":
		b.cmdGrant(ctx, chatID)
	case "addevent":
		b.cmdAddEvent(ctx, chatID, args)
	case "addweekly":
		b.cmdAddWeekly(ctx, chatID, args)
	case "removecalendar":
		b.cmdRemoveCalendar(ctx, chatID, args)
	case "removeall":
		b.cmdRemoveAll(ctx, chatID, args)
	case "calendars":
		b.cmdCalendars(ctx, chatID)
	case "events":
		b.cmdEvents(ctx, chatID)
	case "delete":
		b.cmdDelete(ctx, chatID, args)
	default:
		b.SendMessage(chatID, "Неизвестная команда. /help для списка команд")
	}
}

func (b *Bot) cmdStart(chatID int64, from *tgbotapi.User) {
	name := from.FirstName
	if from.LastName != "" {
		name += " " + from.LastName
	}
	text := fmt.Sprintf("👋 Привет, %s!\n\nЯ помогу работать с календарём <b>%s</b>.\n\n/help — список команд",
		html.EscapeString(name), html.EscapeString(b.calendars.AppCalendarName()))
	b.SendMessageWithKeyboard(chatID, text, mainMenuKeyboard())
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Команды:</b>

<b>Календарь</b>
/grant — получить доступ и создать календарь
/removecalendar [название] — удалить календарь
/calendars — выбрать календари для списка

<b>События</b>
/addevent дата время название — добавить событие
/addweekly дни время название — еженедельное событие
/events — события выбранных календарей
/delete код — удалить событие
/removeall название — удалить все будущие события с названием

<b>Другое</b>
/help — эта справка

💡 Дата: сегодня, завтра, 10.05, 2026-05-10
💡 @Место, !30 — напоминание за 30 минут, | заметки`

	b.SendMessage(chatID, text)
}

func (b *Bot) cmdGrant(ctx context.Context, chatID int64) {
	created, err := b.calendars.EnsureAppCalendar(ctx)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	name := html.EscapeString(b.calendars.AppCalendarName())
	if created {
		b.SendMessage(chatID, fmt.Sprintf("✅ Доступ получен, календарь <b>%s</b> создан", name))
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("✅ Доступ есть, календарь <b>%s</b> уже существует", name))
}

// appCalendarID returns the app calendar when it exists; empty means the provider default
func (b *Bot) appCalendarID(ctx context.Context) string {
	id, err := b.calendars.CalendarIDByTitle(ctx, b.calendars.AppCalendarName())
	if err != nil {
		b.logger.Warn("lookup app calendar failed", zap.Error(err))
		return ""
	}
	return id
}

func (b *Bot) cmdAddEvent(ctx context.Context, chatID int64, args string) {
	req, err := parseEventArgs(args, time.Now(), b.calendars.Timezone())
	if err != nil {
		b.SendMessage(chatID, parseErrorText(err, addEventUsage))
		return
	}
	b.createEvent(ctx, chatID, req)
}

func (b *Bot) cmdAddWeekly(ctx context.Context, chatID int64, args string) {
	req, err := parseWeeklyArgs(args, time.Now(), b.calendars.Timezone())
	if err != nil {
		b.SendMessage(chatID, parseErrorText(err, addWeeklyUsage))
		return
	}
	b.createEvent(ctx, chatID, req)
}

func (b *Bot) createEvent(ctx context.Context, chatID int64, req service.CreateEventRequest) {
	req.CalendarID = b.appCalendarID(ctx)

	ev, err := b.calendars.CreateEvent(ctx, req)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	text := fmt.Sprintf("✅ Событие добавлено\n\n<b>%s</b>\n📅 %s",
		html.EscapeString(ev.Title), req.Start.Format("02.01.2006 15:04")+"-"+req.End.Format("15:04"))
	if ev.Location != "" {
		text += "\n📍 " + html.EscapeString(ev.Location)
	}
	if ev.Recurrence != nil {
		text += "\n🔁 " + service.FormatWeekdays(ev.Recurrence.Weekdays)
	}
	text += fmt.Sprintf("\n🔔 за %d мин", req.ReminderMinutesBefore)
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdRemoveCalendar(ctx context.Context, chatID int64, args string) {
	name := args
	if name == "" {
		name = b.calendars.AppCalendarName()
	}

	id, err := b.calendars.CalendarIDByTitle(ctx, name)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}
	if id == "" {
		b.SendMessage(chatID, fmt.Sprintf("Календарь <b>%s</b> не найден", html.EscapeString(name)))
		return
	}

	if err := b.calendars.RemoveCalendar(ctx, id); err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}
	b.selections.Remove(ctx, id)
	b.SendMessage(chatID, fmt.Sprintf("🗑 Календарь <b>%s</b> удалён", html.EscapeString(name)))
}

func (b *Bot) cmdRemoveAll(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.SendMessage(chatID, "Укажи название: /removeall Бассейн")
		return
	}

	removed, err := b.calendars.RemoveEvents(ctx, args, b.appCalendarID(ctx), time.Time{}, time.Time{})
	if err != nil {
		var partial *domain.PartialRemovalError
		if errors.As(err, &partial) {
			b.SendMessage(chatID, fmt.Sprintf("⚠️ Удалено %d, затем ошибка: %s", partial.Removed, html.EscapeString(partial.Err.Error())))
			return
		}
		b.SendMessage(chatID, errorText(err))
		return
	}
	if removed == 0 {
		b.SendMessage(chatID, "Событий с таким названием нет")
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("🗑 Удалено событий: %d", removed))
}

func (b *Bot) cmdCalendars(ctx context.Context, chatID int64) {
	text, kb, err := b.calendarsView(ctx)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}
	b.SendMessageWithKeyboard(chatID, text, kb)
}

func (b *Bot) calendarsView(ctx context.Context) (string, tgbotapi.InlineKeyboardMarkup, error) {
	sels, err := b.calendars.SelectableCalendars(ctx, false)
	if err != nil {
		return "", tgbotapi.InlineKeyboardMarkup{}, err
	}
	text := "<b>🗂 Календари</b>\n\nОтметь календари, события которых показывать в /events"
	if len(sels) == 0 {
		text = "<b>🗂 Календари</b>\n\nНет доступных календарей"
	}
	return text, calendarsKeyboard(sels), nil
}

func (b *Bot) cmdEvents(ctx context.Context, chatID int64) {
	text, kb := b.eventsView(ctx)
	b.SendMessageWithKeyboard(chatID, text, kb)
}

// eventsView renders the selected calendars; list failures show as an empty list
func (b *Bot) eventsView(ctx context.Context) (string, tgbotapi.InlineKeyboardMarkup) {
	views, err := b.calendars.ListSelectedEvents(ctx, b.cfg.Calendar.ListWindowDays)
	if err != nil {
		b.logger.Warn("list events failed", zap.Error(err))
		views = nil
	}

	text := fmt.Sprintf("<b>📅 События на %d дн.</b>\n\n", b.cfg.Calendar.ListWindowDays)
	if len(b.selections.List(ctx)) == 0 {
		text += "Календари не выбраны. /calendars"
	} else {
		text += service.FormatEventList(views)
	}
	return text, eventsKeyboard(views)
}

func (b *Bot) cmdDelete(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.SendMessage(chatID, "Укажи код события из /events: /delete 1a2b3c4d5e")
		return
	}

	v, err := b.findEvent(ctx, args)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}
	if err := b.calendars.RemoveEvent(ctx, v.EventID); err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("🗑 Событие <b>%s</b> удалено", html.EscapeString(v.Title)))
}

// findEvent resolves a handle against the current event list
func (b *Bot) findEvent(ctx context.Context, handle string) (*domain.EventView, error) {
	views, err := b.calendars.ListSelectedEvents(ctx, b.cfg.Calendar.ListWindowDays)
	if err != nil {
		return nil, err
	}
	if v := findByHandle(views, handle); v != nil {
		return v, nil
	}
	return nil, domain.NotFound("event")
}

func findByHandle(views []domain.EventView, handle string) *domain.EventView {
	handle = strings.ToLower(strings.TrimSpace(handle))
	for i := range views {
		if domain.Handle(views[i].EventID) == handle {
			return &views[i]
		}
	}
	return nil
}

func parseErrorText(err error, usage string) string {
	if errors.Is(err, errUsage) {
		return usage
	}
	return "❌ " + html.EscapeString(err.Error()) + "\n\n" + usage
}

// errorText maps calendar errors to user messages
func errorText(err error) string {
	switch domain.CodeOf(err) {
	case domain.ErrPermissionDenied.Code:
		return "⛔ Нет доступа к календарю. Проверь учётные данные и выполни /grant"
	case domain.ErrConflict.Code:
		return "⚠️ Событие с таким названием уже есть в это время"
	case domain.ErrNotFound.Code:
		return "🤷 Не найдено: " + html.EscapeString(err.Error())
	case domain.ErrNoDefaultSource.Code:
		return "❌ Не найден источник календарей для создания нового календаря"
	case domain.ErrValidation.Code:
		return "❌ Неверные данные события"
	}
	return "❌ Ошибка: " + html.EscapeString(err.Error())
}
