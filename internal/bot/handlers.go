package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/tazhate/calbridge/internal/domain"
)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	if !b.cfg.IsAllowedUser(msg.From.ID) {
		b.SendMessage(chatID, "⛔ Доступ запрещён")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		b.logger.Debug("command", zap.String("command", msg.Command()), zap.Int64("user_id", msg.From.ID))
		b.handleCommand(ctx, msg)
		return
	}

	b.SendMessage(chatID, "Чтобы добавить событие: /addevent завтра 10:00 "+html.EscapeString(text)+"\n\n/help — список команд")
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	msgID := callback.Message.MessageID

	if !b.cfg.IsAllowedUser(callback.From.ID) {
		b.answer(callback.ID, "⛔ Доступ запрещён")
		return
	}

	action, arg, _ := strings.Cut(callback.Data, ":")

	switch action {
	case "cal":
		b.toggleCalendar(ctx, callback, arg)

	case "del":
		v, err := b.findEvent(ctx, arg)
		if err != nil {
			b.answer(callback.ID, "Событие не найдено")
			return
		}
		b.answer(callback.ID, "")

		text := fmt.Sprintf("🗑 Удалить событие?\n\n<b>%s</b>\n📅 %s", html.EscapeString(v.Title), v.StartTime)
		kb := confirmDeleteKeyboard(arg)
		b.editMessage(chatID, msgID, text, &kb)

	case "confirm_del":
		v, err := b.findEvent(ctx, arg)
		if err != nil {
			b.answer(callback.ID, "Событие не найдено")
			return
		}
		if err := b.calendars.RemoveEvent(ctx, v.EventID); err != nil {
			b.answer(callback.ID, "❌ Не удалось удалить")
			b.SendMessage(chatID, errorText(err))
			return
		}
		b.answer(callback.ID, "🗑 Удалено")
		b.showEvents(ctx, chatID, msgID)

	case "menu", "refresh":
		b.answer(callback.ID, "")
		switch arg {
		case "events":
			b.showEvents(ctx, chatID, msgID)
		case "calendars":
			b.showCalendars(ctx, chatID, msgID)
		case "grant":
			b.cmdGrant(ctx, chatID)
		}

	default:
		b.answer(callback.ID, "")
	}
}

// toggleCalendar flips the selection of the calendar behind handle and redraws the keyboard
func (b *Bot) toggleCalendar(ctx context.Context, callback *tgbotapi.CallbackQuery, handle string) {
	sels, err := b.calendars.SelectableCalendars(ctx, false)
	if err != nil {
		b.answer(callback.ID, "❌ Нет доступа к календарям")
		return
	}

	for _, sel := range sels {
		if domain.Handle(sel.Identifier) != handle {
			continue
		}
		if b.selections.Toggle(ctx, sel) {
			b.answer(callback.ID, "✅ "+sel.DisplayName)
		} else {
			b.answer(callback.ID, "⬜ "+sel.DisplayName)
		}
		b.showCalendars(ctx, callback.Message.Chat.ID, callback.Message.MessageID)
		return
	}
	b.answer(callback.ID, "Календарь не найден")
}

func (b *Bot) showCalendars(ctx context.Context, chatID int64, msgID int) {
	text, kb, err := b.calendarsView(ctx)
	if err != nil {
		b.editMessage(chatID, msgID, errorText(err), nil)
		return
	}
	b.editMessage(chatID, msgID, text, &kb)
}

func (b *Bot) showEvents(ctx context.Context, chatID int64, msgID int) {
	text, kb := b.eventsView(ctx)
	b.editMessage(chatID, msgID, text, &kb)
}
