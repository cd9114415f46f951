package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/calbridge/internal/domain"
)

const maxDeleteButtons = 10

// Calendar selection keyboard: one toggle per calendar
func calendarsKeyboard(sels []domain.CalendarSelection) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	for _, sel := range sels {
		mark := "⬜"
		if sel.IsSelected {
			mark = "✅"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				mark+" "+truncate(sel.DisplayName, 30),
				"cal:"+domain.Handle(sel.Identifier),
			),
		))
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📅 События", "menu:events"),
		tgbotapi.NewInlineKeyboardButtonData("🔄", "refresh:calendars"),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Event list keyboard: a delete button per event (series appear once)
func eventsKeyboard(views []domain.EventView) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	seen := make(map[string]bool)
	for _, v := range views {
		if seen[v.EventID] {
			continue
		}
		seen[v.EventID] = true
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				"🗑 "+v.Start.Format("02.01 15:04")+" "+truncate(v.Title, 20),
				"del:"+domain.Handle(v.EventID),
			),
		))
		if len(rows) >= maxDeleteButtons {
			break
		}
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🗂 Календари", "menu:calendars"),
		tgbotapi.NewInlineKeyboardButtonData("🔄", "refresh:events"),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Confirm delete keyboard
func confirmDeleteKeyboard(handle string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Да, удалить", "confirm_del:"+handle),
			tgbotapi.NewInlineKeyboardButtonData("◀️ Отмена", "menu:events"),
		),
	)
}

// Main menu keyboard
func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔑 Доступ", "menu:grant"),
			tgbotapi.NewInlineKeyboardButtonData("🗂 Календари", "menu:calendars"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📅 События", "menu:events"),
		),
	)
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
