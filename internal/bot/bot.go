package bot

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/tazhate/calbridge/config"
	"github.com/tazhate/calbridge/internal/service"
)

type Bot struct {
	api        *tgbotapi.BotAPI
	cfg        *config.Config
	calendars  *service.CalendarService
	selections *service.SelectionService
	metrics    *service.MetricsService
	logger     *zap.Logger
	server     *http.Server
}

func New(cfg *config.Config, calendars *service.CalendarService, selections *service.SelectionService, metrics *service.MetricsService, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))

	bot := &Bot{
		api:        api,
		cfg:        cfg,
		calendars:  calendars,
		selections: selections,
		metrics:    metrics,
		logger:     logger,
	}

	// Set bot commands (menu button)
	bot.setCommands()

	return bot, nil
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "grant", Description: "🔑 Доступ к календарю"},
		{Command: "calendars", Description: "🗂 Выбор календарей"},
		{Command: "events", Description: "📅 События"},
		{Command: "addevent", Description: "➕ Добавить событие"},
		{Command: "addweekly", Description: "🔁 Еженедельное событие"},
		{Command: "help", Description: "❓ Справка по командам"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		b.logger.Warn("failed to set commands", zap.Error(err))
	}
}

func (b *Bot) SetupWebhook() error {
	webhookURL := b.cfg.WebhookURL + "/bot"

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	_, err = b.api.Request(wh)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}

	if info.LastErrorDate != 0 {
		b.logger.Warn("webhook last error", zap.String("message", info.LastErrorMessage))
	}

	b.logger.Info("webhook set", zap.String("url", webhookURL))
	return nil
}

// Start serves /health and /metrics and processes updates until ctx is done.
// Without WEBHOOK_URL updates come from long polling.
func (b *Bot) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	var updates tgbotapi.UpdatesChannel
	if b.cfg.WebhookURL != "" {
		ch := make(chan tgbotapi.Update, b.api.Buffer)
		mux.HandleFunc("/bot", b.webhookHandler(ctx, ch))
		updates = ch
	} else {
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			b.logger.Warn("delete webhook failed", zap.Error(err))
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = b.api.GetUpdatesChan(u)
	}

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", b.metrics.Handler())

	b.server = &http.Server{
		Addr:    ":" + b.cfg.ServerPort,
		Handler: mux,
	}

	go func() {
		b.logger.Info("starting http server", zap.String("port", b.cfg.ServerPort))
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.logger.Error("http server error", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if b.cfg.WebhookURL == "" {
				b.api.StopReceivingUpdates()
			}
			return nil
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) editMessage(chatID int64, msgID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = "HTML"
	edit.ReplyMarkup = keyboard
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Debug("edit message failed", zap.Error(err))
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Debug("answer callback failed", zap.Error(err))
	}
}

// webhookHandler feeds webhook updates into ch until ctx is done
func (b *Bot) webhookHandler(ctx context.Context, ch chan<- tgbotapi.Update) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		update, err := b.api.HandleUpdate(r)
		if err != nil {
			b.logger.Warn("bad webhook update", zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		select {
		case ch <- *update:
		case <-ctx.Done():
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
		case <-r.Context().Done():
		}
	}
}
