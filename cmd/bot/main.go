package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tazhate/calbridge/config"
	"github.com/tazhate/calbridge/internal/app"
	"github.com/tazhate/calbridge/internal/bot"
	"github.com/tazhate/calbridge/internal/logger"
	"github.com/tazhate/calbridge/internal/scheduler"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	l, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer l.Sync()

	// Хранилище, провайдер календаря и сервисы
	a, err := app.New(cfg, l)
	if err != nil {
		l.Fatal("failed to init app", zap.Error(err))
	}
	defer a.Close()

	// Инициализация бота
	tgBot, err := bot.New(cfg, a.Calendars, a.Selections, a.Metrics, l.Named("bot"))
	if err != nil {
		l.Fatal("failed to init bot", zap.Error(err))
	}

	// Настройка webhook
	if cfg.WebhookURL != "" {
		if err := tgBot.SetupWebhook(); err != nil {
			l.Fatal("failed to setup webhook", zap.Error(err))
		}
	}

	// Инициализация scheduler
	sched := scheduler.New(cfg, a.Calendars, l.Named("scheduler"))
	sched.SetSender(tgBot)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запуск scheduler в горутине
	go func() {
		if err := sched.Start(ctx); err != nil {
			l.Error("scheduler error", zap.Error(err))
		}
	}()

	// Запуск бота в горутине
	go func() {
		if err := tgBot.Start(ctx); err != nil {
			l.Error("bot error", zap.Error(err))
		}
	}()

	l.Info("calbridge started")

	// Ожидание сигнала завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	l.Info("shutting down")

	// Graceful shutdown
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := tgBot.Stop(shutdownCtx); err != nil {
		l.Error("error stopping bot", zap.Error(err))
	}

	l.Info("calbridge stopped")
}
