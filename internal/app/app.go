// Package app wires storage, the calendar provider and services from config.
package app

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/tazhate/calbridge/config"
	"github.com/tazhate/calbridge/internal/clients/caldav"
	"github.com/tazhate/calbridge/internal/provider"
	"github.com/tazhate/calbridge/internal/provider/memory"
	"github.com/tazhate/calbridge/internal/service"
	"github.com/tazhate/calbridge/internal/storage"
)

type App struct {
	Calendars  *service.CalendarService
	Selections *service.SelectionService
	Metrics    *service.MetricsService

	closers []io.Closer
}

// New opens the configured store and provider and builds the services
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{}

	kv, err := a.openStore(cfg)
	if err != nil {
		return nil, err
	}

	p, err := newProvider(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Metrics = service.NewMetricsService()
	a.Selections = service.NewSelectionService(kv, logger.Named("selection"))
	a.Calendars = service.NewCalendarService(p, a.Selections, a.Metrics, logger.Named("calendar"), service.CalendarOptions{
		Timezone:         cfg.Timezone,
		AppCalendarName:  cfg.Calendar.AppName,
		AppCalendarColor: cfg.Calendar.AppColor,
	})

	logger.Info("app initialized",
		zap.String("provider", cfg.Provider),
		zap.String("store", cfg.StoreBackend),
	)
	return a, nil
}

func (a *App) openStore(cfg *config.Config) (storage.KV, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		kv, err := storage.NewRedis(storage.RedisOptions{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis store: %w", err)
		}
		a.closers = append(a.closers, kv)
		return kv, nil
	default:
		kv, err := storage.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		a.closers = append(a.closers, kv)
		return kv, nil
	}
}

func newProvider(cfg *config.Config, logger *zap.Logger) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderMemory:
		return memory.New(), nil
	default:
		client := caldav.NewClient(cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password, logger.Named("caldav"))
		if !client.IsConfigured() {
			return nil, fmt.Errorf("CALDAV_USERNAME and CALDAV_PASSWORD are required for the caldav provider")
		}
		client.SetCalendarID(cfg.CalDAV.Calendar)
		client.SetLocation(cfg.Timezone)
		return client, nil
	}
}

// Close releases the store
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
