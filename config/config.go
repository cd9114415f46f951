package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderCalDAV = "caldav"
	ProviderMemory = "memory"

	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	TelegramToken     string
	OwnerTelegramID   int64
	PartnerTelegramID int64
	DatabasePath      string
	Timezone          *time.Location
	MorningTime       string `validate:"datetime=15:04"`
	WebhookURL        string
	ServerPort        string

	Provider     string `validate:"oneof=caldav memory"`
	StoreBackend string `validate:"oneof=sqlite redis"`

	CalDAV   CalDAVConfig
	Calendar CalendarConfig
	Redis    RedisConfig
	Log      LogConfig
}

type CalDAVConfig struct {
	URL      string
	Username string
	Password string
	Calendar string
}

// CalendarConfig describes the app's own calendar and the listing window
type CalendarConfig struct {
	AppName        string `validate:"required"`
	AppColor       string `validate:"omitempty,hexcolor"`
	ListWindowDays int    `validate:"gt=0,lte=366"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (if present) and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	tz, err := time.LoadLocation(v.GetString("TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	cfg := &Config{
		TelegramToken:     v.GetString("TELEGRAM_BOT_TOKEN"),
		OwnerTelegramID:   v.GetInt64("OWNER_TELEGRAM_ID"),
		PartnerTelegramID: v.GetInt64("PARTNER_TELEGRAM_ID"),
		DatabasePath:      v.GetString("DATABASE_PATH"),
		Timezone:          tz,
		MorningTime:       v.GetString("MORNING_TIME"),
		WebhookURL:        v.GetString("WEBHOOK_URL"),
		ServerPort:        v.GetString("SERVER_PORT"),
		Provider:          strings.ToLower(v.GetString("CALENDAR_PROVIDER")),
		StoreBackend:      strings.ToLower(v.GetString("STORE_BACKEND")),
		CalDAV: CalDAVConfig{
			URL:      v.GetString("CALDAV_URL"),
			Username: v.GetString("CALDAV_USERNAME"),
			Password: v.GetString("CALDAV_PASSWORD"),
			Calendar: v.GetString("CALDAV_CALENDAR"),
		},
		Calendar: CalendarConfig{
			AppName:        v.GetString("APP_CALENDAR_NAME"),
			AppColor:       v.GetString("APP_CALENDAR_COLOR"),
			ListWindowDays: v.GetInt("LIST_WINDOW_DAYS"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("OWNER_TELEGRAM_ID", 0)
	v.SetDefault("PARTNER_TELEGRAM_ID", 0)
	v.SetDefault("DATABASE_PATH", "./data/calbridge.db")
	v.SetDefault("TIMEZONE", "Europe/Moscow")
	v.SetDefault("MORNING_TIME", "09:00")
	v.SetDefault("WEBHOOK_URL", "")
	v.SetDefault("SERVER_PORT", "8080")

	v.SetDefault("CALENDAR_PROVIDER", ProviderCalDAV)
	v.SetDefault("STORE_BACKEND", StoreSQLite)

	v.SetDefault("CALDAV_URL", "https://caldav.icloud.com")
	v.SetDefault("CALDAV_USERNAME", "")
	v.SetDefault("CALDAV_PASSWORD", "")
	v.SetDefault("CALDAV_CALENDAR", "")

	v.SetDefault("APP_CALENDAR_NAME", "Calbridge")
	v.SetDefault("APP_CALENDAR_COLOR", "#FF8800")
	v.SetDefault("LIST_WINDOW_DAYS", 30)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// ValidateBot checks the settings only the Telegram bot needs
func (c *Config) ValidateBot() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.OwnerTelegramID == 0 {
		return fmt.Errorf("OWNER_TELEGRAM_ID is required and must be a number")
	}
	return nil
}

func (c *Config) IsAllowedUser(telegramID int64) bool {
	if telegramID == 0 {
		return false
	}
	return telegramID == c.OwnerTelegramID || telegramID == c.PartnerTelegramID
}
