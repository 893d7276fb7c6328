// Package config loads service configuration from a YAML file, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/timeline"
)

type Config struct {
	Log        Logger    `mapstructure:"logger"`
	Session    Session   `mapstructure:"session"`
	Indicators []string  `mapstructure:"indicators" validate:"dive,required"`
	Feed       Feed      `mapstructure:"feed"`
	Redis      Redis     `mapstructure:"redis"`
	SQLite     SQLite    `mapstructure:"sqlite"`
	HTTP       HTTP      `mapstructure:"http"`
	Metrics    Metrics   `mapstructure:"metrics"`
	Snapshot   Snapshot  `mapstructure:"snapshot"`
	Cache      Cache     `mapstructure:"cache"`
	RateLimit  RateLimit `mapstructure:"ratelimit"`
}

type Logger struct {
	Level    string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Encoding string `mapstructure:"encoding" validate:"oneof=json console"`
}

// Session describes the trading calendar. CalendarFile, when set, replaces
// the inline calendar fields.
type Session struct {
	Location     string        `mapstructure:"location"`
	Open         string        `mapstructure:"open"`
	Close        string        `mapstructure:"close"`
	Weekdays     []string      `mapstructure:"weekdays"`
	Holidays     []string      `mapstructure:"holidays"`
	CalendarFile string        `mapstructure:"calendar_file"`
	Period       time.Duration `mapstructure:"period" validate:"gt=0"`
	Origin       string        `mapstructure:"origin" validate:"required,datetime=2006-01-02"`
	Extension    string        `mapstructure:"extension" validate:"omitempty,oneof=none previous prev next"`
}

type Feed struct {
	Mode           string        `mapstructure:"mode" validate:"oneof=replace merge"`
	StaleTolerance int           `mapstructure:"stale_tolerance" validate:"gte=0"`
	Streams        []string      `mapstructure:"streams"`
	ConsumerGroup  string        `mapstructure:"consumer_group" validate:"required"`
	ConsumerName   string        `mapstructure:"consumer_name" validate:"required"`
	PELInterval    time.Duration `mapstructure:"pel_interval" validate:"gt=0"`
	PELMinIdle     time.Duration `mapstructure:"pel_min_idle" validate:"gt=0"`
}

type Redis struct {
	Addr        string `mapstructure:"addr" validate:"required,hostname_port"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db" validate:"gte=0"`
	SnapshotKey string `mapstructure:"snapshot_key" validate:"required"`
}

type SQLite struct {
	Path string `mapstructure:"path" validate:"required"`
}

type HTTP struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type Metrics struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// Snapshot schedules series snapshots. Cron uses the six-field format with
// seconds.
type Snapshot struct {
	Cron    string `mapstructure:"cron" validate:"required"`
	MaxBars int    `mapstructure:"max_bars" validate:"gte=0"`
}

type Cache struct {
	DatasetTTL      time.Duration `mapstructure:"dataset_ttl" validate:"gt=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
}

type RateLimit struct {
	PerSecond float64 `mapstructure:"per_second" validate:"gt=0"`
	Burst     int     `mapstructure:"burst" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("session.location", "IST")
	v.SetDefault("session.open", "09:15")
	v.SetDefault("session.close", "15:30")
	v.SetDefault("session.weekdays", []string{"mon", "tue", "wed", "thu", "fri"})
	v.SetDefault("session.period", 5*time.Minute)
	v.SetDefault("session.origin", "2026-01-01")
	v.SetDefault("session.extension", "none")

	v.SetDefault("indicators", []string{"SMA:20", "EMA:9", "BB:20:2", "STOCH:14:3:3", "MACD:12:26:9", "VOL:20"})

	v.SetDefault("feed.mode", "merge")
	v.SetDefault("feed.stale_tolerance", 0)
	v.SetDefault("feed.consumer_group", "chartengine")
	v.SetDefault("feed.consumer_name", "worker-1")
	v.SetDefault("feed.pel_interval", 30*time.Second)
	v.SetDefault("feed.pel_min_idle", time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.snapshot_key", "chart:snapshot:series")

	v.SetDefault("sqlite.path", "data/charts.db")
	v.SetDefault("http.addr", ":9095")
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("snapshot.cron", "*/30 * * * * *")
	v.SetDefault("snapshot.max_bars", 2000)

	v.SetDefault("cache.dataset_ttl", 10*time.Minute)
	v.SetDefault("cache.cleanup_interval", time.Minute)

	v.SetDefault("ratelimit.per_second", 20.0)
	v.SetDefault("ratelimit.burst", 40)
}

// Load reads path (or ./config.yaml when empty) and applies CHART_* style
// environment overrides, e.g. REDIS_ADDR for redis.addr. A missing config
// file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the indicator specs.
func (c *Config) Validate() error {
	if err := goValidator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.IndicatorSpecs(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := timeline.ParseExtensionPolicy(c.Session.Extension); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// IndicatorSpecs parses the configured indicator list.
func (c *Config) IndicatorSpecs() ([]indicator.Spec, error) {
	return indicator.ParseSpecs(c.Indicators)
}

// TradingSession builds the session from the calendar file or the inline
// fields.
func (c *Config) TradingSession() (timeline.Session, error) {
	if c.Session.CalendarFile != "" {
		return timeline.LoadCalendar(c.Session.CalendarFile)
	}
	cal := timeline.Calendar{
		Location: c.Session.Location,
		Open:     c.Session.Open,
		Close:    c.Session.Close,
		Weekdays: c.Session.Weekdays,
		Holidays: c.Session.Holidays,
	}
	return cal.Session()
}

// Timeline builds the configured timeline. The origin is midnight in the
// session location.
func (c *Config) Timeline() (*timeline.Timeline, error) {
	sess, err := c.TradingSession()
	if err != nil {
		return nil, err
	}
	origin, err := time.ParseInLocation("2006-01-02", c.Session.Origin, sess.Location)
	if err != nil {
		return nil, fmt.Errorf("session origin: %w", err)
	}
	policy, err := timeline.ParseExtensionPolicy(c.Session.Extension)
	if err != nil {
		return nil, err
	}
	return timeline.New(sess, c.Session.Period, origin, timeline.WithExtension(policy))
}
