// Package config loads Kassandra configuration from KASSANDRA_* environment
// variables and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/abdallabushnaq/kassandra/internal/schedule"
)

// EnvPrefix is prepended to every configuration key, e.g. KASSANDRA_SERVER_PORT
const EnvPrefix = "KASSANDRA"

// Config holds application configuration
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Calendar  CalendarConfig  `mapstructure:"calendar"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// LoggingConfig contains logger preferences
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
}

// ServerConfig contains HTTP server options
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig points at the SQLite file. Empty means discovery.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// CalendarConfig describes the business calendar used for scheduling
type CalendarConfig struct {
	// Timezone is an IANA location name
	Timezone string `mapstructure:"timezone"`
	// DayStart is the local time work begins, "15:04" layout
	DayStart string `mapstructure:"day_start"`
	// WorkingMinutes per working day
	// Default: 450, Range: 1-1440
	WorkingMinutes int `mapstructure:"working_minutes"`
	// WorkingDays is a comma separated list of weekday abbreviations
	WorkingDays string `mapstructure:"working_days"`
	// Holidays is a comma separated list of 2006-01-02 dates
	Holidays string `mapstructure:"holidays"`
}

// AssistantConfig controls the tool-calling assistant
type AssistantConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// MaxIterations bounds tool-use round trips per message
	// Default: 10, Range: 1-50
	MaxIterations int `mapstructure:"max_iterations"`
	MaxTokens     int `mapstructure:"max_tokens"`
	// MaxConcurrent bounds in-flight API calls
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// RequestsPerMinute is the API call rate limit
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	MaxRetries        int `mapstructure:"max_retries"`
	// HourlyTokenBudget caps tokens spent per hour; 0 is unlimited
	HourlyTokenBudget int64 `mapstructure:"hourly_token_budget"`
}

// AuditConfig controls audit trail retention
type AuditConfig struct {
	// RetentionDays is how long events are kept; 0 keeps them forever
	// Default: 0, Range: 0-3650
	RetentionDays int `mapstructure:"retention_days"`
}

var keys = []string{
	"logging.level",
	"server.host",
	"server.port",
	"server.request_timeout",
	"server.shutdown_timeout",
	"database.path",
	"calendar.timezone",
	"calendar.day_start",
	"calendar.working_minutes",
	"calendar.working_days",
	"calendar.holidays",
	"assistant.api_key",
	"assistant.model",
	"assistant.max_iterations",
	"assistant.max_tokens",
	"assistant.max_concurrent",
	"assistant.requests_per_minute",
	"assistant.max_retries",
	"assistant.hourly_token_budget",
	"audit.retention_days",
}

// Load reads configuration from the environment. Variables found in envFile
// are applied when not already set; a missing file is ignored.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if envMap, err := godotenv.Read(envFile); err == nil {
			for k, val := range envMap {
				if _, exists := os.LookupEnv(k); !exists {
					_ = os.Setenv(k, val)
				}
			}
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	// the SDK's own variable works too
	_ = v.BindEnv("assistant.api_key", EnvPrefix+"_ASSISTANT_API_KEY", "ANTHROPIC_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Calendar: CalendarConfig{
			Timezone:       "UTC",
			DayStart:       "08:00",
			WorkingMinutes: schedule.DefaultWorkingMinutesPerDay,
			WorkingDays:    "mon,tue,wed,thu,fri",
		},
		Assistant: AssistantConfig{
			Model:             "claude-sonnet-4-5",
			MaxIterations:     10,
			MaxTokens:         4096,
			MaxConcurrent:     2,
			RequestsPerMinute: 50,
			MaxRetries:        3,
			HourlyTokenBudget: 200000,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("calendar.timezone", d.Calendar.Timezone)
	v.SetDefault("calendar.day_start", d.Calendar.DayStart)
	v.SetDefault("calendar.working_minutes", d.Calendar.WorkingMinutes)
	v.SetDefault("calendar.working_days", d.Calendar.WorkingDays)
	v.SetDefault("calendar.holidays", d.Calendar.Holidays)
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.model", d.Assistant.Model)
	v.SetDefault("assistant.max_iterations", d.Assistant.MaxIterations)
	v.SetDefault("assistant.max_tokens", d.Assistant.MaxTokens)
	v.SetDefault("assistant.max_concurrent", d.Assistant.MaxConcurrent)
	v.SetDefault("assistant.requests_per_minute", d.Assistant.RequestsPerMinute)
	v.SetDefault("assistant.max_retries", d.Assistant.MaxRetries)
	v.SetDefault("assistant.hourly_token_budget", d.Assistant.HourlyTokenBudget)
	v.SetDefault("audit.retention_days", d.Audit.RetentionDays)
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive (got %s)", c.Server.RequestTimeout)
	}
	if _, err := c.Calendar.Build(); err != nil {
		return err
	}
	if c.Assistant.MaxIterations < 1 || c.Assistant.MaxIterations > 50 {
		return fmt.Errorf("assistant.max_iterations must be between 1 and 50 (got %d)", c.Assistant.MaxIterations)
	}
	if c.Assistant.MaxConcurrent < 1 {
		return fmt.Errorf("assistant.max_concurrent must be at least 1 (got %d)", c.Assistant.MaxConcurrent)
	}
	if c.Assistant.RequestsPerMinute < 1 {
		return fmt.Errorf("assistant.requests_per_minute must be at least 1 (got %d)", c.Assistant.RequestsPerMinute)
	}
	if c.Assistant.MaxRetries < 0 || c.Assistant.MaxRetries > 10 {
		return fmt.Errorf("assistant.max_retries must be between 0 and 10 (got %d)", c.Assistant.MaxRetries)
	}
	if c.Assistant.HourlyTokenBudget < 0 {
		return fmt.Errorf("assistant.hourly_token_budget must not be negative (got %d)", c.Assistant.HourlyTokenBudget)
	}
	if c.Audit.RetentionDays < 0 || c.Audit.RetentionDays > 3650 {
		return fmt.Errorf("audit.retention_days must be between 0 and 3650 (got %d)", c.Audit.RetentionDays)
	}
	return nil
}

// ServerAddr returns host:port for HTTP server binding
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RetentionCutoff returns the time before which audit events may be pruned,
// zero when events are kept forever.
func (c AuditConfig) RetentionCutoff(now time.Time) time.Time {
	if c.RetentionDays == 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -c.RetentionDays)
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// Build turns the calendar settings into a scheduling calendar
func (c CalendarConfig) Build() (*schedule.Calendar, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar.timezone: %w", err)
	}
	cal := schedule.DefaultCalendar(loc)

	start, err := time.Parse("15:04", c.DayStart)
	if err != nil {
		return nil, fmt.Errorf("calendar.day_start must use HH:MM (got %q)", c.DayStart)
	}
	cal.DayStart = time.Duration(start.Hour())*time.Hour + time.Duration(start.Minute())*time.Minute

	if c.WorkingMinutes < 1 || c.WorkingMinutes > 1440 {
		return nil, fmt.Errorf("calendar.working_minutes must be between 1 and 1440 (got %d)", c.WorkingMinutes)
	}
	if cal.DayStart+time.Duration(c.WorkingMinutes)*time.Minute > 24*time.Hour {
		return nil, fmt.Errorf("calendar working window must end by midnight")
	}
	cal.WorkingMinutesPerDay = c.WorkingMinutes

	cal.WorkingDays = [7]bool{}
	found := false
	for _, name := range splitList(c.WorkingDays) {
		d, ok := weekdays[strings.ToLower(name)[:min(3, len(name))]]
		if !ok {
			return nil, fmt.Errorf("calendar.working_days: unknown weekday %q", name)
		}
		cal.WorkingDays[d] = true
		found = true
	}
	if !found {
		return nil, fmt.Errorf("calendar.working_days must name at least one day")
	}

	for _, s := range splitList(c.Holidays) {
		day, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return nil, fmt.Errorf("calendar.holidays: invalid date %q", s)
		}
		cal.AddHoliday(day)
	}
	return cal, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
