package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"campusbook/internal/availability"
	"campusbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig          `yaml:"app"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Backup        BackupConfig       `yaml:"backup"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Logging       LoggingConfig      `yaml:"logging"`
	API           APIConfig          `yaml:"api"`
	Booking       BookingConfig      `yaml:"booking"`
	Notifications NotificationConfig `yaml:"notifications"`
	Exports       ExportConfig       `yaml:"exports"`
	SeedPath      string             `yaml:"seed_path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Timezone    string `yaml:"timezone"`
}

// Location resolves the campus timezone weekday windows are evaluated in.
func (c AppConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type BookingConfig struct {
	SlotMinutes           int    `yaml:"slot_minutes"`
	LeadMinutes           int    `yaml:"lead_minutes"`
	PastGraceMinutes      int    `yaml:"past_grace_minutes"`
	MaxBookingDays        int    `yaml:"max_booking_days"`
	SummaryDays           int    `yaml:"summary_days"`
	RangeDays             int    `yaml:"range_days"`
	DefaultWindow         string `yaml:"default_window"`
	MutationLimit         int    `yaml:"mutation_limit"`
	MutationWindowSeconds int    `yaml:"mutation_window_seconds"`
}

func (c BookingConfig) SlotDuration() time.Duration {
	return time.Duration(c.SlotMinutes) * time.Minute
}

func (c BookingConfig) LeadTime() time.Duration {
	return time.Duration(c.LeadMinutes) * time.Minute
}

func (c BookingConfig) PastGrace() time.Duration {
	return time.Duration(c.PastGraceMinutes) * time.Minute
}

func (c BookingConfig) MutationWindow() time.Duration {
	return time.Duration(c.MutationWindowSeconds) * time.Second
}

// Window parses DefaultWindow, falling back to 09:00-17:00.
func (c BookingConfig) Window() availability.Window {
	w, err := availability.ParseWindow(c.DefaultWindow)
	if err != nil {
		return availability.DefaultWindow
	}
	return w
}

type NotificationConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	QueueSize    int           `yaml:"queue_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	HeaderUser   string         `yaml:"header_user"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	MaxDays int `yaml:"max_days"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := c.App.Location(); err != nil {
		return err
	}

	if c.Booking.DefaultWindow != "" {
		if _, err := availability.ParseWindow(c.Booking.DefaultWindow); err != nil {
			return fmt.Errorf("booking.default_window: %w", err)
		}
	}

	if c.Booking.SlotMinutes <= 0 || 24*60%c.Booking.SlotMinutes != 0 {
		return fmt.Errorf("booking.slot_minutes must divide a day, got %d", c.Booking.SlotMinutes)
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "campusbook"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.Auth.HeaderUser == "" {
		c.API.Auth.HeaderUser = "x-user-id"
	}

	// Booking defaults
	if c.Booking.SlotMinutes == 0 {
		c.Booking.SlotMinutes = models.DefaultSlotMinutes
	}
	if c.Booking.LeadMinutes == 0 {
		c.Booking.LeadMinutes = models.DefaultLeadMinutes
	}
	if c.Booking.PastGraceMinutes == 0 {
		c.Booking.PastGraceMinutes = models.DefaultPastGraceMinutes
	}
	if c.Booking.MaxBookingDays == 0 {
		c.Booking.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Booking.SummaryDays == 0 {
		c.Booking.SummaryDays = models.DefaultSummaryDays
	}
	if c.Booking.RangeDays == 0 {
		c.Booking.RangeDays = models.DefaultRangeDays
	}
	if c.Booking.DefaultWindow == "" {
		c.Booking.DefaultWindow = availability.DefaultWindow.String()
	}
	if c.Booking.MutationLimit == 0 {
		c.Booking.MutationLimit = models.MutationLimit
	}
	if c.Booking.MutationWindowSeconds == 0 {
		c.Booking.MutationWindowSeconds = models.MutationWindow
	}

	// Notification worker defaults
	if c.Notifications.MaxRetries == 0 {
		c.Notifications.MaxRetries = 5
	}
	if c.Notifications.InitialDelay == 0 {
		c.Notifications.InitialDelay = 2 * time.Second
	}
	if c.Notifications.MaxDelay == 0 {
		c.Notifications.MaxDelay = time.Minute
	}
	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = models.WorkerQueueSize
	}
	if c.Notifications.PollInterval == 0 {
		c.Notifications.PollInterval = 2 * time.Second
	}

	if c.Exports.MaxDays == 0 {
		c.Exports.MaxDays = models.MaxRangeDays
	}
}
