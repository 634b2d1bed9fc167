package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Sender    SenderConfig    `yaml:"sender"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	FollowUp  FollowUpConfig  `yaml:"followup"`
	Region    RegionConfig    `yaml:"region"`
	Owner     string          `yaml:"owner"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GetHost returns the bind host, defaulting to all interfaces.
func (s ServerConfig) GetHost() string {
	if s.Host == "" {
		return "0.0.0.0"
	}
	return s.Host
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the Redis connection settings. Redis is optional:
// without it the event queue processes inline and tick leases fall back
// to PostgreSQL advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SenderConfig holds outbound dispatch settings.
type SenderConfig struct {
	Provider       string `yaml:"provider"` // "ses" or "log"
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	Region         string `yaml:"region"`
	FromName       string `yaml:"from_name"`
	FromEmail      string `yaml:"from_email"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the bounded per-send timeout.
func (s SenderConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// SchedulerConfig holds batch scheduling settings.
type SchedulerConfig struct {
	TickIntervalMinutes int `yaml:"tick_interval_minutes"`
	WeeklyQuota         int `yaml:"weekly_quota"`
	MinSample           int `yaml:"min_sample"`
}

// TickInterval returns how often the tick loop runs.
func (s SchedulerConfig) TickInterval() time.Duration {
	if s.TickIntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(s.TickIntervalMinutes) * time.Minute
}

// FollowUpConfig holds reminder-send settings. DelayDays holds one entry
// per follow-up in the sequence, in days after the initial send.
type FollowUpConfig struct {
	Enabled        bool  `yaml:"enabled"`
	DelayDays      []int `yaml:"delay_days"`
	SweepBatchSize int   `yaml:"sweep_batch_size"`
}

// RegionConfig holds the injected region profile: country → UTC offset
// hours, country → recurring "MM-DD" holidays, and the business window.
// Deployments tune these per market instead of editing code.
type RegionConfig struct {
	TimezoneOffsets   map[string]int      `yaml:"timezone_offsets"`
	Holidays          map[string][]string `yaml:"holidays"`
	BusinessHourStart int                 `yaml:"business_hour_start"`
	BusinessHourEnd   int                 `yaml:"business_hour_end"`
	AvoidWeekends     bool                `yaml:"avoid_weekends"`
	AvoidHolidays     bool                `yaml:"avoid_holidays"`
}

// Default returns a Config with production defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Sender: SenderConfig{
			Provider:       "log",
			Region:         "us-east-1",
			TimeoutSeconds: 10,
		},
		Scheduler: SchedulerConfig{
			TickIntervalMinutes: 60,
			WeeklyQuota:         9000,
			MinSample:           10,
		},
		FollowUp: FollowUpConfig{
			Enabled:        true,
			DelayDays:      []int{3},
			SweepBatchSize: 50,
		},
		Region: RegionConfig{
			BusinessHourStart: 9,
			BusinessHourEnd:   18,
			AvoidWeekends:     true,
			AvoidHolidays:     true,
		},
		Owner: "default",
	}
}

// Load reads configuration from a YAML file, layered over defaults.
// A missing file is not an error; defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads the YAML config and applies environment overrides.
// A .env file is honored if present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if key := os.Getenv("AWS_SES_ACCESS_KEY"); key != "" {
		cfg.Sender.AccessKey = key
	}
	if key := os.Getenv("AWS_SES_SECRET_KEY"); key != "" {
		cfg.Sender.SecretKey = key
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.Sender.Region = region
	}

	return cfg, nil
}
