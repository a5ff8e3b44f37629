package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"

	configPathEnv     = "JOBWATCHER_CONFIG"
	databasePathEnv   = "JOBWATCHER_DB_PATH"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds everything the watcher needs for a run. Built once at
// process start and passed down explicitly; no ambient globals.
type Config struct {
	Channels   []string         `yaml:"channels"`
	Markers    MarkersConfig    `yaml:"markers"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Database   DatabaseConfig   `yaml:"database"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Scan       ScanConfig       `yaml:"scan"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MarkersConfig lists the weighted phrase categories of the profile.
// Absent lists are valid and match nothing.
type MarkersConfig struct {
	Ignore         []string `yaml:"ignore_markers"`
	Excellent      []string `yaml:"excellent_markers"`
	Acceptable     []string `yaml:"acceptable_markers"`
	Negative       []string `yaml:"negative_markers"`
	StrongNegative []string `yaml:"strong_negative_markers"`
}

// ThresholdsConfig defines the verdict band boundaries. The bands must
// satisfy target > alternative > maybe; violations are replaced with
// defaults at load time rather than silently misclassifying.
type ThresholdsConfig struct {
	Target      int `yaml:"target"`
	Alternative int `yaml:"alternative"`
	Maybe       int `yaml:"maybe"`
}

// DeliveryConfig tunes the batcher.
type DeliveryConfig struct {
	MessageLimit int      `yaml:"message_limit"`
	PauseSeconds float64  `yaml:"pause_seconds"`
	Grouping     string   `yaml:"grouping"`
	VerdictOrder []string `yaml:"verdict_order"`
	PreviewLimit int      `yaml:"preview_limit"`
	SummaryFirst *bool    `yaml:"summary_first"`
}

// Pause resolves the configured inter-send delay.
func (d DeliveryConfig) Pause() time.Duration {
	return time.Duration(d.PauseSeconds * float64(time.Second))
}

// SendSummaryFirst defaults to true when unset.
func (d DeliveryConfig) SendSummaryFirst() bool {
	return d.SummaryFirst == nil || *d.SummaryFirst
}

// DatabaseConfig locates the dedup ledger.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TelegramConfig wires the delivery bot.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// ScanConfig controls history scans.
type ScanConfig struct {
	Feed            string         `yaml:"feed"`
	LookbackHours   int            `yaml:"lookback_hours"`
	PerChannelLimit int            `yaml:"per_channel_limit"`
	Cron            string         `yaml:"cron"`
	Timezone        string         `yaml:"timezone"`
	location        *time.Location `yaml:"-"`
}

// Location resolves the scan timezone string to a time.Location.
func (s ScanConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// LoggingConfig sets the console log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (path from JOBWATCHER_CONFIG, falling
// back to ./config.yaml) and applies environment overrides. Malformed
// or missing files degrade to defaults with a log line; classification
// must still run, just with an empty profile.
func Load() Config {
	path := os.Getenv(configPathEnv)
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := LoadFile(path)
	if err != nil {
		log.Printf("config: %v (falling back to defaults)", err)
		cfg = defaultConfig()
		cfg.applyEnvOverrides()
		cfg.normalize()
	}
	return cfg
}

// LoadFile parses one YAML file on top of the defaults. Used by Load
// and by the hot-reload watcher.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		} else {
			log.Printf("config: invalid %s %q: %v", telegramChatIDEnv, v, err)
		}
	}
}

// normalize clamps invalid values back to defaults.
func (c *Config) normalize() {
	def := defaultConfig()

	if c.Thresholds.Target <= c.Thresholds.Alternative || c.Thresholds.Alternative <= c.Thresholds.Maybe {
		log.Printf("config: threshold bands %d/%d/%d are not strictly ordered, using defaults",
			c.Thresholds.Target, c.Thresholds.Alternative, c.Thresholds.Maybe)
		c.Thresholds = def.Thresholds
	}
	if c.Delivery.MessageLimit <= 0 {
		c.Delivery.MessageLimit = def.Delivery.MessageLimit
	}
	if c.Delivery.PauseSeconds <= 0 {
		c.Delivery.PauseSeconds = def.Delivery.PauseSeconds
	}
	if c.Delivery.PreviewLimit <= 0 {
		c.Delivery.PreviewLimit = def.Delivery.PreviewLimit
	}
	if c.Scan.Feed == "" {
		c.Scan.Feed = def.Scan.Feed
	}
	if c.Scan.LookbackHours <= 0 {
		c.Scan.LookbackHours = def.Scan.LookbackHours
	}
	if c.Scan.PerChannelLimit <= 0 {
		c.Scan.PerChannelLimit = def.Scan.PerChannelLimit
	}
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}

	tz := c.Scan.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scan.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Thresholds: ThresholdsConfig{Target: 4, Alternative: 2, Maybe: 1},
		Delivery: DeliveryConfig{
			MessageLimit: 4000,
			PauseSeconds: 1.2,
			Grouping:     "batches",
			PreviewLimit: 800,
		},
		Database: DatabaseConfig{Path: "jobwatcher.db"},
		Scan: ScanConfig{
			Feed:            "webpreview",
			LookbackHours:   24,
			PerChannelLimit: 2000,
			Cron:            "0 6 * * *",
			Timezone:        defaultTimezone,
			location:        tz,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
