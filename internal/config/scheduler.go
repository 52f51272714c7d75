package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	EnvSchedulerEnabled            = "LABELHUB_SCHEDULER_ENABLED"
	EnvSchedulerSpec               = "LABELHUB_SCHEDULER_SPEC"
	EnvSchedulerTimezone           = "LABELHUB_SCHEDULER_TIMEZONE"
	EnvSchedulerMinuteCycle        = "LABELHUB_SCHEDULER_MINUTE_CYCLE"
	EnvSchedulerConsensusThreshold = "LABELHUB_SCHEDULER_CONSENSUS_THRESHOLD"
	EnvSchedulerPublishLimit       = "LABELHUB_SCHEDULER_PUBLISH_LIMIT"
)

// CronParser accepts six-field specs with a leading seconds field and descriptors.
var CronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// SchedulerConfig controls periodic batch release and consensus.
type SchedulerConfig struct {
	Enabled            bool    `toml:"enabled"`
	Spec               string  `toml:"spec"`
	Timezone           string  `toml:"timezone"`
	MinuteCycle        bool    `toml:"minute_cycle"`
	ConsensusThreshold float64 `toml:"consensus_threshold"`
	PublishLimit       int     `toml:"publish_limit"`
	Concurrency        int     `toml:"concurrency"`
}

// Location returns the configured time zone, falling back to UTC.
func (c *SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *SchedulerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Boolean flags only switch on.
func (c *SchedulerConfig) Merge(overlay *SchedulerConfig) {
	if overlay.Enabled {
		c.Enabled = true
	}
	if overlay.Spec != "" {
		c.Spec = overlay.Spec
	}
	if overlay.Timezone != "" {
		c.Timezone = overlay.Timezone
	}
	if overlay.MinuteCycle {
		c.MinuteCycle = true
	}
	if overlay.ConsensusThreshold > 0 {
		c.ConsensusThreshold = overlay.ConsensusThreshold
	}
	if overlay.PublishLimit > 0 {
		c.PublishLimit = overlay.PublishLimit
	}
	if overlay.Concurrency > 0 {
		c.Concurrency = overlay.Concurrency
	}
}

func (c *SchedulerConfig) loadDefaults() {
	if c.Spec == "" {
		c.Spec = "0 0 0 * * *"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.ConsensusThreshold == 0 {
		c.ConsensusThreshold = 0.6
	}
	if c.PublishLimit == 0 {
		c.PublishLimit = 100
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
}

func (c *SchedulerConfig) loadEnv() {
	if v := os.Getenv(EnvSchedulerEnabled); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enabled = b
		}
	}
	if v := os.Getenv(EnvSchedulerSpec); v != "" {
		c.Spec = v
	}
	if v := os.Getenv(EnvSchedulerTimezone); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv(EnvSchedulerMinuteCycle); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.MinuteCycle = b
		}
	}
	if v := os.Getenv(EnvSchedulerConsensusThreshold); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ConsensusThreshold = f
		}
	}
	if v := os.Getenv(EnvSchedulerPublishLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PublishLimit = n
		}
	}
}

func (c *SchedulerConfig) validate() error {
	if _, err := CronParser.Parse(c.Spec); err != nil {
		return fmt.Errorf("invalid spec: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	if c.ConsensusThreshold <= 0 || c.ConsensusThreshold > 1 {
		return fmt.Errorf("consensus_threshold must be in (0, 1]: %v", c.ConsensusThreshold)
	}
	if c.PublishLimit < 1 {
		return fmt.Errorf("publish_limit must be positive: %d", c.PublishLimit)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive: %d", c.Concurrency)
	}
	return nil
}
