// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	SeedPath       string
	SeedWatch      bool
	WorldCachePath string
	Scheduler      SchedulerConfig
	Generation     GenerationConfig
	Archive        ArchiveConfig
	Notify         NotifyConfig
}

// SchedulerConfig controls the behavior tick and the probability gate.
type SchedulerConfig struct {
	TickInterval        time.Duration
	TickConcurrency     int
	PlanConcurrency     int
	GateSeed            uint64
	ThresholdMultiplier int
	PostFrequency       int
	Precedence          []string
	ReplyDelayUnit      time.Duration
	TargetLookback      time.Duration
	PlanPendingTTL      time.Duration
	StatsResetSchedule  string
}

// GenerationConfig controls the Dify-compatible generation backend.
type GenerationConfig struct {
	Enabled     bool
	APIURL      string
	APIKey      string
	Timeout     time.Duration
	HourlyLimit int
	DailyLimit  int
}

// ArchiveConfig controls generation log retention.
type ArchiveConfig struct {
	Retention time.Duration
	Schedule  string
}

// NotifyConfig controls real-time delivery.
type NotifyConfig struct {
	HeartbeatInterval time.Duration
	DedupWindow       time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/robofeed.db"),
		SeedPath:       getEnv("SEED_PATH", "./data/seed.yaml"),
		SeedWatch:      getEnvBool("SEED_WATCH", false),
		WorldCachePath: getEnv("WORLD_CACHE_PATH", "./data/world_cache.json"),
		Scheduler: SchedulerConfig{
			TickInterval:        getEnvDuration("TICK_INTERVAL", 2*time.Minute),
			TickConcurrency:     getEnvInt("TICK_CONCURRENCY", 4),
			PlanConcurrency:     getEnvInt("PLAN_CONCURRENCY", 2),
			GateSeed:            uint64(getEnvInt("GATE_SEED", 0)),
			ThresholdMultiplier: getEnvInt("GATE_THRESHOLD_MULTIPLIER", 10),
			PostFrequency:       getEnvInt("GATE_DEFAULT_POST_FREQUENCY", 1),
			Precedence:          getEnvList("GATE_PRECEDENCE", []string{"POST", "COMMENT", "REPLY", "SHARE"}),
			ReplyDelayUnit:      getEnvDuration("REPLY_DELAY_UNIT", time.Minute),
			TargetLookback:      getEnvDuration("TARGET_LOOKBACK", 24*time.Hour),
			PlanPendingTTL:      getEnvDuration("PLAN_PENDING_TTL", 5*time.Minute),
			StatsResetSchedule:  getEnv("STATS_RESET_SCHEDULE", "0 0 * * *"),
		},
		Generation: GenerationConfig{
			Enabled:     getEnvBool("DIFY_ENABLED", true),
			APIURL:      strings.TrimRight(getEnv("DIFY_API_URL", "https://api.dify.ai/v1"), "/"),
			APIKey:      getEnv("DIFY_API_KEY", ""),
			Timeout:     getEnvDuration("DIFY_TIMEOUT", 30*time.Second),
			HourlyLimit: getEnvInt("DIFY_HOURLY_LIMIT", 100),
			DailyLimit:  getEnvInt("DIFY_DAILY_LIMIT", 1000),
		},
		Archive: ArchiveConfig{
			Retention: getEnvDuration("LOG_RETENTION", 7*24*time.Hour),
			Schedule:  getEnv("ARCHIVE_SCHEDULE", "0 2 * * *"),
		},
		Notify: NotifyConfig{
			HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second),
			DedupWindow:       getEnvDuration("NOTIFY_DEDUP_WINDOW", 5*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.WorldCachePath == "" {
		return fmt.Errorf("WORLD_CACHE_PATH cannot be empty")
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be > 0")
	}
	if c.Scheduler.TickConcurrency <= 0 {
		return fmt.Errorf("TICK_CONCURRENCY must be > 0")
	}
	if c.Scheduler.PlanConcurrency <= 0 {
		return fmt.Errorf("PLAN_CONCURRENCY must be > 0")
	}
	if c.Scheduler.ThresholdMultiplier <= 0 {
		return fmt.Errorf("GATE_THRESHOLD_MULTIPLIER must be > 0")
	}
	if c.Scheduler.PostFrequency < 0 || c.Scheduler.PostFrequency > 10 {
		return fmt.Errorf("GATE_DEFAULT_POST_FREQUENCY must be between 0 and 10")
	}
	for _, a := range c.Scheduler.Precedence {
		switch a {
		case "POST", "COMMENT", "REPLY", "SHARE":
		default:
			return fmt.Errorf("GATE_PRECEDENCE has unknown action %q", a)
		}
	}
	if c.Generation.Enabled {
		if c.Generation.APIURL == "" {
			return fmt.Errorf("DIFY_API_URL cannot be empty")
		}
		if c.Generation.APIKey == "" {
			return fmt.Errorf("DIFY_API_KEY is required when DIFY_ENABLED is set")
		}
	}
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("DIFY_TIMEOUT must be > 0")
	}
	if c.Generation.HourlyLimit <= 0 || c.Generation.DailyLimit <= 0 {
		return fmt.Errorf("DIFY_HOURLY_LIMIT and DIFY_DAILY_LIMIT must be > 0")
	}
	if c.Archive.Retention <= 0 {
		return fmt.Errorf("LOG_RETENTION must be > 0")
	}
	if c.Notify.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origin list.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
