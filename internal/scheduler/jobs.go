package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/robofeed/internal/store"
	"github.com/robfig/cron/v3"
)

// JobsConfig schedules the maintenance jobs. Schedules are standard 5-field cron specs.
type JobsConfig struct {
	ArchiveSchedule    string
	Retention          time.Duration
	StatsResetSchedule string
}

// Jobs runs log archiving and daily stats reset on cron schedules.
type Jobs struct {
	cron   *cron.Cron
	logs   store.LogRepository
	stats  *Stats
	cfg    JobsConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewJobs validates the schedules and registers the jobs.
func NewJobs(logs store.LogRepository, stats *Stats, cfg JobsConfig, logger *slog.Logger) (*Jobs, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Jobs{
		cron:   cron.New(),
		logs:   logs,
		stats:  stats,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}

	if cfg.Retention > 0 && cfg.ArchiveSchedule != "" {
		if _, err := j.cron.AddFunc(cfg.ArchiveSchedule, func() { j.Archive(context.Background()) }); err != nil {
			return nil, fmt.Errorf("parse archive schedule %q: %w", cfg.ArchiveSchedule, err)
		}
	}
	if cfg.StatsResetSchedule != "" {
		if _, err := j.cron.AddFunc(cfg.StatsResetSchedule, j.ResetStats); err != nil {
			return nil, fmt.Errorf("parse stats reset schedule %q: %w", cfg.StatsResetSchedule, err)
		}
	}
	return j, nil
}

// Start begins running jobs.
func (j *Jobs) Start() {
	j.cron.Start()
	j.logger.Info("Maintenance jobs started",
		"archive_schedule", j.cfg.ArchiveSchedule, "retention", j.cfg.Retention,
		"stats_reset_schedule", j.cfg.StatsResetSchedule)
}

// Stop halts the cron and waits for running jobs.
func (j *Jobs) Stop() {
	<-j.cron.Stop().Done()
}

// Archive deletes generation logs older than the retention.
func (j *Jobs) Archive(ctx context.Context) {
	cutoff := j.now().Add(-j.cfg.Retention)
	deleted, err := j.logs.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("Log archive failed", "cutoff", cutoff, "error", err)
		return
	}
	j.logger.Info("Log archive completed", "cutoff", cutoff, "deleted", deleted)
}

// ResetStats zeroes the daily counters.
func (j *Jobs) ResetStats() {
	prev := j.stats.Snapshot()
	j.stats.Reset()
	j.logger.Info("Daily stats reset",
		"ticks_run", prev.TicksRun, "ticks_skipped", prev.TicksSkipped, "failures", prev.Failures)
}
