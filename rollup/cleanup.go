package rollup

import (
	"context"
	"fmt"

	"github.com/netglance/netglance/share/logger"
)

// RetentionConfig holds the per-data-class horizons in days; 0 retains
// indefinitely. FineGrainedDays additionally collapses hourly detail once it
// is older than the horizon: network hours are covered by the daily rows
// already, system hours are folded into daily rows first. Per-app rows have
// no coarser resolution and are governed by AppDays alone.
type RetentionConfig struct {
	NetworkDays     int `mapstructure:"network_days"`
	SystemDays      int `mapstructure:"system_days"`
	AppDays         int `mapstructure:"app_days"`
	FineGrainedDays int `mapstructure:"fine_grained_days"`
}

// CleanupTask deletes rows past their retention horizon in bulk. It runs on
// the shared scheduler, independent of the sampling loops.
type CleanupTask struct {
	log     *logger.Logger
	service Service
	cfg     RetentionConfig
}

func NewCleanupTask(log *logger.Logger, service Service, cfg RetentionConfig) *CleanupTask {
	return &CleanupTask{
		log:     log,
		service: service,
		cfg:     cfg,
	}
}

func (t *CleanupTask) Run(ctx context.Context) error {
	if t.cfg.FineGrainedDays > 0 {
		// incomplete days lose their hourly detail below, so derive their
		// daily rows first
		if err := t.service.FoldSystemHoursOlderThanDays(ctx, t.cfg.FineGrainedDays); err != nil {
			return fmt.Errorf("failed to fold expiring system hours: %v", err)
		}
	}

	horizons := []struct {
		days   int
		tables []string
	}{
		{t.cfg.NetworkDays, []string{TableHourlyUsage, TableDailyUsage, TableWeeklyUsage}},
		{t.cfg.SystemDays, []string{TableHourlySystemStats, TableDailySystemStats}},
		{t.cfg.AppDays, []string{TableAppUsage}},
		{t.cfg.FineGrainedDays, []string{TableHourlyUsage, TableHourlySystemStats}},
	}

	for _, horizon := range horizons {
		if horizon.days <= 0 {
			continue
		}
		for _, table := range horizon.tables {
			deleted, err := t.service.DeleteOlderThanDays(ctx, table, horizon.days)
			if err != nil {
				return fmt.Errorf("failed to cleanup %s: %v", table, err)
			}
			if deleted > 0 {
				t.log.Debugf("rollup.CleanupTask: %d rows deleted from %s", deleted, table)
			}
		}
	}
	return nil
}
