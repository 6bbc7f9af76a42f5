package app

import (
	"time"

	"github.com/netglance/netglance/monitor"
	"github.com/netglance/netglance/rollup"
	"github.com/netglance/netglance/share/logger"
)

const (
	DefaultDBPath              = "netglance.db"
	DefaultAggregationInterval = 5 * time.Minute
	DefaultCleanupInterval     = time.Hour
	MinTaskInterval            = 30 * time.Second
)

type MonitoringConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Adapter     string        `mapstructure:"adapter"`
	ShowVirtual bool          `mapstructure:"show_virtual"`
}

type RollupConfig struct {
	AggregationInterval time.Duration          `mapstructure:"aggregation_interval"`
	CleanupInterval     time.Duration          `mapstructure:"cleanup_interval"`
	Retention           rollup.RetentionConfig `mapstructure:"retention"`
}

type Config struct {
	DBPath    string           `mapstructure:"db_path"`
	LogOutput logger.LogOutput `mapstructure:"log_file"`
	LogLevel  logger.LogLevel  `mapstructure:"log_level"`

	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Rollup     RollupConfig     `mapstructure:"rollup"`
}

// ParseAndValidate fills defaults and clamps out-of-range values. It never
// rejects a config.
func (c *Config) ParseAndValidate() error {
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.Monitoring.Interval == 0 {
		c.Monitoring.Interval = monitor.DefaultInterval
	}
	if c.Rollup.AggregationInterval == 0 {
		c.Rollup.AggregationInterval = DefaultAggregationInterval
	}
	if c.Rollup.CleanupInterval == 0 {
		c.Rollup.CleanupInterval = DefaultCleanupInterval
	}
	if c.Rollup.AggregationInterval < MinTaskInterval {
		c.Rollup.AggregationInterval = MinTaskInterval
	}
	if c.Rollup.CleanupInterval < MinTaskInterval {
		c.Rollup.CleanupInterval = MinTaskInterval
	}
	if c.Rollup.Retention.NetworkDays < 0 {
		c.Rollup.Retention.NetworkDays = 0
	}
	if c.Rollup.Retention.SystemDays < 0 {
		c.Rollup.Retention.SystemDays = 0
	}
	if c.Rollup.Retention.AppDays < 0 {
		c.Rollup.Retention.AppDays = 0
	}
	if c.Rollup.Retention.FineGrainedDays < 0 {
		c.Rollup.Retention.FineGrainedDays = 0
	}
	return nil
}
