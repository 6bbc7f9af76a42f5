// Package usage holds the SQL schema for the usage store, exposed in the
// AssetNames/Asset shape the migration driver consumes.
package usage

import (
	"fmt"
	"sort"
)

var assets = map[string]string{
	"001_init.up.sql": `
CREATE TABLE hourly_usage (
    bucket_ts         INTEGER NOT NULL,
    adapter_id        TEXT    NOT NULL,
    bytes_received    INTEGER NOT NULL DEFAULT 0,
    bytes_sent        INTEGER NOT NULL DEFAULT 0,
    peak_download_bps REAL    NOT NULL DEFAULT 0,
    peak_upload_bps   REAL    NOT NULL DEFAULT 0,
    PRIMARY KEY (bucket_ts, adapter_id)
);

CREATE TABLE daily_usage (
    bucket_ts         INTEGER NOT NULL,
    adapter_id        TEXT    NOT NULL,
    bytes_received    INTEGER NOT NULL DEFAULT 0,
    bytes_sent        INTEGER NOT NULL DEFAULT 0,
    peak_download_bps REAL    NOT NULL DEFAULT 0,
    peak_upload_bps   REAL    NOT NULL DEFAULT 0,
    PRIMARY KEY (bucket_ts, adapter_id)
);

CREATE TABLE weekly_usage (
    bucket_ts         INTEGER NOT NULL,
    adapter_id        TEXT    NOT NULL,
    bytes_received    INTEGER NOT NULL DEFAULT 0,
    bytes_sent        INTEGER NOT NULL DEFAULT 0,
    peak_download_bps REAL    NOT NULL DEFAULT 0,
    peak_upload_bps   REAL    NOT NULL DEFAULT 0,
    PRIMARY KEY (bucket_ts, adapter_id)
);

CREATE TABLE hourly_system_stats (
    bucket_ts          INTEGER PRIMARY KEY,
    avg_cpu_percent    REAL    NOT NULL DEFAULT 0,
    min_cpu_percent    REAL    NOT NULL DEFAULT 0,
    max_cpu_percent    REAL    NOT NULL DEFAULT 0,
    avg_mem_percent    REAL    NOT NULL DEFAULT 0,
    max_mem_percent    REAL    NOT NULL DEFAULT 0,
    avg_mem_used_bytes INTEGER NOT NULL DEFAULT 0,
    avg_gpu_percent    REAL,
    max_gpu_percent    REAL
);

CREATE TABLE daily_system_stats (
    bucket_ts          INTEGER PRIMARY KEY,
    avg_cpu_percent    REAL    NOT NULL DEFAULT 0,
    min_cpu_percent    REAL    NOT NULL DEFAULT 0,
    max_cpu_percent    REAL    NOT NULL DEFAULT 0,
    avg_mem_percent    REAL    NOT NULL DEFAULT 0,
    max_mem_percent    REAL    NOT NULL DEFAULT 0,
    avg_mem_used_bytes INTEGER NOT NULL DEFAULT 0,
    avg_gpu_percent    REAL,
    max_gpu_percent    REAL
);

CREATE TABLE app_usage (
    bucket_ts         INTEGER NOT NULL,
    app_id            TEXT    NOT NULL,
    app_name          TEXT    NOT NULL DEFAULT '',
    bytes_received    INTEGER NOT NULL DEFAULT 0,
    bytes_sent        INTEGER NOT NULL DEFAULT 0,
    peak_download_bps REAL    NOT NULL DEFAULT 0,
    peak_upload_bps   REAL    NOT NULL DEFAULT 0,
    PRIMARY KEY (bucket_ts, app_id)
);

CREATE TABLE settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX idx_hourly_usage_bucket ON hourly_usage (bucket_ts);
CREATE INDEX idx_daily_usage_bucket ON daily_usage (bucket_ts);
CREATE INDEX idx_app_usage_bucket ON app_usage (bucket_ts);
`,
	"001_init.down.sql": `
DROP TABLE IF EXISTS hourly_usage;
DROP TABLE IF EXISTS daily_usage;
DROP TABLE IF EXISTS weekly_usage;
DROP TABLE IF EXISTS hourly_system_stats;
DROP TABLE IF EXISTS daily_system_stats;
DROP TABLE IF EXISTS app_usage;
DROP TABLE IF EXISTS settings;
`,
}

func AssetNames() []string {
	names := make([]string, 0, len(assets))
	for name := range assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Asset(name string) ([]byte, error) {
	sql, ok := assets[name]
	if !ok {
		return nil, fmt.Errorf("asset %s not found", name)
	}
	return []byte(sql), nil
}
