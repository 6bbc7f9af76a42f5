package rollup

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/netglance/netglance/db/migration/usage"
	"github.com/netglance/netglance/db/sqlite"
	"github.com/netglance/netglance/share/logger"
	"github.com/netglance/netglance/share/models"
)

// Usage table names accepted by the byte-sum upsert and retention paths.
const (
	TableHourlyUsage       = "hourly_usage"
	TableDailyUsage        = "daily_usage"
	TableWeeklyUsage       = "weekly_usage"
	TableHourlySystemStats = "hourly_system_stats"
	TableDailySystemStats  = "daily_system_stats"
	TableAppUsage          = "app_usage"
)

var usageTables = map[string]struct{}{
	TableHourlyUsage: {}, TableDailyUsage: {}, TableWeeklyUsage: {},
}

var retentionTables = map[string]struct{}{
	TableHourlyUsage: {}, TableDailyUsage: {}, TableWeeklyUsage: {},
	TableHourlySystemStats: {}, TableDailySystemStats: {}, TableAppUsage: {},
}

// DBProvider is the persistence boundary of the rollup engine. All bucketed
// rows are owned by it; nothing else mutates them.
type DBProvider interface {
	UpsertUsage(ctx context.Context, table string, delta models.UsageRow) error
	UpsertUsageBuckets(ctx context.Context, deltas map[string]models.UsageRow) error
	GetUsage(ctx context.Context, table string, start, end int64) ([]models.UsageRow, error)

	UpsertHourlySystem(ctx context.Context, row models.SystemStatsRow) error
	InsertDailySystem(ctx context.Context, row models.SystemStatsRow) error
	DailySystemExists(ctx context.Context, bucketTS int64) (bool, error)
	GetSystemStats(ctx context.Context, table string, start, end int64) ([]models.SystemStatsRow, error)

	UpsertAppUsage(ctx context.Context, delta models.AppUsageRow) error
	GetAppUsage(ctx context.Context, start, end int64) ([]models.AppUsageRow, error)

	DeleteOlderThan(ctx context.Context, table string, cutoffTS int64) (int64, error)

	GetSettings(ctx context.Context) (map[string]string, error)
	SaveSetting(ctx context.Context, key, value string) error

	Close() error
	DB() *sqlx.DB
}

type SqliteProvider struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func NewSqliteProvider(dbPath string, logger *logger.Logger) (DBProvider, error) {
	db, err := sqlite.New(dbPath, usage.AssetNames(), usage.Asset)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage DB instance: %v", err)
	}

	logger.Infof("initialized usage database at %s", dbPath)

	return &SqliteProvider{db: db, logger: logger}, nil
}

func usageUpsertQuery(table string) string {
	return "INSERT INTO " + table + " (bucket_ts, adapter_id, bytes_received, bytes_sent, peak_download_bps, peak_upload_bps) " +
		"VALUES (:bucket_ts, :adapter_id, :bytes_received, :bytes_sent, :peak_download_bps, :peak_upload_bps) " +
		"ON CONFLICT (bucket_ts, adapter_id) DO UPDATE SET " +
		"bytes_received = bytes_received + excluded.bytes_received, " +
		"bytes_sent = bytes_sent + excluded.bytes_sent, " +
		"peak_download_bps = MAX(peak_download_bps, excluded.peak_download_bps), " +
		"peak_upload_bps = MAX(peak_upload_bps, excluded.peak_upload_bps)"
}

// UpsertUsage merges one delta into a bucketed network usage row: byte sums
// accumulate, peaks only ever widen.
func (p *SqliteProvider) UpsertUsage(ctx context.Context, table string, delta models.UsageRow) error {
	if _, ok := usageTables[table]; !ok {
		return fmt.Errorf("not a usage table: %s", table)
	}
	_, err := p.db.NamedExecContext(ctx, usageUpsertQuery(table), delta)
	return err
}

// UpsertUsageBuckets merges deltas into several resolution rows in one
// transaction: either every row absorbs its delta or none does, so a caller
// can safely re-apply the whole batch after a failure.
func (p *SqliteProvider) UpsertUsageBuckets(ctx context.Context, deltas map[string]models.UsageRow) error {
	for table := range deltas {
		if _, ok := usageTables[table]; !ok {
			return fmt.Errorf("not a usage table: %s", table)
		}
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for table, delta := range deltas {
		if _, err := tx.NamedExecContext(ctx, usageUpsertQuery(table), delta); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (p *SqliteProvider) GetUsage(ctx context.Context, table string, start, end int64) ([]models.UsageRow, error) {
	if _, ok := usageTables[table]; !ok {
		return nil, fmt.Errorf("not a usage table: %s", table)
	}
	rows := []models.UsageRow{}
	err := p.db.SelectContext(ctx, &rows,
		"SELECT * FROM "+table+" WHERE bucket_ts >= ? AND bucket_ts < ? ORDER BY bucket_ts ASC, adapter_id ASC", start, end)
	return rows, err
}

// UpsertHourlySystem creates the row seeded with averages and extrema; a
// merge into an existing row only widens the extrema. The stored averages
// deliberately stay as computed at row creation.
func (p *SqliteProvider) UpsertHourlySystem(ctx context.Context, row models.SystemStatsRow) error {
	q := "INSERT INTO hourly_system_stats (bucket_ts, avg_cpu_percent, min_cpu_percent, max_cpu_percent, " +
		"avg_mem_percent, max_mem_percent, avg_mem_used_bytes, avg_gpu_percent, max_gpu_percent) " +
		"VALUES (:bucket_ts, :avg_cpu_percent, :min_cpu_percent, :max_cpu_percent, " +
		":avg_mem_percent, :max_mem_percent, :avg_mem_used_bytes, :avg_gpu_percent, :max_gpu_percent) " +
		"ON CONFLICT (bucket_ts) DO UPDATE SET " +
		"min_cpu_percent = MIN(min_cpu_percent, excluded.min_cpu_percent), " +
		"max_cpu_percent = MAX(max_cpu_percent, excluded.max_cpu_percent), " +
		"max_mem_percent = MAX(max_mem_percent, excluded.max_mem_percent), " +
		"max_gpu_percent = CASE WHEN excluded.max_gpu_percent IS NULL THEN max_gpu_percent " +
		"ELSE MAX(COALESCE(max_gpu_percent, 0), excluded.max_gpu_percent) END"
	_, err := p.db.NamedExecContext(ctx, q, row)
	return err
}

// InsertDailySystem writes a derived daily row; an existing row for the date
// is left untouched.
func (p *SqliteProvider) InsertDailySystem(ctx context.Context, row models.SystemStatsRow) error {
	q := "INSERT INTO daily_system_stats (bucket_ts, avg_cpu_percent, min_cpu_percent, max_cpu_percent, " +
		"avg_mem_percent, max_mem_percent, avg_mem_used_bytes, avg_gpu_percent, max_gpu_percent) " +
		"VALUES (:bucket_ts, :avg_cpu_percent, :min_cpu_percent, :max_cpu_percent, " +
		":avg_mem_percent, :max_mem_percent, :avg_mem_used_bytes, :avg_gpu_percent, :max_gpu_percent)"
	_, err := p.db.NamedExecContext(ctx, q, row)
	if err != nil {
		typeErr, ok := err.(sqlite3.Error)
		if ok && typeErr.Code == sqlite3.ErrConstraint {
			return nil
		}
		return err
	}
	return nil
}

func (p *SqliteProvider) DailySystemExists(ctx context.Context, bucketTS int64) (bool, error) {
	var count int
	err := p.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM daily_system_stats WHERE bucket_ts = ?", bucketTS)
	return count > 0, err
}

func (p *SqliteProvider) GetSystemStats(ctx context.Context, table string, start, end int64) ([]models.SystemStatsRow, error) {
	if table != TableHourlySystemStats && table != TableDailySystemStats {
		return nil, fmt.Errorf("not a system stats table: %s", table)
	}
	rows := []models.SystemStatsRow{}
	err := p.db.SelectContext(ctx, &rows,
		"SELECT * FROM "+table+" WHERE bucket_ts >= ? AND bucket_ts < ? ORDER BY bucket_ts ASC", start, end)
	return rows, err
}

func (p *SqliteProvider) UpsertAppUsage(ctx context.Context, delta models.AppUsageRow) error {
	q := "INSERT INTO app_usage (bucket_ts, app_id, app_name, bytes_received, bytes_sent, peak_download_bps, peak_upload_bps) " +
		"VALUES (:bucket_ts, :app_id, :app_name, :bytes_received, :bytes_sent, :peak_download_bps, :peak_upload_bps) " +
		"ON CONFLICT (bucket_ts, app_id) DO UPDATE SET " +
		"app_name = excluded.app_name, " +
		"bytes_received = bytes_received + excluded.bytes_received, " +
		"bytes_sent = bytes_sent + excluded.bytes_sent, " +
		"peak_download_bps = MAX(peak_download_bps, excluded.peak_download_bps), " +
		"peak_upload_bps = MAX(peak_upload_bps, excluded.peak_upload_bps)"
	_, err := p.db.NamedExecContext(ctx, q, delta)
	return err
}

func (p *SqliteProvider) GetAppUsage(ctx context.Context, start, end int64) ([]models.AppUsageRow, error) {
	rows := []models.AppUsageRow{}
	err := p.db.SelectContext(ctx, &rows,
		"SELECT * FROM app_usage WHERE bucket_ts >= ? AND bucket_ts < ? ORDER BY bucket_ts ASC, app_id ASC", start, end)
	return rows, err
}

// DeleteOlderThan bulk-deletes rows whose bucket predates the cutoff.
func (p *SqliteProvider) DeleteOlderThan(ctx context.Context, table string, cutoffTS int64) (int64, error) {
	if _, ok := retentionTables[table]; !ok {
		return 0, fmt.Errorf("not a retention table: %s", table)
	}
	result, err := p.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE bucket_ts < ?", cutoffTS)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (p *SqliteProvider) GetSettings(ctx context.Context) (map[string]string, error) {
	rows := []models.Setting{}
	if err := p.db.SelectContext(ctx, &rows, "SELECT key, value FROM settings"); err != nil {
		return nil, err
	}
	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.Key] = row.Value
	}
	return settings, nil
}

func (p *SqliteProvider) SaveSetting(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

func (p *SqliteProvider) Close() error {
	return p.db.Close()
}

func (p *SqliteProvider) DB() *sqlx.DB {
	return p.db
}
