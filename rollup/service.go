package rollup

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/netglance/netglance/share/models"
)

// Service merges raw snapshots into bucketed summary rows and answers range
// queries over them.
type Service interface {
	SaveNetworkStats(ctx context.Context, stats models.NetworkStats) error
	SaveAppUsage(ctx context.Context, procs []models.ProcessSnapshot) error

	AggregateSystemHours(ctx context.Context, groups map[int64][]models.SystemSnapshot) error
	AggregateSystemDaily(ctx context.Context, day time.Time) error

	GetHourlyUsage(ctx context.Context, start, end time.Time) ([]models.UsageRow, error)
	GetDailyUsage(ctx context.Context, start, end time.Time) ([]models.UsageRow, error)
	GetWeeklyUsage(ctx context.Context, start, end time.Time) ([]models.UsageRow, error)
	GetHourlySystemStats(ctx context.Context, start, end time.Time) ([]models.SystemStatsRow, error)
	GetDailySystemStats(ctx context.Context, start, end time.Time) ([]models.SystemStatsRow, error)
	GetAppUsage(ctx context.Context, start, end time.Time) ([]models.AppUsageRow, error)

	FoldSystemHoursOlderThanDays(ctx context.Context, days int) error
	DeleteOlderThanDays(ctx context.Context, table string, days int) (int64, error)

	GetSettings(ctx context.Context) (map[string]string, error)
	SaveSetting(ctx context.Context, key, value string) error
}

type rollupService struct {
	DBProvider DBProvider

	mtx     sync.Mutex
	lastNet map[string]models.NetworkStats
	// per-pid baselines: two live pids of the same app each carry their own
	// cumulative session counters, so deltas must be tracked per process
	lastApps map[int32]models.ProcessSnapshot
}

func NewService(dbProvider DBProvider) Service {
	return &rollupService{
		DBProvider: dbProvider,
		lastNet:    map[string]models.NetworkStats{},
		lastApps:   map[int32]models.ProcessSnapshot{},
	}
}

// sessionDelta turns two successive cumulative session readings into a
// delta; a decrease means the session was reset, so all current bytes count.
func sessionDelta(last, current uint64) uint64 {
	if current < last {
		return current
	}
	return current - last
}

// SaveNetworkStats accumulates the delta since the previous snapshot of the
// same adapter selection into the hourly, daily and weekly rows. Network
// counters are already cumulative so no buffered-sample pass is needed.
func (s *rollupService) SaveNetworkStats(ctx context.Context, stats models.NetworkStats) error {
	s.mtx.Lock()
	last, seen := s.lastNet[stats.AdapterID]
	s.mtx.Unlock()

	delta := models.UsageRow{
		AdapterID:       stats.AdapterID,
		PeakDownloadBps: stats.DownloadBps,
		PeakUploadBps:   stats.UploadBps,
	}
	if seen {
		delta.BytesReceived = sessionDelta(last.SessionBytesRecv, stats.SessionBytesRecv)
		delta.BytesSent = sessionDelta(last.SessionBytesSent, stats.SessionBytesSent)
	} else {
		delta.BytesReceived = stats.SessionBytesRecv
		delta.BytesSent = stats.SessionBytesSent
	}

	deltas := make(map[string]models.UsageRow, 3)
	for table, bucket := range map[string]int64{
		TableHourlyUsage: HourStart(stats.Timestamp),
		TableDailyUsage:  DayStart(stats.Timestamp),
		TableWeeklyUsage: WeekStart(stats.Timestamp),
	} {
		delta.BucketTS = bucket
		deltas[table] = delta
	}
	// all three resolutions land in one transaction; on failure the baseline
	// is not advanced and the whole delta rides along with the next write
	if err := s.DBProvider.UpsertUsageBuckets(ctx, deltas); err != nil {
		return errors.Wrap(err, "upsert usage buckets")
	}

	s.mtx.Lock()
	s.lastNet[stats.AdapterID] = stats
	s.mtx.Unlock()
	return nil
}

// SaveAppUsage accumulates per-app session byte deltas into the hourly app
// rows. Baselines are tracked per pid so several live processes of one app
// contribute only their own deltas; the rows merge on the stable app
// identifier, so relaunches and multi-process apps share a row.
func (s *rollupService) SaveAppUsage(ctx context.Context, procs []models.ProcessSnapshot) error {
	type bucketKey struct {
		bucket int64
		appID  string
	}

	s.mtx.Lock()
	baselines := make(map[int32]models.ProcessSnapshot, len(s.lastApps))
	for pid, snap := range s.lastApps {
		baselines[pid] = snap
	}
	s.mtx.Unlock()

	deltas := map[bucketKey]*models.AppUsageRow{}
	contributors := map[bucketKey][]models.ProcessSnapshot{}
	order := []bucketKey{}
	for _, proc := range procs {
		key := bucketKey{bucket: HourStart(proc.LastSeen), appID: proc.AppID}
		row, ok := deltas[key]
		if !ok {
			row = &models.AppUsageRow{BucketTS: key.bucket, AppID: proc.AppID, AppName: proc.DisplayName}
			deltas[key] = row
			order = append(order, key)
		}
		if proc.DownloadBps > row.PeakDownloadBps {
			row.PeakDownloadBps = proc.DownloadBps
		}
		if proc.UploadBps > row.PeakUploadBps {
			row.PeakUploadBps = proc.UploadBps
		}
		last, seen := baselines[proc.PID]
		if seen && last.AppID == proc.AppID {
			row.BytesReceived += sessionDelta(last.SessionBytesRecv, proc.SessionBytesRecv)
			row.BytesSent += sessionDelta(last.SessionBytesSent, proc.SessionBytesSent)
		} else {
			// new pid (or a recycled one now owned by another app): its
			// session counters start fresh
			row.BytesReceived += proc.SessionBytesRecv
			row.BytesSent += proc.SessionBytesSent
		}
		contributors[key] = append(contributors[key], proc)
	}

	for _, key := range order {
		row := deltas[key]
		if row.BytesReceived > 0 || row.BytesSent > 0 || row.PeakDownloadBps > 0 || row.PeakUploadBps > 0 {
			if err := s.DBProvider.UpsertAppUsage(ctx, *row); err != nil {
				return errors.Wrapf(err, "upsert app usage for %s", key.appID)
			}
		}
		s.mtx.Lock()
		for _, proc := range contributors[key] {
			s.lastApps[proc.PID] = proc
		}
		s.mtx.Unlock()
	}

	// drop baselines of pids gone from the snapshot set
	current := make(map[int32]struct{}, len(procs))
	for _, proc := range procs {
		current[proc.PID] = struct{}{}
	}
	s.mtx.Lock()
	for pid := range s.lastApps {
		if _, ok := current[pid]; !ok {
			delete(s.lastApps, pid)
		}
	}
	s.mtx.Unlock()
	return nil
}

// AggregateSystemHours folds drained sample groups into hourly rows. A group
// landing on an already-persisted hour only widens its extrema; the stored
// average keeps the value computed when the row was created.
func (s *rollupService) AggregateSystemHours(ctx context.Context, groups map[int64][]models.SystemSnapshot) error {
	for bucket, samples := range groups {
		if len(samples) == 0 {
			continue
		}
		row := summarizeSamples(bucket, samples)
		if err := s.DBProvider.UpsertHourlySystem(ctx, row); err != nil {
			return errors.Wrapf(err, "upsert hourly system stats for bucket %d", bucket)
		}
	}
	return nil
}

func summarizeSamples(bucket int64, samples []models.SystemSnapshot) models.SystemStatsRow {
	row := models.SystemStatsRow{
		BucketTS:      bucket,
		MinCPUPercent: samples[0].CPUPercent,
	}
	var cpuSum, memPctSum, gpuSum float64
	var memBytesSum uint64
	gpuCount := 0
	for _, sample := range samples {
		cpuSum += sample.CPUPercent
		if sample.CPUPercent < row.MinCPUPercent {
			row.MinCPUPercent = sample.CPUPercent
		}
		if sample.CPUPercent > row.MaxCPUPercent {
			row.MaxCPUPercent = sample.CPUPercent
		}
		memPct := sample.MemPercent()
		memPctSum += memPct
		if memPct > row.MaxMemPercent {
			row.MaxMemPercent = memPct
		}
		memBytesSum += sample.MemUsedBytes
		if sample.GPUPercent != nil {
			gpuSum += *sample.GPUPercent
			gpuCount++
			if row.MaxGPUPercent == nil || *sample.GPUPercent > *row.MaxGPUPercent {
				v := *sample.GPUPercent
				row.MaxGPUPercent = &v
			}
		}
	}
	n := float64(len(samples))
	row.AvgCPUPercent = cpuSum / n
	row.AvgMemPercent = memPctSum / n
	row.AvgMemUsedBytes = memBytesSum / uint64(len(samples))
	if gpuCount > 0 {
		avg := gpuSum / float64(gpuCount)
		row.AvgGPUPercent = &avg
	}
	return row
}

// AggregateSystemDaily derives the daily row for the given date from its
// hourly rows. It requires the full 24 hours and is a no-op when the daily
// row already exists; the derived average is the mean of the hourly
// averages, not a raw resample.
func (s *rollupService) AggregateSystemDaily(ctx context.Context, day time.Time) error {
	dayTS := DayStart(day)

	exists, err := s.DBProvider.DailySystemExists(ctx, dayTS)
	if err != nil {
		return errors.Wrap(err, "check daily system row")
	}
	if exists {
		return nil
	}

	hourly, err := s.DBProvider.GetSystemStats(ctx, TableHourlySystemStats, dayTS, dayTS+24*3600)
	if err != nil {
		return errors.Wrap(err, "load hourly system rows")
	}
	if len(hourly) < 24 {
		return nil
	}

	return s.DBProvider.InsertDailySystem(ctx, deriveDailySystem(dayTS, hourly))
}

func deriveDailySystem(dayTS int64, hourly []models.SystemStatsRow) models.SystemStatsRow {
	row := models.SystemStatsRow{
		BucketTS:      dayTS,
		MinCPUPercent: hourly[0].MinCPUPercent,
	}
	var cpuSum, memPctSum float64
	var memBytesSum uint64
	var gpuSum float64
	gpuCount := 0
	for _, h := range hourly {
		cpuSum += h.AvgCPUPercent
		memPctSum += h.AvgMemPercent
		memBytesSum += h.AvgMemUsedBytes
		if h.MinCPUPercent < row.MinCPUPercent {
			row.MinCPUPercent = h.MinCPUPercent
		}
		if h.MaxCPUPercent > row.MaxCPUPercent {
			row.MaxCPUPercent = h.MaxCPUPercent
		}
		if h.MaxMemPercent > row.MaxMemPercent {
			row.MaxMemPercent = h.MaxMemPercent
		}
		if h.AvgGPUPercent != nil {
			gpuSum += *h.AvgGPUPercent
			gpuCount++
		}
		if h.MaxGPUPercent != nil && (row.MaxGPUPercent == nil || *h.MaxGPUPercent > *row.MaxGPUPercent) {
			v := *h.MaxGPUPercent
			row.MaxGPUPercent = &v
		}
	}
	n := float64(len(hourly))
	row.AvgCPUPercent = cpuSum / n
	row.AvgMemPercent = memPctSum / n
	row.AvgMemUsedBytes = memBytesSum / uint64(len(hourly))
	if gpuCount > 0 {
		avg := gpuSum / float64(gpuCount)
		row.AvgGPUPercent = &avg
	}
	return row
}

// FoldSystemHoursOlderThanDays derives daily rows for any day whose hourly
// system detail is about to fall off the fine-grained horizon and has no
// daily row yet. Such days are usually incomplete (the 24-hour rule never
// fired), so a partial derivation beats losing the day entirely.
func (s *rollupService) FoldSystemHoursOlderThanDays(ctx context.Context, days int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Unix()

	hourly, err := s.DBProvider.GetSystemStats(ctx, TableHourlySystemStats, 0, cutoff)
	if err != nil {
		return errors.Wrap(err, "load expiring hourly system rows")
	}

	byDay := map[int64][]models.SystemStatsRow{}
	for _, h := range hourly {
		dayTS := DayStart(time.Unix(h.BucketTS, 0))
		byDay[dayTS] = append(byDay[dayTS], h)
	}

	for dayTS, rows := range byDay {
		exists, err := s.DBProvider.DailySystemExists(ctx, dayTS)
		if err != nil {
			return errors.Wrap(err, "check daily system row")
		}
		if exists {
			continue
		}
		if err := s.DBProvider.InsertDailySystem(ctx, deriveDailySystem(dayTS, rows)); err != nil {
			return errors.Wrapf(err, "fold hourly system rows into day %d", dayTS)
		}
	}
	return nil
}

func (s *rollupService) GetHourlyUsage(ctx context.Context, start, end time.Time) ([]models.UsageRow, error) {
	return s.DBProvider.GetUsage(ctx, TableHourlyUsage, start.Unix(), end.Unix())
}

func (s *rollupService) GetDailyUsage(ctx context.Context, start, end time.Time) ([]models.UsageRow, error) {
	return s.DBProvider.GetUsage(ctx, TableDailyUsage, start.Unix(), end.Unix())
}

func (s *rollupService) GetWeeklyUsage(ctx context.Context, start, end time.Time) ([]models.UsageRow, error) {
	return s.DBProvider.GetUsage(ctx, TableWeeklyUsage, start.Unix(), end.Unix())
}

func (s *rollupService) GetHourlySystemStats(ctx context.Context, start, end time.Time) ([]models.SystemStatsRow, error) {
	return s.DBProvider.GetSystemStats(ctx, TableHourlySystemStats, start.Unix(), end.Unix())
}

func (s *rollupService) GetDailySystemStats(ctx context.Context, start, end time.Time) ([]models.SystemStatsRow, error) {
	return s.DBProvider.GetSystemStats(ctx, TableDailySystemStats, start.Unix(), end.Unix())
}

func (s *rollupService) GetAppUsage(ctx context.Context, start, end time.Time) ([]models.AppUsageRow, error) {
	return s.DBProvider.GetAppUsage(ctx, start.Unix(), end.Unix())
}

func (s *rollupService) DeleteOlderThanDays(ctx context.Context, table string, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Unix()
	return s.DBProvider.DeleteOlderThan(ctx, table, cutoff)
}

func (s *rollupService) GetSettings(ctx context.Context) (map[string]string, error) {
	return s.DBProvider.GetSettings(ctx)
}

func (s *rollupService) SaveSetting(ctx context.Context, key, value string) error {
	return s.DBProvider.SaveSetting(ctx, key, value)
}
