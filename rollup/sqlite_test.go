package rollup

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netglance/netglance/share/logger"
	"github.com/netglance/netglance/share/models"
)

var testLog = logger.NewLogger("rollup-test", logger.LogOutput{File: os.Stdout}, logger.LogLevelDebug)

var bucketHour = time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC).Unix()

func newTestProvider(t *testing.T) DBProvider {
	t.Helper()
	p, err := NewSqliteProvider(":memory:", testLog)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestUsageUpsertAccumulatesSumsAndPeaks(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	err := p.UpsertUsage(ctx, TableHourlyUsage, models.UsageRow{
		BucketTS: bucketHour, AdapterID: "eth0",
		BytesReceived: 100_000, BytesSent: 40_000,
		PeakDownloadBps: 1200, PeakUploadBps: 300,
	})
	require.NoError(t, err)

	err = p.UpsertUsage(ctx, TableHourlyUsage, models.UsageRow{
		BucketTS: bucketHour, AdapterID: "eth0",
		BytesReceived: 100_000, BytesSent: 60_000,
		PeakDownloadBps: 800, PeakUploadBps: 500,
	})
	require.NoError(t, err)

	rows, err := p.GetUsage(ctx, TableHourlyUsage, bucketHour, bucketHour+3600)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, uint64(200_000), rows[0].BytesReceived)
	assert.Equal(t, uint64(100_000), rows[0].BytesSent)
	// peaks take the max of the two saves, not the sum
	assert.Equal(t, 1200.0, rows[0].PeakDownloadBps)
	assert.Equal(t, 500.0, rows[0].PeakUploadBps)
}

func TestUsageBucketsWriteAllResolutions(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Unix()
	err := p.UpsertUsageBuckets(ctx, map[string]models.UsageRow{
		TableHourlyUsage: {BucketTS: bucketHour, AdapterID: "eth0", BytesReceived: 100},
		TableDailyUsage:  {BucketTS: day, AdapterID: "eth0", BytesReceived: 100},
	})
	require.NoError(t, err)

	for _, table := range []string{TableHourlyUsage, TableDailyUsage} {
		rows, err := p.GetUsage(ctx, table, 0, day+7*24*3600)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, uint64(100), rows[0].BytesReceived)
	}
}

func TestUsageBucketsRejectUnknownTableWithoutWriting(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	err := p.UpsertUsageBuckets(ctx, map[string]models.UsageRow{
		TableHourlyUsage: {BucketTS: bucketHour, AdapterID: "eth0", BytesReceived: 100},
		"settings":       {BucketTS: bucketHour, AdapterID: "eth0", BytesReceived: 100},
	})
	require.Error(t, err)

	rows, err := p.GetUsage(ctx, TableHourlyUsage, bucketHour, bucketHour+1)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUsageRowsPerAdapterAreIndependent(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.UpsertUsage(ctx, TableHourlyUsage, models.UsageRow{BucketTS: bucketHour, AdapterID: "eth0", BytesReceived: 10}))
	require.NoError(t, p.UpsertUsage(ctx, TableHourlyUsage, models.UsageRow{BucketTS: bucketHour, AdapterID: "wg0", BytesReceived: 20}))

	rows, err := p.GetUsage(ctx, TableHourlyUsage, bucketHour, bucketHour+1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "eth0", rows[0].AdapterID)
	assert.Equal(t, "wg0", rows[1].AdapterID)
}

func TestHourlySystemMergePreservesStoredAverage(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.UpsertHourlySystem(ctx, models.SystemStatsRow{
		BucketTS:      bucketHour,
		AvgCPUPercent: 40, MinCPUPercent: 20, MaxCPUPercent: 60,
		AvgMemPercent: 50, MaxMemPercent: 55, AvgMemUsedBytes: 4_000_000_000,
	}))

	// a later merge carries new samples: extrema widen, the stored average
	// deliberately stays as computed at row creation
	require.NoError(t, p.UpsertHourlySystem(ctx, models.SystemStatsRow{
		BucketTS:      bucketHour,
		AvgCPUPercent: 90, MinCPUPercent: 10, MaxCPUPercent: 95,
		AvgMemPercent: 80, MaxMemPercent: 85, AvgMemUsedBytes: 8_000_000_000,
	}))

	rows, err := p.GetSystemStats(ctx, TableHourlySystemStats, bucketHour, bucketHour+3600)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, 40.0, rows[0].AvgCPUPercent)
	assert.Equal(t, uint64(4_000_000_000), rows[0].AvgMemUsedBytes)
	assert.Equal(t, 10.0, rows[0].MinCPUPercent)
	assert.Equal(t, 95.0, rows[0].MaxCPUPercent)
	assert.Equal(t, 85.0, rows[0].MaxMemPercent)
}

func TestDailySystemInsertIgnoresExisting(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	day := DayStart(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, p.InsertDailySystem(ctx, models.SystemStatsRow{BucketTS: day, AvgCPUPercent: 33}))
	require.NoError(t, p.InsertDailySystem(ctx, models.SystemStatsRow{BucketTS: day, AvgCPUPercent: 99}))

	exists, err := p.DailySystemExists(ctx, day)
	require.NoError(t, err)
	assert.True(t, exists)

	rows, err := p.GetSystemStats(ctx, TableDailySystemStats, day, day+24*3600)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 33.0, rows[0].AvgCPUPercent)
}

func TestRetentionCutoff(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	service := NewService(p)
	now := time.Now().UTC()

	for _, daysAgo := range []int{100, 50, 10, 0} {
		bucket := DayStart(now.AddDate(0, 0, -daysAgo))
		require.NoError(t, p.UpsertUsage(ctx, TableDailyUsage, models.UsageRow{
			BucketTS: bucket, AdapterID: "eth0", BytesReceived: 1,
		}))
	}

	deleted, err := service.DeleteOlderThanDays(ctx, TableDailyUsage, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	rows, err := p.GetUsage(ctx, TableDailyUsage, 0, DayStart(now)+1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestAppUsageUpsert(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	delta := models.AppUsageRow{BucketTS: bucketHour, AppID: "abc", AppName: "firefox", BytesReceived: 100, PeakDownloadBps: 10}
	require.NoError(t, p.UpsertAppUsage(ctx, delta))
	delta.BytesReceived = 50
	delta.PeakDownloadBps = 5
	require.NoError(t, p.UpsertAppUsage(ctx, delta))

	rows, err := p.GetAppUsage(ctx, bucketHour, bucketHour+3600)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(150), rows[0].BytesReceived)
	assert.Equal(t, 10.0, rows[0].PeakDownloadBps)
	assert.Equal(t, "firefox", rows[0].AppName)
}

func TestSettingsRoundTrip(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.SaveSetting(ctx, "polling_interval_ms", "1000"))
	require.NoError(t, p.SaveSetting(ctx, "polling_interval_ms", "2000"))
	require.NoError(t, p.SaveSetting(ctx, "selected_adapter", "auto"))

	settings, err := p.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2000", settings["polling_interval_ms"])
	assert.Equal(t, "auto", settings["selected_adapter"])
}

func TestDeleteOlderThanRejectsUnknownTable(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.DeleteOlderThan(context.Background(), "measurements; DROP TABLE settings", 0)
	assert.Error(t, err)
}
