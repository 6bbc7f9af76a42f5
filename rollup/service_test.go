package rollup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netglance/netglance/share/models"
)

func TestSaveNetworkStatsAccumulatesSessionDeltas(t *testing.T) {
	p := newTestProvider(t)
	service := NewService(p)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 14, 10, 0, 0, time.UTC)

	require.NoError(t, service.SaveNetworkStats(ctx, models.NetworkStats{
		Timestamp: at, AdapterID: "eth0",
		SessionBytesRecv: 100_000, SessionBytesSent: 10_000,
		DownloadBps: 5000, UploadBps: 1000,
	}))
	require.NoError(t, service.SaveNetworkStats(ctx, models.NetworkStats{
		Timestamp: at.Add(time.Second), AdapterID: "eth0",
		SessionBytesRecv: 200_000, SessionBytesSent: 15_000,
		DownloadBps: 3000, UploadBps: 2000,
	}))

	rows, err := service.GetHourlyUsage(ctx, at.Truncate(time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(200_000), rows[0].BytesReceived)
	assert.Equal(t, uint64(15_000), rows[0].BytesSent)
	assert.Equal(t, 5000.0, rows[0].PeakDownloadBps)
	assert.Equal(t, 2000.0, rows[0].PeakUploadBps)

	// the same deltas landed in the coarser rows
	daily, err := service.GetDailyUsage(ctx, at.AddDate(0, 0, -1), at.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, uint64(200_000), daily[0].BytesReceived)

	weekly, err := service.GetWeeklyUsage(ctx, at.AddDate(0, 0, -7), at.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, weekly, 1)
	assert.Equal(t, uint64(200_000), weekly[0].BytesReceived)
}

func TestSaveNetworkStatsSessionReset(t *testing.T) {
	p := newTestProvider(t)
	service := NewService(p)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 14, 10, 0, 0, time.UTC)

	require.NoError(t, service.SaveNetworkStats(ctx, models.NetworkStats{
		Timestamp: at, AdapterID: "eth0", SessionBytesRecv: 500_000,
	}))
	// session was reset between polls: only the new bytes count
	require.NoError(t, service.SaveNetworkStats(ctx, models.NetworkStats{
		Timestamp: at.Add(time.Second), AdapterID: "eth0", SessionBytesRecv: 7_000,
	}))

	rows, err := service.GetHourlyUsage(ctx, at.Truncate(time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(507_000), rows[0].BytesReceived)
}

func TestSaveAppUsageMergesRelaunches(t *testing.T) {
	p := newTestProvider(t)
	service := NewService(p)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 14, 10, 0, 0, time.UTC)

	proc := models.ProcessSnapshot{
		PID: 100, AppID: "app-1", DisplayName: "Firefox",
		SessionBytesRecv: 1000, DownloadBps: 100, LastSeen: at,
	}
	require.NoError(t, service.SaveAppUsage(ctx, []models.ProcessSnapshot{proc}))

	// relaunched under a new pid: fresh session counters, same app row
	relaunched := proc
	relaunched.PID = 200
	relaunched.SessionBytesRecv = 400
	relaunched.LastSeen = at.Add(time.Minute)
	require.NoError(t, service.SaveAppUsage(ctx, []models.ProcessSnapshot{relaunched}))

	rows, err := service.GetAppUsage(ctx, at.Truncate(time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(1400), rows[0].BytesReceived)
}

func TestSaveAppUsageTwoPidsOneApp(t *testing.T) {
	p := newTestProvider(t)
	service := NewService(p)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 14, 10, 0, 0, time.UTC)

	procs := []models.ProcessSnapshot{
		{PID: 100, AppID: "app-x", DisplayName: "Chromium", SessionBytesRecv: 100, LastSeen: at},
		{PID: 101, AppID: "app-x", DisplayName: "Chromium", SessionBytesRecv: 100, LastSeen: at},
	}
	require.NoError(t, service.SaveAppUsage(ctx, procs))

	// an idle poll with unchanged session totals adds nothing
	for i := range procs {
		procs[i].LastSeen = at.Add(time.Second)
	}
	require.NoError(t, service.SaveAppUsage(ctx, procs))

	rows, err := service.GetAppUsage(ctx, at.Truncate(time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(200), rows[0].BytesReceived)

	// each pid contributes only its own growth
	procs[0].SessionBytesRecv = 150
	procs[1].SessionBytesRecv = 130
	require.NoError(t, service.SaveAppUsage(ctx, procs))

	rows, err = service.GetAppUsage(ctx, at.Truncate(time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(280), rows[0].BytesReceived)
}

func TestSaveAppUsagePidRecycledByAnotherApp(t *testing.T) {
	p := newTestProvider(t)
	service := NewService(p)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 14, 10, 0, 0, time.UTC)

	require.NoError(t, service.SaveAppUsage(ctx, []models.ProcessSnapshot{
		{PID: 100, AppID: "app-1", DisplayName: "Firefox", SessionBytesRecv: 900, LastSeen: at},
	}))
	// same pid, different app: the old baseline must not apply
	require.NoError(t, service.SaveAppUsage(ctx, []models.ProcessSnapshot{
		{PID: 100, AppID: "app-2", DisplayName: "curl", SessionBytesRecv: 50, LastSeen: at.Add(time.Second)},
	}))

	rows, err := service.GetAppUsage(ctx, at.Truncate(time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(900), rows[0].BytesReceived)
	assert.Equal(t, uint64(50), rows[1].BytesReceived)
}

type flakyUsageProvider struct {
	DBProvider
	failures int
}

func (p *flakyUsageProvider) UpsertUsageBuckets(ctx context.Context, deltas map[string]models.UsageRow) error {
	if p.failures > 0 {
		p.failures--
		return assert.AnError
	}
	return p.DBProvider.UpsertUsageBuckets(ctx, deltas)
}

func TestSaveNetworkStatsRetriesDeltaAfterWriteFailure(t *testing.T) {
	p := &flakyUsageProvider{DBProvider: newTestProvider(t)}
	service := NewService(p)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 14, 10, 0, 0, time.UTC)

	require.NoError(t, service.SaveNetworkStats(ctx, models.NetworkStats{
		Timestamp: at, AdapterID: "eth0", SessionBytesRecv: 100_000,
	}))

	p.failures = 1
	require.Error(t, service.SaveNetworkStats(ctx, models.NetworkStats{
		Timestamp: at.Add(time.Second), AdapterID: "eth0", SessionBytesRecv: 200_000,
	}))
	require.NoError(t, service.SaveNetworkStats(ctx, models.NetworkStats{
		Timestamp: at.Add(2 * time.Second), AdapterID: "eth0", SessionBytesRecv: 200_000,
	}))

	// the failed delta is applied exactly once, in every resolution
	hourly, err := service.GetHourlyUsage(ctx, at.Truncate(time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, hourly, 1)
	assert.Equal(t, uint64(200_000), hourly[0].BytesReceived)

	daily, err := service.GetDailyUsage(ctx, at.AddDate(0, 0, -1), at.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, uint64(200_000), daily[0].BytesReceived)
}

func seedHourlyDay(t *testing.T, service Service, day time.Time, hours int) {
	t.Helper()
	groups := map[int64][]models.SystemSnapshot{}
	for h := 0; h < hours; h++ {
		at := day.Add(time.Duration(h) * time.Hour)
		groups[HourStart(at)] = []models.SystemSnapshot{
			{Timestamp: at, CPUPercent: float64(h), MemUsedBytes: 1000, MemTotalBytes: 2000},
			{Timestamp: at.Add(time.Minute), CPUPercent: float64(h + 2), MemUsedBytes: 1200, MemTotalBytes: 2000},
		}
	}
	require.NoError(t, service.AggregateSystemHours(context.Background(), groups))
}

func TestAggregateSystemHours(t *testing.T) {
	p := newTestProvider(t)
	service := NewService(p)
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedHourlyDay(t, service, day, 1)

	rows, err := service.GetHourlySystemStats(ctx, day, day.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.0, rows[0].AvgCPUPercent)
	assert.Equal(t, 0.0, rows[0].MinCPUPercent)
	assert.Equal(t, 2.0, rows[0].MaxCPUPercent)
	assert.Equal(t, 55.0, rows[0].AvgMemPercent)
	assert.Equal(t, uint64(1100), rows[0].AvgMemUsedBytes)
}

func TestAggregateSystemDailyRequiresFullDay(t *testing.T) {
	p := newTestProvider(t)
	service := NewService(p)
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedHourlyDay(t, service, day, 23)
	require.NoError(t, service.AggregateSystemDaily(ctx, day))

	rows, err := service.GetDailySystemStats(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAggregateSystemDailyDerivesFromHourly(t *testing.T) {
	p := newTestProvider(t)
	service := NewService(p)
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedHourlyDay(t, service, day, 24)
	require.NoError(t, service.AggregateSystemDaily(ctx, day))

	rows, err := service.GetDailySystemStats(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	// mean of the hourly averages h+1 for h in 0..23
	assert.Equal(t, 12.5, rows[0].AvgCPUPercent)
	assert.Equal(t, 0.0, rows[0].MinCPUPercent)
	assert.Equal(t, 25.0, rows[0].MaxCPUPercent)
}

func TestAggregateSystemDailyNoOpWhenRowExists(t *testing.T) {
	p := newTestProvider(t)
	service := NewService(p)
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.InsertDailySystem(ctx, models.SystemStatsRow{BucketTS: DayStart(day), AvgCPUPercent: 77}))

	// fresh hourly data for the date does not overwrite the existing row
	seedHourlyDay(t, service, day, 24)
	require.NoError(t, service.AggregateSystemDaily(ctx, day))

	rows, err := service.GetDailySystemStats(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 77.0, rows[0].AvgCPUPercent)
}
