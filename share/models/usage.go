package models

// UsageRow is a bucketed network usage row. The same shape backs the hourly,
// daily and weekly tables; BucketTS is the unix timestamp of the bucket start
// and forms the primary key together with AdapterID.
type UsageRow struct {
	BucketTS        int64   `json:"bucket_ts" db:"bucket_ts"`
	AdapterID       string  `json:"adapter_id" db:"adapter_id"`
	BytesReceived   uint64  `json:"bytes_received" db:"bytes_received"`
	BytesSent       uint64  `json:"bytes_sent" db:"bytes_sent"`
	PeakDownloadBps float64 `json:"peak_download_bps" db:"peak_download_bps"`
	PeakUploadBps   float64 `json:"peak_upload_bps" db:"peak_upload_bps"`
}

// SystemStatsRow is a bucketed system resource row (hourly or daily).
// Average fields are computed once, from the samples present when the row is
// first created; later merges only widen the extrema.
type SystemStatsRow struct {
	BucketTS        int64    `json:"bucket_ts" db:"bucket_ts"`
	AvgCPUPercent   float64  `json:"avg_cpu_percent" db:"avg_cpu_percent"`
	MinCPUPercent   float64  `json:"min_cpu_percent" db:"min_cpu_percent"`
	MaxCPUPercent   float64  `json:"max_cpu_percent" db:"max_cpu_percent"`
	AvgMemPercent   float64  `json:"avg_mem_percent" db:"avg_mem_percent"`
	MaxMemPercent   float64  `json:"max_mem_percent" db:"max_mem_percent"`
	AvgMemUsedBytes uint64   `json:"avg_mem_used_bytes" db:"avg_mem_used_bytes"`
	AvgGPUPercent   *float64 `json:"avg_gpu_percent,omitempty" db:"avg_gpu_percent"`
	MaxGPUPercent   *float64 `json:"max_gpu_percent,omitempty" db:"max_gpu_percent"`
}

// AppUsageRow is a bucketed per-application usage row, keyed by the stable
// app identifier (hash of the lower-cased executable path).
type AppUsageRow struct {
	BucketTS        int64   `json:"bucket_ts" db:"bucket_ts"`
	AppID           string  `json:"app_id" db:"app_id"`
	AppName         string  `json:"app_name" db:"app_name"`
	BytesReceived   uint64  `json:"bytes_received" db:"bytes_received"`
	BytesSent       uint64  `json:"bytes_sent" db:"bytes_sent"`
	PeakDownloadBps float64 `json:"peak_download_bps" db:"peak_download_bps"`
	PeakUploadBps   float64 `json:"peak_upload_bps" db:"peak_upload_bps"`
}

// Setting is one persisted key/value configuration entry.
type Setting struct {
	Key   string `json:"key" db:"key"`
	Value string `json:"value" db:"value"`
}
