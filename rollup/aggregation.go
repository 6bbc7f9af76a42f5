package rollup

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/netglance/netglance/share/logger"
	"github.com/netglance/netglance/share/models"
)

// SampleBuffer is the in-memory system sample source drained by the
// aggregation task; the resource sampler implements it.
type SampleBuffer interface {
	DrainCompletedHours(now time.Time) map[int64][]models.SystemSnapshot
	DrainAll() map[int64][]models.SystemSnapshot
	Restore(groups map[int64][]models.SystemSnapshot)
}

// AggregationTask periodically folds completed hour buckets into persisted
// hourly rows and derives daily rows once a day's 24 hours are in.
type AggregationTask struct {
	log     *logger.Logger
	buffer  SampleBuffer
	service Service
}

func NewAggregationTask(log *logger.Logger, buffer SampleBuffer, service Service) *AggregationTask {
	return &AggregationTask{
		log:     log,
		buffer:  buffer,
		service: service,
	}
}

func (t *AggregationTask) Run(ctx context.Context) error {
	return t.run(ctx, time.Now())
}

func (t *AggregationTask) run(ctx context.Context, now time.Time) error {
	groups := t.buffer.DrainCompletedHours(now)
	if err := t.service.AggregateSystemHours(ctx, groups); err != nil {
		// put the samples back, they are retried on the next pass
		t.buffer.Restore(groups)
		return errors.Wrap(err, "hourly aggregation")
	}
	if len(groups) > 0 {
		t.log.Debugf("aggregated %d completed hour bucket(s)", len(groups))
	}

	for _, day := range dailyCandidates(groups, now) {
		if err := t.service.AggregateSystemDaily(ctx, day); err != nil {
			return errors.Wrap(err, "daily aggregation")
		}
	}
	return nil
}

// Flush folds everything still buffered, including the in-progress hour.
// Called once on shutdown so a partially filled final bucket survives.
func (t *AggregationTask) Flush(ctx context.Context) error {
	groups := t.buffer.DrainAll()
	if err := t.service.AggregateSystemHours(ctx, groups); err != nil {
		t.buffer.Restore(groups)
		return errors.Wrap(err, "final aggregation")
	}
	return nil
}

// dailyCandidates lists the dates worth attempting a daily derivation for:
// every date touched by the drained groups plus the previous day, which may
// have just gotten its 24th hourly row.
func dailyCandidates(groups map[int64][]models.SystemSnapshot, now time.Time) []time.Time {
	seen := map[int64]time.Time{}
	for bucket := range groups {
		day := time.Unix(DayStart(time.Unix(bucket, 0)), 0).UTC()
		seen[day.Unix()] = day
	}
	yesterday := time.Unix(DayStart(now.AddDate(0, 0, -1)), 0).UTC()
	seen[yesterday.Unix()] = yesterday

	candidates := make([]time.Time, 0, len(seen))
	for _, day := range seen {
		candidates = append(candidates, day)
	}
	return candidates
}
