package rollup

import (
	"context"
	"sync/atomic"

	"github.com/netglance/netglance/share/logger"
	"github.com/netglance/netglance/share/models"
)

type saver interface {
	SaveNetworkStats(ctx context.Context, stats models.NetworkStats) error
	SaveAppUsage(ctx context.Context, procs []models.ProcessSnapshot) error
}

// RecordSaver decouples the polling loop from persistence: Notify never
// blocks on I/O, writes happen on the queue goroutine one at a time.
type RecordSaver interface {
	Notify(models.NetworkStats)
	NotifyApps([]models.ProcessSnapshot)
	Close() error
}

type record struct {
	stats *models.NetworkStats
	apps  []models.ProcessSnapshot
}

type queue struct {
	saver  saver
	queue  chan record
	closed atomic.Bool
	done   chan struct{}
	logger *logger.Logger
}

// Close stops accepting records and drains what is already queued, so a
// shutdown does not drop buffered writes.
func (q *queue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	close(q.queue)
	<-q.done
	return nil
}

func (q *queue) Notify(stats models.NetworkStats) {
	if q.closed.Load() {
		return
	}
	q.queue <- record{stats: &stats}
}

func (q *queue) NotifyApps(procs []models.ProcessSnapshot) {
	if q.closed.Load() {
		return
	}
	q.queue <- record{apps: procs}
}

func (q *queue) process() {
	ctx := context.Background()
	for r := range q.queue {
		if r.stats != nil {
			if err := q.saver.SaveNetworkStats(ctx, *r.stats); err != nil {
				// the delta stays merged into the next snapshot's running
				// totals, so a failed write is retried by the next save
				q.logger.Errorf("Failed to save network stats: %s", err)
			}
		}
		if len(r.apps) > 0 {
			if err := q.saver.SaveAppUsage(ctx, r.apps); err != nil {
				q.logger.Errorf("Failed to save app usage: %s", err)
			}
		}
	}
	close(q.done)
}

func NewRecordQueuing(logger *logger.Logger, saver saver, queueSize int) RecordSaver {
	q := &queue{
		saver:  saver,
		queue:  make(chan record, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.process()
	return q
}
