package rollup

import (
	"github.com/netglance/netglance/share/logger"
)

const (
	QueueLoggerName = "usage-queue"
	QueueSize       = 10000
)

type rollupWithQueuing struct {
	Service
	RecordSaver
}

// Rollup is the full engine surface: synchronous aggregation/query methods
// plus the asynchronous record queue.
type Rollup interface {
	Service
	RecordSaver
}

func Bootstrap(logger *logger.Logger, dbProvider DBProvider) Rollup {
	service := NewService(dbProvider)
	return &rollupWithQueuing{
		Service:     service,
		RecordSaver: NewRecordQueuing(logger.Fork(QueueLoggerName), service, QueueSize),
	}
}
