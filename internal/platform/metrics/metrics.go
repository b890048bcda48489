package metrics

import (
	"sync/atomic"
	"time"

	"crm/internal/domain/targets"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	syncApplied   uint64
	syncRejected  uint64
	syncConflicts uint64
	syncNotFound  uint64
	syncReplays   uint64
	recurrences   uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordSync tallies the outcome of one external target update.
func (c *Collector) RecordSync(status string, replayed bool) {
	switch status {
	case targets.StatusApplied:
		atomic.AddUint64(&c.syncApplied, 1)
		if replayed {
			atomic.AddUint64(&c.syncReplays, 1)
		}
	case targets.StatusConflict:
		atomic.AddUint64(&c.syncConflicts, 1)
	case targets.StatusNotFound:
		atomic.AddUint64(&c.syncNotFound, 1)
	default:
		atomic.AddUint64(&c.syncRejected, 1)
	}
}

func (c *Collector) RecordRecurrences(rolled int) {
	atomic.AddUint64(&c.recurrences, uint64(rolled))
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":     total,
		"errorsTotal":       errs,
		"rateLimitedTotal":  limited,
		"avgDurationMs":     avg,
		"totalDurationMs":   totalMs,
		"syncApplied":       atomic.LoadUint64(&c.syncApplied),
		"syncRejected":      atomic.LoadUint64(&c.syncRejected),
		"syncConflicts":     atomic.LoadUint64(&c.syncConflicts),
		"syncNotFound":      atomic.LoadUint64(&c.syncNotFound),
		"syncReplays":       atomic.LoadUint64(&c.syncReplays),
		"recurrencesRolled": atomic.LoadUint64(&c.recurrences),
	}
}
