package persister

import (
	"sync"
	"time"
)

// Metrics 持久化器写入统计
type Metrics struct {
	Checkpoints       int64         `json:"checkpoints"`
	Deltas            int64         `json:"deltas"`
	ObjectsWritten    int64         `json:"objects_written"`
	ObjectsRemoved    int64         `json:"objects_removed"`
	Failures          int64         `json:"failures"`
	QueuedEntries     int           `json:"queued_entries"`
	LastWriteDuration time.Duration `json:"last_write_duration"`
	LastWriteAt       time.Time     `json:"last_write_at"`
}

// IMetricsRecorder 可选的外部埋点，便于对接监控系统
type IMetricsRecorder interface {
	RecordCheckpoint(objects int, d time.Duration, err bool)
	RecordDelta(written, removed, failures int, d time.Duration)
}

type metricsCollector struct {
	mu       sync.Mutex
	m        Metrics
	recorder IMetricsRecorder
}

func (c *metricsCollector) checkpoint(objects int, start time.Time, err error) {
	d := time.Since(start)
	c.mu.Lock()
	if err != nil {
		c.m.Failures++
	} else {
		c.m.Checkpoints++
		c.m.ObjectsWritten += int64(objects)
	}
	c.m.LastWriteDuration = d
	c.m.LastWriteAt = start.Add(d)
	c.mu.Unlock()
	if c.recorder != nil {
		c.recorder.RecordCheckpoint(objects, d, err != nil)
	}
}

func (c *metricsCollector) delta(r deltaResult, start time.Time) {
	d := time.Since(start)
	c.mu.Lock()
	c.m.Deltas++
	c.m.ObjectsWritten += int64(r.written)
	c.m.ObjectsRemoved += int64(r.removed)
	c.m.Failures += int64(r.failures)
	c.m.LastWriteDuration = d
	c.m.LastWriteAt = start.Add(d)
	c.mu.Unlock()
	if c.recorder != nil {
		c.recorder.RecordDelta(r.written, r.removed, r.failures, d)
	}
}

func (c *metricsCollector) snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m
}
