package base

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultReportInterval is how often a running ProgressReporter logs.
const DefaultReportInterval = 30 * time.Second

// ProgressReporter counts emitted records per stream and logs throughput
// periodically while a sync runs.
type ProgressReporter struct {
	logger   *zap.Logger
	interval time.Duration

	mu      sync.RWMutex
	streams map[string]*atomic.Int64
	total   atomic.Int64

	startTime      time.Time
	lastReportTime time.Time
	lastReported   int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewProgressReporter creates a reporter. A non-positive interval disables
// periodic reports; Stop still logs the summary.
func NewProgressReporter(logger *zap.Logger, interval time.Duration) *ProgressReporter {
	now := time.Now()
	return &ProgressReporter{
		logger:         logger,
		interval:       interval,
		streams:        make(map[string]*atomic.Int64),
		startTime:      now,
		lastReportTime: now,
		stopCh:         make(chan struct{}),
	}
}

// Start begins periodic progress reporting
func (pr *ProgressReporter) Start() {
	if pr.interval <= 0 {
		return
	}
	pr.wg.Add(1)
	go func() {
		defer pr.wg.Done()
		ticker := time.NewTicker(pr.interval)
		defer ticker.Stop()

		for {
			select {
			case <-pr.stopCh:
				return
			case <-ticker.C:
				pr.report()
			}
		}
	}()
}

// Stop ends periodic reporting and returns the final snapshot. It is safe to
// call more than once.
func (pr *ProgressReporter) Stop() ProgressSnapshot {
	pr.stopOnce.Do(func() {
		close(pr.stopCh)
		pr.wg.Wait()
	})
	return pr.Snapshot()
}

// Add counts n records emitted for stream.
func (pr *ProgressReporter) Add(stream string, n int64) {
	pr.mu.RLock()
	counter, ok := pr.streams[stream]
	pr.mu.RUnlock()
	if !ok {
		pr.mu.Lock()
		if counter, ok = pr.streams[stream]; !ok {
			counter = new(atomic.Int64)
			pr.streams[stream] = counter
		}
		pr.mu.Unlock()
	}
	counter.Add(n)
	pr.total.Add(n)
}

// ProgressSnapshot is a point-in-time view of a run.
type ProgressSnapshot struct {
	Records    int64
	PerStream  map[string]int64
	Elapsed    time.Duration
	Throughput float64
}

// Snapshot returns the current counts.
func (pr *ProgressReporter) Snapshot() ProgressSnapshot {
	pr.mu.RLock()
	per := make(map[string]int64, len(pr.streams))
	for name, c := range pr.streams {
		per[name] = c.Load()
	}
	pr.mu.RUnlock()

	snap := ProgressSnapshot{
		Records:   pr.total.Load(),
		PerStream: per,
		Elapsed:   time.Since(pr.startTime),
	}
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.Throughput = float64(snap.Records) / secs
	}
	return snap
}

// report logs the records emitted since the last report. Only the reporting
// goroutine touches lastReportTime and lastReported.
func (pr *ProgressReporter) report() {
	snap := pr.Snapshot()
	interval := time.Since(pr.lastReportTime)
	delta := snap.Records - pr.lastReported

	var recent float64
	if secs := interval.Seconds(); secs > 0 {
		recent = float64(delta) / secs
	}

	streams := make([]string, 0, len(snap.PerStream))
	for name := range snap.PerStream {
		streams = append(streams, name)
	}
	sort.Strings(streams)

	pr.logger.Info("progress update",
		zap.Int64("records", snap.Records),
		zap.Int64("records_since_last", delta),
		zap.Float64("throughput", recent),
		zap.Duration("elapsed", snap.Elapsed),
		zap.Strings("active_streams", streams))

	pr.lastReportTime = time.Now()
	pr.lastReported = snap.Records
}
