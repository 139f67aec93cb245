package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is an in-memory collector of process-lifecycle counters, usable
// without an OpenTelemetry pipeline.
type Metrics struct {
	binaryStats   map[string]*BinaryStats
	totalLaunches int64
	cleanExits    int64
	nonZeroExits  int64
	signaledExits int64
	timeouts      int64
	spawnFailures int64
	totalDuration int64
	durationCount int64
	minDuration   int64
	maxDuration   int64
	mu            sync.RWMutex
}

// BinaryStats contains per-binary statistics.
type BinaryStats struct {
	LastLaunchAt  time.Time
	Binary        string
	LastCode      int
	TotalLaunches int64
	CleanExits    int64
	Failures      int64
	TotalDuration int64
	AvgDuration   int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		binaryStats: make(map[string]*BinaryStats),
		minDuration: -1,
	}
}

// RecordLaunch records one completed (or failed) launch. A negative code
// means the child was signaled; spawnErr reports a launch that never
// produced a child.
func (m *Metrics) RecordLaunch(binary string, code int, duration time.Duration, timedOut bool, spawnErr error) {
	atomic.AddInt64(&m.totalLaunches, 1)

	switch {
	case spawnErr != nil:
		atomic.AddInt64(&m.spawnFailures, 1)
	case timedOut:
		atomic.AddInt64(&m.timeouts, 1)
	case code < 0:
		atomic.AddInt64(&m.signaledExits, 1)
	case code > 0:
		atomic.AddInt64(&m.nonZeroExits, 1)
	default:
		atomic.AddInt64(&m.cleanExits, 1)
	}

	d := duration.Nanoseconds()
	atomic.AddInt64(&m.totalDuration, d)
	atomic.AddInt64(&m.durationCount, 1)

	for {
		old := atomic.LoadInt64(&m.minDuration)
		if old >= 0 && d >= old {
			break
		}
		if atomic.CompareAndSwapInt64(&m.minDuration, old, d) {
			break
		}
	}

	for {
		old := atomic.LoadInt64(&m.maxDuration)
		if d <= old {
			break
		}
		if atomic.CompareAndSwapInt64(&m.maxDuration, old, d) {
			break
		}
	}

	m.updateBinaryStats(binary, code, d, timedOut, spawnErr)
}

func (m *Metrics) updateBinaryStats(binary string, code int, duration int64, timedOut bool, spawnErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.binaryStats[binary]
	if !ok {
		stats = &BinaryStats{Binary: binary}
		m.binaryStats[binary] = stats
	}

	stats.TotalLaunches++
	stats.TotalDuration += duration
	stats.AvgDuration = stats.TotalDuration / stats.TotalLaunches
	stats.LastLaunchAt = time.Now()
	stats.LastCode = code

	if spawnErr == nil && !timedOut && code == 0 {
		stats.CleanExits++
	} else {
		stats.Failures++
	}
}

// Snapshot returns a point-in-time copy of the collected counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalLaunches: atomic.LoadInt64(&m.totalLaunches),
		CleanExits:    atomic.LoadInt64(&m.cleanExits),
		NonZeroExits:  atomic.LoadInt64(&m.nonZeroExits),
		SignaledExits: atomic.LoadInt64(&m.signaledExits),
		Timeouts:      atomic.LoadInt64(&m.timeouts),
		SpawnFailures: atomic.LoadInt64(&m.spawnFailures),
		AvgDuration:   m.avgDuration(),
		MinDuration:   time.Duration(atomic.LoadInt64(&m.minDuration)),
		MaxDuration:   time.Duration(atomic.LoadInt64(&m.maxDuration)),
		BinaryStats:   m.getBinaryStats(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	BinaryStats   map[string]*BinaryStats
	TotalLaunches int64
	CleanExits    int64
	NonZeroExits  int64
	SignaledExits int64
	Timeouts      int64
	SpawnFailures int64
	AvgDuration   time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
}

// SuccessRate returns the clean-exit rate as a percentage.
func (s MetricsSnapshot) SuccessRate() float64 {
	if s.TotalLaunches == 0 {
		return 0
	}
	return float64(s.CleanExits) / float64(s.TotalLaunches) * 100
}

// FailureRate returns the non-clean-exit rate as a percentage.
func (s MetricsSnapshot) FailureRate() float64 {
	if s.TotalLaunches == 0 {
		return 0
	}
	return float64(s.TotalLaunches-s.CleanExits) / float64(s.TotalLaunches) * 100
}

func (m *Metrics) avgDuration() time.Duration {
	count := atomic.LoadInt64(&m.durationCount)
	if count == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&m.totalDuration) / count)
}

func (m *Metrics) getBinaryStats() map[string]*BinaryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*BinaryStats, len(m.binaryStats))
	for k, v := range m.binaryStats {
		copied := *v
		result[k] = &copied
	}
	return result
}

// Reset resets all metrics.
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.totalLaunches, 0)
	atomic.StoreInt64(&m.cleanExits, 0)
	atomic.StoreInt64(&m.nonZeroExits, 0)
	atomic.StoreInt64(&m.signaledExits, 0)
	atomic.StoreInt64(&m.timeouts, 0)
	atomic.StoreInt64(&m.spawnFailures, 0)
	atomic.StoreInt64(&m.totalDuration, 0)
	atomic.StoreInt64(&m.durationCount, 0)
	atomic.StoreInt64(&m.minDuration, -1)
	atomic.StoreInt64(&m.maxDuration, 0)

	m.mu.Lock()
	m.binaryStats = make(map[string]*BinaryStats)
	m.mu.Unlock()
}
