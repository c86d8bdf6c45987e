package phoneauth

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter or latency histogram.
type MetricID uint16

const (
	MetricSignupSuccess MetricID = iota
	MetricSignupFailure
	MetricSignupDuplicate
	MetricInviteRejected
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricRefreshRateLimited
	MetricSessionCreated
	MetricSessionInvalidated
	MetricLogout
	MetricLogoutAll
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld
	MetricBackendError

	// Latency histograms. Inc is a no-op for these.
	MetricSignupLatency
	MetricLoginLatency
	MetricRefreshLatency
	MetricValidateLatency
	metricIDCount
)

const (
	firstLatencyMetric = MetricSignupLatency
	counterCount       = int(firstLatencyMetric)
	histogramCount     = int(metricIDCount - firstLatencyMetric)
)

// latencyBounds are the inclusive upper bounds of the first seven buckets,
// compared at millisecond precision. The eighth bucket takes the rest.
var latencyBounds = [...]int64{5, 10, 25, 50, 100, 250, 500}

const histBucketCount = len(latencyBounds) + 1

// counterCell keeps each counter on its own cache line so hot counters
// updated from different cores do not contend.
type counterCell struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free engine counters. A nil *Metrics is usable and
// records nothing.
type Metrics struct {
	enabled bool
	latency bool

	counters   [counterCount]counterCell
	histograms [histogramCount][histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter and, when latency
// histograms are enabled, the per-bucket (non-cumulative) observation counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool        { return m != nil && m.enabled }
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

// IsLatency reports whether id is a histogram rather than a counter.
func (id MetricID) IsLatency() bool {
	return id >= firstLatencyMetric && id < metricIDCount
}

func (id MetricID) isCounter() bool {
	return id < firstLatencyMetric
}

func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add increases a counter by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if !m.Enabled() || !id.isCounter() {
		return
	}
	m.counters[id].Add(n)
}

// Observe records d into the histogram for id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || !id.IsLatency() {
		return
	}
	m.histograms[id-firstLatencyMetric][latencyBucket(d)].Add(1)
}

// Value returns a counter's current value; histograms read as zero.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || !id.isCounter() {
		return 0
	}
	return m.counters[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return snap
	}

	for i := range m.counters {
		snap.Counters[MetricID(i)] = m.counters[i].Load()
	}
	if !m.latency {
		return snap
	}
	for i := range m.histograms {
		buckets := make([]uint64, histBucketCount)
		for b := range buckets {
			buckets[b] = m.histograms[i][b].Load()
		}
		snap.Histograms[firstLatencyMetric+MetricID(i)] = buckets
	}
	return snap
}

func latencyBucket(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range latencyBounds {
		if ms <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
