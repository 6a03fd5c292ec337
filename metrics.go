package otpAuth

import (
	"sync/atomic"
)

// MetricID defines a public type used by otpAuth APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricCodeIssued is an exported constant or variable used by the authentication engine.
	MetricCodeIssued MetricID = iota
	// MetricCodeRateLimited is an exported constant or variable used by the authentication engine.
	MetricCodeRateLimited
	// MetricCodeValidated is an exported constant or variable used by the authentication engine.
	MetricCodeValidated
	// MetricCodeRejected is an exported constant or variable used by the authentication engine.
	MetricCodeRejected
	// MetricValidateRateLimited is an exported constant or variable used by the authentication engine.
	MetricValidateRateLimited
	// MetricDeliveryFailure is an exported constant or variable used by the authentication engine.
	MetricDeliveryFailure
	// MetricSessionCreated is an exported constant or variable used by the authentication engine.
	MetricSessionCreated
	// MetricRefreshSuccess is an exported constant or variable used by the authentication engine.
	MetricRefreshSuccess
	// MetricRefreshFailure is an exported constant or variable used by the authentication engine.
	MetricRefreshFailure
	// MetricRefreshReuseDetected is an exported constant or variable used by the authentication engine.
	MetricRefreshReuseDetected
	// MetricAccessVerified is an exported constant or variable used by the authentication engine.
	MetricAccessVerified
	// MetricAccessRejected is an exported constant or variable used by the authentication engine.
	MetricAccessRejected
	// MetricSessionRevoked is an exported constant or variable used by the authentication engine.
	MetricSessionRevoked
	// MetricLogoutOthers is an exported constant or variable used by the authentication engine.
	MetricLogoutOthers
	// MetricStoreUnavailable is an exported constant or variable used by the authentication engine.
	MetricStoreUnavailable
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by otpAuth APIs.
//
// Metrics holds cache-line-padded atomic counters; all operations are no-ops
// when metrics are disabled.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc describes the inc operation and its observable behavior.
//
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// MetricsSnapshot is a point-in-time deep copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snapshot := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, metricIDCount),
	}
	if m == nil || !m.enabled {
		return snapshot
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snapshot.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snapshot
}
