package runtime

import "sync/atomic"

// ExecutionMetrics tracks the orchestrator's counters with lock-free
// atomics; incrementing from concurrent executions is safe and cheap.
type ExecutionMetrics struct {
	totalExecutions      atomic.Uint64
	successfulExecutions atomic.Uint64
	failedExecutions     atomic.Uint64
	totalFuelConsumed    atomic.Uint64
	cacheHits            atomic.Uint64
	cacheMisses          atomic.Uint64
	poolExhausted        atomic.Uint64
	rateLimited          atomic.Uint64
}

// MetricsSnapshot is a copyable point-in-time view of the counters.
type MetricsSnapshot struct {
	TotalExecutions      uint64 `json:"total_executions"`
	SuccessfulExecutions uint64 `json:"successful_executions"`
	FailedExecutions     uint64 `json:"failed_executions"`
	TotalFuelConsumed    uint64 `json:"total_fuel_consumed"`
	CacheHits            uint64 `json:"cache_hits"`
	CacheMisses          uint64 `json:"cache_misses"`
	PoolExhausted        uint64 `json:"pool_exhausted"`
	RateLimited          uint64 `json:"rate_limited"`
}

// NewExecutionMetrics creates zeroed metrics.
func NewExecutionMetrics() *ExecutionMetrics { return &ExecutionMetrics{} }

// RecordAttempt counts one attempted execution.
func (m *ExecutionMetrics) RecordAttempt() { m.totalExecutions.Add(1) }

// RecordSuccess counts a successful execution and its fuel.
func (m *ExecutionMetrics) RecordSuccess(fuelConsumed uint64) {
	m.successfulExecutions.Add(1)
	m.totalFuelConsumed.Add(fuelConsumed)
}

// RecordFailure counts a failed execution.
func (m *ExecutionMetrics) RecordFailure() { m.failedExecutions.Add(1) }

// RecordCacheHit counts a compiled-component reuse.
func (m *ExecutionMetrics) RecordCacheHit() { m.cacheHits.Add(1) }

// RecordCacheMiss counts a fresh compilation.
func (m *ExecutionMetrics) RecordCacheMiss() { m.cacheMisses.Add(1) }

// RecordPoolExhausted counts a rejected admission.
func (m *ExecutionMetrics) RecordPoolExhausted() { m.poolExhausted.Add(1) }

// RecordRateLimited counts a rate-limit rejection.
func (m *ExecutionMetrics) RecordRateLimited() { m.rateLimited.Add(1) }

// Snapshot returns a consistent-enough copy of all counters.
func (m *ExecutionMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalExecutions:      m.totalExecutions.Load(),
		SuccessfulExecutions: m.successfulExecutions.Load(),
		FailedExecutions:     m.failedExecutions.Load(),
		TotalFuelConsumed:    m.totalFuelConsumed.Load(),
		CacheHits:            m.cacheHits.Load(),
		CacheMisses:          m.cacheMisses.Load(),
		PoolExhausted:        m.poolExhausted.Load(),
		RateLimited:          m.rateLimited.Load(),
	}
}
