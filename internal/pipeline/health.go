package pipeline

import (
	"slices"
	"sync"
	"time"
)

// HealthStatus is the coarse state reported on /readyz.
type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusStopped   HealthStatus = "STOPPED"

	// DefaultUnhealthyThreshold is the number of consecutive failed batches
	// before the processor is reported unhealthy.
	DefaultUnhealthyThreshold = 3

	// DefaultDegradedLatencyThreshold is the p95 batch latency above which a
	// healthy processor is reported degraded.
	DefaultDegradedLatencyThreshold = 5 * time.Second

	latencyWindowSize = 20
)

// Health tracks batch outcomes of one processor.
type Health struct {
	mu                       sync.RWMutex
	processor                string
	status                   HealthStatus
	consecutiveFailures      int
	lastSuccessAt            *time.Time
	lastFailureAt            *time.Time
	lastCommittedVersion     int64
	unhealthyThreshold       int
	recentLatencies          []time.Duration
	degradedLatencyThreshold time.Duration
	now                      func() time.Time
}

func NewHealth(processor string) *Health {
	return &Health{
		processor:                processor,
		status:                   HealthStatusUnknown,
		unhealthyThreshold:       DefaultUnhealthyThreshold,
		recentLatencies:          make([]time.Duration, 0, latencyWindowSize),
		degradedLatencyThreshold: DefaultDegradedLatencyThreshold,
		now:                      time.Now,
	}
}

func (h *Health) SetStatus(status HealthStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
}

// RecordSuccess records a committed batch and reports whether it recovered
// the processor from UNHEALTHY.
func (h *Health) RecordSuccess(endVersion int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	recovered := h.status == HealthStatusUnhealthy
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now
	if endVersion > h.lastCommittedVersion {
		h.lastCommittedVersion = endVersion
	}
	if h.latencyDegradedLocked() {
		h.status = HealthStatusDegraded
	} else {
		h.status = HealthStatusHealthy
	}
	return recovered
}

// RecordFailure records a failed batch. It returns true on the call that
// moves the processor to UNHEALTHY.
func (h *Health) RecordFailure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	h.consecutiveFailures++
	h.lastFailureAt = &now
	if h.consecutiveFailures >= h.unhealthyThreshold && h.status != HealthStatusUnhealthy {
		h.status = HealthStatusUnhealthy
		return true
	}
	return false
}

func (h *Health) RecordLatency(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.recentLatencies) >= latencyWindowSize {
		h.recentLatencies = h.recentLatencies[1:]
	}
	h.recentLatencies = append(h.recentLatencies, d)

	switch h.status {
	case HealthStatusHealthy, HealthStatusDegraded:
		if h.latencyDegradedLocked() {
			h.status = HealthStatusDegraded
		} else if h.consecutiveFailures == 0 {
			h.status = HealthStatusHealthy
		}
	}
}

// Ready reports whether the processor is committing batches.
func (h *Health) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status == HealthStatusHealthy || h.status == HealthStatusDegraded
}

// Must be called with mu held.
func (h *Health) latencyDegradedLocked() bool {
	if len(h.recentLatencies) < 2 {
		return false
	}
	return h.percentileLocked(95) > h.degradedLatencyThreshold
}

func (h *Health) percentileLocked(pct int) time.Duration {
	n := len(h.recentLatencies)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(h.recentLatencies)
	slices.Sort(sorted)
	idx := (pct*n - 1) / 100
	return sorted[max(0, min(idx, n-1))]
}

func (h *Health) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthSnapshot{
		Processor:            h.processor,
		Status:               string(h.status),
		ConsecutiveFailures:  h.consecutiveFailures,
		LastCommittedVersion: h.lastCommittedVersion,
		P95Latency:           h.percentileLocked(95).String(),
		LastSuccessAt:        h.lastSuccessAt,
		LastFailureAt:        h.lastFailureAt,
	}
}

// HealthSnapshot is the JSON body of /readyz.
type HealthSnapshot struct {
	Processor            string     `json:"processor"`
	Status               string     `json:"status"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	LastCommittedVersion int64      `json:"last_committed_version"`
	P95Latency           string     `json:"p95_latency"`
	LastSuccessAt        *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt        *time.Time `json:"last_failure_at,omitempty"`
}
