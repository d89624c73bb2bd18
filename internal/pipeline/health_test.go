package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealth_RecordSuccess(t *testing.T) {
	h := NewHealth("fa")
	assert.False(t, h.Ready())

	recovered := h.RecordSuccess(42)
	assert.False(t, recovered)

	snap := h.Snapshot()
	assert.Equal(t, "fa", snap.Processor)
	assert.Equal(t, string(HealthStatusHealthy), snap.Status)
	assert.Equal(t, int64(42), snap.LastCommittedVersion)
	assert.NotNil(t, snap.LastSuccessAt)
	assert.True(t, h.Ready())
}

func TestHealth_CommittedVersionNeverMovesBack(t *testing.T) {
	h := NewHealth("fa")
	h.RecordSuccess(50)
	h.RecordSuccess(20)
	assert.Equal(t, int64(50), h.Snapshot().LastCommittedVersion)
}

func TestHealth_RecordFailure_Threshold(t *testing.T) {
	h := NewHealth("fa")
	for i := 0; i < DefaultUnhealthyThreshold-1; i++ {
		assert.False(t, h.RecordFailure(), "should not transition before threshold")
	}
	assert.True(t, h.RecordFailure(), "should transition at threshold")
	assert.False(t, h.RecordFailure(), "transition is reported once")
	assert.Equal(t, string(HealthStatusUnhealthy), h.Snapshot().Status)
	assert.False(t, h.Ready())
}

func TestHealth_RecoveryAfterUnhealthy(t *testing.T) {
	h := NewHealth("fa")
	for i := 0; i < DefaultUnhealthyThreshold; i++ {
		h.RecordFailure()
	}
	assert.True(t, h.RecordSuccess(1))
	assert.Equal(t, string(HealthStatusHealthy), h.Snapshot().Status)
	assert.Equal(t, 0, h.Snapshot().ConsecutiveFailures)
}

func TestHealth_Latency(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(h *Health)
		want    HealthStatus
	}{
		{
			name: "slow batches degrade",
			prepare: func(h *Health) {
				h.RecordSuccess(1)
				for i := 0; i < latencyWindowSize; i++ {
					h.RecordLatency(10 * time.Second)
				}
			},
			want: HealthStatusDegraded,
		},
		{
			name: "fast batches recover",
			prepare: func(h *Health) {
				h.RecordSuccess(1)
				for i := 0; i < latencyWindowSize; i++ {
					h.RecordLatency(10 * time.Second)
				}
				for i := 0; i < latencyWindowSize; i++ {
					h.RecordLatency(100 * time.Millisecond)
				}
			},
			want: HealthStatusHealthy,
		},
		{
			name: "success after slow window stays degraded",
			prepare: func(h *Health) {
				for i := 0; i < latencyWindowSize; i++ {
					h.RecordLatency(10 * time.Second)
				}
				h.RecordSuccess(1)
			},
			want: HealthStatusDegraded,
		},
		{
			name: "latency does not override unhealthy",
			prepare: func(h *Health) {
				for i := 0; i < DefaultUnhealthyThreshold; i++ {
					h.RecordFailure()
				}
				h.RecordLatency(10 * time.Millisecond)
			},
			want: HealthStatusUnhealthy,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealth("fa")
			tc.prepare(h)
			assert.Equal(t, string(tc.want), h.Snapshot().Status)
		})
	}
}

func TestHealth_SnapshotDefaults(t *testing.T) {
	h := NewHealth("fa")
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	snap := h.Snapshot()
	assert.Equal(t, string(HealthStatusUnknown), snap.Status)
	assert.Nil(t, snap.LastSuccessAt)
	assert.Nil(t, snap.LastFailureAt)
	assert.Equal(t, "0s", snap.P95Latency)

	h.RecordFailure()
	assert.Equal(t, fixed, *h.Snapshot().LastFailureAt)

	h.SetStatus(HealthStatusStopped)
	assert.Equal(t, string(HealthStatusStopped), h.Snapshot().Status)
}
