package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("webhook returned status 502")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(cfg)
	b.now = clock.Now
	return b, clock
}

func fail(context.Context) error    { return errDownstream }
func succeed(context.Context) error { return nil }

func TestNew_Defaults(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, DefaultFailureThreshold, b.cfg.FailureThreshold)
	assert.Equal(t, DefaultProbeSuccesses, b.cfg.ProbeSuccesses)
	assert.Equal(t, DefaultCooldown, b.cfg.Cooldown)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(Config{FailureThreshold: 3, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Do(ctx, fail), errDownstream)
	}
	assert.Equal(t, StateClosed, b.State())

	assert.ErrorIs(t, b.Do(ctx, fail), errDownstream)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	require.NoError(t, b.Do(ctx, succeed))
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name      string
		probe     func(context.Context) error
		wantState State
	}{
		{name: "probe succeeds", probe: succeed, wantState: StateClosed},
		{name: "probe fails", probe: fail, wantState: StateOpen},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			b, clock := newTestBreaker(Config{FailureThreshold: 1, Cooldown: 10 * time.Second})

			_ = b.Do(ctx, fail)
			require.Equal(t, StateOpen, b.State())

			clock.Advance(10 * time.Second)
			assert.Equal(t, StateHalfOpen, b.State())

			_ = b.Do(ctx, tc.probe)
			assert.Equal(t, tc.wantState, b.State())
		})
	}
}

func TestBreaker_HalfOpenAdmitsOneProbe(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Second})
	_ = b.Do(ctx, fail)
	clock.Advance(time.Second)

	inProbe := make(chan struct{})
	releaseProbe := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(ctx, func(context.Context) error {
			close(inProbe)
			<-releaseProbe
			return nil
		})
	}()

	<-inProbe
	assert.ErrorIs(t, b.Do(ctx, succeed), ErrOpen)
	close(releaseProbe)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ProbeSuccessesThreshold(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(Config{FailureThreshold: 1, ProbeSuccesses: 2, Cooldown: time.Second})
	_ = b.Do(ctx, fail)
	clock.Advance(time.Second)

	require.NoError(t, b.Do(ctx, succeed))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Do(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_CanceledContextIsNotAFailure(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OnStateChange(t *testing.T) {
	ctx := context.Background()
	var transitions []string
	b, clock := newTestBreaker(Config{
		Name:             "alert_webhook",
		FailureThreshold: 1,
		Cooldown:         time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = b.Do(ctx, fail)
	clock.Advance(time.Second)
	require.NoError(t, b.Do(ctx, succeed))

	assert.Equal(t, []string{
		"alert_webhook:closed->open",
		"alert_webhook:open->half_open",
		"alert_webhook:half_open->closed",
	}, transitions)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
