package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyEndpoint_ReturnsNoOpProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), "test-svc", "", true, 0.1)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	err = shutdown(context.Background())
	assert.NoError(t, err)
}

func TestTracer_ReturnsNonNil(t *testing.T) {
	shutdown, err := Init(context.Background(), "test-svc", "", true, 0.1)
	require.NoError(t, err)
	defer shutdown(context.Background())

	tracer := Tracer("test-tracer")
	assert.NotNil(t, tracer)
}

func TestInit_ShutdownIdempotent(t *testing.T) {
	shutdown, err := Init(context.Background(), "test-svc", "", true, 0.1)
	require.NoError(t, err)

	err = shutdown(context.Background())
	assert.NoError(t, err)

	err = shutdown(context.Background())
	assert.NoError(t, err)
}

func TestInit_ClampsSampleRatio(t *testing.T) {
	shutdown, err := Init(context.Background(), "test-svc", "", true, 7)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestBatchAttributes(t *testing.T) {
	attrs := BatchAttributes("fa", "b-1", 10, 20, 3)
	require.Len(t, attrs, 5)

	got := map[string]string{}
	for _, kv := range attrs {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "fa", got["processor"])
	assert.Equal(t, "b-1", got["batch_id"])
	assert.Equal(t, "10", got["start_version"])
	assert.Equal(t, "20", got["end_version"])
	assert.Equal(t, "3", got["event_count"])
}

func TestEndSpan_WithAndWithoutError(t *testing.T) {
	_, err := Init(context.Background(), "test-svc", "", true, 1)
	require.NoError(t, err)

	_, span := Tracer("test").Start(context.Background(), "op")
	assert.NotPanics(t, func() { EndSpan(span, nil) })

	_, span = Tracer("test").Start(context.Background(), "op")
	assert.NotPanics(t, func() { EndSpan(span, assert.AnError) })
}
