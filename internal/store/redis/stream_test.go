package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStartID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		expectErr bool
	}{
		{name: "tail", input: "$"},
		{name: "zero", input: "0"},
		{name: "millis", input: "1700000000000"},
		{name: "compound id", input: "100-0"},
		{name: "empty", input: "", expectErr: true},
		{name: "non-numeric", input: "abc", expectErr: true},
		{name: "negative", input: "-1", expectErr: true},
		{name: "trailing dash", input: "100-", expectErr: true},
		{name: "new messages marker", input: ">", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateStartID(tt.input)
			if tt.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

type testStringer struct{ value string }

func (s testStringer) String() string { return s.value }

func TestStreamPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     any
		expected  []byte
		expectErr bool
	}{
		{name: "string", input: "hello", expected: []byte("hello")},
		{name: "bytes", input: []byte("world"), expected: []byte("world")},
		{name: "stringer", input: testStringer{value: "from-stringer"}, expected: []byte("from-stringer")},
		{name: "unsupported type", input: 42, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result, err := streamPayload(tt.input)
			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "not supported")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	t.Run("valid batch", func(t *testing.T) {
		t.Parallel()
		batch, err := decodeMessage(redis.XMessage{
			ID: "17-0",
			Values: map[string]any{
				payloadField: `{"start_version":10,"end_version":12,"events":[{"transaction_version":10,"event_index":0,"type":"0x1::coin::DepositEvent","data":{"amount":"5"}}]}`,
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "17-0", batch.ID, "id falls back to the entry id")
		assert.Equal(t, "17-0", batch.AckToken)
		assert.Equal(t, int64(10), batch.StartVersion)
		require.Len(t, batch.Events, 1)
		assert.JSONEq(t, `{"amount":"5"}`, string(batch.Events[0].Data))
	})

	t.Run("producer id kept", func(t *testing.T) {
		t.Parallel()
		batch, err := decodeMessage(redis.XMessage{
			ID:     "18-0",
			Values: map[string]any{payloadField: `{"id":"range-10-12","start_version":10,"end_version":12,"rollback":true}`},
		})
		require.NoError(t, err)
		assert.Equal(t, "range-10-12", batch.ID)
		assert.Equal(t, "18-0", batch.AckToken)
		assert.True(t, batch.Rollback)
	})

	tests := []struct {
		name   string
		values map[string]any
		errMsg string
	}{
		{"missing field", map[string]any{"other": "x"}, "no \"payload\" field"},
		{"bad json", map[string]any{payloadField: "{"}, "decode batch"},
		{"inverted range", map[string]any{payloadField: `{"start_version":5,"end_version":4}`}, "before start version"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := decodeMessage(redis.XMessage{ID: "1-0", Values: tc.values})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}
