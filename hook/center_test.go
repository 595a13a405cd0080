package hook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerPriorityOrder(t *testing.T) {
	hc := NewCenter()
	hc.Register("evt", 10, "second", func(ctx context.Context, event string, data interface{}) (interface{}, error) {
		return data.(string) + "b", nil
	})
	hc.Register("evt", 1, "first", func(ctx context.Context, event string, data interface{}) (interface{}, error) {
		return data.(string) + "a", nil
	})

	out, err := hc.Trigger(context.Background(), "evt", "")
	require.NoError(t, err)
	assert.Equal(t, "ab", out)
}

func TestTriggerInterrupt(t *testing.T) {
	hc := NewCenter()
	hc.Register("evt", 1, "stopper", func(ctx context.Context, event string, data interface{}) (interface{}, error) {
		return data, ErrInterrupt
	})
	ran := false
	hc.Register("evt", 2, "after", func(ctx context.Context, event string, data interface{}) (interface{}, error) {
		ran = true
		return data, nil
	})

	_, err := hc.Trigger(context.Background(), "evt", nil)
	assert.ErrorIs(t, err, ErrInterrupt)
	assert.False(t, ran)
}

func TestUnregister(t *testing.T) {
	hc := NewCenter()
	calls := 0
	hc.Register("evt", 1, "h", func(ctx context.Context, event string, data interface{}) (interface{}, error) {
		calls++
		return data, nil
	})
	hc.Unregister("evt", "h")

	_, err := hc.Trigger(context.Background(), "evt", nil)
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestTriggerUnknownEvent(t *testing.T) {
	hc := NewCenter()
	out, err := hc.Trigger(context.Background(), "nothing", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}
