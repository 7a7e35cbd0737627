package orpar

import (
	"encoding/json"
	"testing"

	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoopBreakerConfigTripsAtFive(t *testing.T) {
	cfg := DefaultLoopBreakerConfig()
	assert.Equal(t, 5, cfg.MaxRepeats)
}

func TestLoopBreakerTripsOnConsecutiveRepeats(t *testing.T) {
	b := NewLoopBreaker(LoopBreakerConfig{MaxRepeats: 3})
	call := models.ToolCall{Name: "search", Arguments: json.RawMessage(`{"q":"x"}`)}

	require.NoError(t, b.Observe(call))
	require.NoError(t, b.Observe(call))
	err := b.Observe(call)
	require.Error(t, err)
	assert.True(t, mxferrors.Is(err, mxferrors.CircuitOpen))
}

func TestLoopBreakerTripsOnAlternatingRepeats(t *testing.T) {
	b := NewLoopBreaker(LoopBreakerConfig{MaxRepeats: 3, WindowSize: 10})
	a := models.ToolCall{Name: "a", Arguments: json.RawMessage(`{}`)}
	b2 := models.ToolCall{Name: "b", Arguments: json.RawMessage(`{}`)}

	// A,B,A,B,A,B... never repeats consecutively, but "a" recurs 3 times
	// within the window and must still trip the breaker.
	var lastErr error
	calls := []models.ToolCall{a, b2, a, b2, a, b2}
	for _, call := range calls {
		lastErr = b.Observe(call)
	}
	require.Error(t, lastErr)
	assert.True(t, mxferrors.Is(lastErr, mxferrors.CircuitOpen))
}

func TestLoopBreakerResetClearsWindow(t *testing.T) {
	b := NewLoopBreaker(LoopBreakerConfig{MaxRepeats: 2})
	call := models.ToolCall{Name: "search", Arguments: json.RawMessage(`{}`)}

	require.NoError(t, b.Observe(call))
	b.Reset()
	require.NoError(t, b.Observe(call))
}

func TestLoopBreakerWindowSlidesOutOldCalls(t *testing.T) {
	b := NewLoopBreaker(LoopBreakerConfig{MaxRepeats: 2, WindowSize: 2})
	a := models.ToolCall{Name: "a", Arguments: json.RawMessage(`{}`)}
	other := models.ToolCall{Name: "other", Arguments: json.RawMessage(`{}`)}

	require.NoError(t, b.Observe(a))
	require.NoError(t, b.Observe(other))
	// The first "a" has aged out of the size-2 window ([other, a] after
	// this call), so this is counted as a single occurrence, not a second.
	require.NoError(t, b.Observe(a))
}
