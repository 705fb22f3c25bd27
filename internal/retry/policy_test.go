package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 2*time.Second, p.InitialDelay)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, p.Schedule())
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{Attempts: 10, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 10 * time.Second}

	tests := []struct {
		retry    int
		expected time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, p.Delay(tt.retry), "retry %d", tt.retry)
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	p := Policy{Attempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}

	var seen []int
	err := Do(context.Background(), p, func(attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return errors.New("boom")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestDo_Exhausted(t *testing.T) {
	p := Policy{Attempts: 2, InitialDelay: time.Millisecond, Multiplier: 2}
	cause := errors.New("refused")

	calls := 0
	err := Do(context.Background(), p, func(int) error {
		calls++
		return cause
	})

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 2, ex.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	p := Policy{Attempts: 3, InitialDelay: time.Hour, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, p, func(int) error {
		calls++
		cancel()
		return errors.New("down")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
