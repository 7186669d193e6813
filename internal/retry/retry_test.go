package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoSucceedsWithoutExhaustingAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestDoReturnsLastErrorAfterExhaustingAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, func(attempt int) error {
		calls++
		return errors.New("attempt failed")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestDoTreatsNonPositiveMaxAttemptsAsOne(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 0, func(attempt int) error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
