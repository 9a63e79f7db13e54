package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

func TestRetryContentionRetriesRetryableErrors(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	calls := 0
	got, err := retryContention(context.Background(), policy, zap.NewNop(), "enroll", func() (int, error) {
		calls++
		if calls < 3 {
			return 0, appErrors.Clone(appErrors.ErrContention, "")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryContentionSurfacesAfterBound(t *testing.T) {
	policy := RetryPolicy{Attempts: 2, InitialInterval: time.Millisecond}
	calls := 0
	_, err := retryContention(context.Background(), policy, zap.NewNop(), "drop", func() (int, error) {
		calls++
		return 0, appErrors.Clone(appErrors.ErrContention, "")
	})
	require.ErrorIs(t, err, appErrors.ErrContention)
	assert.Equal(t, 2, calls)
}

func TestRetryContentionStopsOnRejection(t *testing.T) {
	policy := RetryPolicy{Attempts: 5, InitialInterval: time.Millisecond}
	calls := 0
	_, err := retryContention(context.Background(), policy, zap.NewNop(), "enroll", func() (int, error) {
		calls++
		return 0, appErrors.Clone(appErrors.ErrHoldBlocked, "")
	})
	require.ErrorIs(t, err, appErrors.ErrHoldBlocked)
	assert.Equal(t, 1, calls)
}
