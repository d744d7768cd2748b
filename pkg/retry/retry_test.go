package retry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aussiebroadwan/splatauth/pkg/retry"
	"github.com/stretchr/testify/require"
)

var (
	errFlaky = errors.New("flaky")
	errFatal = errors.New("fatal")
)

func TestDoSucceedsFirstTry(t *testing.T) {
	t.Parallel()

	calls := 0
	v, err := retry.Do(context.Background(), retry.Policy{Attempts: 2, On: []error{errFlaky}},
		func(context.Context) (string, error) {
			calls++
			return "ok", nil
		})

	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, 1, calls)
}

func TestDoRetriesAllowListedErrors(t *testing.T) {
	t.Parallel()

	var failures []int
	calls := 0
	v, err := retry.Do(context.Background(), retry.Policy{
		Attempts:  2,
		On:        []error{errFlaky},
		OnFailure: func(attempt int, err error) { failures = append(failures, attempt) },
	}, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errFlaky
		}
		return 42, nil
	})

	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 2, calls)
	require.Equal(t, []int{1}, failures)
}

func TestDoStopsAfterAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := retry.Do(context.Background(), retry.Policy{Attempts: 2, On: []error{errFlaky}},
		func(context.Context) (int, error) {
			calls++
			return 0, errFlaky
		})

	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, 2, calls, "initial attempt plus one retry")
}

func TestDoDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	failures := 0
	_, err := retry.Do(context.Background(), retry.Policy{
		Attempts:  5,
		On:        []error{errFlaky},
		OnFailure: func(int, error) { failures++ },
	}, func(context.Context) (int, error) {
		calls++
		return 0, errFatal
	})

	require.ErrorIs(t, err, errFatal)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, failures, "callback still sees the failure")
}

func TestDoMatchesWrappedErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := retry.Do(context.Background(), retry.Policy{Attempts: 3, On: []error{errFlaky}},
		func(context.Context) (int, error) {
			calls++
			return 0, errors.Join(errors.New("provider said no"), errFlaky)
		})

	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, 3, calls)
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := retry.Do(context.Background(), retry.Policy{On: []error{errFlaky}},
		func(context.Context) (int, error) {
			calls++
			return 0, errFlaky
		})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry.Do(ctx, retry.Policy{Attempts: 5, On: []error{errFlaky}},
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errFlaky
		})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
