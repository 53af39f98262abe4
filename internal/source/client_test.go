package source_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/source"
	"github.com/pjw7536/react-timeline2/internal/testutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dctx = models.DrilldownContext{LineID: "L1", SdwtID: "S1", EqpID: "E1"}

func fastOptions(attempts int) source.ClientOptions {
	return source.ClientOptions{Timeout: time.Second, Attempts: attempts, Backoff: 0}
}

// flakyFetcher fails the first n log fetches with err.
type flakyFetcher struct {
	*testutil.MockFetcher
	failures int32
	err      error
	calls    int32
}

func (f *flakyFetcher) FetchLogs(ctx context.Context, kind models.Kind, d models.DrilldownContext) ([]models.RawRow, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, f.err
	}
	return f.MockFetcher.FetchLogs(ctx, kind, d)
}

func TestClientRetries(t *testing.T) {
	t.Run("retryable error is retried until success", func(t *testing.T) {
		mock := testutil.NewMockFetcher().SetRows(models.KindAlarm, models.RawRow{"id": "1"})
		f := &flakyFetcher{MockFetcher: mock, failures: 2, err: &source.NetworkError{Op: "logs", Status: 503}}
		c := source.NewClient(f, fastOptions(3))

		rows, err := c.FetchLogs(context.Background(), models.KindAlarm, dctx)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
		assert.EqualValues(t, 3, atomic.LoadInt32(&f.calls))
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		f := &flakyFetcher{MockFetcher: testutil.NewMockFetcher(), failures: 10, err: &source.NetworkError{Op: "logs", Status: 502}}
		c := source.NewClient(f, fastOptions(3))

		_, err := c.FetchLogs(context.Background(), models.KindAlarm, dctx)
		require.Error(t, err)
		assert.True(t, source.IsRetryable(err))
		assert.EqualValues(t, 3, atomic.LoadInt32(&f.calls))
	})

	t.Run("auth and not-found are not retried", func(t *testing.T) {
		for _, failure := range []error{&source.AuthError{Status: 401}, &source.NotFoundError{Resource: "x"}, &source.RequestError{Status: 400}} {
			f := &flakyFetcher{MockFetcher: testutil.NewMockFetcher(), failures: 10, err: failure}
			c := source.NewClient(f, fastOptions(3))

			_, err := c.FetchLogs(context.Background(), models.KindAlarm, dctx)
			require.Error(t, err)
			assert.EqualValues(t, 1, atomic.LoadInt32(&f.calls), failure.Error())
		}
	})
}

func TestClientTimeout(t *testing.T) {
	mock := testutil.NewMockFetcher().SetDelay(models.KindIssue, time.Second)
	c := source.NewClient(mock, source.ClientOptions{Timeout: 20 * time.Millisecond, Attempts: 3})

	_, err := c.FetchLogs(context.Background(), models.KindIssue, dctx)
	var te *source.TimeoutError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, 20*time.Millisecond, te.After)
	assert.Equal(t, 1, mock.Calls(models.KindIssue))
}

func TestClientDeduplicatesInFlight(t *testing.T) {
	mock := testutil.NewMockFetcher().SetRows(models.KindInterlock, models.RawRow{"id": "1"})
	release := mock.Hold(models.KindInterlock)
	c := source.NewClient(mock, fastOptions(1))

	var wg sync.WaitGroup
	results := make([][]models.RawRow, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, err := c.FetchLogs(context.Background(), models.KindInterlock, dctx)
			assert.NoError(t, err)
			results[i] = rows
		}(i)
	}

	assert.Eventually(t, func() bool { return mock.Calls(models.KindInterlock) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()

	assert.Equal(t, 1, mock.Calls(models.KindInterlock))
	assert.Equal(t, results[0], results[1])
}

func TestClientJoinedCallerSurvivesCancellation(t *testing.T) {
	mock := testutil.NewMockFetcher().SetRows(models.KindInterlock, models.RawRow{"id": "1"})
	release := mock.Hold(models.KindInterlock)
	c := source.NewClient(mock, fastOptions(1))

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := c.FetchLogs(ctxA, models.KindInterlock, dctx)
		errA <- err
	}()
	require.Eventually(t, func() bool { return mock.Calls(models.KindInterlock) == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		rows []models.RawRow
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		rows, err := c.FetchLogs(context.Background(), models.KindInterlock, dctx)
		resB <- result{rows, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	release()
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.Len(t, res.rows, 1)
	case <-time.After(time.Second):
		t.Fatal("joined caller did not return")
	}
	assert.Equal(t, 1, mock.Calls(models.KindInterlock))
}

func TestClientLastCallerLeavingCancelsFetch(t *testing.T) {
	mock := testutil.NewMockFetcher().SetRows(models.KindAlarm, models.RawRow{"id": "1"})
	release := mock.Hold(models.KindAlarm)
	c := source.NewClient(mock, fastOptions(1))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.FetchLogs(ctx, models.KindAlarm, dctx)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return mock.Calls(models.KindAlarm) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// the next caller starts a fresh request instead of joining the cancelled one
	release()
	rows, err := c.FetchLogs(context.Background(), models.KindAlarm, dctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 2, mock.Calls(models.KindAlarm))
}

func TestClientPassesThroughOptions(t *testing.T) {
	mock := testutil.NewMockFetcher().
		SetOptions(models.LevelLine, models.Option{Value: "L1", Label: "Line L1"}).
		AddEquipment(models.EquipmentInfo{LineID: "L1", SdwtID: "S1", EqpID: "E1"})
	c := source.NewClient(mock, fastOptions(3))

	opts, err := c.FetchOptions(context.Background(), models.LevelLine, models.DrilldownContext{})
	require.NoError(t, err)
	assert.Equal(t, []models.Option{{Value: "L1", Label: "Line L1"}}, opts)

	info, err := c.EquipmentInfo(context.Background(), "L1", "E1")
	require.NoError(t, err)
	assert.Equal(t, "S1", info.SdwtID)

	_, err = c.EquipmentInfo(context.Background(), "L1", "missing")
	assert.True(t, source.IsNotFound(err))
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		auth      bool
		notFound  bool
	}{
		{401, false, true, false},
		{403, false, true, false},
		{404, false, false, true},
		{408, true, false, false},
		{429, true, false, false},
		{500, true, false, false},
		{503, true, false, false},
		{400, false, false, false},
		{422, false, false, false},
	}
	for _, tt := range tests {
		err := source.StatusError("/logs/eqp", tt.status, "")
		assert.Equal(t, tt.retryable, source.IsRetryable(err), "status %d", tt.status)
		assert.Equal(t, tt.auth, source.IsAuth(err), "status %d", tt.status)
		assert.Equal(t, tt.notFound, source.IsNotFound(err), "status %d", tt.status)
	}
}
