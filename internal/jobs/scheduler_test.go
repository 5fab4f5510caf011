package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tradesim/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSchedulerRunsJobs(t *testing.T) {
	m := metrics.New()
	s := NewScheduler(m, zap.NewNop(), time.Second)
	var ok, failed atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", func(ctx context.Context) error {
		ok.Add(1)
		return nil
	}))
	require.NoError(t, s.Add("broken", "@every 1s", func(ctx context.Context) error {
		failed.Add(1)
		return errors.New("boom")
	}))
	s.Start()

	assert.Eventually(t, func() bool { return ok.Load() > 0 && failed.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	n, err := testutil.GatherAndCount(m.Registry(), "tradesim_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSchedulerRecoversPanics(t *testing.T) {
	s := NewScheduler(nil, zap.NewNop(), 0)
	var runs atomic.Int32
	require.NoError(t, s.Add("panicky", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		panic("bad job")
	}))
	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestStopCancelsJobContext(t *testing.T) {
	s := NewScheduler(nil, zap.NewNop(), 0)
	started := make(chan struct{}, 1)
	require.NoError(t, s.Add("long", "@every 1s", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}))
	s.Start()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := NewScheduler(nil, zap.NewNop(), 0)
	assert.Error(t, s.Add("bad", "not a spec", func(context.Context) error { return nil }))
	require.NoError(t, s.Stop(context.Background()))
}
