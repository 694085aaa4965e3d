package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/aegis/pkg/observability"
)

func TestRegisterAndRunNow(t *testing.T) {
	s := New(nil, nil)

	var runs atomic.Int32
	err := s.Register("sweep", "@every 5m", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(context.Background(), "sweep"))
	require.NoError(t, s.RunNow(context.Background(), "sweep"))
	assert.Equal(t, int32(2), runs.Load())
}

func TestRegisterDuplicateName(t *testing.T) {
	s := New(nil, nil)

	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, s.Register("job", "@every 1m", noop))
	err := s.Register("job", "@every 1m", noop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterBadSpec(t *testing.T) {
	s := New(nil, nil)

	err := s.Register("bad", "not a schedule", func(ctx context.Context) error { return nil })
	require.Error(t, err)

	// The failed registration must not leave the name claimed.
	err = s.Register("bad", "@every 1m", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
}

func TestRunNowUnknownJob(t *testing.T) {
	s := New(nil, nil)
	err := s.RunNow(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job")
}

func TestRunNowPropagatesError(t *testing.T) {
	s := New(nil, nil)

	boom := fmt.Errorf("backend down")
	require.NoError(t, s.Register("failing", "@every 1m", func(ctx context.Context) error {
		return boom
	}))
	assert.ErrorIs(t, s.RunNow(context.Background(), "failing"), boom)
}

func TestJobPanicIsRecovered(t *testing.T) {
	s := New(nil, nil)

	require.NoError(t, s.Register("panicky", "@every 1m", func(ctx context.Context) error {
		panic("job blew up")
	}))
	assert.NotPanics(t, func() {
		_ = s.RunNow(context.Background(), "panicky")
	})
}

func TestJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	s := New(nil, metrics)

	require.NoError(t, s.Register("metered", "@every 1m", func(ctx context.Context) error {
		return nil
	}))
	require.NoError(t, s.Register("broken", "@every 1m", func(ctx context.Context) error {
		return fmt.Errorf("nope")
	}))

	require.NoError(t, s.RunNow(context.Background(), "metered"))
	_ = s.RunNow(context.Background(), "broken")

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "aegis_sweep_runs_total" {
			found = true
			assert.Len(t, f.GetMetric(), 2)
		}
	}
	assert.True(t, found, "expected aegis_sweep_runs_total to be gathered")
}

func TestStartStop(t *testing.T) {
	s := New(nil, nil)

	var runs atomic.Int32
	require.NoError(t, s.Register("fast", "@every 10ms", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 5*time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}
