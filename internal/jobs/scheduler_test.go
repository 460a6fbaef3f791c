package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"santrack/dashboard/internal/config"
)

type fakeSessions struct {
	purges   atomic.Int32
	evicts   atomic.Int32
	purgeErr error
	maxIdle  atomic.Int64
}

func (f *fakeSessions) Purge(context.Context) (int64, error) {
	f.purges.Add(1)
	return 2, f.purgeErr
}

func (f *fakeSessions) EvictIdle(maxIdle time.Duration) int {
	f.evicts.Add(1)
	f.maxIdle.Store(int64(maxIdle))
	return 1
}

func TestSchedulerRunsJobs(t *testing.T) {
	sessions := &fakeSessions{}
	s := NewScheduler(sessions, config.JobsConfig{
		PurgeSchedule: "* * * * * *",
		EvictSchedule: "* * * * * *",
	}, time.Minute, zerolog.Nop())

	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		return sessions.purges.Load() > 0 && sessions.evicts.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, int64(time.Minute), sessions.maxIdle.Load())
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&fakeSessions{}, config.JobsConfig{PurgeSchedule: "every now and then"}, time.Minute, zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestEmptyScheduleDisablesJob(t *testing.T) {
	sessions := &fakeSessions{}
	s := NewScheduler(sessions, config.JobsConfig{}, 0, zerolog.Nop())
	require.NoError(t, s.Start())
	s.Stop(context.Background())
	assert.Empty(t, s.cron.Entries())
}

func TestPurgeFailureIsLogged(t *testing.T) {
	sessions := &fakeSessions{purgeErr: errors.New("db down")}
	s := NewScheduler(sessions, config.JobsConfig{}, time.Minute, zerolog.Nop())
	s.purgeExpired()
	assert.Equal(t, int32(1), sessions.purges.Load())
}
