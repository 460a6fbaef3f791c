package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"santrack/dashboard/internal/config"
)

// Sessions is the part of the session store the housekeeping jobs drive.
type Sessions interface {
	Purge(ctx context.Context) (int64, error)
	EvictIdle(maxIdle time.Duration) int
}

type Scheduler struct {
	cron     *cron.Cron
	sessions Sessions
	cfg      config.JobsConfig
	maxIdle  time.Duration
	log      zerolog.Logger
}

func NewScheduler(sessions Sessions, cfg config.JobsConfig, maxIdle time.Duration, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		sessions: sessions,
		cfg:      cfg,
		maxIdle:  maxIdle,
		log:      log.With().Str("component", "jobs").Logger(),
	}
}

// Start registers the purge and evict jobs. An empty schedule disables its
// job.
func (s *Scheduler) Start() error {
	if s.cfg.PurgeSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.PurgeSchedule, s.purgeExpired); err != nil {
			return err
		}
	}
	if s.cfg.EvictSchedule != "" && s.maxIdle > 0 {
		if _, err := s.cron.AddFunc(s.cfg.EvictSchedule, s.evictIdle); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("jobs still running at shutdown")
	}
}

func (s *Scheduler) purgeExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.sessions.Purge(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("purge expired sessions failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int64("removed", removed).Msg("purged expired sessions")
	}
}

func (s *Scheduler) evictIdle() {
	if evicted := s.sessions.EvictIdle(s.maxIdle); evicted > 0 {
		s.log.Debug().Int("evicted", evicted).Msg("evicted idle clients")
	}
}
