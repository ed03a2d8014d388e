package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/linlinbupt123-crypto/energy_share_service/logging"
)

const DefaultSweepSchedule = "@hourly"

// SweepScheduler runs the full cache resync on a cron schedule.
type SweepScheduler struct {
	cron      *cron.Cron
	projects  *ProjectCache
	positions *PositionCache
	timeout   time.Duration
	log       logrus.FieldLogger
}

func NewSweepScheduler(projects *ProjectCache, positions *PositionCache, timeout time.Duration, log logrus.FieldLogger) *SweepScheduler {
	if log == nil {
		log = logging.Discard()
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	log = log.WithField("component", "sweep")
	return &SweepScheduler{
		// a sweep still running when the next one is due is skipped
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		projects:  projects,
		positions: positions,
		timeout:   timeout,
		log:       log,
	}
}

// Start registers the sweep under spec and starts the scheduler.
func (s *SweepScheduler) Start(spec string) error {
	if spec == "" {
		spec = DefaultSweepSchedule
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("schedule", spec).Info("cache sweep scheduled")
	return nil
}

// ScheduleStaleRefresh adds a job that resyncs entries older than one TTL
// every interval, between full sweeps.
func (s *SweepScheduler) ScheduleStaleRefresh(interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultCacheTTL
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.runStale); err != nil {
		return err
	}
	s.log.WithField("interval", interval.String()).Info("stale cache refresh scheduled")
	return nil
}

func (s *SweepScheduler) runStale() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.RefreshStale(ctx)
}

// RefreshStale refreshes stale projects, then stale positions.
func (s *SweepScheduler) RefreshStale(ctx context.Context) {
	if s.projects != nil {
		if _, err := s.projects.RefreshStale(ctx); err != nil {
			s.log.WithError(err).Error("stale project refresh failed")
		}
	}
	if s.positions != nil {
		if _, err := s.positions.RefreshStale(ctx); err != nil {
			s.log.WithError(err).Error("stale position refresh failed")
		}
	}
}

func (s *SweepScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce sweeps projects, then positions.
func (s *SweepScheduler) RunOnce(ctx context.Context) {
	start := time.Now()
	if s.projects != nil {
		if _, err := s.projects.Sweep(ctx); err != nil {
			s.log.WithError(err).Error("project sweep failed")
		}
	}
	if s.positions != nil {
		if _, err := s.positions.Sweep(ctx); err != nil {
			s.log.WithError(err).Error("position sweep failed")
		}
	}
	s.log.WithField("elapsed", time.Since(start).String()).Info("cache sweep finished")
}

// Stop stops the schedule and waits for a running sweep.
func (s *SweepScheduler) Stop() {
	<-s.cron.Stop().Done()
}
