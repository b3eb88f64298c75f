package services

import (
	"context"
	"errors"
	"time"

	"bus-tracker/internal/location-service/core/ports/driven"
	"bus-tracker/internal/mylogger"
)

type SweepResult struct {
	Demoted int64
	Purged  int64
}

// Sweeper periodically demotes stale records and purges expired ones.
// Its effects are not broadcast.
type Sweeper struct {
	log         mylogger.Logger
	store       driven.PositionStore
	interval    time.Duration
	demoteAfter time.Duration
	purgeAfter  time.Duration
	now         func() time.Time
}

func NewSweeper(log mylogger.Logger, store driven.PositionStore, interval, demoteAfter, purgeAfter time.Duration) *Sweeper {
	return &Sweeper{
		log:         log.Action("sweeper"),
		store:       store,
		interval:    interval,
		demoteAfter: demoteAfter,
		purgeAfter:  purgeAfter,
		now:         time.Now,
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run sweeps every interval until ctx is done. A failed pass is logged and
// retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", "interval", s.interval.String(),
		"demote_after", s.demoteAfter.String(), "purge_after", s.purgeAfter.String())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			_, _ = s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs both passes. The purge still runs if demotion fails.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	var res SweepResult
	var errs []error

	demoted, err := s.store.DemoteStale(ctx, now.Add(-s.demoteAfter))
	if err != nil {
		s.log.Error("demote pass failed", err)
		errs = append(errs, err)
	}
	res.Demoted = demoted

	purged, err := s.store.PurgeExpired(ctx, now.Add(-s.purgeAfter))
	if err != nil {
		s.log.Error("purge pass failed", err)
		errs = append(errs, err)
	}
	res.Purged = purged

	if res.Demoted > 0 || res.Purged > 0 {
		s.log.Info("sweep completed", "demoted", res.Demoted, "purged", res.Purged)
	}
	return res, errors.Join(errs...)
}
