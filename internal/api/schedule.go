package api

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"eve-dealfinder/internal/engine"
	"eve-dealfinder/internal/logger"
)

// RunPruner deletes recorded runs past their retention.
type RunPruner interface {
	ClearRuns(olderThanDays int) (int64, error)
}

// Discover runs one discovery and records it. It reports ok=false without
// running when another discovery holds the lock.
func (s *Server) Discover(ctx context.Context) (runID int64, report *engine.RunReport, ok bool, err error) {
	if !s.scanMu.TryLock() {
		return 0, nil, false, nil
	}
	defer s.scanMu.Unlock()

	report, err = s.finder.FindDealsReport(ctx)
	if err != nil {
		return 0, nil, true, err
	}
	runID, rerr := s.runs.InsertRun(s.characterID, report)
	if rerr != nil {
		logger.Warn("API", "failed to record run", logger.Err(rerr))
	}
	return runID, report, true, nil
}

// Schedule starts periodic discovery on a cron spec and a daily prune of
// runs older than retentionDays. Stop the returned cron to end it.
func (s *Server) Schedule(ctx context.Context, spec string, pruner RunPruner, retentionDays int) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()
		id, report, ok, err := s.Discover(runCtx)
		switch {
		case !ok:
			logger.Info("Schedule", "skipping tick, discovery already running")
		case err != nil:
			logger.Error("Schedule", "scheduled discovery failed", logger.Err(err))
		default:
			logger.Success("Schedule", fmt.Sprintf("Run %d: %d deals", id, len(report.Deals)))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}

	if pruner != nil {
		_, err = c.AddFunc("@daily", func() {
			n, err := pruner.ClearRuns(retentionDays)
			if err != nil {
				logger.Warn("Schedule", "run cleanup failed", logger.Err(err))
				return
			}
			if n > 0 {
				logger.Info("Schedule", fmt.Sprintf("Removed %d old runs", n))
			}
		})
		if err != nil {
			return nil, err
		}
	}

	c.Start()
	logger.Info("Schedule", "discovery scheduled", "spec", spec)
	return c, nil
}
