// Package batch drives the pipeline stages over the (symbol, date) units
// discovered in the data roots. Units are independent; one bad input file
// fails its own unit and nothing else.
package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ofiflow/config"
	"ofiflow/logger"
	"ofiflow/models"
	"ofiflow/walker"
	"ofiflow/writer"
)

// Unit is one (symbol, date) work item bound to its input file.
type Unit struct {
	Symbol string
	Date   string
	Path   string
	Source walker.SourceKind
}

// Outcome counts how each unit of a stage run ended.
type Outcome struct {
	Done    int64
	Skipped int64
	Failed  int64
}

// Runner executes stages with a bounded worker pool.
type Runner struct {
	cfg    *config.Config
	mirror *writer.Mirror
	log    *logger.Log
}

// NewRunner wires a runner to the configuration. The mirror is optional;
// pass nil to keep outputs local only.
func NewRunner(cfg *config.Config, mirror *writer.Mirror) *Runner {
	return &Runner{
		cfg:    cfg,
		mirror: mirror,
		log:    logger.GetLogger(),
	}
}

// run fans units out to max_workers goroutines. A unit returning
// models.ErrCacheExists counts as skipped: the existing output is
// authoritative and redoing the work would change nothing.
func (r *Runner) run(ctx context.Context, stage string, units []Unit, fn func(context.Context, Unit) error) Outcome {
	runID := uuid.New().String()
	log := r.log.WithComponent("batch").WithFields(logger.Fields{
		"run_id": runID,
		"stage":  stage,
		"units":  len(units),
	})
	log.Info("stage started")
	started := time.Now()

	var outcome Outcome
	unitCh := make(chan Unit)
	var wg sync.WaitGroup

	workers := r.cfg.Batch.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range unitCh {
				err := fn(ctx, u)
				switch {
				case err == nil:
					atomic.AddInt64(&outcome.Done, 1)
					logger.AddUnitDone()
				case errors.Is(err, models.ErrCacheExists):
					atomic.AddInt64(&outcome.Skipped, 1)
					logger.AddUnitSkipped()
					log.WithFields(logger.Fields{
						"symbol": u.Symbol,
						"date":   u.Date,
					}).Debug("output exists, unit skipped")
				default:
					atomic.AddInt64(&outcome.Failed, 1)
					logger.AddUnitFailed()
					log.WithFields(logger.Fields{
						"symbol": u.Symbol,
						"date":   u.Date,
						"error":  truncateError(err),
					}).Error("unit failed")
				}
			}
		}()
	}

	for _, u := range units {
		select {
		case <-ctx.Done():
			close(unitCh)
			wg.Wait()
			log.WithError(ctx.Err()).Warn("stage interrupted")
			return outcome
		case unitCh <- u:
		}
	}
	close(unitCh)
	wg.Wait()

	log.WithFields(logger.Fields{
		"done":    outcome.Done,
		"skipped": outcome.Skipped,
		"failed":  outcome.Failed,
	}).Info("stage finished")
	logger.LogPerformanceEntry(log, "batch", stage, time.Since(started), logger.Fields{
		"run_id": runID,
		"units":  len(units),
	})
	return outcome
}

// truncateError keeps failure logs one line each even when a parser error
// embeds file content.
func truncateError(err error) string {
	const maxLen = 100
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
