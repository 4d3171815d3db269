package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"plotline/internal/jobs"
	"plotline/internal/logging"
	"plotline/internal/services"
	"plotline/internal/stage"
)

type stageOutcome struct {
	Planned   int
	Succeeded int
	Failed    int
	LastErr   error
	Duration  time.Duration
}

// exceeds reports whether the failed fraction met the threshold. A stage
// that planned nothing never fails.
func (o stageOutcome) exceeds(threshold float64) bool {
	if o.Planned == 0 || o.Failed == 0 {
		return false
	}
	return float64(o.Failed)/float64(o.Planned) >= threshold
}

// blocksJob reports whether unit failures in the stage count against the
// failure threshold. A failed link leaves a scene without characters, and
// prompt generation still runs for it.
func blocksJob(name jobs.Stage) bool {
	return name != jobs.StageLinking
}

// runStage plans the stage and dispatches its units through a bounded pool.
// It returns once every dispatched unit has settled. Units that were not
// dispatched because of a cancel or shutdown get no item.
func (m *Manager) runStage(ctx context.Context, logger *slog.Logger, handler stage.Stage, run stage.Run, index int, tracker *progressTracker, flag *cancelFlag) (stageOutcome, error) {
	name := handler.Name()
	started := time.Now()

	units, err := handler.Plan(ctx, run)
	if err != nil {
		if errors.Is(err, stage.ErrCanceled) || flag.requested() {
			return stageOutcome{}, ErrJobCanceled
		}
		if ctx.Err() != nil {
			return stageOutcome{}, errDaemonStopped
		}
		logger.Error("stage planning failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.Error(err),
		)
		return stageOutcome{}, &StageError{Stage: name, Cause: err}
	}
	units = uniqueUnits(units)

	workers := m.cfg.Pipeline.WorkerConcurrency
	if workers > len(units) {
		workers = len(units)
	}
	if workers < 1 {
		workers = 1
	}
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("planned", len(units)),
		logging.Int("workers", workers),
	)
	tracker.report(ctx, index, 0, len(units))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		outcome = stageOutcome{Planned: len(units)}
		sem     = make(chan struct{}, workers)
	)
dispatch:
	for _, unit := range units {
		select {
		case sem <- struct{}{}:
		case <-flag.Done():
			break dispatch
		case <-ctx.Done():
			break dispatch
		}
		if flag.requested() || ctx.Err() != nil {
			<-sem
			break
		}
		wg.Add(1)
		go func(unit stage.Unit) {
			defer wg.Done()
			defer func() { <-sem }()
			err := m.processUnit(ctx, logger, handler, run, unit, flag)

			mu.Lock()
			if err != nil {
				outcome.Failed++
				outcome.LastErr = err
			} else {
				outcome.Succeeded++
			}
			settled := outcome.Succeeded + outcome.Failed
			mu.Unlock()
			tracker.report(ctx, index, settled, len(units))
		}(unit)
	}
	wg.Wait()
	outcome.Duration = time.Since(started)
	return outcome, nil
}

// processUnit records the item, runs the unit with timeout and retry, and
// finalizes the item. A non-nil return is the unit's final failure. A cancel
// stops the retry loop, including during a backoff wait; an attempt already
// in flight runs to completion.
func (m *Manager) processUnit(ctx context.Context, logger *slog.Logger, handler stage.Stage, run stage.Run, unit stage.Unit, flag *cancelFlag) error {
	name := handler.Name()
	storeCtx := context.WithoutCancel(ctx)
	ctx = services.WithRefID(ctx, unit.RefID)
	unitLogger := logger.With(logging.String(logging.FieldRefID, unit.RefID))

	item, err := m.store.StartItem(storeCtx, run.JobID, name, unit.RefID)
	if err != nil {
		unitLogger.Error("failed to record item",
			logging.String(logging.FieldEventType, "item_failed"),
			logging.Error(err),
		)
		return &ItemError{Stage: name, RefID: unit.RefID, Err: err}
	}

	timeout := m.cfg.UnitTimeout()
	base, maxDelay := m.cfg.RetryBackoff()
	retryCtx, stopRetry := context.WithCancel(ctx)
	defer stopRetry()
	go func() {
		select {
		case <-flag.Done():
			stopRetry()
		case <-retryCtx.Done():
		}
	}()

	attempts := 0
	execErr := retry.Do(
		func() error {
			if err := run.Checkpoint(); err != nil {
				return retry.Unrecoverable(err)
			}
			attempts++
			unitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			_, err := handler.Execute(unitCtx, run, unit)
			if err != nil && ctx.Err() == nil && errors.Is(unitCtx.Err(), context.DeadlineExceeded) {
				err = services.Wrap(services.ErrTimeout, string(name), "execute", fmt.Sprintf("unit %s exceeded %s", unit.RefID, timeout), err)
			}
			return err
		},
		retry.Context(retryCtx),
		retry.Attempts(uint(m.cfg.Pipeline.RetryAttempts+1)),
		retry.Delay(base),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if errors.Is(err, stage.ErrCanceled) || run.Checkpoint() != nil {
				return false
			}
			return services.Retryable(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			unitLogger.Warn("retrying unit",
				logging.String(logging.FieldEventType, "item_retry"),
				logging.Int(logging.FieldAttempt, int(n)+1),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
				logging.Error(err),
			)
			if recErr := m.store.RecordAttempt(storeCtx, item.ID, int(n)+1); recErr != nil {
				unitLogger.Debug("record attempt failed", logging.Error(recErr))
			}
		}),
	)

	if execErr != nil && ctx.Err() == nil && flag.requested() && errors.Is(execErr, context.Canceled) {
		execErr = stage.ErrCanceled
	}

	status := jobs.ItemSucceeded
	message := ""
	if execErr != nil {
		status = jobs.ItemFailed
		switch {
		case ctx.Err() != nil:
			message = errDaemonStopped.Error()
		case errors.Is(execErr, stage.ErrCanceled):
			message = ErrJobCanceled.Error()
		default:
			message = services.Details(execErr)
		}
	}
	if err := m.store.FinishItem(storeCtx, item.ID, status, attempts, message); err != nil {
		unitLogger.Error("failed to finalize item",
			logging.String(logging.FieldEventType, "item_finalize_failed"),
			logging.Error(err),
		)
	}
	if execErr == nil {
		unitLogger.Debug("unit completed", logging.Int(logging.FieldAttempt, attempts))
		return nil
	}

	itemErr := &ItemError{Stage: name, RefID: unit.RefID, Attempts: attempts, Err: execErr}
	unitLogger.Warn("unit failed",
		logging.String(logging.FieldEventType, "item_failed"),
		logging.String(logging.FieldErrorHint, services.Hint(execErr)),
		logging.Int(logging.FieldAttempt, attempts),
		logging.Error(itemErr),
	)
	return itemErr
}

func uniqueUnits(units []stage.Unit) []stage.Unit {
	seen := make(map[string]struct{}, len(units))
	out := units[:0:0]
	for _, unit := range units {
		if _, dup := seen[unit.RefID]; dup {
			continue
		}
		seen[unit.RefID] = struct{}{}
		out = append(out, unit)
	}
	return out
}
