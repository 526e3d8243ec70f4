// Package scheduler implements the tick loop that observes the job
// store, admits queued jobs against the resource accountant, launches
// them, reaps terminated ones, and enforces cancellations and time
// limits.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jqs-project/jqs/internal/accountant"
	"github.com/jqs-project/jqs/internal/jobstore"
	"github.com/jqs-project/jqs/internal/launcher"
	"github.com/jqs-project/jqs/internal/observability"
)

const maxItemRetries = 3

// Scheduler drives one tick loop over a Store.
type Scheduler struct {
	store      *jobstore.Store
	accountant *accountant.Accountant
	launcher   launcher.Launcher
	logger     *slog.Logger
	metrics    *observability.Metrics

	tickInterval time.Duration
	killGrace    time.Duration

	now       func() time.Time
	firstTick bool
	failures  map[int64]int

	// terminations tracks in-flight graceful-then-forceful kills so
	// that honorCancelRunning and enforceTimeLimits never block a tick
	// waiting for a job to exit; escalation to a forceful signal is
	// re-checked on each subsequent tick once killGrace has elapsed.
	terminations map[int64]*terminationState
}

type terminationState struct {
	issuedAt  time.Time
	escalated bool
}

// New builds a Scheduler. metrics may be nil, in which case
// observations are skipped.
func New(store *jobstore.Store, acct *accountant.Accountant, l launcher.Launcher, logger *slog.Logger, metrics *observability.Metrics, tickInterval, killGrace time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        store,
		accountant:   acct,
		launcher:     l,
		logger:       logger,
		metrics:      metrics,
		tickInterval: tickInterval,
		killGrace:    killGrace,
		now:          time.Now,
		firstTick:    true,
		failures:     make(map[int64]int),
		terminations: make(map[int64]*terminationState),
	}
}

// Run loops Tick every tickInterval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("tick failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one iteration of the six scheduling steps. Per-item errors
// are logged and retried up to maxItemRetries at later ticks; they
// never abort the tick.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s.firstTick {
		s.firstTick = false
		if err := s.recover(ctx); err != nil {
			return fmt.Errorf("recover: %w", err)
		}
	}

	s.honorCancelQueued()
	s.honorCancelRunning(ctx)
	s.admit()
	s.reap(ctx)
	s.enforceTimeLimits(ctx)

	s.publishGauges()
	return nil
}

// recover scans running/ for records whose supervisor_handle no longer
// corresponds to a live unit and finalizes them as
// FAILED(OrphanedOnRestart), releasing their reservation.
func (s *Scheduler) recover(ctx context.Context) error {
	if err := s.store.RecoverCrashed(); err != nil {
		return fmt.Errorf("recover crashed store: %w", err)
	}

	ids, err := s.store.ListIDs(s.store.Layout.RunningDir())
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := s.store.ReadAt(s.store.Layout.RunningDir(), id)
		if err != nil {
			s.quarantine(s.store.Layout.RunningDir(), id, err)
			continue
		}
		alive := false
		if rec.SupervisorHandle != nil {
			alive, err = s.launcher.Alive(ctx, *rec.SupervisorHandle)
			if err != nil {
				s.logger.Warn("probe for orphan check failed, assuming dead", slog.Int64("jobid", id), slog.Any("error", err))
			}
		}
		if alive {
			continue
		}
		if err := s.finalizeRunning(id, jobstore.StateFailed, strPtr("OrphanedOnRestart"), nil); err != nil {
			s.logger.Error("failed to finalize orphaned job", slog.Int64("jobid", id), slog.Any("error", err))
			continue
		}
		s.logger.Info("recovered orphaned job", slog.Int64("jobid", id))
	}
	return nil
}

// honorCancelQueued moves cancel_requested=true QUEUED jobs straight to
// CANCELLED; they never consumed resources.
func (s *Scheduler) honorCancelQueued() {
	ids, err := s.store.ListIDs(s.store.Layout.QueueDir())
	if err != nil {
		s.logger.Error("list queue for cancellation", slog.Any("error", err))
		return
	}
	for _, id := range ids {
		rec, err := s.store.ReadAt(s.store.Layout.QueueDir(), id)
		if err != nil {
			s.handleItemError(s.store.Layout.QueueDir(), id, err)
			continue
		}
		if !rec.CancelRequested {
			continue
		}
		now := s.now().Unix()
		_, err = s.store.Move(id, s.store.Layout.QueueDir(), s.store.Layout.FinishedDir(), func(r jobstore.Record) jobstore.Record {
			r.State = jobstore.StateCancelled
			r.EndTime = &now
			return r
		})
		if err != nil {
			s.handleItemError(s.store.Layout.QueueDir(), id, err)
			continue
		}
		s.clearFailures(id)
		s.logger.Info("cancelled queued job", slog.Int64("jobid", id))
	}
}

// honorCancelRunning asks the launcher to terminate RUNNING jobs with
// cancel_requested=true. Signal issuance is non-blocking; reaping the
// actual exit happens separately in reap().
func (s *Scheduler) honorCancelRunning(ctx context.Context) {
	ids, err := s.store.ListIDs(s.store.Layout.RunningDir())
	if err != nil {
		s.logger.Error("list running for cancellation", slog.Any("error", err))
		return
	}
	for _, id := range ids {
		rec, err := s.store.ReadAt(s.store.Layout.RunningDir(), id)
		if err != nil {
			s.handleItemError(s.store.Layout.RunningDir(), id, err)
			continue
		}
		if !rec.CancelRequested || rec.SupervisorHandle == nil {
			continue
		}
		s.ensureTerminating(ctx, id, *rec.SupervisorHandle)
	}
}

// ensureTerminating issues the graceful signal the first time it sees a
// job, then the forceful one once killGrace has elapsed since. It never
// blocks waiting for the unit to exit; escalation is re-evaluated on
// later ticks until reap observes the unit is gone, at which point
// finalizeRunning clears the tracking entry.
func (s *Scheduler) ensureTerminating(ctx context.Context, id int64, handle string) {
	st, tracked := s.terminations[id]
	if !tracked {
		if err := s.launcher.Terminate(ctx, handle, false); err != nil {
			s.logger.Warn("graceful terminate failed, will retry", slog.Int64("jobid", id), slog.Any("error", err))
			return
		}
		s.terminations[id] = &terminationState{issuedAt: s.now()}
		return
	}
	if st.escalated || s.now().Sub(st.issuedAt) < s.killGrace {
		return
	}
	if err := s.launcher.Terminate(ctx, handle, true); err != nil {
		s.logger.Warn("forceful terminate failed, will retry", slog.Int64("jobid", id), slog.Any("error", err))
		return
	}
	st.escalated = true
}

// admit scans queue/ in id order and, for each candidate, either
// fast-fails oversized requests or reserves-and-moves fitting ones,
// skipping (not blocking on) ones that don't currently fit so smaller
// later jobs can backfill.
func (s *Scheduler) admit() {
	ids, err := s.store.ListIDs(s.store.Layout.QueueDir())
	if err != nil {
		s.logger.Error("list queue for admission", slog.Any("error", err))
		return
	}
	limits, err := s.accountant.Limits()
	if err != nil {
		s.logger.Error("read limits", slog.Any("error", err))
		return
	}

	for _, id := range ids {
		rec, err := s.store.ReadAt(s.store.Layout.QueueDir(), id)
		if err != nil {
			s.handleItemError(s.store.Layout.QueueDir(), id, err)
			continue
		}
		if rec.CancelRequested {
			continue // handled by honorCancelQueued this tick or next
		}

		req := accountant.Request{Cores: rec.Cores, MemMB: rec.MemMB}
		if s.accountant.IsOversized(req, limits) {
			if err := s.finalizeQueued(id, jobstore.StateFailed, strPtr("OversizedRequest")); err != nil {
				s.handleItemError(s.store.Layout.QueueDir(), id, err)
				continue
			}
			s.clearFailures(id)
			s.logger.Info("failed oversized job", slog.Int64("jobid", id), slog.Int("cores", rec.Cores), slog.Int("mem_mb", rec.MemMB))
			continue
		}

		ok, err := s.accountant.TryReserve(req)
		if err != nil {
			s.handleItemError(s.store.Layout.QueueDir(), id, err)
			continue
		}
		if !ok {
			continue // backfill: keep scanning, don't block on head of queue
		}

		now := s.now().Unix()
		_, err = s.store.Move(id, s.store.Layout.QueueDir(), s.store.Layout.RunningDir(), func(r jobstore.Record) jobstore.Record {
			r.State = jobstore.StateRunning
			r.StartTime = &now
			return r
		})
		if err != nil {
			if relErr := s.accountant.Release(req); relErr != nil {
				s.logger.Error("release after failed admission move", slog.Int64("jobid", id), slog.Any("error", relErr))
			}
			s.handleItemError(s.store.Layout.QueueDir(), id, err)
			continue
		}
		s.clearFailures(id)

		handle, err := s.launcher.Launch(context.Background(), launcher.Spec{
			JobID:      id,
			Command:    rec.ScriptPath,
			Workdir:    rec.Workdir,
			Cores:      rec.Cores,
			MemMB:      rec.MemMB,
			StdoutPath: rec.StdoutPath,
			StderrPath: rec.StderrPath,
		})
		if err != nil {
			if err := s.finalizeRunning(id, jobstore.StateFailed, strPtr("LaunchError"), nil); err != nil {
				s.logger.Error("finalize after launch error", slog.Int64("jobid", id), slog.Any("error", err))
			}
			s.logger.Warn("launch failed", slog.Int64("jobid", id), slog.Any("error", err))
			continue
		}

		if _, err := s.store.Rewrite(s.store.Layout.RunningDir(), id, func(r jobstore.Record) jobstore.Record {
			r.SupervisorHandle = &handle
			return r
		}); err != nil {
			s.logger.Error("stamp supervisor handle", slog.Int64("jobid", id), slog.Any("error", err))
		}
		if s.metrics != nil {
			s.metrics.JobsAdmitted.Inc()
		}
		s.logger.Info("admitted job", slog.Int64("jobid", id), slog.Int("cores", rec.Cores), slog.Int("mem_mb", rec.MemMB))
	}
}

// reap finalizes RUNNING jobs whose launched unit has exited.
func (s *Scheduler) reap(ctx context.Context) {
	ids, err := s.store.ListIDs(s.store.Layout.RunningDir())
	if err != nil {
		s.logger.Error("list running for reap", slog.Any("error", err))
		return
	}
	for _, id := range ids {
		rec, err := s.store.ReadAt(s.store.Layout.RunningDir(), id)
		if err != nil {
			s.handleItemError(s.store.Layout.RunningDir(), id, err)
			continue
		}
		if rec.SupervisorHandle == nil {
			continue // not yet stamped by admit this tick
		}
		alive, err := s.launcher.Alive(ctx, *rec.SupervisorHandle)
		if err != nil {
			s.logger.Warn("alive probe failed, will retry", slog.Int64("jobid", id), slog.Any("error", err))
			continue
		}
		if alive {
			continue
		}

		code, err := s.launcher.ExitCode(ctx, *rec.SupervisorHandle)
		if err != nil && !errors.Is(err, launcher.StillRunning) {
			s.logger.Warn("exit code probe failed, will retry", slog.Int64("jobid", id), slog.Any("error", err))
			continue
		}
		if errors.Is(err, launcher.StillRunning) {
			continue
		}

		finalState := jobstore.StateFinished
		var reason *string
		switch {
		case rec.CancelRequested:
			finalState = jobstore.StateCancelled
		case code != 0:
			finalState = jobstore.StateFailed
		}
		if err := s.finalizeRunning(id, finalState, reason, &code); err != nil {
			s.handleItemError(s.store.Layout.RunningDir(), id, err)
			continue
		}
		s.clearFailures(id)
		if s.metrics != nil {
			s.metrics.JobsReaped.Inc()
			if finalState == jobstore.StateFailed {
				s.metrics.JobsFailed.Inc()
			}
		}
		s.logger.Info("reaped job", slog.Int64("jobid", id), slog.String("state", string(finalState)), slog.Int("exit_code", code))
	}
}

// enforceTimeLimits cancels RUNNING jobs that have exceeded
// time_limit_sec.
func (s *Scheduler) enforceTimeLimits(ctx context.Context) {
	ids, err := s.store.ListIDs(s.store.Layout.RunningDir())
	if err != nil {
		s.logger.Error("list running for time limits", slog.Any("error", err))
		return
	}
	for _, id := range ids {
		rec, err := s.store.ReadAt(s.store.Layout.RunningDir(), id)
		if err != nil {
			s.handleItemError(s.store.Layout.RunningDir(), id, err)
			continue
		}
		if rec.TimeLimitSec == nil || rec.StartTime == nil || rec.CancelRequested {
			continue
		}
		elapsed := s.now().Unix() - *rec.StartTime
		if elapsed <= *rec.TimeLimitSec {
			continue
		}
		if rec.SupervisorHandle != nil {
			s.ensureTerminating(ctx, id, *rec.SupervisorHandle)
		}
		if _, err := s.store.Rewrite(s.store.Layout.RunningDir(), id, func(r jobstore.Record) jobstore.Record {
			r.CancelRequested = true
			r.Reason = strPtr("TimeLimitExceeded")
			return r
		}); err != nil {
			s.handleItemError(s.store.Layout.RunningDir(), id, err)
			continue
		}
		s.logger.Info("time limit exceeded", slog.Int64("jobid", id), slog.Int64("elapsed_sec", elapsed))
	}
}

func (s *Scheduler) finalizeQueued(id int64, state jobstore.State, reason *string) error {
	now := s.now().Unix()
	_, err := s.store.Move(id, s.store.Layout.QueueDir(), s.store.Layout.FinishedDir(), func(r jobstore.Record) jobstore.Record {
		r.State = state
		r.Reason = reason
		r.EndTime = &now
		return r
	})
	return err
}

// finalizeRunning moves a RUNNING record to finished/ and releases its
// resource reservation. reason overrides any reason already on the
// record; pass nil to keep an existing one (e.g. TimeLimitExceeded set
// earlier by enforceTimeLimits).
func (s *Scheduler) finalizeRunning(id int64, state jobstore.State, reason *string, exitCode *int) error {
	now := s.now().Unix()
	rec, err := s.store.Move(id, s.store.Layout.RunningDir(), s.store.Layout.FinishedDir(), func(r jobstore.Record) jobstore.Record {
		r.State = state
		r.EndTime = &now
		r.ExitCode = exitCode
		if reason != nil {
			r.Reason = reason
		}
		return r
	})
	if err != nil {
		return err
	}
	delete(s.terminations, id)
	return s.accountant.Release(accountant.Request{Cores: rec.Cores, MemMB: rec.MemMB})
}

func (s *Scheduler) quarantine(dir string, id int64, cause error) {
	if err := s.store.QuarantineCorrupt(dir, id, cause); err != nil {
		s.logger.Error("quarantine corrupt record failed", slog.Int64("jobid", id), slog.Any("error", err))
		return
	}
	if s.metrics != nil {
		s.metrics.JobsFailed.Inc()
	}
	s.logger.Warn("quarantined corrupt record", slog.Int64("jobid", id), slog.Any("cause", cause))
}

// handleItemError retries transient filesystem errors up to
// maxItemRetries ticks before giving up and quarantining the record as
// corrupt, matching the documented failure semantics.
func (s *Scheduler) handleItemError(dir string, id int64, err error) {
	s.failures[id]++
	if s.failures[id] < maxItemRetries {
		s.logger.Warn("item error, will retry", slog.Int64("jobid", id), slog.Int("attempt", s.failures[id]), slog.Any("error", err))
		return
	}
	delete(s.failures, id)
	s.quarantine(dir, id, err)
}

func (s *Scheduler) clearFailures(id int64) {
	delete(s.failures, id)
}

func (s *Scheduler) publishGauges() {
	if s.metrics == nil {
		return
	}
	usage, err := s.accountant.Usage()
	if err == nil {
		s.metrics.CoresUsed.Set(float64(usage.CoresUsed))
		s.metrics.MemMBUsed.Set(float64(usage.MemMBUsed))
	}
	if ids, err := s.store.ListIDs(s.store.Layout.QueueDir()); err == nil {
		s.metrics.QueueDepth.Set(float64(len(ids)))
	}
}

func strPtr(s string) *string { return &s }
