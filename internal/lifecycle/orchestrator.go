package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/openabap/adtflow/internal/adt"
	"github.com/openabap/adtflow/internal/config"
	"github.com/openabap/adtflow/internal/errors"
	"github.com/openabap/adtflow/internal/lockreg"
	"github.com/openabap/adtflow/internal/logging"
)

// SleepFunc waits for d or until ctx is done. Injectable so tests run
// without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures one Orchestrator.
type Options struct {
	ObjectType string
	ObjectName string
	SessionID  string
	// HasUpdate enables the update step; without a payload it is skipped.
	HasUpdate bool
	Lifecycle config.LifecycleConfig
	Cleanup   config.CleanupConfig
	Logger    *logging.Logger
	// Sleep defaults to a context-aware timer wait.
	Sleep SleepFunc
}

// runContext is the per-run state. locked implies lockHandle is non-empty;
// created is set only after a successful create response.
type runContext struct {
	step       Step
	created    bool
	locked     bool
	lockHandle string
}

// Orchestrator drives one object through the edit flow. Runs are strictly
// sequential: each step blocks on its remote round-trip before the next
// starts. A failed step triggers compensating cleanup before the error
// surfaces.
type Orchestrator struct {
	object   adt.RemoteObject
	registry *lockreg.Registry
	opts     Options
	logger   *logging.Logger
	sleep    SleepFunc
}

// NewOrchestrator creates an Orchestrator for one object.
func NewOrchestrator(object adt.RemoteObject, registry *lockreg.Registry, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithSession(opts.SessionID).WithObject(opts.ObjectType, opts.ObjectName)
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Orchestrator{
		object:   object,
		registry: registry,
		opts:     opts,
		logger:   logger,
		sleep:    sleep,
	}
}

// Run executes the full flow and returns a Report alongside any error.
// The Report is always non-nil, including on failure, so callers can see
// how far the run got and whether compensation ran.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		ObjectType: o.opts.ObjectType,
		ObjectName: o.opts.ObjectName,
		SessionID:  o.opts.SessionID,
		Started:    time.Now(),
	}
	defer func() {
		report.Finished = time.Now()
		report.Step = report.StepReached.String()
	}()

	if o.object == nil || o.registry == nil || o.opts.SessionID == "" ||
		o.opts.ObjectType == "" || o.opts.ObjectName == "" {
		report.Skipped = true
		o.logger.Warn("run skipped, incomplete configuration")
		return report, fmt.Errorf("orchestrator not fully configured: %w", errors.ErrRunSkipped)
	}

	rc := &runContext{step: StepIdle}

	type stage struct {
		op     string
		target Step
		fn     func(context.Context, *runContext) error
		skip   bool
	}
	stages := []stage{
		{op: opValidate, target: StepValidated, fn: o.validate},
		{op: opCreate, target: StepCreated, fn: o.create},
		{op: opLock, target: StepLocked, fn: o.lock},
		{op: opUpdate, target: StepUpdated, fn: o.update, skip: !o.opts.HasUpdate},
		{op: opUnlock, target: StepUnlocked, fn: o.unlock},
		{op: opActivate, target: StepActivated, fn: o.activate},
		{op: opCheck, target: StepChecked, fn: o.checkActive},
		{op: opDelete, target: StepDeleted, fn: o.deleteStep, skip: !o.finalDeleteEnabled()},
	}

	for _, s := range stages {
		if s.skip {
			o.logger.Debug("step skipped", "step", s.op)
			report.record(s.op, OutcomeSkipped, 0, nil)
			continue
		}
		start := time.Now()
		err := s.fn(ctx, rc)
		elapsed := time.Since(start)
		if err != nil {
			report.record(s.op, OutcomeFailed, elapsed, err)
			return o.fail(ctx, report, rc, s.op, err)
		}
		report.record(s.op, OutcomeOK, elapsed, nil)
		rc.step = s.target
		report.StepReached = s.target
		o.logger.Info("step completed", "step", s.op, "duration", elapsed.String())

		if err := o.sleep(ctx, o.opts.Lifecycle.Delay(s.op)); err != nil {
			return o.fail(ctx, report, rc, s.op, err)
		}
	}

	return report, nil
}

// ----------------------------------------------------------------------------
// Steps
// ----------------------------------------------------------------------------

func (o *Orchestrator) validate(ctx context.Context, rc *runContext) error {
	resp, err := o.object.Validate(ctx)
	if err != nil {
		return err
	}
	o.logWarnings(opValidate, resp)
	// Embedded error entries fail validation even on a 2xx transport status.
	if vErr := resp.Err(); vErr != nil {
		return vErr
	}
	if !resp.IsSuccess() {
		return errors.NewTransportError("validation rejected", nil).
			WithStatus(resp.StatusCode, resp.Status)
	}
	return nil
}

func (o *Orchestrator) create(ctx context.Context, rc *runContext) error {
	resp, err := o.object.Create(ctx)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return errors.NewTransportError("create rejected", nil).
			WithStatus(resp.StatusCode, resp.Status)
	}
	rc.created = true
	return nil
}

// lock acquires the remote lock and registers ownership synchronously, so
// a crash right after this step still leaves the lock discoverable by a
// later process. A crash between the remote grant and the registry write
// leaves an untracked remote lock; that window is documented in lockreg.
func (o *Orchestrator) lock(ctx context.Context, rc *runContext) error {
	handle, _, err := o.object.Lock(ctx)
	if err != nil {
		return err
	}
	rc.locked = true
	rc.lockHandle = handle

	err = o.registry.Register(lockreg.Entry{
		ObjectType: o.opts.ObjectType,
		ObjectName: o.opts.ObjectName,
		SessionID:  o.opts.SessionID,
		LockHandle: handle,
	})
	if err != nil {
		// Registry write failures surface; compensation releases the
		// remote lock we just took.
		return err
	}
	return nil
}

func (o *Orchestrator) update(ctx context.Context, rc *runContext) error {
	resp, err := o.object.Update(ctx, rc.lockHandle)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return errors.NewTransportError("update rejected", nil).
			WithStatus(resp.StatusCode, resp.Status)
	}
	return nil
}

func (o *Orchestrator) unlock(ctx context.Context, rc *runContext) error {
	resp, err := o.object.Unlock(ctx, rc.lockHandle)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return errors.NewTransportError("unlock rejected", nil).
			WithStatus(resp.StatusCode, resp.Status)
	}
	rc.locked = false
	rc.lockHandle = ""
	return o.registry.Remove(o.opts.ObjectType, o.opts.ObjectName)
}

func (o *Orchestrator) activate(ctx context.Context, rc *runContext) error {
	resp, err := o.object.Activate(ctx)
	if err != nil {
		return err
	}
	o.logWarnings(opActivate, resp)
	if aErr := resp.Err(); aErr != nil {
		return aErr
	}
	if !resp.IsSuccess() {
		return errors.NewTransportError("activation rejected", nil).
			WithStatus(resp.StatusCode, resp.Status)
	}
	return nil
}

// checkActive verifies the active version. Activation commonly completes
// asynchronously on the backend, so the first checks can observe stale
// state; the loop retries with configured spacing, bounded by both the
// attempt count and the run's total retry budget.
func (o *Orchestrator) checkActive(ctx context.Context, rc *runContext) error {
	maxAttempts := o.opts.Lifecycle.CheckMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	interval := o.opts.Lifecycle.CheckInterval()
	budget := o.opts.Lifecycle.RetryBudget()
	deadline := time.Now().Add(budget)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := o.object.Check(ctx, adt.VersionActive)
		if err == nil {
			if cErr := resp.Err(); cErr != nil {
				err = cErr
			} else if !resp.IsSuccess() {
				err = errors.NewTransportError("check rejected", nil).
					WithStatus(resp.StatusCode, resp.Status)
			} else {
				o.logWarnings(opCheck, resp)
				return nil
			}
		}
		lastErr = err
		o.logger.Debug("active check failed", "attempt", attempt, "error", err.Error())

		if attempt == maxAttempts {
			break
		}
		if budget > 0 && time.Now().Add(interval).After(deadline) {
			o.logger.Warn("retry budget exhausted", "attempts", attempt)
			break
		}
		if sErr := o.sleep(ctx, interval); sErr != nil {
			return sErr
		}
	}
	return fmt.Errorf("active version check did not pass: %w",
		errors.Join(errors.ErrCheckExhausted, lastErr))
}

func (o *Orchestrator) deleteStep(ctx context.Context, rc *runContext) error {
	return o.deleteObject(ctx)
}

// deleteObject removes the remote object. Deletion requires a lock, so a
// fresh one is taken and registered for the duration of the call.
func (o *Orchestrator) deleteObject(ctx context.Context) error {
	handle, _, err := o.object.Lock(ctx)
	if err != nil {
		return err
	}
	regErr := o.registry.Register(lockreg.Entry{
		ObjectType: o.opts.ObjectType,
		ObjectName: o.opts.ObjectName,
		SessionID:  o.opts.SessionID,
		LockHandle: handle,
	})
	if regErr != nil {
		return regErr
	}

	resp, err := o.object.Delete(ctx, handle)
	if err == nil && !resp.IsSuccess() {
		err = errors.NewTransportError("delete rejected", nil).
			WithStatus(resp.StatusCode, resp.Status)
	}
	if err != nil {
		// The object survives, so the lock must not: release it before
		// surfacing, and drop the bookkeeping either way.
		if _, uErr := o.object.Unlock(ctx, handle); uErr != nil {
			o.logger.Warn("unlock after failed delete failed", "error", uErr.Error())
		}
		if rErr := o.registry.Remove(o.opts.ObjectType, o.opts.ObjectName); rErr != nil {
			o.logger.Error("registry remove failed", "error", rErr.Error())
		}
		return err
	}

	// The lock dies with the object; only the registry entry remains.
	return o.registry.Remove(o.opts.ObjectType, o.opts.ObjectName)
}

// ----------------------------------------------------------------------------
// Failure Handling
// ----------------------------------------------------------------------------

// fail runs compensating cleanup and enriches the original error with the
// transport status text when one is attached.
func (o *Orchestrator) fail(ctx context.Context, report *Report, rc *runContext, op string, cause error) (*Report, error) {
	report.StepReached = rc.step
	o.logger.Error("step failed", "step", op, "error", cause.Error())
	o.compensate(ctx, report, rc)

	if st := errors.StatusText(cause); st != "" {
		return report, fmt.Errorf("%s failed (%s): %w", op, st, cause)
	}
	return report, fmt.Errorf("%s failed: %w", op, cause)
}

// compensate reverses partial work: unlock if locked, delete if created
// and cleanup is enabled. Cleanup failures are logged, never propagated;
// the original error is the informative one.
func (o *Orchestrator) compensate(ctx context.Context, report *Report, rc *runContext) {
	wantUnlock := rc.locked
	wantDelete := rc.created && !o.opts.Cleanup.Skip
	if !wantUnlock && !wantDelete {
		return
	}
	report.CompensationAttempted = true
	succeeded := true

	if wantUnlock {
		if _, err := o.object.Unlock(ctx, rc.lockHandle); err != nil {
			o.logger.Warn("compensating unlock failed", "error", err.Error())
			succeeded = false
		}
		if err := o.registry.Remove(o.opts.ObjectType, o.opts.ObjectName); err != nil {
			o.logger.Error("registry remove failed", "error", err.Error())
			succeeded = false
		}
		rc.locked = false
		rc.lockHandle = ""
	}

	if wantDelete {
		if err := o.deleteObject(ctx); err != nil {
			o.logger.Warn("compensating delete failed", "error", err.Error())
			succeeded = false
		} else {
			rc.created = false
		}
	}

	report.CompensationSucceeded = succeeded
	o.logger.Info("compensation finished", "succeeded", succeeded)
}

func (o *Orchestrator) finalDeleteEnabled() bool {
	return o.opts.Cleanup.AfterRun && !o.opts.Cleanup.Skip
}

func (o *Orchestrator) logWarnings(op string, resp *adt.Response) {
	for _, w := range resp.WarningMessages() {
		o.logger.Warn("remote warning", "step", op, "message", w)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
