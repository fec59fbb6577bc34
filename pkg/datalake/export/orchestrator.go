// Package export drives one export run end to end: login, batch start with version-conflict
// resolution and backoff, chunked delivery, batch stop and best-effort logout.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/metrics"
	"github.com/tigerroll/datalake-export/pkg/datalake/delivery"
	"github.com/tigerroll/datalake-export/pkg/datalake/engine/retry"
	"github.com/tigerroll/datalake-export/pkg/datalake/infrastructure/repository"
	"github.com/tigerroll/datalake-export/pkg/datalake/source"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// State is a step of the orchestrator's state machine.
type State string

const (
	StateAuthenticating State = "AUTHENTICATING"
	StateDelivering     State = "DELIVERING"
	StateBackoff        State = "BACKOFF"
	StateFailed         State = "FAILED"
	StateDone           State = "DONE"
)

// Exit codes of a finished run. ExitCrashed is used by the caller when the run never started.
const (
	ExitSuccess = 0
	ExitFailed  = 1
	ExitCrashed = 2
)

// Authenticator opens and closes the session.
type Authenticator interface {
	Login(ctx context.Context, account, password string) (*model.Session, error)
	Logout(ctx context.Context, session *model.Session)
}

// BatchManager announces the start and end of a batch run.
type BatchManager interface {
	Start(ctx context.Context, run *model.BatchRun, session *model.Session) error
	Stop(ctx context.Context, run *model.BatchRun, session *model.Session, delivered bool) error
}

// Deliverer uploads the records of a started batch run.
type Deliverer interface {
	Deliver(ctx context.Context, records []model.Record, run *model.BatchRun, session *model.Session) (*delivery.Report, error)
}

// Result is the outcome of Run.
type Result struct {
	State State
	// Transitions lists every state entered, in order.
	Transitions []State
	Attempts    int
	BatchRunID  string
	Report      *delivery.Report
	Err         error
}

// Succeeded is true when the run reached DONE.
func (r *Result) Succeeded() bool {
	return r.State == StateDone
}

// ExitCode maps the result to the process exit code.
func (r *Result) ExitCode() int {
	if r.Succeeded() {
		return ExitSuccess
	}
	return ExitFailed
}

// Dependencies are the collaborators of the Orchestrator.
type Dependencies struct {
	Authenticator Authenticator
	Batches       BatchManager
	Delivery      Deliverer
	Source        source.Source
	Runs          repository.RunRepository
	Recorder      metrics.MetricRecorder
	Tracer        metrics.Tracer
}

// Orchestrator is the export orchestrator.
type Orchestrator struct {
	deps    Dependencies
	cfg     *config.ExportConfig
	env     config.EnvironmentConfig
	policy  retry.RetryPolicy
	sleeper retry.Sleeper
	now     func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the wait used for backoff and the settle delay before stop.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *Orchestrator) { o.sleeper = s }
}

// WithClock replaces the clock used for batch run dates and history.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator that retries batch start failures according to cfg.RunRetry.
func NewOrchestrator(cfg *config.ExportConfig, env config.EnvironmentConfig, deps Dependencies, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:    deps,
		cfg:     cfg,
		env:     env,
		policy:  retry.NewDefaultRetryPolicyFactory().FromConfig(cfg.RunRetry),
		sleeper: retry.ContextSleeper,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run performs the export once. It never panics on remote failures; the outcome is in the Result.
// Logout is attempted whenever login succeeded, also after cancellation.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	ctx, end := o.deps.Tracer.StartSpan(ctx, "datalake.export", map[string]interface{}{
		"batch_name":  o.cfg.BatchName,
		"environment": o.env.Env,
	})
	defer end()
	start := o.now()

	res := &Result{}
	o.enter(res, StateAuthenticating)
	session, err := o.deps.Authenticator.Login(ctx, o.env.Account, o.env.Password)
	if err != nil {
		return o.fail(ctx, res, err, start)
	}
	defer o.deps.Authenticator.Logout(ctx, session)

	records, err := o.deps.Source.Read(ctx)
	if err != nil {
		return o.fail(ctx, res, exception.NewBatchError("export", "failed to read records", err, false, false), start)
	}

	version := o.initialVersion(ctx)
	retryer := retry.NewRetryer("export "+o.cfg.BatchName, o.policy, o.sleeper)
	err = retryer.Do(ctx, func(ctx context.Context, attempt int) error {
		res.Attempts = attempt
		o.enter(res, StateDelivering)
		err := o.attempt(ctx, res, session, records, &version, attempt)
		if err != nil && attempt < o.policy.GetMaxAttempts() && o.policy.ShouldRetry(err) {
			o.enter(res, StateBackoff)
			logger.Warnf("Export attempt %d/%d failed, retrying in %s: %v",
				attempt, o.policy.GetMaxAttempts(), o.policy.GetBackoffInterval(attempt), err)
		}
		return err
	})
	if err != nil {
		if res.Attempts >= o.policy.GetMaxAttempts() && o.policy.ShouldRetry(err) {
			logger.Warnf("Export %s gave up after %d attempts", o.cfg.BatchName, res.Attempts)
		}
		return o.fail(ctx, res, err, start)
	}

	o.enter(res, StateDone)
	o.deps.Recorder.RecordDuration(ctx, "export", o.now().Sub(start), map[string]string{"outcome": metrics.OutcomeSuccess})
	logger.Infof("Export %s finished: %d records in %d chunks", res.BatchRunID, res.Report.Records, res.Report.Chunks)
	return res
}

// attempt runs one DELIVERING pass. version carries the last announced version across attempts.
func (o *Orchestrator) attempt(ctx context.Context, res *Result, session *model.Session, records []model.Record, version *int, attempt int) error {
	run := model.NewBatchRun(o.cfg.BatchName, o.cfg.Product, o.cfg.BackfillSuffix, *version, o.now())
	history := model.NewExportRun(run, attempt, o.now())
	history.RecordCount = len(records)
	o.save(ctx, history)
	o.deps.Recorder.RecordExportStart(ctx, history)

	err := o.deps.Batches.Start(ctx, run, session)
	*version = run.Version
	res.BatchRunID = run.ID()
	history.Sync(run)
	if err != nil {
		o.finish(ctx, history, err)
		return err
	}

	report, deliveryErr := o.deps.Delivery.Deliver(ctx, records, run, session)
	res.Report = report
	if report != nil {
		history.ChunkCount = report.Chunks
		history.FailedChunks = report.Failed()
	}

	// The settle delay lets the remote side ingest the last chunks before End.
	if ctx.Err() == nil {
		_ = o.sleeper(ctx, o.cfg.StopDelay())
	}
	if ctx.Err() != nil {
		err := exception.NewBatchError("export", fmt.Sprintf("export of %s cancelled", run.ID()), errors.Join(ctx.Err(), deliveryErr), false, false)
		logger.Warnf("Export %s cancelled, batch run is not stopped", run.ID())
		o.finish(ctx, history, err)
		return err
	}

	stopErr := o.deps.Batches.Stop(ctx, run, session, deliveryErr == nil)
	switch {
	case deliveryErr != nil:
		err = exception.NewBatchError("export", fmt.Sprintf("delivery of %s incomplete", run.ID()), errors.Join(deliveryErr, stopErr), false, false)
	case stopErr != nil:
		err = stopErr
	}
	o.finish(ctx, history, err)
	return err
}

func (o *Orchestrator) initialVersion(ctx context.Context) int {
	runDate := o.now().UTC().Format("2006-01-02")
	latest, err := o.deps.Runs.LatestVersion(ctx, o.cfg.BatchName, runDate)
	if err != nil {
		logger.Warnf("Could not read run history, starting at version 1: %v", err)
		return 1
	}
	if latest > 0 {
		logger.Infof("Batch %s already ran at version %d on %s, continuing at %d", o.cfg.BatchName, latest, runDate, latest+1)
	}
	return latest + 1
}

func (o *Orchestrator) save(ctx context.Context, history *model.ExportRun) {
	if err := o.deps.Runs.SaveRun(context.WithoutCancel(ctx), history); err != nil {
		logger.Warnf("Failed to record export run %s: %v", history.ID, err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, history *model.ExportRun, err error) {
	history.Finish(err, o.now())
	if uErr := o.deps.Runs.UpdateRun(context.WithoutCancel(ctx), history); uErr != nil {
		logger.Warnf("Failed to update export run %s: %v", history.ID, uErr)
	}
	o.deps.Recorder.RecordExportEnd(ctx, history)
}

func (o *Orchestrator) fail(ctx context.Context, res *Result, err error, start time.Time) *Result {
	o.enter(res, StateFailed)
	res.Err = err
	o.deps.Tracer.RecordError(ctx, "export", err)
	o.deps.Recorder.RecordDuration(ctx, "export", o.now().Sub(start), map[string]string{"outcome": metrics.OutcomeFailure})
	logger.Errorf("Export %s failed: %v", o.cfg.BatchName, err)
	return res
}

func (o *Orchestrator) enter(res *Result, next State) {
	if len(res.Transitions) > 0 {
		logger.Debugf("Export state %s -> %s", res.State, next)
	}
	res.State = next
	res.Transitions = append(res.Transitions, next)
}
