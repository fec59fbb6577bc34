// Package batchrun announces the start and end of a versioned batch run to the data lake.
package batchrun

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tigerroll/datalake-export/pkg/datalake/client"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/metrics"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// Event types of the BatchRun events endpoint.
const (
	EventStart = "Start"
	EventEnd   = "End"
)

// EventsPath returns the events endpoint of a batch run.
func EventsPath(batchRunID string) string {
	return "/marketdashboard/BatchRun/" + url.PathEscape(batchRunID) + "/Events"
}

// Manager is the batch lifecycle manager.
type Manager struct {
	api      client.API
	cfg      *config.ExportConfig
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	now      func() time.Time
}

// NewManager creates a Manager.
func NewManager(api client.API, cfg *config.ExportConfig, recorder metrics.MetricRecorder, tracer metrics.Tracer) *Manager {
	return &Manager{api: api, cfg: cfg, recorder: recorder, tracer: tracer, now: time.Now}
}

// WithClock replaces the clock used when a version bump regenerates the identifier date.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Start announces run. A 400 response means the identifier is taken: the version is bumped and
// the event re-sent, at most MaxVersionAttempts times before BatchVersionExhausted is returned.
// Any other failure is returned as BatchStartFailure without retrying.
func (m *Manager) Start(ctx context.Context, run *model.BatchRun, session *model.Session) error {
	ctx, end := m.tracer.StartSpan(ctx, "datalake.batch.start", map[string]interface{}{"batch_name": run.Name})
	defer end()

	bumps := 0
	for {
		err := m.sendEvent(ctx, EventStart, run, session)
		if err == nil {
			m.recorder.RecordBatchEvent(ctx, EventStart, metrics.OutcomeSuccess)
			if err := run.TransitionTo(model.BatchRunStarted); err != nil {
				return err
			}
			logger.Infof("Started batch %s", run.ID())
			return nil
		}

		if exception.StatusCodeOf(err) != http.StatusBadRequest {
			m.recorder.RecordBatchEvent(ctx, EventStart, metrics.OutcomeFailure)
			startErr := exception.NewBatchStartFailure(run.ID(), err)
			m.tracer.RecordError(ctx, "batchrun", startErr)
			logger.Debugf("%v", startErr)
			return startErr
		}

		m.recorder.RecordBatchEvent(ctx, EventStart, metrics.OutcomeConflict)
		conflict := exception.NewBatchStartConflict(run.ID(), err)
		if bumps >= m.cfg.MaxVersionAttempts {
			exhausted := exception.NewBatchVersionExhausted(run.Name, bumps)
			m.tracer.RecordError(ctx, "batchrun", exhausted)
			logger.Errorf("%v (last: %v)", exhausted, conflict)
			return exhausted
		}

		previous := run.ID()
		run.BumpVersion(m.now())
		bumps++
		m.tracer.RecordEvent(ctx, "version_bump", map[string]interface{}{"from": previous, "to": run.ID()})
		logger.Warnf("%v; retrying as %s", conflict, run.ID())
	}
}

// Stop sends the End event once. The run ends Stopped when delivery succeeded and Failed otherwise,
// also when the End event itself fails.
func (m *Manager) Stop(ctx context.Context, run *model.BatchRun, session *model.Session, delivered bool) error {
	ctx, end := m.tracer.StartSpan(ctx, "datalake.batch.stop", map[string]interface{}{"batch_run_id": run.ID()})
	defer end()

	next := model.BatchRunStopped
	if !delivered {
		next = model.BatchRunFailed
	}

	err := m.sendEvent(ctx, EventEnd, run, session)
	if err != nil {
		m.recorder.RecordBatchEvent(ctx, EventEnd, metrics.OutcomeFailure)
		next = model.BatchRunFailed
	} else {
		m.recorder.RecordBatchEvent(ctx, EventEnd, metrics.OutcomeSuccess)
	}
	if tErr := run.TransitionTo(next); tErr != nil {
		return tErr
	}

	if err != nil {
		stopErr := exception.NewBatchError("batchrun", fmt.Sprintf("end event for %s failed", run.ID()), err, false, false)
		m.tracer.RecordError(ctx, "batchrun", stopErr)
		logger.Errorf("%v", stopErr)
		return stopErr
	}
	logger.Infof("Stopped batch %s (%s)", run.ID(), run.State)
	return nil
}

func (m *Manager) sendEvent(ctx context.Context, eventType string, run *model.BatchRun, session *model.Session) error {
	_, err := m.api.PostForm(ctx, EventsPath(run.ID()), url.Values{
		"eventType":         {eventType},
		"dictionaryVersion": {m.cfg.DictionaryVersion},
		"batchId":           {run.BatchID()},
		"asOf":              {run.AsOfField()},
		"runDate":           {run.RunDateField(m.cfg.RunDateTimeOfDay)},
		"apikey":            {session.Token()},
	})
	return err
}
