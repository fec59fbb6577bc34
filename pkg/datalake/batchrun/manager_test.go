package batchrun_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datalake-export/internal/datalaketest"
	"github.com/tigerroll/datalake-export/pkg/datalake/batchrun"
	"github.com/tigerroll/datalake-export/pkg/datalake/client"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/metrics"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
)

var runStart = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newManager(t *testing.T, srv *datalaketest.Server, cfg *config.ExportConfig) *batchrun.Manager {
	t.Helper()
	api, err := client.NewClient(srv.URL, 5*time.Second, srv.Client())
	require.NoError(t, err)
	if cfg == nil {
		cfg = &config.NewConfig().Datalake.Export
	}
	return batchrun.NewManager(api, cfg, metrics.NewNoOpMetricRecorder(), metrics.NewNoOpTracer()).
		WithClock(func() time.Time { return runStart })
}

func session(srv *datalaketest.Server) *model.Session {
	return model.NewSession("me", srv.Token, runStart)
}

func TestStart_FirstAttempt(t *testing.T) {
	srv := datalaketest.NewServer()
	defer srv.Close()

	run := model.NewBatchRun("GPE", "ID", "", 1, runStart)
	require.NoError(t, newManager(t, srv, nil).Start(context.Background(), run, session(srv)))

	assert.Equal(t, model.BatchRunStarted, run.State)
	events := srv.CallsOf("event")
	require.Len(t, events, 1)
	assert.Equal(t, "GPE-2024-05-01-v1", events[0].BatchRunID)
	assert.Equal(t, map[string]string{
		"eventType":         "Start",
		"dictionaryVersion": "1",
		"batchId":           "GPE_ID",
		"asOf":              "2024-05-01T09:30:00",
		"runDate":           "2024-05-01T02:00:00.000",
		"apikey":            srv.Token,
	}, events[0].Form)
}

func TestStart_ConflictTwiceThenVersionThree(t *testing.T) {
	srv := datalaketest.NewServer()
	defer srv.Close()
	srv.EventStatus = func(eventType, id string, n int) int {
		if n <= 2 {
			return http.StatusBadRequest
		}
		return http.StatusOK
	}

	run := model.NewBatchRun("GPE", "ID", "", 1, runStart)
	require.NoError(t, newManager(t, srv, nil).Start(context.Background(), run, session(srv)))

	assert.Equal(t, 3, run.Version)
	assert.Equal(t, "GPE-2024-05-01-v3", run.ID())
	var ids []string
	for _, c := range srv.CallsOf("event") {
		ids = append(ids, c.BatchRunID)
	}
	assert.Equal(t, []string{"GPE-2024-05-01-v1", "GPE-2024-05-01-v2", "GPE-2024-05-01-v3"}, ids)
}

func TestStart_VersionCap(t *testing.T) {
	srv := datalaketest.NewServer()
	defer srv.Close()
	srv.EventStatus = func(string, string, int) int { return http.StatusBadRequest }

	cfg := config.NewConfig().Datalake.Export
	cfg.MaxVersionAttempts = 10
	run := model.NewBatchRun("GPE", "ID", "backfill", 1, runStart)
	err := newManager(t, srv, &cfg).Start(context.Background(), run, session(srv))

	assert.ErrorIs(t, err, exception.ErrBatchVersionExhausted)
	assert.True(t, exception.IsFatal(err))
	assert.Equal(t, model.BatchRunNotStarted, run.State)

	events := srv.CallsOf("event")
	require.Len(t, events, 11, "the first announcement plus one per version bump")
	for i, c := range events {
		expected := model.NewBatchRun("GPE", "ID", "backfill", i+1, runStart).ID()
		assert.Equal(t, expected, c.BatchRunID, "version increases by exactly one per conflict")
	}
	assert.Equal(t, 11, run.Version)
}

func TestStart_OtherFailureIsNotRetried(t *testing.T) {
	srv := datalaketest.NewServer()
	defer srv.Close()
	srv.EventStatus = func(string, string, int) int { return http.StatusInternalServerError }

	run := model.NewBatchRun("GPE", "ID", "", 1, runStart)
	err := newManager(t, srv, nil).Start(context.Background(), run, session(srv))

	assert.ErrorIs(t, err, exception.ErrBatchStartFailure)
	assert.True(t, exception.IsTemporary(err))
	assert.Len(t, srv.CallsOf("event"), 1)
	assert.Equal(t, 1, run.Version)
}

func TestStop(t *testing.T) {
	srv := datalaketest.NewServer()
	defer srv.Close()
	m := newManager(t, srv, nil)

	run := model.NewBatchRun("GPE", "ID", "", 1, runStart)
	require.NoError(t, m.Start(context.Background(), run, session(srv)))
	require.NoError(t, m.Stop(context.Background(), run, session(srv), true))
	assert.Equal(t, model.BatchRunStopped, run.State)

	failed := model.NewBatchRun("GPE", "ID", "", 2, runStart)
	require.NoError(t, m.Start(context.Background(), failed, session(srv)))
	require.NoError(t, m.Stop(context.Background(), failed, session(srv), false))
	assert.Equal(t, model.BatchRunFailed, failed.State, "Stopped is only reachable after a successful delivery")

	assert.Equal(t, []string{"event:Start", "event:End", "event:Start", "event:End"}, srv.Kinds())
}

func TestStop_NoConflictRetry(t *testing.T) {
	srv := datalaketest.NewServer()
	defer srv.Close()
	srv.EventStatus = func(eventType string, id string, n int) int {
		if eventType == batchrun.EventEnd {
			return http.StatusBadRequest
		}
		return http.StatusOK
	}
	m := newManager(t, srv, nil)

	run := model.NewBatchRun("GPE", "ID", "", 1, runStart)
	require.NoError(t, m.Start(context.Background(), run, session(srv)))
	err := m.Stop(context.Background(), run, session(srv), true)

	assert.Error(t, err)
	assert.Equal(t, model.BatchRunFailed, run.State)
	assert.Equal(t, 1, run.Version)
	assert.Len(t, srv.CallsOf("event"), 2)
}

func TestEventsPath(t *testing.T) {
	assert.Equal(t, "/marketdashboard/BatchRun/GPE-2024-05-01-v1/Events", batchrun.EventsPath("GPE-2024-05-01-v1"))
}
