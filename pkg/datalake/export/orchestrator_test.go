package export_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datalake-export/internal/datalaketest"
	"github.com/tigerroll/datalake-export/pkg/datalake/auth"
	"github.com/tigerroll/datalake-export/pkg/datalake/batchrun"
	"github.com/tigerroll/datalake-export/pkg/datalake/client"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/metrics"
	"github.com/tigerroll/datalake-export/pkg/datalake/delivery"
	"github.com/tigerroll/datalake-export/pkg/datalake/export"
	"github.com/tigerroll/datalake-export/pkg/datalake/infrastructure/repository"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
)

var now = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return now }

type recordSource []model.Record

func (s recordSource) Read(context.Context) ([]model.Record, error) { return s, nil }

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
	// onSleep runs before each wait is recorded.
	onSleep func(d time.Duration)
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if s.onSleep != nil {
		s.onSleep(d)
	}
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

type harness struct {
	srv     *datalaketest.Server
	sleeper *recordingSleeper
	runs    *repository.InMemoryRunRepository
	cfg     *config.ExportConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := datalaketest.NewServer()
	t.Cleanup(srv.Close)
	cfg := config.NewConfig().Datalake.Export
	return &harness{srv: srv, sleeper: &recordingSleeper{}, runs: repository.NewInMemoryRunRepository(), cfg: &cfg}
}

func (h *harness) orchestrator(t *testing.T, records []model.Record) *export.Orchestrator {
	t.Helper()
	api, err := client.NewClient(h.srv.URL, 5*time.Second, h.srv.Client())
	require.NoError(t, err)
	recorder, tracer := metrics.NewNoOpMetricRecorder(), metrics.NewNoOpTracer()

	env := config.EnvironmentConfig{Env: "test", BaseURL: h.srv.URL, Account: "me", Password: "secret"}
	return export.NewOrchestrator(h.cfg, env, export.Dependencies{
		Authenticator: auth.NewSessionAuthenticator(api, recorder, tracer),
		Batches:       batchrun.NewManager(api, h.cfg, recorder, tracer).WithClock(clock),
		Delivery:      delivery.NewEngine(api, h.cfg, recorder, tracer, delivery.WithSleeper(h.sleeper.Sleep), delivery.WithClock(clock)),
		Source:        recordSource(records),
		Runs:          h.runs,
		Recorder:      recorder,
		Tracer:        tracer,
	}, export.WithSleeper(h.sleeper.Sleep), export.WithClock(clock))
}

func records(n int) []model.Record {
	out := make([]model.Record, n)
	for i := range out {
		out[i] = model.NewRecord(fmt.Sprintf("r%d", i), "RowId", int64(i+1))
	}
	return out
}

func (h *harness) history(t *testing.T) []*model.ExportRun {
	t.Helper()
	runs, err := h.runs.FindRuns(context.Background(), "GPE", "2024-05-01")
	require.NoError(t, err)
	return runs
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t)

	res := h.orchestrator(t, records(1801)).Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, export.ExitSuccess, res.ExitCode())
	assert.Equal(t, []export.State{export.StateAuthenticating, export.StateDelivering, export.StateDone}, res.Transitions)
	assert.Equal(t, "GPE-2024-05-01-v1", res.BatchRunID)
	assert.Equal(t, []string{"login", "event:Start", "upload", "upload", "upload", "event:End", "logout"}, h.srv.Kinds())
	assert.Equal(t, []time.Duration{5 * time.Second}, h.sleeper.Waits(), "settle delay before End")

	history := h.history(t)
	require.Len(t, history, 1)
	assert.Equal(t, model.ExportStatusCompleted, history[0].Status)
	assert.Equal(t, 1801, history[0].RecordCount)
	assert.Equal(t, 3, history[0].ChunkCount)
}

func TestRun_StartFailureBacksOffAndGivesUp(t *testing.T) {
	h := newHarness(t)
	h.srv.EventStatus = func(string, string, int) int { return http.StatusInternalServerError }

	res := h.orchestrator(t, records(10)).Run(context.Background())

	assert.ErrorIs(t, res.Err, exception.ErrBatchStartFailure)
	assert.Equal(t, export.ExitFailed, res.ExitCode())
	assert.Equal(t, export.StateFailed, res.State)
	assert.Equal(t, 5, res.Attempts)
	assert.Len(t, h.srv.CallsOf("event"), 5)
	assert.Empty(t, h.srv.CallsOf("upload"))
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second}, h.sleeper.Waits())
	assert.Equal(t, "logout", h.srv.Kinds()[len(h.srv.Kinds())-1])

	backoffs := 0
	for _, s := range res.Transitions {
		if s == export.StateBackoff {
			backoffs++
		}
	}
	assert.Equal(t, 4, backoffs)

	history := h.history(t)
	require.Len(t, history, 5)
	for i, run := range history {
		assert.Equal(t, model.ExportStatusFailed, run.Status)
		assert.Equal(t, i+1, run.Attempt)
	}
}

func TestRun_StartFailureRecovers(t *testing.T) {
	h := newHarness(t)
	h.srv.EventStatus = func(eventType string, _ string, n int) int {
		if eventType == batchrun.EventStart && n <= 2 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	}

	res := h.orchestrator(t, records(10)).Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second, 5 * time.Second}, h.sleeper.Waits())
	assert.Len(t, h.srv.CallsOf("upload"), 1)
}

func TestRun_VersionConflictsResolved(t *testing.T) {
	h := newHarness(t)
	h.srv.EventStatus = func(eventType string, _ string, n int) int {
		if eventType == batchrun.EventStart && n <= 2 {
			return http.StatusBadRequest
		}
		return http.StatusOK
	}

	res := h.orchestrator(t, records(10)).Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Attempts, "conflicts are resolved inside one attempt")
	assert.Equal(t, "GPE-2024-05-01-v3", res.BatchRunID)
	uploads := h.srv.CallsOf("upload")
	require.Len(t, uploads, 1)
	assert.Equal(t, "GPE-2024-05-01-v3", uploads[0].Form["batchRunId"])
	assert.Equal(t, 3, h.history(t)[0].Version)
}

func TestRun_VersionExhaustedIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxVersionAttempts = 2
	h.srv.EventStatus = func(string, string, int) int { return http.StatusBadRequest }

	res := h.orchestrator(t, records(10)).Run(context.Background())

	assert.ErrorIs(t, res.Err, exception.ErrBatchVersionExhausted)
	assert.Equal(t, export.ExitFailed, res.ExitCode())
	assert.Len(t, h.srv.CallsOf("event"), 3)
	assert.Empty(t, h.sleeper.Waits())
}

func TestRun_AuthFailure(t *testing.T) {
	h := newHarness(t)
	h.srv.Password = "other"

	res := h.orchestrator(t, records(10)).Run(context.Background())

	assert.ErrorIs(t, res.Err, exception.ErrAuthFailure)
	assert.Equal(t, export.ExitFailed, res.ExitCode())
	assert.Equal(t, []export.State{export.StateAuthenticating, export.StateFailed}, res.Transitions)
	assert.Equal(t, []string{"login"}, h.srv.Kinds(), "no export and no logout without a session")
	assert.Empty(t, h.history(t))
}

func TestRun_PartialDeliveryFailsWithoutRetry(t *testing.T) {
	h := newHarness(t)
	h.cfg.ChunkSize = 4
	rejected := model.NewRequestID(now, 1)
	h.srv.UploadStatus = func(requestID string, _ int) int {
		if requestID == rejected {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}

	res := h.orchestrator(t, records(10)).Run(context.Background())

	assert.ErrorIs(t, res.Err, exception.ErrChunkRejected)
	assert.Equal(t, export.ExitFailed, res.ExitCode())
	assert.Equal(t, 1, res.Attempts)
	require.NotNil(t, res.Report)
	assert.Equal(t, 2, res.Report.Delivered)
	assert.Equal(t, []string{"login", "event:Start", "upload", "upload", "upload", "event:End", "logout"}, h.srv.Kinds())

	history := h.history(t)
	require.Len(t, history, 1)
	assert.Equal(t, model.ExportStatusFailed, history[0].Status)
	assert.Equal(t, 1, history[0].FailedChunks)
}

func TestRun_ContinuesVersionFromHistory(t *testing.T) {
	h := newHarness(t)
	earlier := model.NewExportRun(model.NewBatchRun("GPE", "ID", "", 4, now), 1, now.Add(-time.Hour))
	require.NoError(t, h.runs.SaveRun(context.Background(), earlier))

	res := h.orchestrator(t, records(1)).Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, "GPE-2024-05-01-v5", h.srv.CallsOf("event")[0].BatchRunID)
}

func TestRun_CancelledBeforeStop(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.sleeper.onSleep = func(time.Duration) { cancel() }

	res := h.orchestrator(t, records(10)).Run(ctx)

	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, export.ExitFailed, res.ExitCode())
	assert.Equal(t, []string{"login", "event:Start", "upload", "logout"}, h.srv.Kinds(), "End is skipped, logout still runs")
}
