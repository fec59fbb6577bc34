package model_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
)

var day = time.Date(2024, 5, 1, 13, 45, 10, 0, time.UTC)

func records(n int) []model.Record {
	out := make([]model.Record, n)
	for i := range out {
		out[i] = model.NewRecord(fmt.Sprintf("r%d", i), "RowId", int64(i))
	}
	return out
}

func TestSplitIntoChunks(t *testing.T) {
	for _, n := range []int{0, 1, 899, 900, 901, 1800, 1801, 4500} {
		t.Run(fmt.Sprintf("%d records", n), func(t *testing.T) {
			input := records(n)
			chunks := model.SplitIntoChunks(input, 900, "GPE-2024-05-01-v1", day)

			assert.Len(t, chunks, (n+899)/900)

			seen := 0
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.LessOrEqual(t, len(c.Records), 900)
				assert.NotEmpty(t, c.Records)
				assert.Equal(t, "GPE-2024-05-01-v1", c.BatchRunID)
				for _, r := range c.Records {
					assert.Equal(t, input[seen].ID, r.ID, "records keep input order and appear once")
					seen++
				}
			}
			assert.Equal(t, n, seen)
		})
	}
}

func TestSplitIntoChunks_UniqueRequestIDs(t *testing.T) {
	chunks := model.SplitIntoChunks(records(2000), 900, "x", day)
	ids := map[string]bool{}
	for _, c := range chunks {
		ids[c.RequestID] = true
	}
	assert.Len(t, ids, 3)
	assert.Equal(t, fmt.Sprintf("%d-2", day.UnixNano()), chunks[2].RequestID)
}

func TestBatchRun_Identifiers(t *testing.T) {
	run := model.NewBatchRun("GPE", "Renewable Power ID", "", 1, day)

	assert.Equal(t, "GPE-2024-05-01-v1", run.ID())
	assert.Equal(t, "GPE_RPID", run.BatchID())
	assert.Equal(t, "2024-05-01T13:45:10", run.AsOfField())
	assert.Equal(t, "2024-05-01T02:00:00.000", run.RunDateField("02:00:00.000"))
	assert.Equal(t, model.BatchRunNotStarted, run.State)
}

func TestSanitizeProduct(t *testing.T) {
	assert.Equal(t, "ID", model.SanitizeProduct("ID"))
	assert.Equal(t, "", model.SanitizeProduct("index"))
	assert.Equal(t, "G-1_X", model.SanitizeProduct("Gas - 1_X"))
	assert.Equal(t, "ÄB", model.SanitizeProduct("Äb B"), "only ASCII lowercase letters are removed")
}

func TestBatchRun_BumpVersion(t *testing.T) {
	later := day.Add(26 * time.Hour)

	run := model.NewBatchRun("GPE", "ID", "", 1, day)
	require.NoError(t, run.TransitionTo(model.BatchRunStarted))
	run.BumpVersion(later)
	assert.Equal(t, "GPE-2024-05-02-v2", run.ID(), "regular runs take the current date")
	assert.Equal(t, model.BatchRunNotStarted, run.State)
	assert.Equal(t, "2024-05-01T13:45:10", run.AsOfField(), "asOf is fixed for the run")

	backfill := model.NewBatchRun("GPE", "ID", "backfill", 1, day)
	assert.Equal(t, "GPE-2024-05-01-v1-backfill", backfill.ID())
	backfill.BumpVersion(later)
	assert.Equal(t, "GPE-2024-05-01-v2-backfill", backfill.ID())

	previous := map[string]bool{}
	for i := 0; i < 10; i++ {
		previous[run.ID()] = true
		run.BumpVersion(later)
		assert.False(t, previous[run.ID()], "every bump yields a new identifier")
	}
}

func TestBatchRun_Transitions(t *testing.T) {
	run := model.NewBatchRun("GPE", "ID", "", 0, day)
	assert.Equal(t, 1, run.Version)

	assert.Error(t, run.TransitionTo(model.BatchRunStopped), "cannot stop a run that never started")
	require.NoError(t, run.TransitionTo(model.BatchRunStarted))
	require.NoError(t, run.TransitionTo(model.BatchRunStopped))
	assert.True(t, run.State.IsFinished())
	assert.Error(t, run.TransitionTo(model.BatchRunStarted))

	failed := model.NewBatchRun("GPE", "ID", "", 1, day)
	require.NoError(t, failed.TransitionTo(model.BatchRunStarted))
	require.NoError(t, failed.TransitionTo(model.BatchRunFailed))
	assert.Error(t, failed.TransitionTo(model.BatchRunStopped))
}

func TestSession(t *testing.T) {
	s := model.NewSession("me", "tok-123", day)
	assert.True(t, s.Valid())
	assert.NotContains(t, s.String(), "tok-123")
	assert.NotContains(t, fmt.Sprintf("%v", s), "tok-123")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Token()
		}()
	}
	s.Invalidate()
	wg.Wait()

	assert.False(t, s.Valid())
	assert.Equal(t, "", s.Token())
	s.Invalidate()
}

func TestDataPoint_ToRecord(t *testing.T) {
	dp := model.DataPoint{ID: "id", Category: "category", ReportYear: 2020, RowID: 1, Value: 22}
	r := dp.ToRecord()

	assert.Equal(t, "id", r.ID)
	require.Len(t, r.Fields, 9)
	assert.Equal(t, "Category", r.Fields[0].Name)
	v, ok := r.Get("ReportYear")
	assert.True(t, ok)
	assert.Equal(t, int64(2020), v)
	_, ok = r.Get("Missing")
	assert.False(t, ok)
}

func TestExportRun(t *testing.T) {
	run := model.NewBatchRun("GPE", "ID", "", 3, day)
	er := model.NewExportRun(run, 2, day)

	assert.NotEmpty(t, er.ID)
	assert.Equal(t, "2024-05-01", er.RunDate)
	assert.Equal(t, 3, er.Version)
	assert.Equal(t, model.ExportStatusStarted, er.Status)

	run.BumpVersion(day)
	er.Sync(run)
	assert.Equal(t, "GPE-2024-05-01-v4", er.BatchRunID)

	er.Finish(errors.New("boom"), day.Add(time.Minute))
	assert.Equal(t, model.ExportStatusFailed, er.Status)
	assert.Equal(t, "boom", er.ErrorMessage)
}
