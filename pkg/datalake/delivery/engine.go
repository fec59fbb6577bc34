// Package delivery splits the record sequence into chunks and uploads them to the data lake
// with bounded concurrency and per-chunk retry.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/tigerroll/datalake-export/pkg/datalake/client"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/metrics"
	"github.com/tigerroll/datalake-export/pkg/datalake/engine/retry"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// DataPointPath is the upload endpoint.
const DataPointPath = "/marketdashboard/DataPoint"

// ErrNotDispatched marks chunks that were never sent because delivery was cancelled.
var ErrNotDispatched = errors.New("chunk not dispatched: delivery cancelled")

// Report is the reduced outcome of one delivery.
type Report struct {
	BatchRunID   string
	Records      int
	Chunks       int
	Dispatched   int
	Delivered    int
	FailedChunks []int
	// Err aggregates the failure of every chunk that was not delivered.
	Err error
}

// OK is true when every chunk was delivered.
func (r *Report) OK() bool {
	return r.Err == nil && r.Delivered == r.Chunks
}

// Failed returns the number of chunks that were not delivered.
func (r *Report) Failed() int {
	return r.Chunks - r.Delivered
}

type chunkResult struct {
	dispatched bool
	delivered  bool
	attempts   int
	err        error
}

// Engine is the chunked delivery engine.
type Engine struct {
	api        client.API
	cfg        *config.ExportConfig
	serializer Serializer
	policy     retry.RetryPolicy
	sleeper    retry.Sleeper
	recorder   metrics.MetricRecorder
	tracer     metrics.Tracer
	now        func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSleeper replaces the wait between chunk attempts.
func WithSleeper(s retry.Sleeper) Option {
	return func(e *Engine) { e.sleeper = s }
}

// WithClock replaces the clock used for request ids.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSerializer replaces the payload serializer.
func WithSerializer(s Serializer) Option {
	return func(e *Engine) { e.serializer = s }
}

// NewEngine creates an Engine retrying chunks according to cfg.ChunkRetry.
func NewEngine(api client.API, cfg *config.ExportConfig, recorder metrics.MetricRecorder, tracer metrics.Tracer, opts ...Option) *Engine {
	e := &Engine{
		api:        api,
		cfg:        cfg,
		serializer: NewJSONSerializer(),
		policy:     retry.NewDefaultRetryPolicyFactory().FromConfig(cfg.ChunkRetry),
		sleeper:    retry.ContextSleeper,
		recorder:   recorder,
		tracer:     tracer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deliver uploads records for run. Every dispatched chunk runs to completion even if siblings fail;
// the returned error aggregates all chunk failures and equals report.Err.
// All chunks are serialized before the first upload; a serialization failure aborts the delivery
// with nothing sent. Cancelling ctx stops dispatching further chunks and aborts pending retry
// waits, while uploads already on the wire finish within the HTTP timeout.
func (e *Engine) Deliver(ctx context.Context, records []model.Record, run *model.BatchRun, session *model.Session) (*Report, error) {
	ctx, end := e.tracer.StartSpan(ctx, "datalake.deliver", map[string]interface{}{"batch_run_id": run.ID(), "records": len(records)})
	defer end()

	chunks := model.SplitIntoChunks(records, e.cfg.ChunkSize, run.ID(), e.now())
	report := &Report{BatchRunID: run.ID(), Records: len(records), Chunks: len(chunks)}

	payloads, err := e.serializeAll(chunks)
	if err != nil {
		for i := range chunks {
			report.FailedChunks = append(report.FailedChunks, i)
		}
		report.Err = err
		e.tracer.RecordError(ctx, "delivery", err)
		logger.Errorf("Delivery for %s aborted before dispatch: %v", report.BatchRunID, err)
		return report, err
	}

	results := make([]chunkResult, len(chunks))
	// A plain group: one failed chunk must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(e.cfg.MaxConcurrency)
	for i := range chunks {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			// g.Go blocks until a slot is free; the run may have been cancelled meanwhile.
			if ctx.Err() != nil {
				return nil
			}
			results[i] = e.deliverChunk(ctx, &chunks[i], payloads[i], session)
			return nil
		})
	}
	_ = g.Wait()

	var merr *multierror.Error
	for i, res := range results {
		if res.dispatched {
			report.Dispatched++
		} else {
			res.err = fmt.Errorf("chunk %d: %w", i, ErrNotDispatched)
		}
		if res.delivered {
			report.Delivered++
			continue
		}
		report.FailedChunks = append(report.FailedChunks, i)
		merr = multierror.Append(merr, res.err)
	}
	report.Err = merr.ErrorOrNil()

	if report.OK() {
		logger.Infof("Sent %d records in %d chunks for %s", report.Records, report.Chunks, report.BatchRunID)
		return report, nil
	}
	e.tracer.RecordError(ctx, "delivery", report.Err)
	logger.Errorf("Delivery for %s incomplete: %d of %d chunks failed (%d not dispatched)",
		report.BatchRunID, report.Failed(), report.Chunks, report.Chunks-report.Dispatched)
	return report, report.Err
}

// serializeAll encodes every chunk up front. A failure is a programmer error and fatal.
func (e *Engine) serializeAll(chunks []model.Chunk) ([][]byte, error) {
	payloads := make([][]byte, len(chunks))
	for i := range chunks {
		payload, err := e.serializer.Serialize(chunks[i].Records)
		if err != nil {
			return nil, exception.NewChunkSerializationError(chunks[i].Index, err)
		}
		payloads[i] = payload
	}
	return payloads, nil
}

func (e *Engine) deliverChunk(ctx context.Context, chunk *model.Chunk, payload []byte, session *model.Session) chunkResult {
	start := e.now()
	e.recorder.RecordChunkStart(ctx, chunk)
	ctx, end := e.tracer.StartSpan(ctx, "datalake.chunk", map[string]interface{}{
		"chunk_index": chunk.Index,
		"request_id":  chunk.RequestID,
		"records":     len(chunk.Records),
	})
	defer end()

	res := e.uploadWithRetry(ctx, chunk, payload, session)

	outcome := metrics.OutcomeSuccess
	switch {
	case res.delivered:
		logger.Debugf("Chunk %d (%d records, request %s) delivered after %d attempt(s)", chunk.Index, len(chunk.Records), chunk.RequestID, res.attempts)
	case errors.Is(res.err, exception.ErrChunkRejected):
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeFailure
	}
	if !res.delivered {
		e.tracer.RecordError(ctx, "delivery", res.err)
		logger.Errorf("Chunk %d (request %s) failed after %d attempt(s): %v", chunk.Index, chunk.RequestID, res.attempts, res.err)
	}
	e.recorder.RecordChunkEnd(ctx, chunk, outcome, res.attempts, e.now().Sub(start))
	return res
}

func (e *Engine) uploadWithRetry(ctx context.Context, chunk *model.Chunk, payload []byte, session *model.Session) chunkResult {
	res := chunkResult{dispatched: true}
	retryer := retry.NewRetryer(fmt.Sprintf("chunk %d", chunk.Index), e.policy, e.sleeper)
	err := retryer.Do(ctx, func(ctx context.Context, attempt int) error {
		res.attempts = attempt
		if attempt > 1 {
			e.recorder.RecordChunkRetry(ctx, exception.ChunkTransportError)
			e.tracer.RecordEvent(ctx, "retry", map[string]interface{}{"attempt": attempt})
		}
		// The token is read per attempt; the request id stays fixed across attempts.
		parts := []client.Part{
			{Name: "apikey", Value: session.Token()},
			{Name: "dictionaryVersion", Value: e.cfg.DictionaryVersion},
			{Name: "dataFormat", Value: "JSON"},
			{Name: "requestId", Value: chunk.RequestID},
			{Name: "batchRunId", Value: chunk.BatchRunID},
			{Name: "data", Value: string(payload)},
		}
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.HTTPTimeout())
		defer cancel()
		_, err := e.api.PostMultipart(reqCtx, DataPointPath, parts)
		switch {
		case err == nil:
			return nil
		case exception.StatusCodeOf(err) != 0:
			return exception.NewChunkRejected(chunk.Index, err)
		default:
			return exception.NewChunkTransportError(chunk.Index, err)
		}
	})
	res.delivered = err == nil
	res.err = err
	return res
}
