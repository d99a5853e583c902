// Package ingest provides the single entry point every ingest-capable
// HTTP route calls into: where the original system had five
// near-duplicate handlers (synchronous, async, "simple async",
// "optimized", and a streaming variant), this package collapses them
// into one Coordinator whose Async option selects the dispatch path.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go.healthexport.dev/ingest/internal/auth"
	"go.healthexport.dev/ingest/internal/batch"
	"go.healthexport.dev/ingest/internal/config"
	"go.healthexport.dev/ingest/internal/metric"
	"go.healthexport.dev/ingest/internal/payload"
	"go.healthexport.dev/ingest/internal/timeout"
	"go.healthexport.dev/ingest/log"
)

// JobEnqueuer abstracts handing a payload off to the background
// worker, kept narrow so this package doesn't need to import
// internal/jobs directly.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, userID, rawID uuid.UUID, metricCount int) (uuid.UUID, error)
}

// ValidationError pairs a metric that failed family-specific
// validation with the reason, surfaced to the caller without being
// sent to the batch executor.
type ValidationError struct {
	Family metric.Family
	Reason string
}

// Result is what Coordinator.Ingest returns to its HTTP caller.
type Result struct {
	RawID            uuid.UUID
	Status           timeout.Status
	ProcessedCount   int
	FailedCount      int
	DroppedCount     int
	SkippedParsing   []payload.ProcessingError
	ValidationErrors []ValidationError
	BatchErrors      []batch.FamilyError
	JobID            *uuid.UUID
}

// Options configures one Ingest call.
type Options struct {
	// Async forces background-job dispatch regardless of metric
	// count, for callers that already know the payload is large
	// (e.g. a dedicated async route).
	Async bool

	// ClientIP is the caller's address. The coordinator emits no
	// audit events and does not read it.
	ClientIP string
}

// CacheInvalidator drops a user's cached query results once new
// samples land, kept narrow so this package doesn't import
// internal/cache.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID uuid.UUID)
}

// Coordinator wires the payload processor, validation engine, batch
// executor, and timeout-driven dispatch rule into one operation.
type Coordinator struct {
	processor     *payload.Processor
	executor      *batch.Executor
	validationCfg *config.ValidationConfig
	timeoutCfg    timeout.Config
	jobs          JobEnqueuer
	invalidator   CacheInvalidator
	logger        *log.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithTimeoutConfig(cfg timeout.Config) Option {
	return func(c *Coordinator) { c.timeoutCfg = cfg }
}

func WithJobEnqueuer(jobs JobEnqueuer) Option {
	return func(c *Coordinator) { c.jobs = jobs }
}

func WithCacheInvalidator(inv CacheInvalidator) Option {
	return func(c *Coordinator) { c.invalidator = inv }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// NewCoordinator builds a Coordinator over the given processor,
// executor, and validation config.
func NewCoordinator(processor *payload.Processor, executor *batch.Executor, validationCfg *config.ValidationConfig, options ...Option) *Coordinator {
	c := &Coordinator{
		processor:     processor,
		executor:      executor,
		validationCfg: validationCfg,
		timeoutCfg:    timeout.DefaultConfig,
		logger:        log.NewLogger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Ingest runs the full pipeline for one request: parse and archive the
// payload, validate every metric, then either dispatch to a background
// job or execute inline under the processing time budget, per the
// size-based dispatch rule.
func (c *Coordinator) Ingest(ctx context.Context, authCtx auth.Context, body []byte, opts Options) (*Result, error) {
	now := time.Now()
	manager := timeout.New(c.timeoutCfg, now, c.logger)

	processed, err := c.processor.Process(ctx, authCtx.User.ID, authCtx.Credential.ID, body)
	if err != nil {
		return nil, fmt.Errorf("ingest: process payload: %w", err)
	}

	valid, validationErrors := c.validate(processed.Metrics)

	result := &Result{
		RawID:            processed.RawID,
		SkippedParsing:   processed.Skipped,
		ValidationErrors: validationErrors,
	}

	decision := manager.Dispatch(len(valid))
	if opts.Async || decision.Background {
		return c.dispatchBackground(ctx, authCtx.User.ID, processed.RawID, valid, result, decision)
	}

	return c.executeInline(ctx, manager, authCtx.User.ID, valid, result)
}

func (c *Coordinator) validate(metrics []metric.Metric) ([]metric.Metric, []ValidationError) {
	valid := make([]metric.Metric, 0, len(metrics))
	var errs []ValidationError

	for _, m := range metrics {
		if err := m.Validate(c.validationCfg); err != nil {
			errs = append(errs, ValidationError{Family: m.Family(), Reason: err.Error()})
			continue
		}
		valid = append(valid, m)
	}

	return valid, errs
}

func (c *Coordinator) dispatchBackground(ctx context.Context, userID, rawID uuid.UUID, metrics []metric.Metric, result *Result, decision timeout.Decision) (*Result, error) {
	if c.jobs == nil {
		return nil, errors.New("ingest: background dispatch required but no job enqueuer configured")
	}

	jobID, err := c.jobs.Enqueue(ctx, userID, rawID, len(metrics))
	if err != nil {
		return nil, fmt.Errorf("ingest: enqueue background job: %w", err)
	}

	result.JobID = &jobID
	result.Status = timeout.BackgroundRecommended(decision.Reason)
	return result, nil
}

func (c *Coordinator) executeInline(ctx context.Context, manager *timeout.Manager, userID uuid.UUID, metrics []metric.Metric, result *Result) (*Result, error) {
	budgetCtx, cancel := manager.WithBudget(ctx, time.Now())
	defer cancel()

	batchResult := c.executor.ExecuteHinted(budgetCtx, metrics, func(base int) int {
		return manager.GetOptimalChunkSize(time.Now(), base)
	})

	result.ProcessedCount = batchResult.ProcessedCount
	result.FailedCount = batchResult.FailedCount
	result.DroppedCount = batchResult.DroppedCount
	result.BatchErrors = batchResult.Errors

	now := time.Now()
	manager.LogFinalStats(now, userID, result.ProcessedCount, result.FailedCount)

	switch {
	case errors.Is(budgetCtx.Err(), context.DeadlineExceeded):
		result.Status = timeout.Timeout(result.ProcessedCount, len(metrics))
	case len(result.ValidationErrors) > 0 || result.FailedCount > 0:
		result.Status = timeout.PartialSuccess(fmt.Sprintf("%d validation errors, %d family failures", len(result.ValidationErrors), result.FailedCount))
	default:
		result.Status = timeout.Success()
	}

	c.recordOutcome(ctx, result)

	if c.invalidator != nil && result.ProcessedCount > 0 {
		c.invalidator.InvalidateUser(ctx, userID)
	}

	return result, nil
}

// recordOutcome closes the archived raw row's lifecycle with the
// request's terminal status and error list. A recording failure never
// fails the request itself; the samples are already durable.
func (c *Coordinator) recordOutcome(ctx context.Context, result *Result) {
	var (
		status string
		errs   []string
	)

	switch result.Status.Kind() {
	case timeout.StatusTimeout:
		status = "error"
		errs = append(errs, "processing timeout - requires background processing")
	case timeout.StatusPartialSuccess:
		status = "partial_success"
	default:
		status = "processed"
	}

	for _, ve := range result.ValidationErrors {
		errs = append(errs, fmt.Sprintf("%s: %s", ve.Family, ve.Reason))
	}
	for _, be := range result.BatchErrors {
		errs = append(errs, fmt.Sprintf("%s: %s", be.Family, be.Message))
	}

	if err := c.processor.RecordOutcome(ctx, result.RawID, status, errs); err != nil {
		c.logger.WarnCtx(ctx, "ingest: failed to record raw ingestion outcome",
			log.String("raw_id", result.RawID.String()), log.Error(err))
	}
}
