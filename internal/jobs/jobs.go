// Package jobs implements the background processing path the ingest
// dispatch rule hands off to when a payload is too large to process
// inline: a background_jobs table and a single polling worker that
// re-runs the same parse/validate/batch-insert pipeline the inline
// path uses, notifying a configured webhook on completion.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"go.healthexport.dev/ingest/internal/batch"
	"go.healthexport.dev/ingest/internal/config"
	"go.healthexport.dev/ingest/internal/metric"
	"go.healthexport.dev/ingest/internal/payload"
	"go.healthexport.dev/ingest/log"
	"go.healthexport.dev/ingest/pg"
)

// Status is a background job's lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Job mirrors one background_jobs row.
type Job struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	RawIngestionID uuid.UUID
	MetricCount    int
	Status         Status
	Error          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CacheInvalidator drops a user's cached query results once a
// background job lands new samples.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID uuid.UUID)
}

// WebhookNotifier posts a job's completion payload to a configured
// URL. Implemented by HTTPNotifier over the httpclient package's
// pooled client; kept as a
// narrow interface so tests don't need a live HTTP server.
type WebhookNotifier interface {
	Notify(ctx context.Context, url string, job Job) error
}

// Worker polls background_jobs for pending rows and runs each one
// through the same parse/validate/batch pipeline the inline ingest
// path uses.
type Worker struct {
	conn          *pg.Client
	processor     *payload.Processor
	executor      *batch.Executor
	validationCfg *config.ValidationConfig
	notifier      WebhookNotifier
	webhookURL    string
	invalidator   CacheInvalidator
	pollInterval  time.Duration
	logger        *log.Logger

	startOnce sync.Once
}

// Option configures a Worker.
type Option func(*Worker)

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.pollInterval = d }
}

func WithWebhook(notifier WebhookNotifier, url string) Option {
	return func(w *Worker) {
		w.notifier = notifier
		w.webhookURL = url
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithCacheInvalidator(inv CacheInvalidator) Option {
	return func(w *Worker) { w.invalidator = inv }
}

// NewWorker builds a Worker backed by conn, reusing the same processor
// and executor instances the inline ingest path uses.
func NewWorker(conn *pg.Client, processor *payload.Processor, executor *batch.Executor, validationCfg *config.ValidationConfig, options ...Option) *Worker {
	w := &Worker{
		conn:          conn,
		processor:     processor,
		executor:      executor,
		validationCfg: validationCfg,
		pollInterval:  2 * time.Second,
		logger:        log.NewLogger(),
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Enqueue inserts a pending background_jobs row. It implements
// internal/ingest.JobEnqueuer.
func (w *Worker) Enqueue(ctx context.Context, userID, rawID uuid.UUID, metricCount int) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()

	err := w.conn.WithConn(ctx, func(conn pg.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO background_jobs (id, user_id, raw_ingestion_id, metric_count, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
		`, id, userID, rawID, metricCount, StatusPending, now)
		return err
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("jobs: enqueue: %w", err)
	}

	return id, nil
}

// Run starts the polling loop. It blocks until ctx is cancelled; the
// caller runs it in its own goroutine. Safe to call once.
func (w *Worker) Run(ctx context.Context) {
	w.startOnce.Do(func() {
		w.runPollLoop(ctx)
	})
}

func (w *Worker) runPollLoop(ctx context.Context) {
	w.logger.InfoCtx(ctx, "starting background job worker", log.Duration("poll_interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoCtx(ctx, "stopping background job worker")
			return
		case <-ticker.C:
			w.drainPending(ctx)
		}
	}
}

// drainPending processes every pending job it can claim in one pass,
// rather than waiting for the next tick per job.
func (w *Worker) drainPending(ctx context.Context) {
	for {
		job, ok, err := w.claimNext(ctx)
		if err != nil {
			w.logger.ErrorCtx(ctx, "claim next background job failed", log.Error(err))
			return
		}
		if !ok {
			return
		}
		w.process(ctx, job)
	}
}

func (w *Worker) claimNext(ctx context.Context) (Job, bool, error) {
	var job Job

	err := w.conn.WithTx(ctx, func(conn pg.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT id, user_id, raw_ingestion_id, metric_count
			FROM background_jobs
			WHERE status = $1
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, StatusPending)

		if err := row.Scan(&job.ID, &job.UserID, &job.RawIngestionID, &job.MetricCount); err != nil {
			return err
		}

		_, err := conn.Exec(ctx, `UPDATE background_jobs SET status = $1, updated_at = $2 WHERE id = $3`,
			StatusRunning, time.Now().UTC(), job.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, false, nil
		}
		return Job{}, false, err
	}

	job.Status = StatusRunning
	return job, true, nil
}

func (w *Worker) process(ctx context.Context, job Job) {
	outcome := w.run(ctx, job)

	status := StatusDone
	var errMsg *string
	if outcome != nil {
		status = StatusError
		msg := outcome.Error()
		errMsg = &msg
		w.logger.ErrorCtx(ctx, "background job failed", log.String("job_id", job.ID.String()), log.Error(outcome))
	}

	if err := w.conn.WithConn(ctx, func(conn pg.Conn) error {
		_, err := conn.Exec(ctx, `UPDATE background_jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
			status, errMsg, time.Now().UTC(), job.ID)
		return err
	}); err != nil {
		w.logger.ErrorCtx(ctx, "failed to record background job outcome", log.Error(err))
	}

	rawStatus := "processed"
	var rawErrs []string
	if status == StatusError {
		rawStatus = "error"
		rawErrs = append(rawErrs, *errMsg)
	}
	if err := w.processor.RecordOutcome(ctx, job.RawIngestionID, rawStatus, rawErrs); err != nil {
		w.logger.WarnCtx(ctx, "failed to record raw ingestion outcome",
			log.String("raw_id", job.RawIngestionID.String()), log.Error(err))
	}

	if w.invalidator != nil && status == StatusDone {
		w.invalidator.InvalidateUser(ctx, job.UserID)
	}

	job.Status = status
	job.Error = errMsg
	w.notify(ctx, job)
}

func (w *Worker) run(ctx context.Context, job Job) error {
	raw, err := w.loadRawPayload(ctx, job.RawIngestionID)
	if err != nil {
		return fmt.Errorf("load raw payload: %w", err)
	}

	metrics, _, err := w.processor.ParseOnly(job.UserID, raw)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	valid := make([]metric.Metric, 0, len(metrics))
	for _, m := range metrics {
		if err := m.Validate(w.validationCfg); err == nil {
			valid = append(valid, m)
		}
	}

	result := w.executor.Execute(ctx, valid)
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d families failed: %v", len(result.Errors), result.Errors)
	}

	return nil
}

func (w *Worker) loadRawPayload(ctx context.Context, rawID uuid.UUID) ([]byte, error) {
	var payloadBytes []byte
	err := w.conn.WithConn(ctx, func(conn pg.Conn) error {
		return conn.QueryRow(ctx, `SELECT payload FROM raw_ingestions WHERE id = $1`, rawID).Scan(&payloadBytes)
	})
	return payloadBytes, err
}

func (w *Worker) notify(ctx context.Context, job Job) {
	if w.notifier == nil || w.webhookURL == "" {
		return
	}
	if err := w.notifier.Notify(ctx, w.webhookURL, job); err != nil {
		w.logger.WarnCtx(ctx, "webhook notification failed", log.String("job_id", job.ID.String()), log.Error(err))
	}
}
