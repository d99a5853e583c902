// Package batch groups a processed payload's metrics by family,
// deduplicates and chunks them, and bulk-upserts each chunk under
// bounded per-family concurrency.
package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"go.healthexport.dev/ingest/internal/metric"
	"go.healthexport.dev/ingest/log"
	"go.healthexport.dev/ingest/pg"
)

// FamilyError records one family's processing failure, collected
// rather than aborting sibling families: one family's failure never
// aborts the others.
type FamilyError struct {
	Family  metric.Family
	Message string
}

func (e FamilyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Family, e.Message)
}

// Result is the batch executor's output.
type Result struct {
	ProcessedCount int
	FailedCount    int
	DroppedCount   int
	Errors         []FamilyError
}

// Config controls chunk sizing and concurrency.
type Config struct {
	ChunkSize             int
	MaxConcurrentFamilies int
	DeduplicateIntraBatch bool

	// DualWriteActivity mirrors every activity chunk into the legacy
	// activity table inside the same transaction, as a migration aid.
	// Off by default; a rollback on either side rolls back both.
	DualWriteActivity bool
}

// DefaultConfig matches the original ingest pipeline's defaults.
var DefaultConfig = Config{ChunkSize: 5000, MaxConcurrentFamilies: 4, DeduplicateIntraBatch: true}

// Dual-write source and target tables.
const (
	activityTable       = "activity_metrics"
	legacyActivityTable = "activity_metrics_legacy"
)

// Executor runs the batch insert protocol against a pg.Client.
type Executor struct {
	conn   *pg.Client
	config Config
	logger *log.Logger

	dualWriteErrors prometheus.Counter
}

// Option configures an Executor.
type Option func(*Executor)

func WithConfig(cfg Config) Option {
	return func(e *Executor) { e.config = cfg }
}

func WithLogger(logger *log.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor builds an Executor over conn.
func NewExecutor(conn *pg.Client, options ...Option) *Executor {
	e := &Executor{conn: conn, config: DefaultConfig, logger: log.NewLogger()}

	e.dualWriteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "batch",
		Name:      "dual_write_consistency_errors_total",
		Help:      "Activity chunks rolled back because the legacy-table mirror write failed.",
	})
	if err := prometheus.DefaultRegisterer.Register(e.dualWriteErrors); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			e.dualWriteErrors = are.ExistingCollector.(prometheus.Counter)
		}
	}

	for _, opt := range options {
		opt(e)
	}
	return e
}

// ChunkHint lets the caller narrow a family's chunk size while the
// insert loop runs, typically as the request's processing budget
// shrinks. Hints never widen a chunk past its configured size and
// never past the bound-parameter ceiling.
type ChunkHint func(base int) int

// Execute groups metrics by family and runs each family's insert
// chunks, up to MaxConcurrentFamilies families at a time. Chunks
// within one family run serially, preserving the upsert ordering
// the coalescing conflict clause depends on.
func (e *Executor) Execute(ctx context.Context, metrics []metric.Metric) Result {
	return e.ExecuteHinted(ctx, metrics, nil)
}

// ExecuteHinted is Execute with a chunk-size hint consulted before
// every chunk.
func (e *Executor) ExecuteHinted(ctx context.Context, metrics []metric.Metric, hint ChunkHint) Result {
	grouped := groupByFamily(metrics)

	var (
		mu     sync.Mutex
		result Result
	)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.config.MaxConcurrentFamilies)

	for family, familyMetrics := range grouped {
		family, familyMetrics := family, familyMetrics
		group.Go(func() error {
			processed, dropped, err := e.executeFamily(gctx, family, familyMetrics, hint)

			mu.Lock()
			defer mu.Unlock()
			result.ProcessedCount += processed
			result.DroppedCount += dropped
			if err != nil {
				result.FailedCount++
				result.Errors = append(result.Errors, FamilyError{Family: family, Message: err.Error()})
			}
			return nil // per-family failures are recorded, not propagated
		})
	}

	_ = group.Wait()

	return result
}

func (e *Executor) executeFamily(ctx context.Context, family metric.Family, metrics []metric.Metric, hint ChunkHint) (processed, dropped int, err error) {
	spec, ok := registry[family]
	if !ok {
		return 0, 0, fmt.Errorf("no table mapping for family %q", family)
	}

	if e.config.DeduplicateIntraBatch {
		deduped := dedupe(family, metrics)
		metrics = deduped.metrics
		dropped = deduped.dropped
	}

	chunkSize := chunkSizeFor(spec, e.config.ChunkSize)

	return e.insertChunks(ctx, spec, metrics, chunkSize, dropped, hint)
}

func (e *Executor) insertChunks(ctx context.Context, spec tableSpec, metrics []metric.Metric, chunkSize, dropped int, hint ChunkHint) (int, int, error) {
	processed := 0

	for start := 0; start < len(metrics); {
		if err := ctx.Err(); err != nil {
			return processed, dropped, err // cancellation honored at chunk boundaries
		}

		step := chunkSize
		if hint != nil {
			if h := hint(chunkSize); h > 0 && h < step {
				step = h
			}
		}

		end := start + step
		if end > len(metrics) {
			end = len(metrics)
		}
		chunk := metrics[start:end]

		if err := e.insertChunk(ctx, spec, chunk); err != nil {
			return processed, dropped, err
		}
		processed += len(chunk)
		start = end
	}

	return processed, dropped, nil
}

func (e *Executor) insertChunk(ctx context.Context, spec tableSpec, chunk []metric.Metric) error {
	query := buildInsert(spec, len(chunk))

	args := make([]any, 0, len(chunk)*spec.ParamsPerRow())
	for _, m := range chunk {
		args = append(args, spec.ExtractRow(m)...)
	}

	if e.config.DualWriteActivity && spec.Table == activityTable {
		return e.insertChunkDualWrite(ctx, spec, query, args, len(chunk))
	}

	return e.conn.WithConn(ctx, func(conn pg.Conn) error {
		_, err := conn.Exec(ctx, query, args...)
		return err
	})
}

// insertChunkDualWrite writes one activity chunk to both the canonical
// and the legacy table in a single transaction: a failure on either
// side rolls back both, keeping the two tables consistent while the
// migration runs.
func (e *Executor) insertChunkDualWrite(ctx context.Context, spec tableSpec, query string, args []any, rows int) error {
	legacySpec := spec
	legacySpec.Table = legacyActivityTable
	legacyQuery := buildInsert(legacySpec, rows)

	err := e.conn.WithTx(ctx, func(conn pg.Conn) error {
		if _, err := conn.Exec(ctx, query, args...); err != nil {
			return err
		}
		_, err := conn.Exec(ctx, legacyQuery, args...)
		return err
	})
	if err != nil {
		e.dualWriteErrors.Inc()
	}
	return err
}

func groupByFamily(metrics []metric.Metric) map[metric.Family][]metric.Metric {
	grouped := make(map[metric.Family][]metric.Metric)
	for _, m := range metrics {
		grouped[m.Family()] = append(grouped[m.Family()], m)
	}
	return grouped
}
