// Package query implements the paginated per-family reads and the
// cross-family summary, cache-read-through when Redis is configured.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go.healthexport.dev/ingest/internal/batch"
	"go.healthexport.dev/ingest/internal/cache"
	"go.healthexport.dev/ingest/internal/metric"
	"go.healthexport.dev/ingest/log"
	"go.healthexport.dev/ingest/pg"
)

// Params filters and paginates one family's query.
type Params struct {
	Family    metric.Family
	UserID    uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
	Ascending bool
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

func (p Params) normalized() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Pagination describes one page's position within a result set.
type Pagination struct {
	Page    int
	Limit   int
	HasNext bool
	HasPrev bool
}

// Page is one family's paginated query result.
type Page struct {
	Rows       []map[string]any
	Pagination Pagination
	TotalCount int64
}

// Engine runs per-family reads and the cross-family summary against
// Postgres, cache-read-through when a Cache is configured.
type Engine struct {
	conn   *pg.Client
	cache  *cache.Cache
	logger *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine builds an Engine over conn.
func NewEngine(conn *pg.Client, options ...Option) *Engine {
	e := &Engine{conn: conn, logger: log.NewLogger()}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Query runs one family's paginated, filtered read, serving from
// cache when available (10 minute point-query TTL).
func (e *Engine) Query(ctx context.Context, params Params) (*Page, error) {
	params = params.normalized()

	table, ok := batch.TableFor(params.Family)
	if !ok {
		return nil, fmt.Errorf("query: unknown family %q", params.Family)
	}
	tsColumn := batch.RecordedAtColumnFor(params.Family)

	hash := cache.GenerateQueryHash(queryHashParams(params))
	key := cache.QueryKey(params.Family, params.UserID, hash)

	if cached, ok := cache.Get[Page](ctx, e.cache, key); ok {
		return &cached, nil
	}

	page, err := e.queryDB(ctx, table, tsColumn, params)
	if err != nil {
		return nil, err
	}

	cache.Set(ctx, e.cache, key, *page, 10*time.Minute)
	return page, nil
}

func (e *Engine) queryDB(ctx context.Context, table, tsColumn string, params Params) (*Page, error) {
	// Date defaults are resolved here, after the cache key is built
	// from the caller's own parameters: folding a now-derived default
	// into the key would make every date-less query a cache miss.
	end := time.Now().UTC()
	if params.EndDate != nil {
		end = *params.EndDate
	}
	start := end.AddDate(0, 0, -90)
	if params.StartDate != nil {
		start = *params.StartDate
	}

	where := "WHERE user_id = $1"
	args := []any{params.UserID}

	args = append(args, start)
	where += fmt.Sprintf(" AND %s >= $%d", tsColumn, len(args))
	args = append(args, end)
	where += fmt.Sprintf(" AND %s <= $%d", tsColumn, len(args))

	order := "DESC"
	if params.Ascending {
		order = "ASC"
	}

	var total int64
	if err := e.conn.WithConn(ctx, func(conn pg.Conn) error {
		return conn.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s %s", table, where), args...).Scan(&total)
	}); err != nil {
		return nil, fmt.Errorf("query: count %s: %w", table, err)
	}

	offset := (params.Page - 1) * params.Limit
	limitArgs := append(append([]any{}, args...), params.Limit, offset)

	query := fmt.Sprintf(
		"SELECT * FROM %s %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		table, where, tsColumn, order, len(limitArgs)-1, len(limitArgs),
	)

	rows := make([]map[string]any, 0, params.Limit)
	if err := e.conn.WithConn(ctx, func(conn pg.Conn) error {
		result, err := conn.Query(ctx, query, limitArgs...)
		if err != nil {
			return err
		}
		defer result.Close()

		fields := result.FieldDescriptions()
		for result.Next() {
			values, err := result.Values()
			if err != nil {
				return err
			}
			row := make(map[string]any, len(fields))
			for i, f := range fields {
				row[string(f.Name)] = values[i]
			}
			rows = append(rows, row)
		}
		return result.Err()
	}); err != nil {
		return nil, fmt.Errorf("query: select %s: %w", table, err)
	}

	return &Page{
		Rows: rows,
		Pagination: Pagination{
			Page:    params.Page,
			Limit:   params.Limit,
			HasNext: int64(offset+len(rows)) < total,
			HasPrev: params.Page > 1,
		},
		TotalCount: total,
	}, nil
}

func queryHashParams(p Params) map[string]string {
	params := map[string]string{
		"page":      fmt.Sprintf("%d", p.Page),
		"limit":     fmt.Sprintf("%d", p.Limit),
		"ascending": fmt.Sprintf("%t", p.Ascending),
	}
	if p.StartDate != nil {
		params["start_date"] = p.StartDate.Format(time.RFC3339)
	}
	if p.EndDate != nil {
		params["end_date"] = p.EndDate.Format(time.RFC3339)
	}
	return params
}
