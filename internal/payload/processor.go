// Package payload turns a raw ingest request body into validated
// canonical metrics: a size gate, a byte-level structural safety
// scan, dual-dialect JSON parsing with path-aware diagnostics, unit
// normalization, and SHA-256 content-addressed archival.
package payload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go.healthexport.dev/ingest/internal/metric"
	"go.healthexport.dev/ingest/log"
	"go.healthexport.dev/ingest/pg"
)

// Config bounds payload processing. Kept as a plain struct since
// every field has a single, independent default and no field depends
// on another at construction time.
type Config struct {
	MaxPayloadBytes int64
	ParseTimeout    time.Duration
	Safety          SafetyConfig
}

// DefaultConfig matches the limits the original ingest pipeline
// shipped with.
var DefaultConfig = Config{
	MaxPayloadBytes: 200 * 1024 * 1024,
	ParseTimeout:    10 * time.Second,
	Safety:          DefaultSafetyConfig,
}

// Result is the processor's output: the metrics and workouts the
// batch executor will validate and persist, plus the raw-ingestion
// archival id.
type Result struct {
	UserID  uuid.UUID
	Metrics []metric.Metric
	RawID   uuid.UUID
	Skipped []ProcessingError
}

// Processor wires the size/safety/parse/normalize pipeline together.
type Processor struct {
	config Config
	conn   *pg.Client
	logger *log.Logger
}

// Option configures a Processor.
type Option func(*Processor)

func WithConfig(cfg Config) Option {
	return func(p *Processor) { p.config = cfg }
}

func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// NewProcessor builds a Processor backed by conn for archival.
func NewProcessor(conn *pg.Client, options ...Option) *Processor {
	p := &Processor{config: DefaultConfig, conn: conn, logger: log.NewLogger()}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Process runs the full pipeline against raw, attributing every
// resulting metric to userID and the archived row to credentialID.
func (p *Processor) Process(ctx context.Context, userID, credentialID uuid.UUID, raw []byte) (*Result, error) {
	if int64(len(raw)) > p.config.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds maximum of %d", ErrPayloadTooLarge, len(raw), p.config.MaxPayloadBytes)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrStructuralUnsafe)
	}

	if err := checkStructuralSafety(raw, p.config.Safety); err != nil {
		return nil, err
	}

	metrics, skipped, err := p.parseWithTimeout(ctx, userID, raw)
	if err != nil {
		return nil, err
	}

	rawID, err := p.archive(ctx, userID, credentialID, raw)
	if err != nil {
		return nil, fmt.Errorf("payload: archive raw ingestion: %w", err)
	}

	return &Result{UserID: userID, Metrics: metrics, RawID: rawID, Skipped: skipped}, nil
}

// ParseOnly runs dialect parsing and mapping without the size/safety
// gates or archival, for callers (the background job worker) that
// already hold an archived, previously size/safety-checked payload.
func (p *Processor) ParseOnly(userID uuid.UUID, raw []byte) ([]metric.Metric, []ProcessingError, error) {
	return parseWithFallback(userID, raw)
}

func (p *Processor) parseWithTimeout(ctx context.Context, userID uuid.UUID, raw []byte) ([]metric.Metric, []ProcessingError, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.ParseTimeout)
	defer cancel()

	type parseOutcome struct {
		metrics []metric.Metric
		skipped []ProcessingError
		err     error
	}
	done := make(chan parseOutcome, 1)

	go func() {
		metrics, skipped, err := parseWithFallback(userID, raw)
		done <- parseOutcome{metrics, skipped, err}
	}()

	select {
	case outcome := <-done:
		return outcome.metrics, outcome.skipped, outcome.err
	case <-ctx.Done():
		return nil, nil, ErrParseTimeout
	}
}

// parseWithFallback attempts dialect A first (mobile export), falling
// back to dialect B (internal/canonical) on failure, matching
// payload_processor.rs's parse_with_fallback ordering.
func parseWithFallback(userID uuid.UUID, raw []byte) ([]metric.Metric, []ProcessingError, error) {
	var a DialectA
	pathA, errA := decodeWithPath(raw, &a)
	if errA == nil {
		var probe struct {
			Data json.RawMessage `json:"data"`
		}
		if json.Unmarshal(raw, &probe) == nil && probe.Data == nil {
			errA = fmt.Errorf("missing required field \"data\"")
			pathA = "/"
		}
	}
	if errA == nil {
		metrics, skipped := mapDialectA(userID, a)
		return metrics, skipped, nil
	}

	var b DialectB
	pathB, errB := decodeWithPath(raw, &b)
	if errB == nil {
		metrics, skipped := mapDialectB(userID, b)
		return metrics, skipped, nil
	}

	return nil, nil, &DialectParseError{
		DialectAErr: errA, DialectAPath: pathA,
		DialectBErr: errB, DialectBPath: pathB,
	}
}

// archive serializes raw as canonical JSON, hashes it, and inserts it
// idempotently into the raw-ingestion table, returning the existing
// row's id on a duplicate (user_id, hash) pair.
func (p *Processor) archive(ctx context.Context, userID, credentialID uuid.UUID, raw []byte) (uuid.UUID, error) {
	canonical, err := canonicalizeJSON(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("canonicalize payload: %w", err)
	}

	sum := sha256.Sum256(canonical)
	hash := hex.EncodeToString(sum[:])

	var keyID *uuid.UUID
	if credentialID != uuid.Nil {
		keyID = &credentialID
	}

	var id uuid.UUID
	err = p.conn.WithTx(ctx, func(conn pg.Conn) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO raw_ingestions (id, user_id, api_key_id, hash, payload, payload_size_bytes, status)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending')
			ON CONFLICT (user_id, hash) DO NOTHING
			RETURNING id
		`, uuid.New(), userID, keyID, hash, canonical, len(canonical))

		if scanErr := row.Scan(&id); scanErr == nil {
			return nil
		}

		return conn.QueryRow(ctx, `
			SELECT id FROM raw_ingestions WHERE user_id = $1 AND hash = $2
		`, userID, hash).Scan(&id)
	})
	if err != nil {
		return uuid.Nil, err
	}

	return id, nil
}

// RecordOutcome mutates an archived row once processing concludes:
// the terminal status, any per-family error messages, and the
// processed stamp. The ingest coordinator and the background worker
// call it once a payload's processing ends.
func (p *Processor) RecordOutcome(ctx context.Context, rawID uuid.UUID, status string, errs []string) error {
	var encoded []byte
	if len(errs) > 0 {
		var err error
		encoded, err = json.Marshal(errs)
		if err != nil {
			return fmt.Errorf("payload: encode outcome errors: %w", err)
		}
	}

	return p.conn.WithConn(ctx, func(conn pg.Conn) error {
		_, err := conn.Exec(ctx, `
			UPDATE raw_ingestions
			SET status = $1, errors = $2, processed_at = $3
			WHERE id = $4
		`, status, encoded, time.Now().UTC(), rawID)
		return err
	})
}

// canonicalizeJSON re-marshals raw through a generic map so that key
// order and whitespace are normalized before hashing — two
// byte-distinct payloads that deserialize identically must archive to
// the same hash.
func canonicalizeJSON(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
