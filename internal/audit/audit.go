// Package audit appends authentication and ingestion events to the
// audit log. Emit is fire-and-forget, so the request never blocks on
// audit durability; Await is a bounded synchronous form for call
// sites that want the write confirmed.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"go.healthexport.dev/ingest/log"
	"go.healthexport.dev/ingest/pg"
)

// Event is one append-only audit log entry.
type Event struct {
	ID           uuid.UUID
	UserID       *uuid.UUID
	CredentialID *uuid.UUID
	Action       string
	Resource     string
	ClientIP     string
	UserAgent    string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// Writer appends Events to the audit_log table.
type Writer struct {
	conn         *pg.Client
	logger       *log.Logger
	awaitTimeout time.Duration
}

// Option configures a Writer.
type Option func(*Writer)

func WithLogger(logger *log.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// WithAwaitTimeout bounds how long Await will wait for a write before
// giving up and logging the failure instead of blocking the caller
// indefinitely.
func WithAwaitTimeout(d time.Duration) Option {
	return func(w *Writer) { w.awaitTimeout = d }
}

// NewWriter builds a Writer backed by conn.
func NewWriter(conn *pg.Client, options ...Option) *Writer {
	w := &Writer{conn: conn, logger: log.NewLogger(), awaitTimeout: 2 * time.Second}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Emit implements internal/auth.EventEmitter: it writes the event in
// the background and never returns an error to the caller. The
// resolver sends every authentication outcome, success or failure,
// through it.
func (w *Writer) Emit(ctx context.Context, eventType string, metadata map[string]any) {
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		event := eventFromMetadata(eventType, metadata)
		if err := w.insert(bgCtx, event); err != nil {
			w.logger.Warn("audit write failed",
				log.String("action", eventType),
				log.Error(err),
			)
		}
	}()
}

// Await writes event synchronously, bounded by the Writer's
// awaitTimeout, for call sites that need the strong form.
func (w *Writer) Await(ctx context.Context, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, w.awaitTimeout)
	defer cancel()

	if err := w.insert(ctx, event); err != nil {
		w.logger.Warn("audit write failed",
			log.String("action", event.Action),
			log.Error(err),
		)
		return err
	}
	return nil
}

func (w *Writer) insert(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	return w.conn.WithConn(ctx, func(conn pg.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO audit_log (id, user_id, credential_id, action, resource, client_ip, user_agent, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, event.ID, event.UserID, event.CredentialID, event.Action, event.Resource, event.ClientIP, event.UserAgent, event.Metadata, event.CreatedAt)
		return err
	})
}

func eventFromMetadata(eventType string, metadata map[string]any) Event {
	event := Event{Action: eventType, Metadata: metadata}

	if resource, ok := metadata["resource"].(string); ok {
		event.Resource = resource
	}
	if clientIP, ok := metadata["client_ip"].(string); ok {
		event.ClientIP = clientIP
	}
	if userAgent, ok := metadata["user_agent"].(string); ok {
		event.UserAgent = userAgent
	}
	if userID, ok := metadata["user_id"].(uuid.UUID); ok {
		event.UserID = &userID
	}
	if credentialID, ok := metadata["credential_id"].(uuid.UUID); ok {
		event.CredentialID = &credentialID
	}

	return event
}
