package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"go.healthexport.dev/ingest/log"
	"go.healthexport.dev/ingest/ratelimit"
)

// Store abstracts the credential/user lookups the resolver needs, so
// tests can substitute an in-memory fake instead of a live Postgres
// connection.
type Store interface {
	// CredentialByID loads a credential and its owning user by
	// primary key, for the UUID-direct auth path.
	CredentialByID(ctx context.Context, id uuid.UUID) (Credential, User, error)

	// ActiveCredentials enumerates candidate credentials — active,
	// unexpired, belonging to an active user — for the hashed-secret
	// auth path. Order is unspecified; the resolver returns on first
	// verified match.
	ActiveCredentials(ctx context.Context) ([]CredentialRow, error)

	// TouchLastUsed best-effort-updates a credential's last_used_at.
	// Errors are logged by the caller, never propagated to the
	// resolution result.
	TouchLastUsed(ctx context.Context, credentialID uuid.UUID, at time.Time) error
}

// CredentialRow pairs a credential with its owning user, the shape
// ActiveCredentials' join query naturally produces.
type CredentialRow struct {
	Credential Credential
	User       User
}

// EventEmitter is the subset of the audit writer the resolver needs.
// Kept as a narrow local interface (rather than importing
// internal/audit directly) so tests can substitute a fake and the
// auth package does not depend on the audit package.
type EventEmitter interface {
	Emit(ctx context.Context, eventType string, metadata map[string]any)
}

// Resolver implements the credential resolution and outcome
// rules: UUID short-circuit, then enumerate-and-verify, in a fixed
// outcome precedence, with audit emission on every branch and a
// best-effort last-used touch on success.
type Resolver struct {
	store   Store
	limiter *ratelimit.Limiter
	audit   EventEmitter
	cache   *Cache
	logger  *log.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

func WithCache(c *Cache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

func WithLogger(logger *log.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver builds a Resolver over the given store, rate limiter,
// and audit sink.
func NewResolver(store Store, limiter *ratelimit.Limiter, audit EventEmitter, options ...ResolverOption) *Resolver {
	r := &Resolver{store: store, limiter: limiter, audit: audit, logger: log.NewLogger()}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Resolve authenticates a presented secret per the rules above: a
// UUID-parseable secret loads the credential directly (skipping hash
// verification); anything else is checked against every active,
// unexpired candidate's stored hash. sourceIP, when known, is
// consulted through the limiter's per-IP bucket to suppress
// brute-force spray against failed attempts.
func (r *Resolver) Resolve(ctx context.Context, secret, sourceIP string) (Context, error) {
	authCtx, keyType, err := r.resolveCredential(ctx, secret)
	if err != nil {
		r.emitFailure(ctx, err, sourceIP)
		return Context{}, err
	}

	if result, rlErr := r.checkCredentialRate(ctx, authCtx.Credential); rlErr != nil {
		r.emitFailure(ctx, rlErr, sourceIP)
		return Context{}, rlErr
	} else if result != nil && !result.Allowed {
		rlErr := &RateLimitError{
			Limit: result.Limit, Remaining: result.Remaining,
			ResetAt: result.ResetAt, RetryAfter: result.RetryAfter,
		}
		r.emitFailure(ctx, rlErr, sourceIP)
		return Context{}, rlErr
	}

	if err := r.store.TouchLastUsed(ctx, authCtx.Credential.ID, time.Now()); err != nil {
		r.logger.WarnCtx(ctx, "auth: failed to update last_used_at", log.Error(err))
	}

	r.audit.Emit(ctx, "authentication_success", map[string]any{
		"key_type":      keyType,
		"key_name":      authCtx.Credential.Name,
		"user_id":       authCtx.User.ID,
		"credential_id": authCtx.Credential.ID,
		"client_ip":     sourceIP,
	})

	if r.cache != nil {
		r.cache.Put(secret, authCtx)
	}

	return authCtx, nil
}

func (r *Resolver) resolveCredential(ctx context.Context, secret string) (Context, string, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(secret); ok {
			return cached, "cached", nil
		}
	}

	if id, err := uuid.Parse(secret); err == nil {
		credential, user, err := r.store.CredentialByID(ctx, id)
		if err != nil {
			return Context{}, "", ErrInvalidAPIKey
		}
		return r.evaluateOutcome(credential, user, "uuid")
	}

	candidates, err := r.store.ActiveCredentials(ctx)
	if err != nil {
		return Context{}, "", ErrInvalidAPIKey
	}

	for _, row := range candidates {
		if !IsArgon2Hash(row.Credential.SecretHash) {
			continue
		}
		if !VerifyToken(secret, row.Credential.SecretHash) {
			continue
		}
		return r.evaluateOutcome(row.Credential, row.User, "hashed")
	}

	return Context{}, "", ErrInvalidAPIKey
}

// evaluateOutcome applies the fixed precedence: inactive credential,
// then inactive user, then expiry. The enumerate-and-verify loop
// already guarantees a hash match by the time this runs.
func (r *Resolver) evaluateOutcome(credential Credential, user User, keyType string) (Context, string, error) {
	if !credential.IsActive {
		return Context{}, "", ErrInvalidAPIKey
	}
	if !user.IsActive {
		return Context{}, "", ErrInvalidAPIKey
	}
	if credential.Expired(time.Now()) {
		return Context{}, "", ErrAPIKeyExpired
	}
	return Context{User: user, Credential: credential}, keyType, nil
}

// checkCredentialRate advances the credential's hourly bucket, sized
// by its own quota when one is set. Limiter errors fail open.
func (r *Resolver) checkCredentialRate(ctx context.Context, credential Credential) (*ratelimit.Result, error) {
	if r.limiter == nil {
		return nil, nil
	}

	limit := 3600
	if credential.RateLimitPerHour != nil && *credential.RateLimitPerHour > 0 {
		limit = *credential.RateLimitPerHour
	}

	result, err := r.limiter.Check(ctx, credential.ID.String(), ratelimit.Rate{Limit: limit, Window: time.Hour})
	if err != nil {
		return nil, nil
	}
	return result, nil
}

func (r *Resolver) emitFailure(ctx context.Context, err error, sourceIP string) {
	resource := "invalid_api_key"
	switch {
	case errors.Is(err, ErrAPIKeyExpired):
		resource = "api_key_expired"
	case errors.Is(err, ErrRateLimited):
		resource = "rate_limited"
	}

	r.audit.Emit(ctx, "authentication_failed", map[string]any{
		"resource":  resource,
		"client_ip": sourceIP,
	})

	if sourceIP != "" && r.limiter != nil {
		_, _ = r.limiter.CheckIP(ctx, sourceIP, ratelimit.Rate{Limit: 20, Window: time.Minute})
	}
}
