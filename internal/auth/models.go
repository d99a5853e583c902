package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// User mirrors the users table row needed to authenticate and
// authorize a request.
type User struct {
	ID       uuid.UUID
	Email    string
	IsActive bool
}

// Credential mirrors an api_keys row: the hashed (or, for
// UUID-direct auth, unhashed) secret plus its scope and lifetime.
type Credential struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Name             string
	SecretHash       string
	Permissions      Permissions
	IsActive         bool
	ExpiresAt        *time.Time
	LastUsedAt       *time.Time
	RateLimitPerHour *int
}

// Expired reports whether the credential's expiry, if any, is in the
// past relative to now.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// Context is the result of a successful resolution: the
// authenticated user paired with the credential that was presented.
type Context struct {
	User       User
	Credential Credential
}

// HasPermission dispatches to the credential's normalized permission
// descriptor.
func (c Context) HasPermission(permission string) bool {
	return c.Credential.Permissions.Has(permission)
}

// Outcome errors resolution returns, checked with errors.Is by
// callers that need to distinguish them for response mapping or
// audit metadata.
var (
	ErrInvalidAPIKey = errors.New("auth: invalid api key")
	ErrAPIKeyExpired = errors.New("auth: api key expired")
	ErrRateLimited   = errors.New("auth: rate limit exceeded")
)

// RateLimitError carries the limiter result that caused a
// RateLimitExceeded outcome, so the HTTP layer can populate
// Retry-After and the rate-limit response headers.
type RateLimitError struct {
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return "auth: rate limit exceeded" }
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
