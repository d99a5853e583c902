package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.healthexport.dev/ingest/ratelimit"
)

var errNotFound = errors.New("not found")

type fakeStore struct {
	byID       map[uuid.UUID]CredentialRow
	active     []CredentialRow
	touched    []uuid.UUID
	failLookup bool
}

func (f *fakeStore) CredentialByID(_ context.Context, id uuid.UUID) (Credential, User, error) {
	if f.failLookup {
		return Credential{}, User{}, errNotFound
	}
	row, ok := f.byID[id]
	if !ok {
		return Credential{}, User{}, errNotFound
	}
	return row.Credential, row.User, nil
}

func (f *fakeStore) ActiveCredentials(_ context.Context) ([]CredentialRow, error) {
	return f.active, nil
}

func (f *fakeStore) TouchLastUsed(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.touched = append(f.touched, id)
	return nil
}

type fakeEmitter struct {
	events []string
}

func (f *fakeEmitter) Emit(_ context.Context, eventType string, _ map[string]any) {
	f.events = append(f.events, eventType)
}

func activeUser() User {
	return User{ID: uuid.New(), Email: "a@example.com", IsActive: true}
}

func TestResolveUUIDDirectSkipsHashVerification(t *testing.T) {
	user := activeUser()
	credential := Credential{ID: uuid.New(), UserID: user.ID, Name: "primary", IsActive: true, SecretHash: "not-a-real-hash"}

	store := &fakeStore{byID: map[uuid.UUID]CredentialRow{credential.ID: {Credential: credential, User: user}}}
	emitter := &fakeEmitter{}
	resolver := NewResolver(store, nil, emitter)

	ctx, err := resolver.Resolve(context.Background(), credential.ID.String(), "")
	require.NoError(t, err)
	assert.Equal(t, user.ID, ctx.User.ID)
	assert.Contains(t, emitter.events, "authentication_success")
	assert.Len(t, store.touched, 1)
}

func TestResolveHashedSecretEnumeratesAndVerifies(t *testing.T) {
	secret := "hea_0123456789abcdef0123456789abcdef"
	hash, err := HashToken(secret)
	require.NoError(t, err)

	user := activeUser()
	credential := Credential{ID: uuid.New(), UserID: user.ID, Name: "cli-key", IsActive: true, SecretHash: hash}

	store := &fakeStore{active: []CredentialRow{{Credential: credential, User: user}}}
	emitter := &fakeEmitter{}
	resolver := NewResolver(store, nil, emitter)

	ctx, err := resolver.Resolve(context.Background(), secret, "")
	require.NoError(t, err)
	assert.Equal(t, credential.ID, ctx.Credential.ID)
}

func TestResolveNoMatchReturnsInvalidAPIKey(t *testing.T) {
	store := &fakeStore{active: nil}
	emitter := &fakeEmitter{}
	resolver := NewResolver(store, nil, emitter)

	_, err := resolver.Resolve(context.Background(), "hea_whatever", "")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
	assert.Contains(t, emitter.events, "authentication_failed")
}

func TestResolveInactiveCredentialReturnsInvalidAPIKey(t *testing.T) {
	user := activeUser()
	credential := Credential{ID: uuid.New(), UserID: user.ID, IsActive: false}

	store := &fakeStore{byID: map[uuid.UUID]CredentialRow{credential.ID: {Credential: credential, User: user}}}
	resolver := NewResolver(store, nil, &fakeEmitter{})

	_, err := resolver.Resolve(context.Background(), credential.ID.String(), "")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestResolveInactiveUserReturnsInvalidAPIKey(t *testing.T) {
	user := activeUser()
	user.IsActive = false
	credential := Credential{ID: uuid.New(), UserID: user.ID, IsActive: true}

	store := &fakeStore{byID: map[uuid.UUID]CredentialRow{credential.ID: {Credential: credential, User: user}}}
	resolver := NewResolver(store, nil, &fakeEmitter{})

	_, err := resolver.Resolve(context.Background(), credential.ID.String(), "")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestResolveExpiredCredentialReturnsAPIKeyExpired(t *testing.T) {
	user := activeUser()
	past := time.Now().Add(-time.Hour)
	credential := Credential{ID: uuid.New(), UserID: user.ID, IsActive: true, ExpiresAt: &past}

	store := &fakeStore{byID: map[uuid.UUID]CredentialRow{credential.ID: {Credential: credential, User: user}}}
	resolver := NewResolver(store, nil, &fakeEmitter{})

	_, err := resolver.Resolve(context.Background(), credential.ID.String(), "")
	assert.ErrorIs(t, err, ErrAPIKeyExpired)
}

func TestResolveRateLimitedCredential(t *testing.T) {
	user := activeUser()
	credential := Credential{ID: uuid.New(), UserID: user.ID, IsActive: true}

	store := &fakeStore{byID: map[uuid.UUID]CredentialRow{credential.ID: {Credential: credential, User: user}}}
	limiter := ratelimit.NewLimiter()

	resolver := NewResolver(store, limiter, &fakeEmitter{})

	// Exhaust the credential's per-hour bucket before resolving.
	for i := 0; i < 3600; i++ {
		_, _ = limiter.Allow(context.Background(), "credential:"+credential.ID.String(), ratelimit.Rate{Limit: 3600, Window: time.Hour})
	}

	_, err := resolver.Resolve(context.Background(), credential.ID.String(), "")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestResolveUsesCacheOnHit(t *testing.T) {
	user := activeUser()
	credential := Credential{ID: uuid.New(), UserID: user.ID, IsActive: true}

	store := &fakeStore{failLookup: true}
	cache := NewCache(time.Minute)
	cache.Put(credential.ID.String(), Context{User: user, Credential: credential})

	resolver := NewResolver(store, nil, &fakeEmitter{}, WithCache(cache))

	ctx, err := resolver.Resolve(context.Background(), credential.ID.String(), "")
	require.NoError(t, err)
	assert.Equal(t, user.ID, ctx.User.ID)
}

func TestResolveHonorsPerCredentialQuota(t *testing.T) {
	user := activeUser()
	quota := 2
	credential := Credential{ID: uuid.New(), UserID: user.ID, IsActive: true, RateLimitPerHour: &quota}

	store := &fakeStore{byID: map[uuid.UUID]CredentialRow{credential.ID: {Credential: credential, User: user}}}
	resolver := NewResolver(store, ratelimit.NewLimiter(), &fakeEmitter{})

	for i := 0; i < 2; i++ {
		_, err := resolver.Resolve(context.Background(), credential.ID.String(), "")
		require.NoError(t, err)
	}

	_, err := resolver.Resolve(context.Background(), credential.ID.String(), "")
	assert.ErrorIs(t, err, ErrRateLimited)
}
