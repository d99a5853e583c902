package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"go.healthexport.dev/ingest/internal/metric"
)

func TestGetMissesWithNilClient(t *testing.T) {
	c := New(nil)
	_, ok := Get[string](context.Background(), c, "some-key")
	assert.False(t, ok)
}

func TestSetIsNoOpWithNilClient(t *testing.T) {
	c := New(nil)
	Set(context.Background(), c, "some-key", "value", 0)
	_, ok := Get[string](context.Background(), c, "some-key")
	assert.False(t, ok)
}

func TestQueryKeyShape(t *testing.T) {
	userID := uuid.New()
	key := QueryKey(metric.FamilyHeartRate, userID, "abc123")
	assert.Equal(t, "heart_rate_query:"+userID.String()+":abc123", key)
}

func TestGenerateQueryHashDeterministic(t *testing.T) {
	params := map[string]string{"family": "heart_rate", "page": "2"}
	h1 := GenerateQueryHash(params)
	h2 := GenerateQueryHash(params)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)
}

func TestGenerateQueryHashDiffersOnDifferentParams(t *testing.T) {
	h1 := GenerateQueryHash(map[string]string{"page": "1"})
	h2 := GenerateQueryHash(map[string]string{"page": "2"})
	assert.NotEqual(t, h1, h2)
}
