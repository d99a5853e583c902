package batch

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.healthexport.dev/ingest/internal/metric"
)

func TestChunkSizeForRespectsParamCeiling(t *testing.T) {
	spec := registry[metric.FamilyActivity]
	size := chunkSizeFor(spec, 1_000_000)
	assert.LessOrEqual(t, size*spec.ParamsPerRow(), maxBoundParams)
}

func TestChunkSizeForRespectsConfiguredCap(t *testing.T) {
	spec := registry[metric.FamilyHeartRate]
	size := chunkSizeFor(spec, 10)
	assert.Equal(t, 10, size)
}

func TestBuildInsertCoalesceClause(t *testing.T) {
	spec := registry[metric.FamilyHeartRate]
	query := buildInsert(spec, 2)

	assert.Contains(t, query, "INSERT INTO heart_rate_metrics")
	assert.Contains(t, query, "$1,$2,$3,$4,$5,$6,$7,$8")
	assert.Contains(t, query, "$9,$10,$11,$12,$13,$14,$15,$16")
	assert.Contains(t, query, "ON CONFLICT (user_id, recorded_at)")
	assert.Contains(t, query, "heart_rate = COALESCE(EXCLUDED.heart_rate, heart_rate_metrics.heart_rate)")
	assert.NotContains(t, query, "id = COALESCE")
}

func TestBuildInsertDoNothingClause(t *testing.T) {
	spec := registry[metric.FamilyWorkout]
	query := buildInsert(spec, 1)

	assert.Contains(t, query, "ON CONFLICT (user_id, start_time) DO NOTHING")
}

func TestDedupeCollapsesLastWriteWins(t *testing.T) {
	userID := uuid.New()
	now := time.Now()

	hr1 := metric.HeartRate{Base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: now}, HeartRate: intp(60)}
	hr2 := metric.HeartRate{Base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: now}, HeartRate: intp(65)}

	result := dedupe(metric.FamilyHeartRate, []metric.Metric{hr1, hr2})
	require.Len(t, result.metrics, 1)
	assert.Equal(t, 1, result.dropped)
	assert.Equal(t, 65, *result.metrics[0].(metric.HeartRate).HeartRate)
}

func TestDedupeAggregatesActivity(t *testing.T) {
	userID := uuid.New()
	now := time.Now()

	a1 := metric.Activity{Base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: now}, StepCount: intp(1000)}
	a2 := metric.Activity{Base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: now}, StepCount: intp(500)}

	result := dedupe(metric.FamilyActivity, []metric.Metric{a1, a2})
	require.Len(t, result.metrics, 1)
	assert.Equal(t, 1500, *result.metrics[0].(metric.Activity).StepCount)
}

func TestDedupeNoCollisionsKeepsAll(t *testing.T) {
	userID := uuid.New()
	now := time.Now()

	hr1 := metric.HeartRate{Base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: now}, HeartRate: intp(60)}
	hr2 := metric.HeartRate{Base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: now.Add(time.Minute)}, HeartRate: intp(65)}

	result := dedupe(metric.FamilyHeartRate, []metric.Metric{hr1, hr2})
	assert.Len(t, result.metrics, 2)
	assert.Equal(t, 0, result.dropped)
}

func TestGroupByFamily(t *testing.T) {
	userID := uuid.New()
	now := time.Now()

	metrics := []metric.Metric{
		metric.HeartRate{Base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: now}},
		metric.Activity{Base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: now}},
		metric.HeartRate{Base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: now.Add(time.Minute)}},
	}

	grouped := groupByFamily(metrics)
	assert.Len(t, grouped[metric.FamilyHeartRate], 2)
	assert.Len(t, grouped[metric.FamilyActivity], 1)
}

func intp(v int) *int { return &v }

func TestBuildInsertLegacyActivityTableSwap(t *testing.T) {
	spec := registry[metric.FamilyActivity]
	spec.Table = legacyActivityTable

	query := buildInsert(spec, 1)
	assert.Contains(t, query, "INSERT INTO activity_metrics_legacy")
	assert.Contains(t, query, "step_count = COALESCE(EXCLUDED.step_count, activity_metrics_legacy.step_count)")
}
