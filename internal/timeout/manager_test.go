package timeout

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"go.healthexport.dev/ingest/log"
)

func testManager(start time.Time) *Manager {
	return New(DefaultConfig, start, log.NewLogger(log.WithOutput(discard{})))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestGetOptimalChunkSizeDoublesEarly(t *testing.T) {
	start := time.Unix(0, 0)
	m := testManager(start)

	now := start.Add(2 * time.Second) // well under 20% of 30s
	assert.Equal(t, 10000, m.GetOptimalChunkSize(now, 5000))
}

func TestGetOptimalChunkSizeHalvesNearEnd(t *testing.T) {
	start := time.Unix(0, 0)
	m := testManager(start)

	now := start.Add(28 * time.Second) // remaining = 2s, under 25% of 30s (7.5s)
	assert.Equal(t, 2500, m.GetOptimalChunkSize(now, 5000))
}

func TestGetOptimalChunkSizeUnchangedMidway(t *testing.T) {
	start := time.Unix(0, 0)
	m := testManager(start)

	now := start.Add(15 * time.Second) // elapsed >= 6s, remaining 15s >= 7.5s
	assert.Equal(t, 5000, m.GetOptimalChunkSize(now, 5000))
}

func TestIsApproachingTimeoutThreshold(t *testing.T) {
	start := time.Unix(0, 0)
	m := testManager(start)

	assert.False(t, m.IsApproachingTimeout(start.Add(20*time.Second), 0.8))
	assert.True(t, m.IsApproachingTimeout(start.Add(24*time.Second), 0.8))
}

func TestRemainingTimeFloorsAtZero(t *testing.T) {
	start := time.Unix(0, 0)
	m := testManager(start)

	assert.Equal(t, time.Duration(0), m.RemainingTime(start.Add(time.Hour)))
}

func TestDispatchRecommendsBackgroundAboveThreshold(t *testing.T) {
	start := time.Unix(0, 0)
	m := testManager(start)

	decision := m.Dispatch(10_001)
	assert.True(t, decision.Background)

	decision = m.Dispatch(10_000)
	assert.False(t, decision.Background)
}

func TestIsLargeBatchThreshold(t *testing.T) {
	start := time.Unix(0, 0)
	m := testManager(start)

	assert.True(t, m.IsLargeBatch(5000))
	assert.False(t, m.IsLargeBatch(4999))
}

func TestStatusShouldReturnAccepted(t *testing.T) {
	assert.False(t, Success().ShouldReturnAccepted())
	assert.True(t, PartialSuccess("validation errors").ShouldReturnAccepted())
	assert.True(t, Timeout(10, 100).ShouldReturnAccepted())
	assert.False(t, BackgroundRecommended("large payload").ShouldReturnAccepted())
}

func TestStatusMessage(t *testing.T) {
	assert.Contains(t, Timeout(10, 100).Message(), "10/100")
}

func TestWithBudgetCancelsAfterRemainingTime(t *testing.T) {
	start := time.Now()
	m := New(Config{MaxProcessingTime: 10 * time.Millisecond}, start, log.NewLogger(log.WithOutput(discard{})))

	ctx, cancel := m.WithBudget(t.Context(), start)
	defer cancel()

	<-ctx.Done()
	assert.Error(t, ctx.Err())
}

func TestLogFinalStatsDoesNotPanic(t *testing.T) {
	start := time.Unix(0, 0)
	m := testManager(start)
	m.LogFinalStats(start.Add(time.Second), uuid.New(), 10, 0)
}
