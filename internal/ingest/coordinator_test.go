package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.healthexport.dev/ingest/internal/config"
	"go.healthexport.dev/ingest/internal/metric"
	"go.healthexport.dev/ingest/internal/timeout"
)

type fakeJobEnqueuer struct {
	enqueued    bool
	metricCount int
	err         error
}

func (f *fakeJobEnqueuer) Enqueue(ctx context.Context, userID, rawID uuid.UUID, metricCount int) (uuid.UUID, error) {
	f.enqueued = true
	f.metricCount = metricCount
	if f.err != nil {
		return uuid.Nil, f.err
	}
	return uuid.New(), nil
}

func testValidationConfig() *config.ValidationConfig {
	return config.NewValidationConfig(func(string) string { return "" })
}

func TestValidateSeparatesInvalidMetrics(t *testing.T) {
	c := &Coordinator{validationCfg: testValidationConfig()}

	userID := uuid.New()
	good := metric.HeartRate{Base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: time.Now()}, HeartRate: intp(70)}
	bad := metric.HeartRate{Base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: time.Now()}, HeartRate: intp(1000)}

	valid, errs := c.validate([]metric.Metric{good, bad})
	require.Len(t, valid, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, metric.FamilyHeartRate, errs[0].Family)
}

func TestDispatchBackgroundRequiresEnqueuer(t *testing.T) {
	c := &Coordinator{}
	_, err := c.dispatchBackground(context.Background(), uuid.New(), uuid.New(), nil, &Result{}, timeout.Decision{Background: true, Reason: "too large"})
	assert.Error(t, err)
}

func TestDispatchBackgroundUsesEnqueuer(t *testing.T) {
	enqueuer := &fakeJobEnqueuer{}
	c := &Coordinator{jobs: enqueuer}

	result, err := c.dispatchBackground(context.Background(), uuid.New(), uuid.New(), make([]metric.Metric, 3), &Result{}, timeout.Decision{Background: true, Reason: "too large"})

	require.NoError(t, err)
	assert.True(t, enqueuer.enqueued)
	assert.Equal(t, 3, enqueuer.metricCount)
	require.NotNil(t, result.JobID)
}

func intp(v int) *int { return &v }
