package jobs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	url   string
	job   Job
	calls int
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, url string, job Job) error {
	f.calls++
	f.url = url
	f.job = job
	return f.err
}

func TestWorkerNotifySkipsWithoutNotifierOrURL(t *testing.T) {
	w := &Worker{}
	w.notify(context.Background(), Job{ID: uuid.New(), Status: StatusDone})
	// no panic, no notifier configured: nothing to assert beyond completion
}

func TestWorkerNotifyCallsConfiguredNotifier(t *testing.T) {
	notifier := &fakeNotifier{}
	w := &Worker{notifier: notifier, webhookURL: "https://example.test/hook"}

	job := Job{ID: uuid.New(), Status: StatusDone, MetricCount: 5}
	w.notify(context.Background(), job)

	require.Equal(t, 1, notifier.calls)
	assert.Equal(t, "https://example.test/hook", notifier.url)
	assert.Equal(t, job.ID, notifier.job.ID)
}

func TestWebhookPayloadCarriesErrorMessage(t *testing.T) {
	msg := "batch insert failed"
	job := Job{ID: uuid.New(), UserID: uuid.New(), Status: StatusError, MetricCount: 3, Error: &msg}

	payload := webhookPayload{
		JobID:       job.ID.String(),
		UserID:      job.UserID.String(),
		Status:      job.Status,
		MetricCount: job.MetricCount,
		Error:       *job.Error,
	}

	assert.Equal(t, "batch insert failed", payload.Error)
	assert.Equal(t, StatusError, payload.Status)
}
