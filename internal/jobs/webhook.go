package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.healthexport.dev/ingest/httpclient"
)

// HTTPNotifier posts a job's completion payload through the shared
// pooled HTTP client, the one concrete caller of the httpclient package:
// what the webhook receiver does with the payload is out of scope,
// only that ingest dispatch emits it.
type HTTPNotifier struct {
	client *http.Client
}

// NewHTTPNotifier builds a notifier over httpclient's pooled client.
func NewHTTPNotifier(options ...httpclient.Option) *HTTPNotifier {
	return &HTTPNotifier{client: httpclient.DefaultPooledClient(options...)}
}

type webhookPayload struct {
	JobID       string `json:"job_id"`
	UserID      string `json:"user_id"`
	Status      Status `json:"status"`
	MetricCount int    `json:"metric_count"`
	Error       string `json:"error,omitempty"`
}

// Notify POSTs job's outcome to url as JSON.
func (n *HTTPNotifier) Notify(ctx context.Context, url string, job Job) error {
	payload := webhookPayload{
		JobID:       job.ID.String(),
		UserID:      job.UserID.String(),
		Status:      job.Status,
		MetricCount: job.MetricCount,
	}
	if job.Error != nil {
		payload.Error = *job.Error
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
