package timeout

import (
	"context"
	"fmt"
	"time"
)

// Decision is the outcome of evaluating a payload's size against the
// background-job dispatch rule.
type Decision struct {
	Background bool
	Reason     string
}

// Dispatch decides whether metricCount should be processed inline or
// routed to a background job.
func (m *Manager) Dispatch(metricCount int) Decision {
	if m.ShouldUseBackgroundProcessing(metricCount) {
		return Decision{
			Background: true,
			Reason:     fmt.Sprintf("%d metrics exceeds background job threshold of %d", metricCount, m.config.BackgroundJobThreshold),
		}
	}
	return Decision{Background: false}
}

// WithBudget derives a child context that is cancelled once the
// Manager's remaining processing budget, measured from now, elapses.
// The caller must invoke the returned cancel function.
func (m *Manager) WithBudget(ctx context.Context, now time.Time) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.RemainingTime(now))
}
