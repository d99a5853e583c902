// Package timeout tracks a request's wall-clock processing budget and
// derives the chunk-sizing and background-dispatch decisions that keep
// ingestion inside it.
package timeout

import (
	"time"

	"github.com/google/uuid"

	"go.healthexport.dev/ingest/log"
)

// Config controls the timing budgets a Manager enforces.
type Config struct {
	// MaxProcessingTime bounds inline processing before the request
	// must report a timeout rather than keep running. Kept at 30s
	// rather than a larger figure to stay under upstream proxy
	// idle-timeouts.
	MaxProcessingTime time.Duration

	// LargeBatchThreshold is the metric count at or above which a batch is
	// logged/reported as "large" even though it still runs inline.
	LargeBatchThreshold int

	// BackgroundJobThreshold is the metric count above which ingestion
	// is dispatched to a background job instead of running inline.
	BackgroundJobThreshold int

	// JSONParseTimeout bounds payload deserialization.
	JSONParseTimeout time.Duration

	// ConnectionTimeout bounds acquiring a database connection.
	ConnectionTimeout time.Duration
}

// DefaultConfig matches the original ingest pipeline's defaults.
var DefaultConfig = Config{
	MaxProcessingTime:      30 * time.Second,
	LargeBatchThreshold:    5_000,
	BackgroundJobThreshold: 10_000,
	JSONParseTimeout:       10 * time.Second,
	ConnectionTimeout:      5 * time.Second,
}

// Manager tracks one request's elapsed processing time against its
// configured budget.
type Manager struct {
	config Config
	start  time.Time
	logger *log.Logger
}

// New starts a Manager with the given config and a clock reading of
// now (the caller's request-entry time).
func New(config Config, now time.Time, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Manager{config: config, start: now, logger: logger}
}

// NewDefault starts a Manager with DefaultConfig.
func NewDefault(now time.Time, logger *log.Logger) *Manager {
	return New(DefaultConfig, now, logger)
}

// ShouldUseBackgroundProcessing reports whether metricCount exceeds
// the background-job dispatch threshold.
func (m *Manager) ShouldUseBackgroundProcessing(metricCount int) bool {
	return metricCount > m.config.BackgroundJobThreshold
}

// IsLargeBatch reports whether metricCount meets the "large batch"
// threshold used for logging and chunk-size scaling context.
func (m *Manager) IsLargeBatch(metricCount int) bool {
	return metricCount >= m.config.LargeBatchThreshold
}

// ElapsedTime returns the time elapsed since the Manager was started,
// measured against now (the caller's current clock reading).
func (m *Manager) ElapsedTime(now time.Time) time.Duration {
	return now.Sub(m.start)
}

// RemainingTime returns the time left before MaxProcessingTime is
// exhausted, floored at zero.
func (m *Manager) RemainingTime(now time.Time) time.Duration {
	elapsed := m.ElapsedTime(now)
	if elapsed >= m.config.MaxProcessingTime {
		return 0
	}
	return m.config.MaxProcessingTime - elapsed
}

// IsApproachingTimeout reports whether elapsed time has reached the
// given fraction of MaxProcessingTime.
func (m *Manager) IsApproachingTimeout(now time.Time, thresholdFraction float64) bool {
	threshold := time.Duration(float64(m.config.MaxProcessingTime) * thresholdFraction)
	return m.ElapsedTime(now) >= threshold
}

// WarnIfApproachingTimeout logs a warning once elapsed time crosses
// 80% of the budget.
func (m *Manager) WarnIfApproachingTimeout(now time.Time, userID uuid.UUID, metricCount int) {
	if !m.IsApproachingTimeout(now, 0.8) {
		return
	}
	m.logger.Warn("approaching processing timeout limit",
		log.String("user_id", userID.String()),
		log.Duration("elapsed", m.ElapsedTime(now)),
		log.Duration("max_processing_time", m.config.MaxProcessingTime),
		log.Int("metric_count", metricCount),
	)
}

// GetOptimalChunkSize scales baseChunkSize by how much of the
// processing budget remains: doubled while under 20% of the budget has
// been consumed, halved once under 25% of the budget remains,
// unchanged otherwise.
func (m *Manager) GetOptimalChunkSize(now time.Time, baseChunkSize int) int {
	elapsed := m.ElapsedTime(now)
	remaining := m.RemainingTime(now)

	if elapsed < m.config.MaxProcessingTime/5 {
		return baseChunkSize * 2
	}
	if remaining < m.config.MaxProcessingTime/4 {
		return baseChunkSize / 2
	}
	return baseChunkSize
}

// LogFinalStats logs a summary of one request's processing outcome.
func (m *Manager) LogFinalStats(now time.Time, userID uuid.UUID, processedCount, failedCount int) {
	status := "normal"
	switch {
	case m.IsApproachingTimeout(now, 1.0):
		status = "timeout_reached"
	case m.IsApproachingTimeout(now, 0.8):
		status = "near_timeout"
	}

	m.logger.Info("processing completed",
		log.String("user_id", userID.String()),
		log.Duration("elapsed", m.ElapsedTime(now)),
		log.Duration("max_processing_time", m.config.MaxProcessingTime),
		log.Int("processed_count", processedCount),
		log.Int("failed_count", failedCount),
		log.String("status", status),
	)
}
