package query

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go.healthexport.dev/ingest/internal/cache"
	"go.healthexport.dev/ingest/log"
	"go.healthexport.dev/ingest/pg"
)

// Summary is the cross-family rollup over a date range. Any family
// whose aggregation query errors reports a nil sub-summary rather than
// failing the whole request.
type Summary struct {
	UserID        uuid.UUID
	StartDate     time.Time
	EndDate       time.Time
	HeartRate     *HeartRateSummary
	BloodPressure *BloodPressureSummary
	Sleep         *SleepSummary
	Activity      *ActivitySummary
	Workouts      *WorkoutSummary
}

type HeartRateSummary struct {
	Count      int64
	AvgResting *float64
	AvgActive  *float64
	MinBPM     *int
	MaxBPM     *int
}

type BloodPressureSummary struct {
	Count        int64
	AvgSystolic  *float64
	AvgDiastolic *float64
}

type SleepSummary struct {
	Count          int64
	AvgDurationMin *float64
	AvgEfficiency  *float64
}

type ActivitySummary struct {
	Count           int64
	TotalSteps      *int64
	TotalDistanceM  *float64
	TotalActiveKcal *float64
}

type WorkoutSummary struct {
	Count           int64
	TotalDurationS  *float64
	TotalEnergyKcal *float64
}

// Summarize runs all five per-family aggregations concurrently. Using
// plain errgroup.Group (not WithContext) is deliberate: a family's
// error must not cancel its siblings, matching "any family that
// errors returns null for its sub-summary without failing the
// request".
func (e *Engine) Summarize(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Summary, error) {
	summary := &Summary{UserID: userID, StartDate: start, EndDate: end}

	hash := cache.GenerateQueryHash(map[string]string{
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
	})
	key := cache.SummaryKey(userID, hash)

	if cached, ok := cache.Get[Summary](ctx, e.cache, key); ok {
		return &cached, nil
	}

	var group errgroup.Group

	group.Go(func() error {
		summary.HeartRate = e.summarizeHeartRate(ctx, userID, start, end)
		return nil
	})
	group.Go(func() error {
		summary.BloodPressure = e.summarizeBloodPressure(ctx, userID, start, end)
		return nil
	})
	group.Go(func() error {
		summary.Sleep = e.summarizeSleep(ctx, userID, start, end)
		return nil
	})
	group.Go(func() error {
		summary.Activity = e.summarizeActivity(ctx, userID, start, end)
		return nil
	})
	group.Go(func() error {
		summary.Workouts = e.summarizeWorkouts(ctx, userID, start, end)
		return nil
	})

	_ = group.Wait()

	cache.Set(ctx, e.cache, key, *summary, 30*time.Minute)
	return summary, nil
}

func (e *Engine) summarizeHeartRate(ctx context.Context, userID uuid.UUID, start, end time.Time) *HeartRateSummary {
	var s HeartRateSummary
	err := e.conn.WithConn(ctx, func(conn pg.Conn) error {
		return conn.QueryRow(ctx, `
			SELECT count(*), avg(resting_heart_rate), avg(heart_rate), min(heart_rate), max(heart_rate)
			FROM heart_rate_metrics WHERE user_id = $1 AND recorded_at BETWEEN $2 AND $3
		`, userID, start, end).Scan(&s.Count, &s.AvgResting, &s.AvgActive, &s.MinBPM, &s.MaxBPM)
	})
	if err != nil {
		e.logger.WarnCtx(ctx, "heart rate summary failed", log.Error(err))
		return nil
	}
	return &s
}

func (e *Engine) summarizeBloodPressure(ctx context.Context, userID uuid.UUID, start, end time.Time) *BloodPressureSummary {
	var s BloodPressureSummary
	err := e.conn.WithConn(ctx, func(conn pg.Conn) error {
		return conn.QueryRow(ctx, `
			SELECT count(*), avg(systolic), avg(diastolic)
			FROM blood_pressure_metrics WHERE user_id = $1 AND recorded_at BETWEEN $2 AND $3
		`, userID, start, end).Scan(&s.Count, &s.AvgSystolic, &s.AvgDiastolic)
	})
	if err != nil {
		e.logger.WarnCtx(ctx, "blood pressure summary failed", log.Error(err))
		return nil
	}
	return &s
}

func (e *Engine) summarizeSleep(ctx context.Context, userID uuid.UUID, start, end time.Time) *SleepSummary {
	var s SleepSummary
	err := e.conn.WithConn(ctx, func(conn pg.Conn) error {
		return conn.QueryRow(ctx, `
			SELECT count(*), avg(duration_minutes), avg(efficiency_percent)
			FROM sleep_metrics WHERE user_id = $1 AND recorded_at BETWEEN $2 AND $3
		`, userID, start, end).Scan(&s.Count, &s.AvgDurationMin, &s.AvgEfficiency)
	})
	if err != nil {
		e.logger.WarnCtx(ctx, "sleep summary failed", log.Error(err))
		return nil
	}
	return &s
}

func (e *Engine) summarizeActivity(ctx context.Context, userID uuid.UUID, start, end time.Time) *ActivitySummary {
	var s ActivitySummary
	err := e.conn.WithConn(ctx, func(conn pg.Conn) error {
		return conn.QueryRow(ctx, `
			SELECT count(*), sum(step_count), sum(distance_meters), sum(active_energy_kcal)
			FROM activity_metrics WHERE user_id = $1 AND recorded_at BETWEEN $2 AND $3
		`, userID, start, end).Scan(&s.Count, &s.TotalSteps, &s.TotalDistanceM, &s.TotalActiveKcal)
	})
	if err != nil {
		e.logger.WarnCtx(ctx, "activity summary failed", log.Error(err))
		return nil
	}
	return &s
}

func (e *Engine) summarizeWorkouts(ctx context.Context, userID uuid.UUID, start, end time.Time) *WorkoutSummary {
	var s WorkoutSummary
	err := e.conn.WithConn(ctx, func(conn pg.Conn) error {
		return conn.QueryRow(ctx, `
			SELECT count(*), sum(extract(epoch from (end_time - start_time))), sum(total_energy_kcal)
			FROM workouts WHERE user_id = $1 AND start_time BETWEEN $2 AND $3
		`, userID, start, end).Scan(&s.Count, &s.TotalDurationS, &s.TotalEnergyKcal)
	})
	if err != nil {
		e.logger.WarnCtx(ctx, "workout summary failed", log.Error(err))
		return nil
	}
	return &s
}
