package batch

import (
	"go.healthexport.dev/ingest/internal/metric"
)

// dedupKey identifies the (user, recorded_at) pair intra-batch
// deduplication collapses entries on.
type dedupKey struct {
	userID     string
	recordedAt int64
}

// dedupResult is one family's deduplicated metrics plus how many
// duplicate entries were collapsed into them.
type dedupResult struct {
	metrics []metric.Metric
	dropped int
}

// dedupe collapses entries sharing (user_id, recorded_at) within one
// family (for workouts, (user_id, start_time)) to the last occurrence, except for accumulating families
// (currently only Activity), which sum counts/distances/energies
// instead of overwriting.
func dedupe(family metric.Family, metrics []metric.Metric) dedupResult {
	if len(metrics) <= 1 {
		return dedupResult{metrics: metrics}
	}

	order := make([]dedupKey, 0, len(metrics))
	byKey := make(map[dedupKey]metric.Metric, len(metrics))
	dropped := 0

	for _, m := range metrics {
		recordedAt := m.GetRecordedAt()
		if w, ok := m.(metric.Workout); ok {
			recordedAt = w.Start
		}
		key := dedupKey{userID: m.GetUserID().String(), recordedAt: recordedAt.UnixNano()}

		existing, seen := byKey[key]
		if !seen {
			byKey[key] = m
			order = append(order, key)
			continue
		}

		dropped++
		if family.Accumulating() {
			if activity, ok := existing.(metric.Activity); ok {
				if next, ok := m.(metric.Activity); ok {
					byKey[key] = activity.AggregateWith(next)
					continue
				}
			}
		}
		byKey[key] = m
	}

	out := make([]metric.Metric, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}

	return dedupResult{metrics: out, dropped: dropped}
}
