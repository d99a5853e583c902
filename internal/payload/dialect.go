package payload

// DialectA is the mobile-export wire format: HealthKit-style type
// identifiers with loosely-typed datapoint arrays.
type DialectA struct {
	Data struct {
		Metrics  []DialectAMetric  `json:"metrics"`
		Workouts []DialectAWorkout `json:"workouts"`
	} `json:"data"`
}

type DialectAMetric struct {
	Name  string              `json:"name"`
	Units string              `json:"units"`
	Data  []DialectADatapoint `json:"data"`
}

type DialectADatapoint struct {
	Qty    *float64       `json:"qty"`
	Date   *string        `json:"date"`
	Start  *string        `json:"start"`
	End    *string        `json:"end"`
	Source string         `json:"source"`
	Value  *float64       `json:"value"`
	Extra  map[string]any `json:"extra"`
}

type DialectAWorkout struct {
	Name  string         `json:"name"`
	Start string         `json:"start"`
	End   string         `json:"end"`
	Extra map[string]any `json:"extra"`
}

// DialectB is the internal/canonical format used for server-to-server
// replay and bulk import: every entry is already tagged with its
// target family, sidestepping HealthKit identifier translation.
type DialectB struct {
	UserID   string            `json:"user_id"`
	Metrics  []DialectBMetric  `json:"metrics"`
	Workouts []DialectBWorkout `json:"workouts"`
}

type DialectBMetric struct {
	Family       string             `json:"family"`
	RecordedAt   string             `json:"recorded_at"`
	SourceDevice string             `json:"source_device"`
	Fields       map[string]float64 `json:"fields"`
	Strings      map[string]string  `json:"strings"`
}

type DialectBWorkout struct {
	WorkoutType  string             `json:"workout_type"`
	Start        string             `json:"start"`
	End          string             `json:"end"`
	SourceDevice string             `json:"source_device"`
	Fields       map[string]float64 `json:"fields"`
}
