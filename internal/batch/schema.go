package batch

import (
	"go.healthexport.dev/ingest/internal/metric"
)

// conflictStrategy selects the ON CONFLICT clause an upsert uses.
type conflictStrategy int

const (
	// conflictCoalesce updates every non-key column with
	// COALESCE(EXCLUDED.col, existing.col), so a later ingest can fill
	// in fields the earlier one omitted without clobbering them.
	conflictCoalesce conflictStrategy = iota
	// conflictDoNothing leaves the existing row untouched on a
	// duplicate key — used for families where rows are never merged.
	conflictDoNothing
)

// tableSpec describes how one metric family maps onto its table:
// column order, per-row value extraction, and conflict handling.
// extractRow must return values in exactly Columns order.
type tableSpec struct {
	Table          string
	Columns        []string
	ConflictTarget []string
	Conflict       conflictStrategy
	ExtractRow     func(m metric.Metric) []any
}

func (t tableSpec) conflictTarget() []string {
	if len(t.ConflictTarget) > 0 {
		return t.ConflictTarget
	}
	return []string{"user_id", "recorded_at"}
}

// ParamsPerRow is the number of bound parameters one inserted row
// consumes — used to compute the 65535-ceiling-respecting chunk size.
func (t tableSpec) ParamsPerRow() int { return len(t.Columns) }

// TableFor reports the table name a family is persisted to, for
// callers outside this package (the query engine) that need to read
// the same rows this package writes, without duplicating the
// registry.
func TableFor(family metric.Family) (string, bool) {
	spec, ok := registry[family]
	if !ok {
		return "", false
	}
	return spec.Table, true
}

// RecordedAtColumnFor reports the timestamp column a family's
// uniqueness/ordering is keyed on — "recorded_at" for every family
// except Workout, which uses "start_time".
func RecordedAtColumnFor(family metric.Family) string {
	if family == metric.FamilyWorkout {
		return "start_time"
	}
	return "recorded_at"
}

func ptrOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

var registry = map[metric.Family]tableSpec{
	metric.FamilyHeartRate: {
		Table:    "heart_rate_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "heart_rate", "resting_heart_rate", "heart_rate_variability", "vo2_max"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.HeartRate)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, ptrOrNil(v.HeartRate), ptrOrNil(v.RestingHeartRate), ptrOrNil(v.HeartRateVariability), ptrOrNil(v.VO2Max)}
		},
	},
	metric.FamilyBloodPressure: {
		Table:    "blood_pressure_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "systolic", "diastolic", "pulse"},
		Conflict: conflictDoNothing,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.BloodPressure)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, v.Systolic, v.Diastolic, ptrOrNil(v.Pulse)}
		},
	},
	metric.FamilySleep: {
		Table:    "sleep_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "sleep_start", "duration_minutes", "deep_minutes", "rem_minutes", "light_minutes", "awake_minutes", "efficiency_percent"},
		Conflict: conflictDoNothing,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Sleep)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, v.Start, ptrOrNil(v.DurationMinutes), ptrOrNil(v.DeepMinutes), ptrOrNil(v.RemMinutes), ptrOrNil(v.LightMinutes), ptrOrNil(v.AwakeMinutes), ptrOrNil(v.EfficiencyPercent)}
		},
	},
	metric.FamilyActivity: {
		Table:    "activity_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "step_count", "distance_meters", "flights_climbed", "active_energy_kcal", "basal_energy_kcal"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Activity)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, ptrOrNil(v.StepCount), ptrOrNil(v.DistanceMeters), ptrOrNil(v.FlightsClimbed), ptrOrNil(v.ActiveEnergyKcal), ptrOrNil(v.BasalEnergyKcal)}
		},
	},
	metric.FamilyRespiratory: {
		Table:    "respiratory_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "respiratory_rate", "spo2_percent"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Respiratory)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, ptrOrNil(v.RespiratoryRate), ptrOrNil(v.SpO2Percent)}
		},
	},
	metric.FamilyBloodGlucose: {
		Table:    "blood_glucose_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "glucose_mg_dl", "insulin_units", "meal_context"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.BloodGlucose)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, v.GlucoseMgDl, ptrOrNil(v.InsulinUnits), v.MealContext}
		},
	},
	metric.FamilyWorkout: {
		Table:          "workouts",
		Columns:        []string{"id", "user_id", "start_time", "end_time", "source_device", "workout_type", "total_energy_kcal", "active_energy_kcal", "distance_meters", "avg_heart_rate", "max_heart_rate", "latitude", "longitude"},
		ConflictTarget: []string{"user_id", "start_time"},
		Conflict:       conflictDoNothing,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Workout)
			var lat, lon any
			if v.Location != nil {
				lat, lon = v.Location.Latitude, v.Location.Longitude
			}
			return []any{v.ID, v.UserID, v.Start, v.RecordedAt, v.SourceDevice, v.WorkoutType, ptrOrNil(v.TotalEnergyKcal), ptrOrNil(v.ActiveEnergyKcal), ptrOrNil(v.DistanceMeters), ptrOrNil(v.AvgHeartRate), ptrOrNil(v.MaxHeartRate), lat, lon}
		},
	},
	metric.FamilyEnvironmental: {
		Table:    "environmental_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "kind", "value", "unit"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Environmental)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, v.Kind, v.Value, v.Unit}
		},
	},
	metric.FamilyHygiene: {
		Table:    "hygiene_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "event_type", "duration_seconds"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Hygiene)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, v.EventType, ptrOrNil(v.DurationSeconds)}
		},
	},
	metric.FamilyMenstrual: {
		Table:    "menstrual_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "flow_level", "cycle_day"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Menstrual)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, v.FlowLevel, ptrOrNil(v.CycleDay)}
		},
	},
	metric.FamilyFertility: {
		Table:    "fertility_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "basal_body_temp_c", "ovulation_test_result", "cervical_mucus_quality"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Fertility)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, ptrOrNil(v.BasalBodyTempC), v.OvulationTestResult, v.CervicalMucusQuality}
		},
	},
	metric.FamilyTemperature: {
		Table:    "temperature_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "body_temperature_c", "context"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Temperature)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, v.BodyTemperatureC, v.Context}
		},
	},
	metric.FamilyBodyMeasurement: {
		Table:    "body_measurement_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "weight_kg", "height_cm", "body_fat_percent", "waist_circumference_cm"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.BodyMeasurement)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, ptrOrNil(v.WeightKg), ptrOrNil(v.HeightCm), ptrOrNil(v.BodyFatPercent), ptrOrNil(v.WaistCircumferenceCm)}
		},
	},
	metric.FamilyNutrition: {
		Table:    "nutrition_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "nutrient_type", "amount_grams", "calories"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Nutrition)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, v.NutrientType, v.AmountGrams, ptrOrNil(v.Calories)}
		},
	},
	metric.FamilyMentalHealth: {
		Table:    "mental_health_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "mood_score", "stress_level", "anxiety_level"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.MentalHealth)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, ptrOrNil(v.MoodScore), ptrOrNil(v.StressLevel), ptrOrNil(v.AnxietyLevel)}
		},
	},
	metric.FamilyMindfulness: {
		Table:    "mindfulness_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "duration_minutes", "session_type"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Mindfulness)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, v.DurationMinutes, v.SessionType}
		},
	},
	metric.FamilySafetyEvent: {
		Table:    "safety_events",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "event_type", "severity", "latitude", "longitude"},
		Conflict: conflictDoNothing,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.SafetyEvent)
			var lat, lon any
			if v.Location != nil {
				lat, lon = v.Location.Latitude, v.Location.Longitude
			}
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, v.EventType, v.Severity, lat, lon}
		},
	},
	metric.FamilySymptom: {
		Table:    "symptom_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "symptom_type", "severity"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.Symptom)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, v.SymptomType, v.Severity}
		},
	},
	metric.FamilyAudioExposure: {
		Table:    "audio_exposure_metrics",
		Columns:  []string{"id", "user_id", "recorded_at", "source_device", "environmental_dbfs", "headphone_dbfs", "duration_minutes"},
		Conflict: conflictCoalesce,
		ExtractRow: func(m metric.Metric) []any {
			v := m.(metric.AudioExposure)
			return []any{v.ID, v.UserID, v.RecordedAt, v.SourceDevice, ptrOrNil(v.EnvironmentalDbfs), ptrOrNil(v.HeadphoneDbfs), ptrOrNil(v.DurationMinutes)}
		},
	},
}
