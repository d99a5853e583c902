package payload

import (
	"time"

	"github.com/google/uuid"

	"go.healthexport.dev/ingest/internal/metric"
)

// mapDialectA converts the mobile-export format into canonical
// metrics: identifier lookup, unit normalization, paired
// systolic/diastolic combination, and now-as-fallback timestamps.
func mapDialectA(userID uuid.UUID, payload DialectA) ([]metric.Metric, []ProcessingError) {
	var (
		metrics []metric.Metric
		skipped []ProcessingError
		pending = map[pairKey]*pendingBloodPressure{}
	)

	for _, m := range payload.Data.Metrics {
		family, known := healthKitFamily[m.Name]
		if !known {
			continue // unknown identifiers are skipped, not fatal
		}

		for i, dp := range m.Data {
			recordedAt, source := resolveTimestampAndSource(dp)

			if isPairedIdentifier(m.Name) {
				key := pairKey{recordedAt: recordedAt, source: source}
				entry := pending[key]
				if entry == nil {
					entry = &pendingBloodPressure{base: metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: recordedAt, SourceDevice: source}}
					pending[key] = entry
				}
				value := datapointValue(dp)
				if m.Name == hkSystolic {
					entry.systolic = int(value)
				} else {
					entry.diastolic = int(value)
				}
				continue
			}

			built, err := buildSimpleMetric(family, userID, recordedAt, source, m.Units, dp)
			if err != nil {
				skipped = append(skipped, ProcessingError{Family: string(family), Message: err.Error(), IndexInPayload: i})
				continue
			}
			if built != nil {
				metrics = append(metrics, built)
			}
		}
	}

	for _, entry := range pending {
		if entry.systolic == 0 || entry.diastolic == 0 {
			skipped = append(skipped, ProcessingError{Family: string(metric.FamilyBloodPressure), Message: "incomplete systolic/diastolic pair", IndexInPayload: -1})
			continue
		}
		metrics = append(metrics, metric.BloodPressure{Base: entry.base, Systolic: entry.systolic, Diastolic: entry.diastolic})
	}

	for i, w := range payload.Data.Workouts {
		built, err := buildWorkout(userID, w)
		if err != nil {
			skipped = append(skipped, ProcessingError{Family: string(metric.FamilyWorkout), Message: err.Error(), IndexInPayload: i})
			continue
		}
		metrics = append(metrics, built)
	}

	return metrics, skipped
}

type pairKey struct {
	recordedAt time.Time
	source     string
}

type pendingBloodPressure struct {
	base      metric.Base
	systolic  int
	diastolic int
}

func resolveTimestampAndSource(dp DialectADatapoint) (time.Time, string) {
	raw := dp.Date
	if raw == nil {
		raw = dp.End
	}
	if raw == nil {
		raw = dp.Start
	}
	if raw == nil {
		return time.Now().UTC(), dp.Source
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return time.Now().UTC(), dp.Source
	}
	return t.UTC(), dp.Source
}

func datapointValue(dp DialectADatapoint) float64 {
	if dp.Qty != nil {
		return *dp.Qty
	}
	if dp.Value != nil {
		return *dp.Value
	}
	return 0
}

// buildSimpleMetric constructs the single-value families directly
// from one datapoint: heart rate, respiratory, blood glucose, body
// measurement, temperature, activity, and audio exposure. Families
// that need multi-field assembly (sleep stage breakdowns, workouts)
// are handled by their own builders.
func buildSimpleMetric(family metric.Family, userID uuid.UUID, recordedAt time.Time, source, unit string, dp DialectADatapoint) (metric.Metric, error) {
	base := metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: recordedAt, SourceDevice: source}
	value := datapointValue(dp)

	switch family {
	case metric.FamilyHeartRate:
		v := int(value)
		return metric.HeartRate{Base: base, HeartRate: &v}, nil

	case metric.FamilyRespiratory:
		if unit == "%" {
			v := value
			return metric.Respiratory{Base: base, SpO2Percent: &v}, nil
		}
		v := int(value)
		return metric.Respiratory{Base: base, RespiratoryRate: &v}, nil

	case metric.FamilyBloodGlucose:
		return metric.BloodGlucose{Base: base, GlucoseMgDl: value}, nil

	case metric.FamilyBodyMeasurement:
		kg, _, err := normalize(value, orDefault(unit, "kg"))
		if err != nil {
			return nil, err
		}
		v := kg
		return metric.BodyMeasurement{Base: base, WeightKg: &v}, nil

	case metric.FamilyTemperature:
		c, _, err := normalize(value, orDefault(unit, "degC"))
		if err != nil {
			return nil, err
		}
		return metric.Temperature{Base: base, BodyTemperatureC: c}, nil

	case metric.FamilyAudioExposure:
		v := value
		return metric.AudioExposure{Base: base, EnvironmentalDbfs: &v}, nil

	case metric.FamilyEnvironmental:
		return metric.Environmental{Base: base, Kind: "uv_exposure", Value: value, Unit: unit}, nil

	case metric.FamilyActivity:
		return buildActivityDatapoint(base, unit, value)

	case metric.FamilySleep:
		return buildSleepDatapoint(base, dp)

	case metric.FamilyFertility:
		c, _, err := normalize(value, orDefault(unit, "degC"))
		if err != nil {
			return nil, err
		}
		return metric.Fertility{Base: base, BasalBodyTempC: &c}, nil

	case metric.FamilyMenstrual:
		return metric.Menstrual{Base: base}, nil

	case metric.FamilyMindfulness:
		return metric.Mindfulness{Base: base, DurationMinutes: int(value), SessionType: "meditation"}, nil

	case metric.FamilyHygiene:
		secs := int(value)
		return metric.Hygiene{Base: base, EventType: "handwashing", DurationSeconds: &secs}, nil

	case metric.FamilySafetyEvent:
		return metric.SafetyEvent{Base: base, EventType: "walking_steadiness"}, nil

	default:
		return nil, nil
	}
}

func orDefault(unit, def string) string {
	if unit == "" {
		return def
	}
	return unit
}

func buildActivityDatapoint(base metric.Base, unit string, value float64) (metric.Metric, error) {
	switch unit {
	case "count":
		v := int(value)
		return metric.Activity{Base: base, StepCount: &v}, nil
	case "m", "meter", "meters", "km", "kilometer", "kilometers", "mi", "mile", "miles", "ft", "foot", "feet":
		meters, _, err := normalize(value, unit)
		if err != nil {
			return nil, err
		}
		return metric.Activity{Base: base, DistanceMeters: &meters}, nil
	case "kcal", "kilocalorie", "kilocalories", "Cal", "cal", "kJ", "kilojoule", "kilojoules":
		kcal, _, err := normalize(value, unit)
		if err != nil {
			return nil, err
		}
		return metric.Activity{Base: base, ActiveEnergyKcal: &kcal}, nil
	default:
		v := int(value)
		return metric.Activity{Base: base, FlightsClimbed: &v}, nil
	}
}

func buildSleepDatapoint(base metric.Base, dp DialectADatapoint) (metric.Metric, error) {
	sleep := metric.Sleep{Base: base}
	if dp.Start != nil {
		if t, err := time.Parse(time.RFC3339, *dp.Start); err == nil {
			sleep.Start = t.UTC()
		}
	}
	if dp.Extra != nil {
		if eff, ok := dp.Extra["efficiency"].(float64); ok {
			sleep.EfficiencyPercent = &eff
		}
		for key, dst := range map[string]**int{
			"deep":     &sleep.DeepMinutes,
			"rem":      &sleep.RemMinutes,
			"core":     &sleep.LightMinutes,
			"awake":    &sleep.AwakeMinutes,
			"duration": &sleep.DurationMinutes,
		} {
			if v, ok := dp.Extra[key].(float64); ok {
				minutes := int(v)
				*dst = &minutes
			}
		}
	}
	return sleep, nil
}

func buildWorkout(userID uuid.UUID, w DialectAWorkout) (metric.Metric, error) {
	start, err := time.Parse(time.RFC3339, w.Start)
	if err != nil {
		start = time.Now().UTC()
	}
	end, err := time.Parse(time.RFC3339, w.End)
	if err != nil {
		end = time.Now().UTC()
	}

	workout := metric.Workout{
		Base:        metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: end},
		WorkoutType: w.Name,
		Start:       start,
	}

	if w.Extra != nil {
		if v, ok := w.Extra["total_energy_kcal"].(float64); ok {
			workout.TotalEnergyKcal = &v
		}
		if v, ok := w.Extra["distance_meters"].(float64); ok {
			workout.DistanceMeters = &v
		}
		if v, ok := w.Extra["active_energy_kcal"].(float64); ok {
			workout.ActiveEnergyKcal = &v
		}
		if v, ok := w.Extra["avg_heart_rate"].(float64); ok {
			hr := int(v)
			workout.AvgHeartRate = &hr
		}
		if v, ok := w.Extra["max_heart_rate"].(float64); ok {
			hr := int(v)
			workout.MaxHeartRate = &hr
		}
		lat, latOK := w.Extra["latitude"].(float64)
		lon, lonOK := w.Extra["longitude"].(float64)
		if latOK && lonOK {
			workout.Location = &metric.GeoPoint{Latitude: lat, Longitude: lon}
		}
	}

	return workout, nil
}

// mapDialectB converts the internal/canonical format directly: every
// entry already names its target family, so this is a field-table
// lookup rather than an identifier translation.
func mapDialectB(userID uuid.UUID, payload DialectB) ([]metric.Metric, []ProcessingError) {
	var (
		metrics []metric.Metric
		skipped []ProcessingError
	)

	for i, m := range payload.Metrics {
		recordedAt, err := time.Parse(time.RFC3339, m.RecordedAt)
		if err != nil {
			recordedAt = time.Now().UTC()
		}
		base := metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: recordedAt, SourceDevice: m.SourceDevice}

		build, ok := dialectBBuilders[metric.Family(m.Family)]
		if !ok {
			skipped = append(skipped, ProcessingError{Family: m.Family, Message: "unknown family", IndexInPayload: i})
			continue
		}

		built, err := build(base, m.Fields, m.Strings)
		if err != nil {
			skipped = append(skipped, ProcessingError{Family: m.Family, Message: err.Error(), IndexInPayload: i})
			continue
		}
		metrics = append(metrics, built)
	}

	for _, w := range payload.Workouts {
		start, err := time.Parse(time.RFC3339, w.Start)
		if err != nil {
			start = time.Now().UTC()
		}
		end, err := time.Parse(time.RFC3339, w.End)
		if err != nil {
			end = time.Now().UTC()
		}

		workout := metric.Workout{
			Base:        metric.Base{ID: uuid.New(), UserID: userID, RecordedAt: end, SourceDevice: w.SourceDevice},
			WorkoutType: w.WorkoutType,
			Start:       start,
		}
		if v, ok := w.Fields["total_energy_kcal"]; ok {
			workout.TotalEnergyKcal = &v
		}
		if v, ok := w.Fields["distance_meters"]; ok {
			workout.DistanceMeters = &v
		}
		if v, ok := w.Fields["active_energy_kcal"]; ok {
			workout.ActiveEnergyKcal = &v
		}
		if v, ok := w.Fields["avg_heart_rate"]; ok {
			hr := int(v)
			workout.AvgHeartRate = &hr
		}
		if v, ok := w.Fields["max_heart_rate"]; ok {
			hr := int(v)
			workout.MaxHeartRate = &hr
		}
		lat, latOK := w.Fields["latitude"]
		lon, lonOK := w.Fields["longitude"]
		if latOK && lonOK {
			workout.Location = &metric.GeoPoint{Latitude: lat, Longitude: lon}
		}

		metrics = append(metrics, workout)
	}

	return metrics, skipped
}

type dialectBBuilder func(base metric.Base, fields map[string]float64, strs map[string]string) (metric.Metric, error)

var dialectBBuilders = map[metric.Family]dialectBBuilder{
	metric.FamilyHeartRate: func(base metric.Base, f map[string]float64, _ map[string]string) (metric.Metric, error) {
		hr := metric.HeartRate{Base: base}
		if v, ok := f["heart_rate"]; ok {
			iv := int(v)
			hr.HeartRate = &iv
		}
		if v, ok := f["resting_heart_rate"]; ok {
			iv := int(v)
			hr.RestingHeartRate = &iv
		}
		if v, ok := f["heart_rate_variability"]; ok {
			hr.HeartRateVariability = &v
		}
		if v, ok := f["vo2_max"]; ok {
			hr.VO2Max = &v
		}
		return hr, nil
	},
	metric.FamilyBloodPressure: func(base metric.Base, f map[string]float64, _ map[string]string) (metric.Metric, error) {
		return metric.BloodPressure{Base: base, Systolic: int(f["systolic"]), Diastolic: int(f["diastolic"])}, nil
	},
	metric.FamilySleep: func(base metric.Base, f map[string]float64, _ map[string]string) (metric.Metric, error) {
		sleep := metric.Sleep{Base: base}
		if v, ok := f["efficiency_percent"]; ok {
			sleep.EfficiencyPercent = &v
		}
		if v, ok := f["duration_minutes"]; ok {
			iv := int(v)
			sleep.DurationMinutes = &iv
		}
		return sleep, nil
	},
	metric.FamilyActivity: func(base metric.Base, f map[string]float64, _ map[string]string) (metric.Metric, error) {
		a := metric.Activity{Base: base}
		if v, ok := f["step_count"]; ok {
			iv := int(v)
			a.StepCount = &iv
		}
		if v, ok := f["distance_meters"]; ok {
			a.DistanceMeters = &v
		}
		if v, ok := f["active_energy_kcal"]; ok {
			a.ActiveEnergyKcal = &v
		}
		if v, ok := f["basal_energy_kcal"]; ok {
			a.BasalEnergyKcal = &v
		}
		return a, nil
	},
	metric.FamilyRespiratory: func(base metric.Base, f map[string]float64, _ map[string]string) (metric.Metric, error) {
		r := metric.Respiratory{Base: base}
		if v, ok := f["respiratory_rate"]; ok {
			iv := int(v)
			r.RespiratoryRate = &iv
		}
		if v, ok := f["spo2_percent"]; ok {
			r.SpO2Percent = &v
		}
		return r, nil
	},
	metric.FamilyBloodGlucose: func(base metric.Base, f map[string]float64, strs map[string]string) (metric.Metric, error) {
		bg := metric.BloodGlucose{Base: base, GlucoseMgDl: f["glucose_mg_dl"], MealContext: strs["meal_context"]}
		if v, ok := f["insulin_units"]; ok {
			bg.InsulinUnits = &v
		}
		return bg, nil
	},
	metric.FamilyEnvironmental: func(base metric.Base, f map[string]float64, strs map[string]string) (metric.Metric, error) {
		return metric.Environmental{Base: base, Kind: strs["kind"], Value: f["value"], Unit: strs["unit"]}, nil
	},
	metric.FamilyHygiene: func(base metric.Base, f map[string]float64, strs map[string]string) (metric.Metric, error) {
		h := metric.Hygiene{Base: base, EventType: strs["event_type"]}
		if v, ok := f["duration_seconds"]; ok {
			iv := int(v)
			h.DurationSeconds = &iv
		}
		return h, nil
	},
	metric.FamilyMenstrual: func(base metric.Base, f map[string]float64, strs map[string]string) (metric.Metric, error) {
		m := metric.Menstrual{Base: base, FlowLevel: strs["flow_level"]}
		if v, ok := f["cycle_day"]; ok {
			iv := int(v)
			m.CycleDay = &iv
		}
		return m, nil
	},
	metric.FamilyFertility: func(base metric.Base, f map[string]float64, strs map[string]string) (metric.Metric, error) {
		ferti := metric.Fertility{Base: base, OvulationTestResult: strs["ovulation_test_result"], CervicalMucusQuality: strs["cervical_mucus_quality"]}
		if v, ok := f["basal_body_temp_c"]; ok {
			ferti.BasalBodyTempC = &v
		}
		return ferti, nil
	},
	metric.FamilyTemperature: func(base metric.Base, f map[string]float64, strs map[string]string) (metric.Metric, error) {
		return metric.Temperature{Base: base, BodyTemperatureC: f["body_temperature_c"], Context: strs["context"]}, nil
	},
	metric.FamilyBodyMeasurement: func(base metric.Base, f map[string]float64, _ map[string]string) (metric.Metric, error) {
		bm := metric.BodyMeasurement{Base: base}
		if v, ok := f["weight_kg"]; ok {
			bm.WeightKg = &v
		}
		if v, ok := f["height_cm"]; ok {
			bm.HeightCm = &v
		}
		if v, ok := f["body_fat_percent"]; ok {
			bm.BodyFatPercent = &v
		}
		if v, ok := f["waist_circumference_cm"]; ok {
			bm.WaistCircumferenceCm = &v
		}
		return bm, nil
	},
	metric.FamilyNutrition: func(base metric.Base, f map[string]float64, strs map[string]string) (metric.Metric, error) {
		n := metric.Nutrition{Base: base, NutrientType: strs["nutrient_type"], AmountGrams: f["amount_grams"]}
		if v, ok := f["calories"]; ok {
			n.Calories = &v
		}
		return n, nil
	},
	metric.FamilyMentalHealth: func(base metric.Base, f map[string]float64, _ map[string]string) (metric.Metric, error) {
		mh := metric.MentalHealth{Base: base}
		if v, ok := f["mood_score"]; ok {
			iv := int(v)
			mh.MoodScore = &iv
		}
		if v, ok := f["stress_level"]; ok {
			iv := int(v)
			mh.StressLevel = &iv
		}
		if v, ok := f["anxiety_level"]; ok {
			iv := int(v)
			mh.AnxietyLevel = &iv
		}
		return mh, nil
	},
	metric.FamilyMindfulness: func(base metric.Base, f map[string]float64, strs map[string]string) (metric.Metric, error) {
		return metric.Mindfulness{Base: base, DurationMinutes: int(f["duration_minutes"]), SessionType: strs["session_type"]}, nil
	},
	metric.FamilySafetyEvent: func(base metric.Base, f map[string]float64, strs map[string]string) (metric.Metric, error) {
		se := metric.SafetyEvent{Base: base, EventType: strs["event_type"], Severity: strs["severity"]}
		lat, latOK := f["latitude"]
		lon, lonOK := f["longitude"]
		if latOK && lonOK {
			se.Location = &metric.GeoPoint{Latitude: lat, Longitude: lon}
		}
		return se, nil
	},
	metric.FamilySymptom: func(base metric.Base, _ map[string]float64, strs map[string]string) (metric.Metric, error) {
		return metric.Symptom{Base: base, SymptomType: strs["symptom_type"], Severity: strs["severity"]}, nil
	},
	metric.FamilyAudioExposure: func(base metric.Base, f map[string]float64, _ map[string]string) (metric.Metric, error) {
		ae := metric.AudioExposure{Base: base}
		if v, ok := f["environmental_dbfs"]; ok {
			ae.EnvironmentalDbfs = &v
		}
		if v, ok := f["headphone_dbfs"]; ok {
			ae.HeadphoneDbfs = &v
		}
		if v, ok := f["duration_minutes"]; ok {
			iv := int(v)
			ae.DurationMinutes = &iv
		}
		return ae, nil
	},
	metric.FamilyWorkout: func(base metric.Base, f map[string]float64, strs map[string]string) (metric.Metric, error) {
		return metric.Workout{Base: base, WorkoutType: strs["workout_type"]}, nil
	},
}
