package metric

import (
	"fmt"
	"time"

	"go.healthexport.dev/ingest/internal/config"
)

// HeartRate carries an instantaneous or summarized heart-rate sample.
// The payload processor fills HeartRate from a sample's qty or value
// field; avg/max fields are not read.
type HeartRate struct {
	Base
	HeartRate            *int
	RestingHeartRate     *int
	HeartRateVariability *float64
	VO2Max               *float64
	Context              string
}

func (HeartRate) Family() Family { return FamilyHeartRate }

func (m HeartRate) Validate(cfg *config.ValidationConfig) error {
	if m.HeartRate != nil && (*m.HeartRate < cfg.HeartRateMin || *m.HeartRate > cfg.HeartRateMax) {
		return rangeErr("heart_rate", *m.HeartRate, cfg.HeartRateMin, cfg.HeartRateMax)
	}
	if m.RestingHeartRate != nil && (*m.RestingHeartRate < cfg.HeartRateMin || *m.RestingHeartRate > cfg.HeartRateMax) {
		return rangeErr("resting_heart_rate", *m.RestingHeartRate, cfg.HeartRateMin, cfg.HeartRateMax)
	}
	if m.HeartRateVariability != nil && *m.HeartRateVariability < 0 {
		return fmt.Errorf("heart_rate_variability must be non-negative, got %v", *m.HeartRateVariability)
	}
	if m.VO2Max != nil && (*m.VO2Max < cfg.VO2MaxMin || *m.VO2Max > cfg.VO2MaxMax) {
		return rangeErr("vo2_max", *m.VO2Max, cfg.VO2MaxMin, cfg.VO2MaxMax)
	}
	return nil
}

// BloodPressure carries a paired systolic/diastolic reading; unlike
// most families both values are required.
type BloodPressure struct {
	Base
	Systolic  int
	Diastolic int
	Pulse     *int
}

func (BloodPressure) Family() Family { return FamilyBloodPressure }

func (m BloodPressure) Validate(cfg *config.ValidationConfig) error {
	if m.Systolic < cfg.SystolicMin || m.Systolic > cfg.SystolicMax {
		return rangeErr("systolic", m.Systolic, cfg.SystolicMin, cfg.SystolicMax)
	}
	if m.Diastolic < cfg.DiastolicMin || m.Diastolic > cfg.DiastolicMax {
		return rangeErr("diastolic", m.Diastolic, cfg.DiastolicMin, cfg.DiastolicMax)
	}
	if m.Systolic <= m.Diastolic {
		return fmt.Errorf("systolic (%d) must exceed diastolic (%d)", m.Systolic, m.Diastolic)
	}
	if m.Pulse != nil && (*m.Pulse < cfg.HeartRateMin || *m.Pulse > cfg.HeartRateMax) {
		return rangeErr("pulse", *m.Pulse, cfg.HeartRateMin, cfg.HeartRateMax)
	}
	return nil
}

// Sleep carries one sleep session's stage breakdown. RecordedAt is
// the session end time; Start marks when the session began.
type Sleep struct {
	Base
	Start             time.Time
	DurationMinutes   *int
	DeepMinutes       *int
	RemMinutes        *int
	LightMinutes      *int
	AwakeMinutes      *int
	EfficiencyPercent *float64
}

func (Sleep) Family() Family { return FamilySleep }

func (m Sleep) Validate(cfg *config.ValidationConfig) error {
	if !m.Start.Before(m.RecordedAt) {
		return fmt.Errorf("sleep start (%s) must precede end (%s)", m.Start, m.RecordedAt)
	}
	if m.EfficiencyPercent != nil && (*m.EfficiencyPercent < cfg.SleepEfficiencyMin || *m.EfficiencyPercent > cfg.SleepEfficiencyMax) {
		return rangeErr("sleep_efficiency", *m.EfficiencyPercent, cfg.SleepEfficiencyMin, cfg.SleepEfficiencyMax)
	}

	sessionMinutes := int(m.RecordedAt.Sub(m.Start).Minutes())

	if m.DurationMinutes != nil {
		if *m.DurationMinutes <= 0 {
			return fmt.Errorf("sleep duration must be positive, got %d", *m.DurationMinutes)
		}
		diff := *m.DurationMinutes - sessionMinutes
		if diff < 0 {
			diff = -diff
		}
		if diff > cfg.SleepDurationToleranceMin {
			return fmt.Errorf("sleep duration %d min disagrees with session length %d min by more than %d min",
				*m.DurationMinutes, sessionMinutes, cfg.SleepDurationToleranceMin)
		}
	}

	stageSum := 0
	for _, stage := range []*int{m.DeepMinutes, m.RemMinutes, m.LightMinutes, m.AwakeMinutes} {
		if stage == nil {
			continue
		}
		if *stage < 0 {
			return fmt.Errorf("sleep stage minutes must be non-negative, got %d", *stage)
		}
		stageSum += *stage
	}
	if stageSum > sessionMinutes {
		return fmt.Errorf("sleep stage minutes sum (%d) exceeds session length (%d min)", stageSum, sessionMinutes)
	}

	return nil
}

// Activity aggregates a day's (or shorter window's) motion data.
// Multiple Activity samples for the same user+timestamp within one
// batch are summed rather than overwritten (Family.Accumulating).
type Activity struct {
	Base
	StepCount        *int
	DistanceMeters   *float64
	FlightsClimbed   *int
	ActiveEnergyKcal *float64
	BasalEnergyKcal  *float64
}

func (Activity) Family() Family { return FamilyActivity }

func (m Activity) Validate(cfg *config.ValidationConfig) error {
	if m.StepCount != nil && (*m.StepCount < cfg.StepCountMin || *m.StepCount > cfg.StepCountMax) {
		return rangeErr("step_count", *m.StepCount, cfg.StepCountMin, cfg.StepCountMax)
	}
	if m.DistanceMeters != nil {
		maxMeters := cfg.DistanceMaxKM * 1000
		if *m.DistanceMeters < 0 || *m.DistanceMeters > maxMeters {
			return rangeErr("distance_meters", *m.DistanceMeters, 0, maxMeters)
		}
	}
	if m.ActiveEnergyKcal != nil && (*m.ActiveEnergyKcal < 0 || *m.ActiveEnergyKcal > cfg.CaloriesMax) {
		return rangeErr("active_energy_kcal", *m.ActiveEnergyKcal, 0, cfg.CaloriesMax)
	}
	if m.BasalEnergyKcal != nil && (*m.BasalEnergyKcal < 0 || *m.BasalEnergyKcal > cfg.CaloriesMax) {
		return rangeErr("basal_energy_kcal", *m.BasalEnergyKcal, 0, cfg.CaloriesMax)
	}
	if m.FlightsClimbed != nil && *m.FlightsClimbed < 0 {
		return fmt.Errorf("flights_climbed must be non-negative, got %d", *m.FlightsClimbed)
	}
	return nil
}

// AggregateWith sums two Activity samples taken at the same instant,
// combining nil fields by falling back to whichever side has a
// value. Mirrors the original ingest pipeline's per-family
// accumulation rule for otherwise append-only daily totals.
func (m Activity) AggregateWith(other Activity) Activity {
	m.StepCount = sumIntPtr(m.StepCount, other.StepCount)
	m.DistanceMeters = sumFloatPtr(m.DistanceMeters, other.DistanceMeters)
	m.FlightsClimbed = sumIntPtr(m.FlightsClimbed, other.FlightsClimbed)
	m.ActiveEnergyKcal = sumFloatPtr(m.ActiveEnergyKcal, other.ActiveEnergyKcal)
	m.BasalEnergyKcal = sumFloatPtr(m.BasalEnergyKcal, other.BasalEnergyKcal)
	return m
}

func sumIntPtr(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	sum := *a + *b
	return &sum
}

func sumFloatPtr(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	sum := *a + *b
	return &sum
}

// Respiratory carries breathing rate and blood oxygen saturation.
// SpO2 below the configured critical threshold is flagged but still
// accepted: the service logs, it does not diagnose.
type Respiratory struct {
	Base
	RespiratoryRate *int
	SpO2Percent     *float64
}

func (Respiratory) Family() Family { return FamilyRespiratory }

func (m Respiratory) Validate(cfg *config.ValidationConfig) error {
	if m.RespiratoryRate != nil && (*m.RespiratoryRate < cfg.RespiratoryRateMin || *m.RespiratoryRate > cfg.RespiratoryRateMax) {
		return rangeErr("respiratory_rate", *m.RespiratoryRate, cfg.RespiratoryRateMin, cfg.RespiratoryRateMax)
	}
	if m.SpO2Percent != nil && (*m.SpO2Percent < cfg.SpO2Min || *m.SpO2Percent > 100) {
		return rangeErr("spo2_percent", *m.SpO2Percent, cfg.SpO2Min, 100)
	}
	return nil
}

// IsCritical reports whether the SpO2 reading is below the
// configured critical threshold. It never blocks ingest; nothing in
// the ingest path calls it.
func (m Respiratory) IsCritical(cfg *config.ValidationConfig) bool {
	return m.SpO2Percent != nil && *m.SpO2Percent < cfg.SpO2CriticalBelow
}

// BloodGlucose carries a single glucose reading in mg/dL. The payload
// processor stores the incoming value as-is; it does not convert
// mmol/L readings.
type BloodGlucose struct {
	Base
	GlucoseMgDl  float64
	InsulinUnits *float64
	MealContext  string
}

func (BloodGlucose) Family() Family { return FamilyBloodGlucose }

// GlucoseClass buckets a reading against the standard clinical
// thresholds. Informational only: it never gates ingest, and nothing
// in the ingest or query path calls Classify.
type GlucoseClass string

const (
	GlucoseHypoglycemicCritical GlucoseClass = "hypoglycemic_critical"
	GlucoseNormalFasting        GlucoseClass = "normal_fasting"
	GlucosePreDiabetic          GlucoseClass = "pre_diabetic"
	GlucoseDiabeticControlled   GlucoseClass = "diabetic_controlled"
	GlucoseDiabeticUncontrolled GlucoseClass = "diabetic_uncontrolled"
	GlucoseMedicalEmergency     GlucoseClass = "medical_emergency"
)

// Classify maps the reading onto its clinical bucket: <54 is critical
// hypoglycemia, >=400 is an emergency at the other extreme, and the
// fasting/pre-diabetic/diabetic bands follow the ADA cutoffs
// (100/126/180 mg/dL).
func (m BloodGlucose) Classify() GlucoseClass {
	switch {
	case m.GlucoseMgDl < 54:
		return GlucoseHypoglycemicCritical
	case m.GlucoseMgDl >= 400:
		return GlucoseMedicalEmergency
	case m.GlucoseMgDl < 100:
		return GlucoseNormalFasting
	case m.GlucoseMgDl < 126:
		return GlucosePreDiabetic
	case m.GlucoseMgDl <= 180:
		return GlucoseDiabeticControlled
	default:
		return GlucoseDiabeticUncontrolled
	}
}

func (m BloodGlucose) Validate(cfg *config.ValidationConfig) error {
	if m.InsulinUnits != nil && (*m.InsulinUnits < 0 || *m.InsulinUnits > cfg.InsulinMaxUnits) {
		return rangeErr("insulin_units", *m.InsulinUnits, 0, cfg.InsulinMaxUnits)
	}
	if m.GlucoseMgDl < cfg.BloodGlucoseMinMgDl || m.GlucoseMgDl > cfg.BloodGlucoseMaxMgDl {
		return rangeErr("glucose_mg_dl", m.GlucoseMgDl, cfg.BloodGlucoseMinMgDl, cfg.BloodGlucoseMaxMgDl)
	}
	return nil
}

// Workout carries one exercise session. New UUID per row: two
// workouts are only deduplicated on (user, start_time), never merged.
type Workout struct {
	Base
	WorkoutType      string
	Start            time.Time
	TotalEnergyKcal  *float64
	ActiveEnergyKcal *float64
	DistanceMeters   *float64
	AvgHeartRate     *int
	MaxHeartRate     *int
	Location         *GeoPoint
}

func (Workout) Family() Family { return FamilyWorkout }

func (m Workout) Validate(cfg *config.ValidationConfig) error {
	if m.WorkoutType == "" {
		return fmt.Errorf("workout_type is required")
	}
	if !m.Start.Before(m.RecordedAt) {
		return fmt.Errorf("workout start (%s) must precede end (%s)", m.Start, m.RecordedAt)
	}
	if m.RecordedAt.Sub(m.Start) > time.Duration(cfg.WorkoutMaxDurationHours)*time.Hour {
		return fmt.Errorf("workout duration exceeds %d hours", cfg.WorkoutMaxDurationHours)
	}
	if m.AvgHeartRate != nil && (*m.AvgHeartRate < cfg.WorkoutHeartRateMin || *m.AvgHeartRate > cfg.WorkoutHeartRateMax) {
		return rangeErr("avg_heart_rate", *m.AvgHeartRate, cfg.WorkoutHeartRateMin, cfg.WorkoutHeartRateMax)
	}
	if m.MaxHeartRate != nil && (*m.MaxHeartRate < cfg.WorkoutHeartRateMin || *m.MaxHeartRate > cfg.WorkoutHeartRateMax) {
		return rangeErr("max_heart_rate", *m.MaxHeartRate, cfg.WorkoutHeartRateMin, cfg.WorkoutHeartRateMax)
	}
	if m.AvgHeartRate != nil && m.MaxHeartRate != nil && *m.MaxHeartRate < *m.AvgHeartRate {
		return fmt.Errorf("max_heart_rate (%d) must be at least avg_heart_rate (%d)", *m.MaxHeartRate, *m.AvgHeartRate)
	}
	if m.TotalEnergyKcal != nil && (*m.TotalEnergyKcal < 0 || *m.TotalEnergyKcal > cfg.CaloriesMax) {
		return rangeErr("total_energy_kcal", *m.TotalEnergyKcal, 0, cfg.CaloriesMax)
	}
	if m.ActiveEnergyKcal != nil && *m.ActiveEnergyKcal < 0 {
		return fmt.Errorf("active_energy_kcal must be non-negative, got %v", *m.ActiveEnergyKcal)
	}
	if m.ActiveEnergyKcal != nil && m.TotalEnergyKcal != nil && *m.ActiveEnergyKcal > *m.TotalEnergyKcal {
		return fmt.Errorf("active_energy_kcal (%v) cannot exceed total_energy_kcal (%v)", *m.ActiveEnergyKcal, *m.TotalEnergyKcal)
	}
	if err := m.Location.validate(cfg); err != nil {
		return err
	}
	return nil
}

// Environmental carries ambient-condition readings (UV index, ambient
// noise, altitude, and similar HealthKit environmental types) that
// don't warrant their own table.
type Environmental struct {
	Base
	Kind  string
	Value float64
	Unit  string
}

func (Environmental) Family() Family { return FamilyEnvironmental }

func (m Environmental) Validate(_ *config.ValidationConfig) error {
	if m.Kind == "" {
		return fmt.Errorf("environmental kind is required")
	}
	return nil
}

// Hygiene carries a logged hygiene event (handwashing, toothbrushing)
// and how long it lasted.
type Hygiene struct {
	Base
	EventType       string
	DurationSeconds *int
}

func (Hygiene) Family() Family { return FamilyHygiene }

func (m Hygiene) Validate(_ *config.ValidationConfig) error {
	if m.EventType == "" {
		return fmt.Errorf("hygiene event_type is required")
	}
	if m.DurationSeconds != nil && *m.DurationSeconds < 0 {
		return fmt.Errorf("hygiene duration_seconds must be non-negative")
	}
	return nil
}

// Menstrual carries a day's cycle-tracking entry.
type Menstrual struct {
	Base
	FlowLevel string
	CycleDay  *int
}

func (Menstrual) Family() Family { return FamilyMenstrual }

func (m Menstrual) Validate(_ *config.ValidationConfig) error {
	if m.CycleDay != nil && *m.CycleDay < 0 {
		return fmt.Errorf("cycle_day must be non-negative")
	}
	return nil
}

// Fertility carries basal body temperature and related ovulation
// signals used for cycle tracking.
type Fertility struct {
	Base
	BasalBodyTempC       *float64
	OvulationTestResult  string
	CervicalMucusQuality string
}

func (Fertility) Family() Family { return FamilyFertility }

func (m Fertility) Validate(cfg *config.ValidationConfig) error {
	if m.BasalBodyTempC != nil && (*m.BasalBodyTempC < cfg.BodyTemperatureMinC || *m.BasalBodyTempC > cfg.BodyTemperatureMaxC) {
		return rangeErr("basal_body_temp_c", *m.BasalBodyTempC, cfg.BodyTemperatureMinC, cfg.BodyTemperatureMaxC)
	}
	return nil
}

// Temperature carries a body temperature reading normalized to
// Celsius, tagged with where it was taken.
type Temperature struct {
	Base
	BodyTemperatureC float64
	Context          string
}

func (Temperature) Family() Family { return FamilyTemperature }

func (m Temperature) Validate(cfg *config.ValidationConfig) error {
	if m.BodyTemperatureC < cfg.BodyTemperatureMinC || m.BodyTemperatureC > cfg.BodyTemperatureMaxC {
		return rangeErr("body_temperature_c", m.BodyTemperatureC, cfg.BodyTemperatureMinC, cfg.BodyTemperatureMaxC)
	}
	return nil
}

// BodyMeasurement carries anthropometric readings normalized to
// kilograms/centimeters.
type BodyMeasurement struct {
	Base
	WeightKg             *float64
	HeightCm             *float64
	BodyFatPercent       *float64
	WaistCircumferenceCm *float64
}

func (BodyMeasurement) Family() Family { return FamilyBodyMeasurement }

func (m BodyMeasurement) Validate(_ *config.ValidationConfig) error {
	if m.WeightKg != nil && (*m.WeightKg <= 0 || *m.WeightKg > 700) {
		return rangeErr("weight_kg", *m.WeightKg, 0, 700)
	}
	if m.HeightCm != nil && (*m.HeightCm <= 0 || *m.HeightCm > 272) {
		return rangeErr("height_cm", *m.HeightCm, 0, 272)
	}
	if m.BodyFatPercent != nil && (*m.BodyFatPercent < 0 || *m.BodyFatPercent > 100) {
		return rangeErr("body_fat_percent", *m.BodyFatPercent, 0, 100)
	}
	return nil
}

// Nutrition carries a logged dietary intake entry.
type Nutrition struct {
	Base
	NutrientType string
	AmountGrams  float64
	Calories     *float64
}

func (Nutrition) Family() Family { return FamilyNutrition }

func (m Nutrition) Validate(cfg *config.ValidationConfig) error {
	if m.NutrientType == "" {
		return fmt.Errorf("nutrition nutrient_type is required")
	}
	if m.AmountGrams < 0 {
		return fmt.Errorf("nutrition amount_grams must be non-negative")
	}
	if m.Calories != nil && (*m.Calories < 0 || *m.Calories > cfg.CaloriesMax) {
		return rangeErr("calories", *m.Calories, 0, cfg.CaloriesMax)
	}
	return nil
}

// MentalHealth carries a self-reported mood/stress/anxiety check-in,
// each on a 1-10 scale.
type MentalHealth struct {
	Base
	MoodScore    *int
	StressLevel  *int
	AnxietyLevel *int
}

func (MentalHealth) Family() Family { return FamilyMentalHealth }

func (m MentalHealth) Validate(_ *config.ValidationConfig) error {
	for name, v := range map[string]*int{
		"mood_score": m.MoodScore, "stress_level": m.StressLevel, "anxiety_level": m.AnxietyLevel,
	} {
		if v != nil && (*v < 1 || *v > 10) {
			return rangeErr(name, *v, 1, 10)
		}
	}
	return nil
}

// Mindfulness carries a logged meditation/breathing session.
type Mindfulness struct {
	Base
	DurationMinutes int
	SessionType     string
}

func (Mindfulness) Family() Family { return FamilyMindfulness }

func (m Mindfulness) Validate(_ *config.ValidationConfig) error {
	if m.DurationMinutes <= 0 {
		return fmt.Errorf("mindfulness duration_minutes must be positive")
	}
	return nil
}

// SafetyEvent carries a device-detected safety signal (fall, hard
// fall, crash) with severity and optional location.
type SafetyEvent struct {
	Base
	EventType string
	Severity  string
	Location  *GeoPoint
}

func (SafetyEvent) Family() Family { return FamilySafetyEvent }

func (m SafetyEvent) Validate(cfg *config.ValidationConfig) error {
	if m.EventType == "" {
		return fmt.Errorf("safety_event event_type is required")
	}
	return m.Location.validate(cfg)
}

// Symptom carries a self-reported symptom entry.
type Symptom struct {
	Base
	SymptomType string
	Severity    string
}

func (Symptom) Family() Family { return FamilySymptom }

func (m Symptom) Validate(_ *config.ValidationConfig) error {
	if m.SymptomType == "" {
		return fmt.Errorf("symptom symptom_type is required")
	}
	return nil
}

// AudioExposure carries environmental or headphone sound-level
// exposure, in decibels relative to full scale.
type AudioExposure struct {
	Base
	EnvironmentalDbfs *float64
	HeadphoneDbfs     *float64
	DurationMinutes   *int
}

func (AudioExposure) Family() Family { return FamilyAudioExposure }

func (m AudioExposure) Validate(cfg *config.ValidationConfig) error {
	if m.EnvironmentalDbfs != nil && (*m.EnvironmentalDbfs < 0 || *m.EnvironmentalDbfs > cfg.AudioExposureMaxDbfs) {
		return rangeErr("environmental_dbfs", *m.EnvironmentalDbfs, 0, cfg.AudioExposureMaxDbfs)
	}
	if m.HeadphoneDbfs != nil && (*m.HeadphoneDbfs < 0 || *m.HeadphoneDbfs > cfg.AudioExposureMaxDbfs) {
		return rangeErr("headphone_dbfs", *m.HeadphoneDbfs, 0, cfg.AudioExposureMaxDbfs)
	}
	return nil
}
