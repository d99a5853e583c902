// Package config loads the validation configuration for the ingest
// service from the environment, built once at startup rather than
// read lazily at each call site. A value that does not parse falls
// back to its default; inconsistent bounds or an oversized chunk size
// make construction panic.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// ValidationConfig holds every numeric bound the validation engine
// checks metric samples against, plus the one batch chunk size the
// batch executor starts every family from. All fields are read once from the
// environment (or defaulted) and never mutated afterward.
type ValidationConfig struct {
	HeartRateMin int
	HeartRateMax int

	SystolicMin int
	SystolicMax int

	DiastolicMin int
	DiastolicMax int

	SleepEfficiencyMin float64
	SleepEfficiencyMax float64

	// SleepDurationToleranceMin is the allowed disagreement, in
	// minutes, between a reported sleep duration and the session's
	// start/end span.
	SleepDurationToleranceMin int

	StepCountMin int
	StepCountMax int

	DistanceMaxKM float64
	CaloriesMax   float64

	LatitudeMin  float64
	LatitudeMax  float64
	LongitudeMin float64
	LongitudeMax float64

	WorkoutMaxDurationHours int
	WorkoutHeartRateMin     int
	WorkoutHeartRateMax     int

	SpO2Min              float64
	SpO2CriticalBelow    float64
	RespiratoryRateMin   int
	RespiratoryRateMax   int
	BloodGlucoseMinMgDl  float64
	BloodGlucoseMaxMgDl  float64
	InsulinMaxUnits      float64
	VO2MaxMin            float64
	VO2MaxMax            float64
	BodyTemperatureMinC  float64
	BodyTemperatureMaxC  float64
	AudioExposureMaxDbfs float64

	// ChunkSize is the default number of rows per bulk-insert chunk
	// before the batch executor scales it per family. It is read
	// from VALIDATION_CHUNK_SIZE and shared by every family; no
	// per-family chunk size is read. Construction panics when
	// chunkSize*maxParamsPerRow exceeds Postgres's 65535
	// bound-parameter ceiling.
	ChunkSize int
}

// Getenv matches os.Getenv's signature, letting tests substitute a
// fake environment without touching process-global state.
type Getenv func(string) string

// NewValidationConfig builds a ValidationConfig from environment
// variables prefixed VALIDATION_, applying the defaults the original
// health-export service shipped with. It panics if the resulting
// bounds are internally inconsistent (min >= max), since a
// misconfigured bound would silently reject or silently accept every
// sample for that field.
func NewValidationConfig(getenv Getenv) *ValidationConfig {
	c := &ValidationConfig{
		HeartRateMin:              envInt(getenv, "VALIDATION_HEART_RATE_MIN", 15),
		HeartRateMax:              envInt(getenv, "VALIDATION_HEART_RATE_MAX", 300),
		SystolicMin:               envInt(getenv, "VALIDATION_SYSTOLIC_MIN", 50),
		SystolicMax:               envInt(getenv, "VALIDATION_SYSTOLIC_MAX", 250),
		DiastolicMin:              envInt(getenv, "VALIDATION_DIASTOLIC_MIN", 30),
		DiastolicMax:              envInt(getenv, "VALIDATION_DIASTOLIC_MAX", 150),
		SleepEfficiencyMin:        envFloat(getenv, "VALIDATION_SLEEP_EFFICIENCY_MIN", 0),
		SleepEfficiencyMax:        envFloat(getenv, "VALIDATION_SLEEP_EFFICIENCY_MAX", 100),
		SleepDurationToleranceMin: envInt(getenv, "VALIDATION_SLEEP_DURATION_TOLERANCE_MIN", 5),
		StepCountMin:              envInt(getenv, "VALIDATION_STEP_COUNT_MIN", 0),
		StepCountMax:              envInt(getenv, "VALIDATION_STEP_COUNT_MAX", 200_000),
		DistanceMaxKM:             envFloat(getenv, "VALIDATION_DISTANCE_MAX_KM", 500),
		CaloriesMax:               envFloat(getenv, "VALIDATION_CALORIES_MAX", 20_000),
		LatitudeMin:               envFloat(getenv, "VALIDATION_LATITUDE_MIN", -90),
		LatitudeMax:               envFloat(getenv, "VALIDATION_LATITUDE_MAX", 90),
		LongitudeMin:              envFloat(getenv, "VALIDATION_LONGITUDE_MIN", -180),
		LongitudeMax:              envFloat(getenv, "VALIDATION_LONGITUDE_MAX", 180),
		WorkoutMaxDurationHours:   envInt(getenv, "VALIDATION_WORKOUT_MAX_DURATION_HOURS", 24),
		WorkoutHeartRateMin:       envInt(getenv, "VALIDATION_WORKOUT_HEART_RATE_MIN", 15),
		WorkoutHeartRateMax:       envInt(getenv, "VALIDATION_WORKOUT_HEART_RATE_MAX", 300),
		SpO2Min:                   envFloat(getenv, "VALIDATION_SPO2_MIN", 70),
		SpO2CriticalBelow:         envFloat(getenv, "VALIDATION_SPO2_CRITICAL_BELOW", 90),
		RespiratoryRateMin:        envInt(getenv, "VALIDATION_RESPIRATORY_RATE_MIN", 4),
		RespiratoryRateMax:        envInt(getenv, "VALIDATION_RESPIRATORY_RATE_MAX", 60),
		BloodGlucoseMinMgDl:       envFloat(getenv, "VALIDATION_BLOOD_GLUCOSE_MIN_MG_DL", 20),
		BloodGlucoseMaxMgDl:       envFloat(getenv, "VALIDATION_BLOOD_GLUCOSE_MAX_MG_DL", 600),
		InsulinMaxUnits:           envFloat(getenv, "VALIDATION_INSULIN_MAX_UNITS", 100),
		VO2MaxMin:                 envFloat(getenv, "VALIDATION_VO2_MAX_MIN", 14),
		VO2MaxMax:                 envFloat(getenv, "VALIDATION_VO2_MAX_MAX", 65),
		BodyTemperatureMinC:       envFloat(getenv, "VALIDATION_BODY_TEMPERATURE_MIN_C", 30),
		BodyTemperatureMaxC:       envFloat(getenv, "VALIDATION_BODY_TEMPERATURE_MAX_C", 45),
		AudioExposureMaxDbfs:      envFloat(getenv, "VALIDATION_AUDIO_EXPOSURE_MAX_DBFS", 140),
		ChunkSize:                 envInt(getenv, "VALIDATION_CHUNK_SIZE", 5000),
	}

	if err := c.selfCheck(); err != nil {
		panic(fmt.Errorf("invalid validation configuration: %w", err))
	}

	return c
}

func (c *ValidationConfig) selfCheck() error {
	type bound struct {
		name     string
		min, max float64
	}

	bounds := []bound{
		{"heart_rate", float64(c.HeartRateMin), float64(c.HeartRateMax)},
		{"systolic", float64(c.SystolicMin), float64(c.SystolicMax)},
		{"diastolic", float64(c.DiastolicMin), float64(c.DiastolicMax)},
		{"sleep_efficiency", c.SleepEfficiencyMin, c.SleepEfficiencyMax},
		{"step_count", float64(c.StepCountMin), float64(c.StepCountMax)},
		{"latitude", c.LatitudeMin, c.LatitudeMax},
		{"longitude", c.LongitudeMin, c.LongitudeMax},
		{"workout_heart_rate", float64(c.WorkoutHeartRateMin), float64(c.WorkoutHeartRateMax)},
		{"respiratory_rate", float64(c.RespiratoryRateMin), float64(c.RespiratoryRateMax)},
		{"blood_glucose", c.BloodGlucoseMinMgDl, c.BloodGlucoseMaxMgDl},
		{"vo2_max", c.VO2MaxMin, c.VO2MaxMax},
		{"body_temperature", c.BodyTemperatureMinC, c.BodyTemperatureMaxC},
	}

	for _, b := range bounds {
		if b.min >= b.max {
			return fmt.Errorf("%s_min (%v) must be less than %s_max (%v)", b.name, b.min, b.name, b.max)
		}
	}

	// Postgres bounds a single statement to 65535 parameters; a chunk
	// of ChunkSize rows with up to MaxParamsPerRow columns each must
	// fit under that ceiling for every metric family table.
	const maxParamsPerRow = 13
	if c.ChunkSize*maxParamsPerRow > 65535 {
		return fmt.Errorf("chunk_size %d * %d params/row exceeds the 65535 bound-parameter ceiling", c.ChunkSize, maxParamsPerRow)
	}

	return nil
}

func envInt(getenv Getenv, key string, def int) int {
	v := getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(getenv Getenv, key string, def float64) float64 {
	v := getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// FromEnvironment is a convenience constructor equivalent to
// NewValidationConfig(os.Getenv).
func FromEnvironment() *ValidationConfig {
	return NewValidationConfig(os.Getenv)
}
