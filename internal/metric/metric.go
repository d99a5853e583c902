// Package metric defines the tagged union of health telemetry sample
// types the ingest pipeline accepts, and the validation rules each
// one must pass before it reaches the batch executor.
package metric

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.healthexport.dev/ingest/internal/config"
)

// Family identifies which concrete sample type a Metric carries. It
// is not itself a table name: the batch executor maps each family to
// its table through batch.TableFor.
type Family string

const (
	FamilyHeartRate       Family = "heart_rate"
	FamilyBloodPressure   Family = "blood_pressure"
	FamilySleep           Family = "sleep"
	FamilyActivity        Family = "activity"
	FamilyRespiratory     Family = "respiratory"
	FamilyBloodGlucose    Family = "blood_glucose"
	FamilyWorkout         Family = "workout"
	FamilyEnvironmental   Family = "environmental"
	FamilyHygiene         Family = "hygiene"
	FamilyMenstrual       Family = "menstrual"
	FamilyFertility       Family = "fertility"
	FamilyTemperature     Family = "temperature"
	FamilyBodyMeasurement Family = "body_measurement"
	FamilyNutrition       Family = "nutrition"
	FamilyMentalHealth    Family = "mental_health"
	FamilyMindfulness     Family = "mindfulness"
	FamilySafetyEvent     Family = "safety_event"
	FamilySymptom         Family = "symptom"
	FamilyAudioExposure   Family = "audio_exposure"
)

// AllFamilies lists every family the batch executor and query engine
// iterate over when no single family is requested.
var AllFamilies = []Family{
	FamilyHeartRate, FamilyBloodPressure, FamilySleep, FamilyActivity,
	FamilyRespiratory, FamilyBloodGlucose, FamilyWorkout, FamilyEnvironmental,
	FamilyHygiene, FamilyMenstrual, FamilyFertility, FamilyTemperature,
	FamilyBodyMeasurement, FamilyNutrition, FamilyMentalHealth, FamilyMindfulness,
	FamilySafetyEvent, FamilySymptom, FamilyAudioExposure,
}

// Accumulating reports whether samples of this family should be
// summed together when multiple records for the same (user,
// recorded_at) arrive in one batch, rather than the last-write-wins
// default.
func (f Family) Accumulating() bool {
	return f == FamilyActivity
}

// Metric is the tagged union every concrete sample type implements.
type Metric interface {
	Family() Family
	GetID() uuid.UUID
	GetUserID() uuid.UUID
	GetRecordedAt() time.Time
	Validate(cfg *config.ValidationConfig) error
}

// Base carries the fields every metric family shares: identity,
// ownership, and the instant the sample describes.
type Base struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	RecordedAt   time.Time
	SourceDevice string
}

func (b Base) GetID() uuid.UUID         { return b.ID }
func (b Base) GetUserID() uuid.UUID     { return b.UserID }
func (b Base) GetRecordedAt() time.Time { return b.RecordedAt }

// GeoPoint is an optional WGS84 location attached to a sample.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

func (p *GeoPoint) validate(cfg *config.ValidationConfig) error {
	if p == nil {
		return nil
	}
	if p.Latitude < cfg.LatitudeMin || p.Latitude > cfg.LatitudeMax {
		return fmt.Errorf("latitude %v outside [%v, %v]", p.Latitude, cfg.LatitudeMin, cfg.LatitudeMax)
	}
	if p.Longitude < cfg.LongitudeMin || p.Longitude > cfg.LongitudeMax {
		return fmt.Errorf("longitude %v outside [%v, %v]", p.Longitude, cfg.LongitudeMin, cfg.LongitudeMax)
	}
	return nil
}

func rangeErr(field string, v, min, max any) error {
	return fmt.Errorf("%s %v outside [%v, %v]", field, v, min, max)
}
