package payload

import "go.healthexport.dev/ingest/internal/metric"

// healthKitFamily maps a HealthKit quantity/category type identifier
// to the canonical Family it belongs to. Identifiers absent from this
// table are unknown types and are skipped rather than rejected:
// unknown identifiers are not fatal.
var healthKitFamily = map[string]metric.Family{
	"HKQuantityTypeIdentifierHeartRate":                   metric.FamilyHeartRate,
	"HKQuantityTypeIdentifierRestingHeartRate":            metric.FamilyHeartRate,
	"HKQuantityTypeIdentifierHeartRateVariabilitySDNN":    metric.FamilyHeartRate,
	"HKQuantityTypeIdentifierVO2Max":                      metric.FamilyHeartRate,
	"HKQuantityTypeIdentifierBloodPressureSystolic":       metric.FamilyBloodPressure,
	"HKQuantityTypeIdentifierBloodPressureDiastolic":      metric.FamilyBloodPressure,
	"HKCategoryTypeIdentifierSleepAnalysis":               metric.FamilySleep,
	"HKQuantityTypeIdentifierStepCount":                   metric.FamilyActivity,
	"HKQuantityTypeIdentifierDistanceWalkingRunning":      metric.FamilyActivity,
	"HKQuantityTypeIdentifierFlightsClimbed":              metric.FamilyActivity,
	"HKQuantityTypeIdentifierActiveEnergyBurned":          metric.FamilyActivity,
	"HKQuantityTypeIdentifierBasalEnergyBurned":           metric.FamilyActivity,
	"HKQuantityTypeIdentifierRespiratoryRate":             metric.FamilyRespiratory,
	"HKQuantityTypeIdentifierOxygenSaturation":            metric.FamilyRespiratory,
	"HKQuantityTypeIdentifierBloodGlucose":                metric.FamilyBloodGlucose,
	"HKWorkoutTypeIdentifier":                             metric.FamilyWorkout,
	"HKQuantityTypeIdentifierBodyMass":                    metric.FamilyBodyMeasurement,
	"HKQuantityTypeIdentifierHeight":                      metric.FamilyBodyMeasurement,
	"HKQuantityTypeIdentifierBodyFatPercentage":           metric.FamilyBodyMeasurement,
	"HKQuantityTypeIdentifierBodyTemperature":             metric.FamilyTemperature,
	"HKQuantityTypeIdentifierBasalBodyTemperature":        metric.FamilyFertility,
	"HKCategoryTypeIdentifierMenstrualFlow":               metric.FamilyMenstrual,
	"HKCategoryTypeIdentifierMindfulSession":              metric.FamilyMindfulness,
	"HKCategoryTypeIdentifierHandwashingEvent":            metric.FamilyHygiene,
	"HKCategoryTypeIdentifierAppleWalkingSteadinessEvent": metric.FamilySafetyEvent,
	"HKQuantityTypeIdentifierEnvironmentalAudioExposure":  metric.FamilyAudioExposure,
	"HKQuantityTypeIdentifierHeadphoneAudioExposure":      metric.FamilyAudioExposure,
	"HKQuantityTypeIdentifierUVExposure":                  metric.FamilyEnvironmental,
}

// pairedSystolicDiastolic identifies the two HealthKit types that
// combine into one BloodPressure row when they share a timestamp and
// source: paired readings route into a single combined metric.
const (
	hkSystolic  = "HKQuantityTypeIdentifierBloodPressureSystolic"
	hkDiastolic = "HKQuantityTypeIdentifierBloodPressureDiastolic"
)

func isPairedIdentifier(identifier string) bool {
	return identifier == hkSystolic || identifier == hkDiastolic
}
