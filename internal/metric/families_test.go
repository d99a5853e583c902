package metric

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.healthexport.dev/ingest/internal/config"
)

func testConfig() *config.ValidationConfig {
	return config.NewValidationConfig(func(string) string { return "" })
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func baseFor(recordedAt time.Time) Base {
	return Base{ID: uuid.New(), UserID: uuid.New(), RecordedAt: recordedAt}
}

func TestHeartRateValidateBoundaries(t *testing.T) {
	cfg := testConfig()
	now := time.Now()

	assert.NoError(t, HeartRate{Base: baseFor(now), HeartRate: intPtr(15)}.Validate(cfg))
	assert.NoError(t, HeartRate{Base: baseFor(now), HeartRate: intPtr(300)}.Validate(cfg))
	assert.Error(t, HeartRate{Base: baseFor(now), HeartRate: intPtr(14)}.Validate(cfg))
	assert.Error(t, HeartRate{Base: baseFor(now), HeartRate: intPtr(301)}.Validate(cfg))
}

func TestBloodPressureValidateRequiresSystolicAboveDiastolic(t *testing.T) {
	cfg := testConfig()
	now := time.Now()

	require.Error(t, BloodPressure{Base: baseFor(now), Systolic: 80, Diastolic: 90}.Validate(cfg))
	require.NoError(t, BloodPressure{Base: baseFor(now), Systolic: 120, Diastolic: 80}.Validate(cfg))

	assert.Error(t, BloodPressure{Base: baseFor(now), Systolic: 49, Diastolic: 30}.Validate(cfg))
	assert.Error(t, BloodPressure{Base: baseFor(now), Systolic: 251, Diastolic: 80}.Validate(cfg))
}

func TestSleepValidateRequiresStartBeforeEnd(t *testing.T) {
	cfg := testConfig()
	end := time.Now()
	start := end.Add(-8 * time.Hour)

	require.NoError(t, Sleep{Base: baseFor(end), Start: start, EfficiencyPercent: floatPtr(92)}.Validate(cfg))
	require.Error(t, Sleep{Base: baseFor(end), Start: end.Add(time.Hour)}.Validate(cfg))

	assert.Error(t, Sleep{Base: baseFor(end), Start: start, EfficiencyPercent: floatPtr(-1)}.Validate(cfg))
	assert.Error(t, Sleep{Base: baseFor(end), Start: start, EfficiencyPercent: floatPtr(101)}.Validate(cfg))
}

func TestActivityAggregateWithSumsFields(t *testing.T) {
	now := time.Now()
	a := Activity{Base: baseFor(now), StepCount: intPtr(1000), DistanceMeters: floatPtr(800)}
	b := Activity{Base: baseFor(now), StepCount: intPtr(500), ActiveEnergyKcal: floatPtr(120)}

	sum := a.AggregateWith(b)

	require.NotNil(t, sum.StepCount)
	assert.Equal(t, 1500, *sum.StepCount)
	require.NotNil(t, sum.DistanceMeters)
	assert.Equal(t, 800.0, *sum.DistanceMeters)
	require.NotNil(t, sum.ActiveEnergyKcal)
	assert.Equal(t, 120.0, *sum.ActiveEnergyKcal)
	assert.True(t, FamilyActivity.Accumulating())
}

func TestActivityValidateStepCountBoundary(t *testing.T) {
	cfg := testConfig()
	now := time.Now()

	assert.NoError(t, Activity{Base: baseFor(now), StepCount: intPtr(50000)}.Validate(cfg))
	assert.Error(t, Activity{Base: baseFor(now), StepCount: intPtr(250000)}.Validate(cfg))
}

func TestWorkoutValidateDurationCeiling(t *testing.T) {
	cfg := testConfig()
	end := time.Now()

	ok := Workout{Base: baseFor(end), WorkoutType: "run", Start: end.Add(-23 * time.Hour)}
	require.NoError(t, ok.Validate(cfg))

	tooLong := Workout{Base: baseFor(end), WorkoutType: "run", Start: end.Add(-25 * time.Hour)}
	require.Error(t, tooLong.Validate(cfg))
}

func TestWorkoutValidateLocationBoundary(t *testing.T) {
	cfg := testConfig()
	end := time.Now()
	start := end.Add(-time.Hour)

	valid := Workout{Base: baseFor(end), WorkoutType: "run", Start: start, Location: &GeoPoint{Latitude: 90, Longitude: 180}}
	require.NoError(t, valid.Validate(cfg))

	invalid := Workout{Base: baseFor(end), WorkoutType: "run", Start: start, Location: &GeoPoint{Latitude: 91, Longitude: 0}}
	require.Error(t, invalid.Validate(cfg))
}

func TestRespiratoryIsCriticalBelowThreshold(t *testing.T) {
	cfg := testConfig()
	now := time.Now()

	critical := Respiratory{Base: baseFor(now), SpO2Percent: floatPtr(89)}
	assert.True(t, critical.IsCritical(cfg))
	assert.NoError(t, critical.Validate(cfg))

	tooLow := Respiratory{Base: baseFor(now), SpO2Percent: floatPtr(69)}
	assert.Error(t, tooLow.Validate(cfg))
}

func TestBloodGlucoseValidateBoundary(t *testing.T) {
	cfg := testConfig()
	now := time.Now()

	assert.NoError(t, BloodGlucose{Base: baseFor(now), GlucoseMgDl: 20}.Validate(cfg))
	assert.NoError(t, BloodGlucose{Base: baseFor(now), GlucoseMgDl: 600}.Validate(cfg))
	assert.Error(t, BloodGlucose{Base: baseFor(now), GlucoseMgDl: 19}.Validate(cfg))
	assert.Error(t, BloodGlucose{Base: baseFor(now), GlucoseMgDl: 601}.Validate(cfg))
}

func TestAllFamiliesCoverage(t *testing.T) {
	assert.Len(t, AllFamilies, 19)

	seen := make(map[Family]bool, len(AllFamilies))
	for _, f := range AllFamilies {
		assert.False(t, seen[f], "duplicate family %s", f)
		seen[f] = true
	}
}

func TestWorkoutValidateHeartRateAndEnergyRelations(t *testing.T) {
	cfg := testConfig()
	end := time.Now()
	start := end.Add(-time.Hour)

	valid := Workout{
		Base: baseFor(end), WorkoutType: "run", Start: start,
		AvgHeartRate: intPtr(140), MaxHeartRate: intPtr(175),
		ActiveEnergyKcal: floatPtr(420), TotalEnergyKcal: floatPtr(510),
	}
	require.NoError(t, valid.Validate(cfg))

	inverted := Workout{
		Base: baseFor(end), WorkoutType: "run", Start: start,
		AvgHeartRate: intPtr(160), MaxHeartRate: intPtr(150),
	}
	require.Error(t, inverted.Validate(cfg))

	energyInverted := Workout{
		Base: baseFor(end), WorkoutType: "run", Start: start,
		ActiveEnergyKcal: floatPtr(600), TotalEnergyKcal: floatPtr(500),
	}
	require.Error(t, energyInverted.Validate(cfg))
}

func TestBloodGlucoseClassify(t *testing.T) {
	now := time.Now()

	cases := []struct {
		mgDl float64
		want GlucoseClass
	}{
		{40, GlucoseHypoglycemicCritical},
		{85, GlucoseNormalFasting},
		{110, GlucosePreDiabetic},
		{150, GlucoseDiabeticControlled},
		{250, GlucoseDiabeticUncontrolled},
		{450, GlucoseMedicalEmergency},
	}
	for _, tc := range cases {
		got := BloodGlucose{Base: baseFor(now), GlucoseMgDl: tc.mgDl}.Classify()
		assert.Equal(t, tc.want, got, "glucose %v", tc.mgDl)
	}
}

func TestBloodGlucoseValidateInsulinBoundary(t *testing.T) {
	cfg := testConfig()
	now := time.Now()

	assert.NoError(t, BloodGlucose{Base: baseFor(now), GlucoseMgDl: 100, InsulinUnits: floatPtr(100)}.Validate(cfg))
	assert.Error(t, BloodGlucose{Base: baseFor(now), GlucoseMgDl: 100, InsulinUnits: floatPtr(101)}.Validate(cfg))
	assert.Error(t, BloodGlucose{Base: baseFor(now), GlucoseMgDl: 100, InsulinUnits: floatPtr(-1)}.Validate(cfg))
}

func TestSleepValidateDurationTolerance(t *testing.T) {
	cfg := testConfig()
	end := time.Now()
	start := end.Add(-8 * time.Hour) // 480 min session

	within := Sleep{Base: baseFor(end), Start: start, DurationMinutes: intPtr(477)}
	require.NoError(t, within.Validate(cfg))

	outside := Sleep{Base: baseFor(end), Start: start, DurationMinutes: intPtr(460)}
	require.Error(t, outside.Validate(cfg))
}

func TestSleepValidateStageSumCeiling(t *testing.T) {
	cfg := testConfig()
	end := time.Now()
	start := end.Add(-6 * time.Hour) // 360 min session

	fits := Sleep{Base: baseFor(end), Start: start, DeepMinutes: intPtr(90), RemMinutes: intPtr(80), LightMinutes: intPtr(150), AwakeMinutes: intPtr(30)}
	require.NoError(t, fits.Validate(cfg))

	overflows := Sleep{Base: baseFor(end), Start: start, DeepMinutes: intPtr(200), RemMinutes: intPtr(100), LightMinutes: intPtr(100)}
	require.Error(t, overflows.Validate(cfg))
}
