package payload

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.healthexport.dev/ingest/internal/metric"
)

func TestCheckStructuralSafetyRejectsDeepNesting(t *testing.T) {
	nested := make([]byte, 0, 64)
	for i := 0; i < 60; i++ {
		nested = append(nested, '[')
	}
	for i := 0; i < 60; i++ {
		nested = append(nested, ']')
	}

	err := checkStructuralSafety(nested, SafetyConfig{MaxDepth: 50, MaxElements: 1000})
	assert.ErrorIs(t, err, ErrStructuralUnsafe)
}

func TestCheckStructuralSafetyRejectsUnterminatedString(t *testing.T) {
	err := checkStructuralSafety([]byte(`{"a": "unterminated`), SafetyConfig{MaxDepth: 50, MaxElements: 1000})
	assert.ErrorIs(t, err, ErrStructuralUnsafe)
}

func TestCheckStructuralSafetyRejectsUnmatchedBrackets(t *testing.T) {
	err := checkStructuralSafety([]byte(`{"a": [1, 2]}}`), SafetyConfig{MaxDepth: 50, MaxElements: 1000})
	assert.ErrorIs(t, err, ErrStructuralUnsafe)
}

func TestCheckStructuralSafetyAcceptsWellFormedPayload(t *testing.T) {
	err := checkStructuralSafety([]byte(`{"data": {"metrics": [{"name": "x", "data": [1,2,3]}]}}`), DefaultSafetyConfig)
	assert.NoError(t, err)
}

func TestNormalizeDistance(t *testing.T) {
	m, _, err := normalize(1, "km")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, m)

	_, _, err = normalize(1, "furlong")
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestNormalizeTemperatureFahrenheit(t *testing.T) {
	c, _, err := normalize(98.6, "degF")
	require.NoError(t, err)
	assert.InDelta(t, 37.0, c, 0.1)
}

func TestNormalizeMassPounds(t *testing.T) {
	kg, _, err := normalize(150, "lbs")
	require.NoError(t, err)
	assert.InDelta(t, 68.04, kg, 0.01)
}

func TestParseWithFallbackDialectA(t *testing.T) {
	userID := uuid.New()
	raw := []byte(`{
		"data": {
			"metrics": [
				{"name": "HKQuantityTypeIdentifierHeartRate", "units": "count/min", "data": [
					{"qty": 72, "date": "2026-01-01T00:00:00Z", "source": "watch"}
				]}
			]
		}
	}`)

	metrics, skipped, err := parseWithFallback(userID, raw)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, metrics, 1)
	assert.Equal(t, metric.FamilyHeartRate, metrics[0].Family())
}

func TestParseWithFallbackDialectB(t *testing.T) {
	userID := uuid.New()
	raw := []byte(`{
		"user_id": "` + userID.String() + `",
		"metrics": [
			{"family": "blood_glucose", "recorded_at": "2026-01-01T00:00:00Z", "fields": {"glucose_mg_dl": 95}}
		]
	}`)

	metrics, skipped, err := parseWithFallback(userID, raw)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, metrics, 1)
	assert.Equal(t, metric.FamilyBloodGlucose, metrics[0].Family())
}

func TestParseWithFallbackBothDialectsFail(t *testing.T) {
	_, _, err := parseWithFallback(uuid.New(), []byte(`not json at all`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestMapDialectAPairsSystolicDiastolic(t *testing.T) {
	userID := uuid.New()
	a := DialectA{}
	a.Data.Metrics = []DialectAMetric{
		{Name: "HKQuantityTypeIdentifierBloodPressureSystolic", Data: []DialectADatapoint{
			{Qty: floatp(120), Date: strp("2026-01-01T00:00:00Z"), Source: "cuff"},
		}},
		{Name: "HKQuantityTypeIdentifierBloodPressureDiastolic", Data: []DialectADatapoint{
			{Qty: floatp(80), Date: strp("2026-01-01T00:00:00Z"), Source: "cuff"},
		}},
	}

	metrics, skipped := mapDialectA(userID, a)
	require.Empty(t, skipped)
	require.Len(t, metrics, 1)

	bp, ok := metrics[0].(metric.BloodPressure)
	require.True(t, ok)
	assert.Equal(t, 120, bp.Systolic)
	assert.Equal(t, 80, bp.Diastolic)
}

func TestMapDialectASkipsUnknownIdentifier(t *testing.T) {
	userID := uuid.New()
	a := DialectA{}
	a.Data.Metrics = []DialectAMetric{
		{Name: "HKQuantityTypeIdentifierSomeUnknownThing", Data: []DialectADatapoint{{Qty: floatp(1)}}},
	}

	metrics, skipped := mapDialectA(userID, a)
	assert.Empty(t, metrics)
	assert.Empty(t, skipped)
}

func floatp(v float64) *float64 { return &v }
func strp(v string) *string     { return &v }
