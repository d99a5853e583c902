package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.healthexport.dev/ingest/internal/metric"
)

func TestParamsNormalizedDefaults(t *testing.T) {
	p := Params{}.normalized()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, defaultLimit, p.Limit)
}

func TestParamsNormalizedClampsLimit(t *testing.T) {
	p := Params{Limit: 100000}.normalized()
	assert.Equal(t, maxLimit, p.Limit)
}

func TestParamsNormalizedKeepsValidValues(t *testing.T) {
	p := Params{Page: 3, Limit: 50}.normalized()
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 50, p.Limit)
}

func TestQueryHashParamsIncludesDateRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	p := Params{Family: metric.FamilyHeartRate, Page: 1, Limit: 100, StartDate: &start, EndDate: &end}

	hashParams := queryHashParams(p)
	assert.Equal(t, start.Format(time.RFC3339), hashParams["start_date"])
	assert.Equal(t, end.Format(time.RFC3339), hashParams["end_date"])
}

func TestQueryHashParamsOmitsUnsetDates(t *testing.T) {
	p := Params{Family: metric.FamilyHeartRate, Page: 1, Limit: 100}
	hashParams := queryHashParams(p)
	_, hasStart := hashParams["start_date"]
	assert.False(t, hasStart)
}
