package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationConfigDefaults(t *testing.T) {
	c := NewValidationConfig(func(string) string { return "" })

	assert.Equal(t, 15, c.HeartRateMin)
	assert.Equal(t, 300, c.HeartRateMax)
	assert.Equal(t, 0, c.StepCountMin)
	assert.Equal(t, 200_000, c.StepCountMax)
	assert.Equal(t, -90.0, c.LatitudeMin)
	assert.Equal(t, 90.0, c.LatitudeMax)
}

func TestNewValidationConfigOverride(t *testing.T) {
	env := map[string]string{
		"VALIDATION_HEART_RATE_MIN": "20",
		"VALIDATION_HEART_RATE_MAX": "220",
		"VALIDATION_CHUNK_SIZE":     "1000",
	}

	c := NewValidationConfig(func(k string) string { return env[k] })

	assert.Equal(t, 20, c.HeartRateMin)
	assert.Equal(t, 220, c.HeartRateMax)
	assert.Equal(t, 1000, c.ChunkSize)
}

func TestNewValidationConfigPanicsOnInvertedBounds(t *testing.T) {
	env := map[string]string{
		"VALIDATION_HEART_RATE_MIN": "300",
		"VALIDATION_HEART_RATE_MAX": "15",
	}

	require.Panics(t, func() {
		NewValidationConfig(func(k string) string { return env[k] })
	})
}

func TestNewValidationConfigPanicsOnChunkSizeOverflow(t *testing.T) {
	env := map[string]string{
		"VALIDATION_CHUNK_SIZE": "10000",
	}

	require.Panics(t, func() {
		NewValidationConfig(func(k string) string { return env[k] })
	})
}
