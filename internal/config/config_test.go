package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresBackendURL(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_BASE_URL")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://api.example.test/v1/")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("BACKEND_TIMEOUT", "")
	t.Setenv("ELIGIBILITY_TIMEZONE", "")
	t.Setenv("ANOMALY_SPIKE_THRESHOLD", "")
	t.Setenv("ANOMALY_MIN_DATA_POINTS", "")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test/v1", cfg.Backend.BaseURL)
	assert.Equal(t, time.Duration(0), cfg.Backend.Timeout)
	assert.Equal(t, "meter.reading.submitted", cfg.RabbitMQ.SubmittedRoutingKey)
	assert.Equal(t, 10, cfg.RabbitMQ.PrefetchCount)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, 3.0, cfg.Anomaly.SpikeThreshold)
	assert.Equal(t, 3, cfg.Anomaly.MinDataPointsForDetection)

	loc, err := cfg.Eligibility.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://api.example.test")
	t.Setenv("BACKEND_TIMEOUT", "15s")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("VALIDATION_MAX_INDEX", "5000")
	t.Setenv("ELIGIBILITY_TIMEZONE", "UTC")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 5000.0, cfg.Validation.MaxIndex)
	assert.Equal(t, "UTC", cfg.Eligibility.Timezone)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://api.example.test")
	t.Setenv("ELIGIBILITY_TIMEZONE", "Mars/Olympus")

	_, err := Load()

	assert.Error(t, err)
}

func TestGetEnvAsInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "ten")

	assert.Equal(t, 7, getEnvAsInt("SOME_INT", 7))
}
