package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "device-1", cfg.DeviceID)
	assert.Empty(t, cfg.FencesFile)

	tr := cfg.Tracking
	assert.Equal(t, 3, tr.MinZoomLevel)
	assert.Equal(t, 20, tr.MaxZoomLevel)
	assert.Equal(t, 14, tr.InitialZoomLevel)
	assert.Equal(t, 10.0, tr.AccuracyThresholdMeters)
	assert.Equal(t, "best_for_navigation", tr.SampleAccuracy)
	assert.Equal(t, 10*time.Second, tr.SampleInterval)
	assert.Equal(t, 50.0, tr.SampleMinDistanceMeters)
	assert.Equal(t, 0.05, tr.ViewportSpan)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("DEVICE_ID", "phone-7")
	t.Setenv("MAX_ZOOM_LEVEL", "18")
	t.Setenv("SAMPLE_INTERVAL", "2s")
	t.Setenv("ACCURACY_THRESHOLD_METERS", "25.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, "phone-7", cfg.DeviceID)
	assert.Equal(t, 18, cfg.Tracking.MaxZoomLevel)
	assert.Equal(t, 2*time.Second, cfg.Tracking.SampleInterval)
	assert.Equal(t, 25.5, cfg.Tracking.AccuracyThresholdMeters)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("MIN_ZOOM_LEVEL", "three")

	_, err := Load()
	assert.Error(t, err)
}
