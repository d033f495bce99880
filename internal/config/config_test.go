package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate_RejectsBadSectorBoundaries(t *testing.T) {
	c := Default()
	c.SectorBoundaries = []float64{0, 1.2}
	require.Error(t, c.Validate())
}

func TestValidate_RejectsUnknownCoachingMode(t *testing.T) {
	c := Default()
	c.CoachingMode = "pro"
	require.Error(t, c.Validate())
}

func TestValidate_RejectsNonPositiveTelemetryPollHz(t *testing.T) {
	c := Default()
	c.TelemetryPollHz = 0
	require.Error(t, c.Validate())
}

func TestSectorBoundariesFor_PrefersPerTrackOverride(t *testing.T) {
	c := Default()
	c.PerTrackSectors["spa"] = []float64{0, 0.5}
	require.Equal(t, []float64{0, 0.5}, c.SectorBoundariesFor("spa"))
	require.Equal(t, c.SectorBoundaries, c.SectorBoundariesFor("monza"))
}

func TestClone_DeepCopiesSlicesAndMaps(t *testing.T) {
	c := Default()
	clone := c.Clone()
	clone.SectorBoundaries[0] = 0.9
	clone.PerTrackSectors["spa"] = []float64{1}

	require.NotEqual(t, c.SectorBoundaries[0], clone.SectorBoundaries[0])
	require.NotContains(t, c.PerTrackSectors, "spa")
}

func TestToJSONFromJSON_RoundTrips(t *testing.T) {
	c := Default()
	c.CoachingMode = "advanced"
	data, err := c.ToJSON()
	require.NoError(t, err)

	got := &Config{}
	require.NoError(t, got.FromJSON(data))
	require.Equal(t, "advanced", got.CoachingMode)
}

func TestFromJSON_NeverOverwritesAPIKey(t *testing.T) {
	c := Default()
	c.GeminiAPIKey = "secret"
	require.NoError(t, c.FromJSON([]byte(`{"coaching_mode": "race"}`)))
	require.Equal(t, "secret", c.GeminiAPIKey, "GeminiAPIKey is json:\"-\" and must survive overlay")
}
