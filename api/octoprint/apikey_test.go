package octoprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAPIKeyDefaults(t *testing.T) {
	p, err := ParseAPIKey("host=10.0.0.7;pass=12345678")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", p.Host)
	assert.Equal(t, "bblp", p.User)
	assert.Equal(t, "12345678", p.Pass)
	assert.False(t, p.Timelapse)
	assert.Equal(t, "auto", p.BedType)
	assert.True(t, p.BedLevelling)
	assert.True(t, p.FlowCalibration)
	assert.True(t, p.VibrationCalibration)
	assert.True(t, p.LayerInspect)
	assert.Empty(t, p.AMSMapping)
}

func TestParseAPIKeyFull(t *testing.T) {
	p, err := ParseAPIKey("host=h;pass=p;user=u;timelapse=true;bed_type=textured_plate;bed_levelling=false;flow_calibration=false;vibration_calibration=false;layer_inspect=false;ams_mapping=3,1,0")
	require.NoError(t, err)
	assert.Equal(t, "u", p.User)
	assert.True(t, p.Timelapse)
	assert.Equal(t, "textured_plate", p.BedType)
	assert.False(t, p.BedLevelling)
	assert.False(t, p.FlowCalibration)
	assert.False(t, p.VibrationCalibration)
	assert.False(t, p.LayerInspect)
	assert.Equal(t, []int{3, 1, 0}, p.AMSMapping)
}

func TestParseAPIKeyErrors(t *testing.T) {
	for _, raw := range []string{
		"",
		"host=h",                      // no pass
		"pass=p",                      // no host
		"host=h;pass=p;broken",        // entry without '='
		"host=h;pass=p;a=b=c",         // too many '='
		"host=h;pass=p;ams_mapping=x", // non-numeric slot
	} {
		_, err := ParseAPIKey(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}
