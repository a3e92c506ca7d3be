package printer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestIsPushStatus(t *testing.T) {
	assert.True(t, IsPushStatus(decode(t, `{"print":{"command":"push_status","gcode_state":"RUNNING"}}`)))
	assert.False(t, IsPushStatus(decode(t, `{"print":{"command":"stop","result":"success"}}`)))
	assert.False(t, IsPushStatus(decode(t, `{"print":{"result":"success"}}`)))
	assert.False(t, IsPushStatus(decode(t, `{"system":{"command":"push_status"}}`)))
	assert.False(t, IsPushStatus(decode(t, `{}`)))
	assert.False(t, IsPushStatus(nil))
}

func TestReplyAccessors(t *testing.T) {
	r := Reply(decode(t, `{"print":{"result":"success"}}`))
	assert.True(t, r.Succeeded())
	assert.Equal(t, "success", r.Result())

	r = Reply(decode(t, `{"print":{"result":"fail","reason":"no sdcard"}}`))
	assert.False(t, r.Succeeded())
	assert.Equal(t, "no sdcard", r.Reason())

	assert.False(t, Reply(nil).Succeeded())
	assert.Equal(t, "", Reply{}.Result())
}

func TestStatusAccessors(t *testing.T) {
	s := Status(decode(t, `{"print":{"command":"push_status","gcode_state":"RUNNING","mc_percent":42,"print_error":0}}`))
	assert.Equal(t, "RUNNING", s.GcodeState())
	pct, ok := s.Percent()
	assert.True(t, ok)
	assert.Equal(t, 42, pct)
	assert.EqualValues(t, 0, s.PrintError())

	s = Status(decode(t, `{"print":{"command":"push_status","print_error":83935249}}`))
	assert.EqualValues(t, 83935249, s.PrintError())
	_, ok = s.Percent()
	assert.False(t, ok)
	assert.Equal(t, "", s.GcodeState())
}
