package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterJSON(t *testing.T) {
	defer logrus.SetOutput(logrus.StandardLogger().Out)

	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "debug", true, false))

	Module("shamap").WithField("count", 3).Debug("flushed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shamap", line["module"])
	assert.Equal(t, "flushed", line["msg"])
	assert.EqualValues(t, 3, line["count"])
}

func TestSetupWriterBadLevel(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, SetupWriter(&buf, "loud", false, false))
}

func TestFieldsOddCount(t *testing.T) {
	fields := Fields("a", 1, "b")
	assert.Equal(t, 1, fields["a"])
	_, ok := fields["b"]
	assert.False(t, ok)
}

func TestFieldsNonStringKey(t *testing.T) {
	fields := Fields(7, "x", "n", 2)
	assert.Equal(t, logrus.Fields{"n": 2}, fields)
}
