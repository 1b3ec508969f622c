package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("debug", "json", &buf)
	t.Cleanup(func() { Init("info", "json") })

	New("documents").WithField("chunks", 3).Debug("search done")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "search done", line["message"])
	assert.Equal(t, "documents", line["component"])
	assert.Equal(t, "debug", line["level"])
	assert.EqualValues(t, 3, line["chunks"])
}

func TestInitUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("loud", "text", &buf)
	t.Cleanup(func() { Init("info", "json") })

	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	New("x").Debug("hidden")
	assert.Empty(t, buf.String())
}
