package mylogger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, LevelInfo)

	log.Action("sweep").Info("done", "demoted", 2)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "done", lines[0]["message"])
	assert.Equal(t, "sweep", lines[0]["action"])
	assert.EqualValues(t, 2, lines[0]["demoted"])
	assert.NotEmpty(t, lines[0]["timestamp"])
	assert.NotEmpty(t, lines[0]["instance_id"])
	assert.NotContains(t, lines[0], "msg")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, LevelWarn)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
}

func TestErrorCarriesStack(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, LevelDebug)

	log.Error("store failed", errors.New("boom"), "trip_id", "t1")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	group, ok := lines[0]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "boom", group["msg"])
	assert.NotEmpty(t, group["stack"])
	assert.Equal(t, "t1", lines[0]["trip_id"])
}

func TestWithDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, LevelInfo)

	base.With("conn_id", "c1").Info("tagged")
	base.Info("plain")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "c1", lines[0]["conn_id"])
	assert.NotContains(t, lines[1], "conn_id")
}
