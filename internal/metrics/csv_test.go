package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portshare/internal/model"
)

func event(id string, ts time.Time, source, resource string, d model.DeviceInfo) model.CaptureEvent {
	return model.CaptureEvent{
		ID:        id,
		Timestamp: ts,
		Count:     1,
		Source:    source,
		Payload: map[string]any{
			"resource":   resource,
			"user_agent": "ua",
			"device":     d.Map(),
			"fields":     map[string]any{"email": "a@example.com", "note": "x,\"y\""},
		},
	}
}

func TestSaveCSV_ThenReadCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "captures.csv")
	ts := time.Unix(1700000000, 0).UTC()
	in := []model.CaptureEvent{
		event("a", ts, "10.0.0.1", "login", model.DeviceInfo{Device: "Mobile", OS: "iPhone", Browser: "Safari"}),
	}
	require.NoError(t, SaveCSV(path, in))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "timestamp,count,id,source"))

	out, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ts, out[0].Timestamp)
	assert.Equal(t, "10.0.0.1", out[0].Source)
	assert.Equal(t, "login", out[0].Payload["resource"])
	assert.Equal(t, "x,\"y\"", out[0].Payload["fields"].(map[string]any)["note"])
	assert.Equal(t, "Safari", deviceOf(out[0]).Browser)
}

func TestReadCSV_RejectsShortRecord(t *testing.T) {
	t.Parallel()

	_, err := readCSV(strings.NewReader("timestamp,count\n2024-01-01T00:00:00Z,1\n"))
	require.Error(t, err)
}
