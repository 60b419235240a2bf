package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"portshare/internal/model"
)

func TestSummarize_Basic(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	mobile := model.DeviceInfo{Device: "Mobile", OS: "Android 14", Browser: "Chrome"}
	desktop := model.DeviceInfo{Device: "Desktop", OS: "Windows NT 10.0", Browser: "Chrome"}
	events := []model.CaptureEvent{
		event("old", now.Add(-2*time.Hour), "10.0.0.9", "login", desktop),
		event("a", now.Add(-10*time.Second), "10.0.0.1", "login", mobile),
		event("b", now.Add(-5*time.Second), "10.0.0.2", "survey", desktop),
		event("c", now.Add(-1*time.Second), "10.0.0.2", "login", model.DeviceInfo{}),
	}

	s := Summarize(events, now.Add(-time.Minute))
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 2, s.Sources)
	assert.Equal(t, now.Add(-10*time.Second), s.From)
	assert.Equal(t, now.Add(-1*time.Second), s.To)
	assert.Equal(t, map[string]int{"Mobile": 1, "Desktop": 1, "Unknown": 1}, s.Devices)
	assert.Equal(t, []Bucket{{"login", 2}, {"survey", 1}}, Sorted(s.Resources))
	assert.Equal(t, []Bucket{{"Chrome", 2}, {"Unknown", 1}}, Sorted(s.Browsers))
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil, time.Time{})
	assert.Zero(t, s.Count)
	assert.True(t, s.From.IsZero())
	assert.Empty(t, Sorted(s.OS))
}
