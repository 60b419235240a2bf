package model

import "time"

// CaptureEvent is one ingested submission as held by the history window and
// pushed to observers.
type CaptureEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Count     uint64         `json:"count"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// Record is what a capture handler hands to the bus. Payload is opaque.
type Record struct {
	Source  string
	Payload map[string]any
}

// Stats is the aggregate view shared with observers and the stats API.
type Stats struct {
	Total     uint64 `json:"total"`
	Observers int    `json:"observers"`
}

// DeviceInfo is a coarse classification of a user agent.
type DeviceInfo struct {
	Device  string `json:"device"`
	OS      string `json:"os"`
	Browser string `json:"browser"`
}

// Map renders the classification as payload fields.
func (d DeviceInfo) Map() map[string]any {
	return map[string]any{
		"device":  d.Device,
		"os":      d.OS,
		"browser": d.Browser,
	}
}
