package metrics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"portshare/internal/model"
)

// ReadCSV loads capture events from a file written by WriteCSV.
func ReadCSV(path string) ([]model.CaptureEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readCSV(file)
}

func readCSV(r io.Reader) ([]model.CaptureEvent, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if len(records[0]) > 0 && records[0][0] == "timestamp" {
		start = 1
	}

	events := make([]model.CaptureEvent, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < len(header) {
			return nil, fmt.Errorf("invalid record at line %d", i+1)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp at line %d: %w", i+1, err)
		}
		count, _ := strconv.ParseUint(rec[1], 10, 64)

		payload := map[string]any{
			"resource":   rec[4],
			"device":     model.DeviceInfo{Device: rec[5], OS: rec[6], Browser: rec[7]}.Map(),
			"user_agent": rec[8],
		}
		if rec[9] != "" {
			var fields any
			if err := json.Unmarshal([]byte(rec[9]), &fields); err != nil {
				return nil, fmt.Errorf("invalid fields at line %d: %w", i+1, err)
			}
			payload["fields"] = fields
		}

		events = append(events, model.CaptureEvent{
			ID:        rec[2],
			Timestamp: ts,
			Count:     count,
			Source:    rec[3],
			Payload:   payload,
		})
	}

	return events, nil
}
