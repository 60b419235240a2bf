package metrics

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"portshare/internal/model"
)

var header = []string{
	"timestamp",
	"count",
	"id",
	"source",
	"resource",
	"device",
	"os",
	"browser",
	"user_agent",
	"fields",
}

// WriteCSV writes capture events to CSV with a fixed column order.
func WriteCSV(w io.Writer, events []model.CaptureEvent) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(header); err != nil {
		return err
	}

	for _, ev := range events {
		device := deviceOf(ev)
		fields := ""
		if f, ok := ev.Payload["fields"]; ok {
			data, err := json.Marshal(f)
			if err != nil {
				return err
			}
			fields = string(data)
		}
		record := []string{
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
			strconv.FormatUint(ev.Count, 10),
			ev.ID,
			ev.Source,
			stringField(ev.Payload, "resource"),
			device.Device,
			device.OS,
			device.Browser,
			stringField(ev.Payload, "user_agent"),
			fields,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// SaveCSV writes events to path, creating parent directories.
func SaveCSV(path string, events []model.CaptureEvent) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := WriteCSV(file, events); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func deviceOf(ev model.CaptureEvent) model.DeviceInfo {
	d, _ := ev.Payload["device"].(map[string]any)
	return model.DeviceInfo{
		Device:  stringField(d, "device"),
		OS:      stringField(d, "os"),
		Browser: stringField(d, "browser"),
	}
}
