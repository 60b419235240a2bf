package metrics

import (
	"sort"
	"time"

	"portshare/internal/model"
)

// Summary is a basic statistics snapshot over capture events.
type Summary struct {
	Count     int
	Sources   int
	From      time.Time
	To        time.Time
	Devices   map[string]int
	OS        map[string]int
	Browsers  map[string]int
	Resources map[string]int
}

// Bucket is one labelled count.
type Bucket struct {
	Label string
	Count int
}

// Summarize computes summary counts for events at or after since. A zero
// since includes everything.
func Summarize(events []model.CaptureEvent, since time.Time) Summary {
	s := Summary{
		Devices:   map[string]int{},
		OS:        map[string]int{},
		Browsers:  map[string]int{},
		Resources: map[string]int{},
	}
	sources := map[string]bool{}

	for _, ev := range events {
		if ev.Timestamp.Before(since) {
			continue
		}
		if s.Count == 0 || ev.Timestamp.Before(s.From) {
			s.From = ev.Timestamp
		}
		if s.Count == 0 || ev.Timestamp.After(s.To) {
			s.To = ev.Timestamp
		}
		s.Count++
		sources[ev.Source] = true

		d := deviceOf(ev)
		s.Devices[orUnknown(d.Device)]++
		s.OS[orUnknown(d.OS)]++
		s.Browsers[orUnknown(d.Browser)]++
		s.Resources[orUnknown(stringField(ev.Payload, "resource"))]++
	}
	s.Sources = len(sources)
	return s
}

// Sorted orders counts descending, ties by label.
func Sorted(counts map[string]int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for k, v := range counts {
		out = append(out, Bucket{Label: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}
