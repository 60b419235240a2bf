// Package bus ingests capture events, keeps a bounded history of them, and
// pushes every change to connected observers.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"portshare/internal/logging"
	"portshare/internal/model"
	"portshare/internal/observer"
)

const (
	// DefaultHistorySize is the number of distinct sources retained.
	DefaultHistorySize = 100
	// SnapshotSize is how many recent events a new observer receives.
	SnapshotSize = 10
)

// Bus is the single owner of the counter and history window. Ingest, Reset
// and Subscribe each run as one critical section, and publishing happens
// inside it, so every observer sees events in ingestion order.
type Bus struct {
	registry *observer.Registry
	logger   logrus.FieldLogger
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	counter uint64
	window  *Window
}

// New creates a bus publishing to registry. logger may be nil.
func New(registry *observer.Registry, logger logrus.FieldLogger) *Bus {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bus{
		registry: registry,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		window:   NewWindow(DefaultHistorySize),
	}
}

// Ingest records one capture. It always bumps the counter, even when the
// source is already in the window, and never fails.
func (b *Bus) Ingest(rec model.Record) model.CaptureEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counter++
	ev := model.CaptureEvent{
		ID:        b.newID(),
		Timestamp: b.now(),
		Count:     b.counter,
		Source:    rec.Source,
		Payload:   rec.Payload,
	}
	if evicted, ok := b.window.Put(rec.Source, ev); ok {
		b.logger.WithField("source", evicted).Debug("history full, evicted oldest source")
	}

	b.registry.Broadcast(
		observer.Message{Type: observer.TypeCapture, Data: ev},
		observer.Message{Type: observer.TypeStats, Data: b.statsLocked()},
	)

	b.logger.WithFields(logrus.Fields{
		"source": rec.Source,
		"count":  ev.Count,
	}).Info("capture ingested")
	return ev
}

// Stats reports the counter and the number of connected observers.
func (b *Bus) Stats() model.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statsLocked()
}

func (b *Bus) statsLocked() model.Stats {
	return model.Stats{Total: b.counter, Observers: b.registry.Count()}
}

// Reset zeroes the counter and empties the history, then tells observers.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counter = 0
	b.window.Clear()
	b.registry.Broadcast(observer.Message{Type: observer.TypeStats, Data: b.statsLocked()})
	b.logger.Info("capture counter reset")
}

// History returns the whole window in first-seen order.
func (b *Bus) History() []model.CaptureEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.window.All()
}

// Subscribe connects an observer and queues its initial snapshot: stats,
// then the most recent events. Holding the bus lock guarantees the snapshot
// and the live stream neither overlap nor leave a gap.
func (b *Bus) Subscribe(id string) *observer.Observer {
	b.mu.Lock()
	defer b.mu.Unlock()

	o := b.registry.Add(id)
	b.registry.Send(o,
		observer.Message{Type: observer.TypeStats, Data: b.statsLocked()},
		observer.Message{Type: observer.TypeHistory, Data: b.window.Tail(SnapshotSize)},
	)
	return o
}

// Unsubscribe disconnects an observer.
func (b *Bus) Unsubscribe(o *observer.Observer) {
	b.registry.Remove(o)
}
