// Package observer tracks connected live-view clients and delivers messages
// to each of them in order.
package observer

import (
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"

	"portshare/internal/logging"
)

// Message types pushed to observers.
const (
	TypeStats   = "stats"
	TypeHistory = "history"
	TypeCapture = "capture"
)

// DefaultQueueSize is the per-observer backlog before it is dropped as too slow.
const DefaultQueueSize = 64

// MinQueueSize fits the connect snapshot: stats followed by history.
const MinQueueSize = 2

// Message is the wire envelope sent to observers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Observer is one connected client. Messages are delivered in the order they
// were enqueued.
type Observer struct {
	ID string

	queue     chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// Messages yields queued messages in order.
func (o *Observer) Messages() <-chan Message { return o.queue }

// Done is closed once the observer has been removed.
func (o *Observer) Done() <-chan struct{} { return o.done }

// send enqueues without blocking and reports false when the queue is full.
func (o *Observer) send(msgs ...Message) bool {
	for _, m := range msgs {
		select {
		case <-o.done:
			return false
		default:
		}
		select {
		case o.queue <- m:
		default:
			return false
		}
	}
	return true
}

func (o *Observer) close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// Registry is the set of connected observers.
type Registry struct {
	queueSize int
	logger    logrus.FieldLogger

	mu        sync.RWMutex
	observers mapset.Set
}

// NewRegistry creates an empty registry. A zero or negative queueSize gets
// the default; anything smaller than the snapshot is raised to MinQueueSize.
// logger may be nil.
func NewRegistry(queueSize int, logger logrus.FieldLogger) *Registry {
	switch {
	case queueSize <= 0:
		queueSize = DefaultQueueSize
	case queueSize < MinQueueSize:
		queueSize = MinQueueSize
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		queueSize: queueSize,
		logger:    logger,
		// The registry lock already serialises access.
		observers: mapset.NewThreadUnsafeSet(),
	}
}

// Add registers a new observer and returns it.
func (r *Registry) Add(id string) *Observer {
	o := &Observer{
		ID:    id,
		queue: make(chan Message, r.queueSize),
		done:  make(chan struct{}),
	}
	r.mu.Lock()
	r.observers.Add(o)
	n := r.observers.Cardinality()
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{"observer": id, "observers": n}).Info("observer connected")
	return o
}

// Remove discards an observer. Removing twice is harmless.
func (r *Registry) Remove(o *Observer) {
	r.mu.Lock()
	present := r.observers.Contains(o)
	r.observers.Remove(o)
	n := r.observers.Cardinality()
	r.mu.Unlock()

	o.close()
	if present {
		r.logger.WithFields(logrus.Fields{"observer": o.ID, "observers": n}).Info("observer disconnected")
	}
}

// Count is the number of connected observers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.observers.Cardinality()
}

// Send enqueues msgs on a single observer, dropping it if it cannot keep up.
func (r *Registry) Send(o *Observer, msgs ...Message) {
	if !o.send(msgs...) {
		r.drop(o)
	}
}

// Broadcast enqueues msgs on every observer. Enqueueing never blocks; an
// observer whose backlog is full is removed.
func (r *Registry) Broadcast(msgs ...Message) {
	r.mu.RLock()
	targets := make([]*Observer, 0, r.observers.Cardinality())
	for v := range r.observers.Iter() {
		targets = append(targets, v.(*Observer))
	}
	r.mu.RUnlock()

	for _, o := range targets {
		if !o.send(msgs...) {
			r.drop(o)
		}
	}
}

func (r *Registry) drop(o *Observer) {
	r.logger.WithField("observer", o.ID).Warn("observer too slow, dropping")
	r.Remove(o)
}
