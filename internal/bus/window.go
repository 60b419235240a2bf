package bus

import (
	"container/list"

	"portshare/internal/model"
)

// Window is a bounded map from source key to that key's latest event,
// ordered by when each key was first seen. Updating a key keeps its
// position. Not safe for concurrent use; the Bus serialises access.
type Window struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

type entry struct {
	key string
	ev  model.CaptureEvent
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Window{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Put stores ev under key. It returns the key evicted to make room, if any.
func (w *Window) Put(key string, ev model.CaptureEvent) (evicted string, ok bool) {
	if el, exists := w.index[key]; exists {
		el.Value.(*entry).ev = ev
		return "", false
	}

	w.index[key] = w.order.PushBack(&entry{key: key, ev: ev})
	if w.order.Len() <= w.capacity {
		return "", false
	}

	oldest := w.order.Front()
	old := w.order.Remove(oldest).(*entry)
	delete(w.index, old.key)
	return old.key, true
}

// Get returns the stored event for key.
func (w *Window) Get(key string) (model.CaptureEvent, bool) {
	el, ok := w.index[key]
	if !ok {
		return model.CaptureEvent{}, false
	}
	return el.Value.(*entry).ev, true
}

func (w *Window) Len() int { return w.order.Len() }

func (w *Window) Clear() {
	w.order.Init()
	w.index = make(map[string]*list.Element)
}

// Keys lists source keys in first-seen order.
func (w *Window) Keys() []string {
	keys := make([]string, 0, w.order.Len())
	for el := w.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// Tail returns the last n entries in first-seen order, oldest first.
func (w *Window) Tail(n int) []model.CaptureEvent {
	if n > w.order.Len() {
		n = w.order.Len()
	}
	if n <= 0 {
		return []model.CaptureEvent{}
	}
	out := make([]model.CaptureEvent, n)
	el := w.order.Back()
	for i := n - 1; i >= 0; i-- {
		out[i] = el.Value.(*entry).ev
		el = el.Prev()
	}
	return out
}

// All returns every entry in first-seen order.
func (w *Window) All() []model.CaptureEvent {
	return w.Tail(w.order.Len())
}
