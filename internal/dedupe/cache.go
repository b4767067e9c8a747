// ABOUTME: Bounded, time-windowed record of webhook delivery IDs.
// ABOUTME: Lets the webhook endpoint drop redeliveries that arrive within the window.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultWindow is how long a delivery ID is remembered when none is configured.
const DefaultWindow = 10 * time.Minute

// DefaultCapacity bounds the number of remembered delivery IDs.
const DefaultCapacity = 4096

type delivery struct {
	seenAt time.Time
	elem   *list.Element
}

// Window remembers delivery IDs for a fixed duration. When full, the
// oldest ID is forgotten first.
type Window struct {
	mu       sync.Mutex
	ids      map[string]*delivery
	order    *list.List // oldest at front
	window   time.Duration
	capacity int
	now      func() time.Time

	done   chan struct{}
	closed bool
}

// New creates a Window and starts its sweeper. Non-positive arguments
// select the defaults.
func New(window time.Duration, capacity int) *Window {
	if window <= 0 {
		window = DefaultWindow
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	w := &Window{
		ids:      make(map[string]*delivery),
		order:    list.New(),
		window:   window,
		capacity: capacity,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go w.sweepLoop(sweepEvery(window))
	return w
}

func sweepEvery(window time.Duration) time.Duration {
	if window < time.Minute {
		return window
	}
	return time.Minute
}

// Seen reports whether id was recorded within the window. A new or
// expired id is recorded and Seen returns false; the check and the
// record happen under one lock.
func (w *Window) Seen(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if d, ok := w.ids[id]; ok {
		if now.Sub(d.seenAt) < w.window {
			return true
		}
		d.seenAt = now
		w.order.MoveToBack(d.elem)
		return false
	}

	if len(w.ids) >= w.capacity {
		if front := w.order.Front(); front != nil {
			w.order.Remove(front)
			delete(w.ids, front.Value.(string))
		}
	}
	w.ids[id] = &delivery{seenAt: now, elem: w.order.PushBack(id)}
	return false
}

// Forget drops id so a retry of the same delivery is accepted. The
// webhook calls it when processing fails.
func (w *Window) Forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.ids[id]; ok {
		w.order.Remove(d.elem)
		delete(w.ids, id)
	}
}

// Len is the number of remembered IDs, expired ones included until swept.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.ids)
}

func (w *Window) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.done:
			return
		}
	}
}

// sweep drops expired IDs. Insertion order equals seenAt order, so it
// stops at the first live entry.
func (w *Window) sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for e := w.order.Front(); e != nil; {
		id := e.Value.(string)
		if now.Sub(w.ids[id].seenAt) < w.window {
			return
		}
		next := e.Next()
		w.order.Remove(e)
		delete(w.ids, id)
		e = next
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		close(w.done)
		w.closed = true
	}
}
