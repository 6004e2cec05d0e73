package waiter

import (
	"sync"

	"github.com/JackSuuu/JasOS-Kernel/log"
)

type EventType uint64

type Waiter struct {
	mu sync.RWMutex

	waiters []*Event
}

type Event struct {
	Mask     EventType
	Context  interface{}
	Callback func(e *Event, mask EventType)
}

func (w *Waiter) Register(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.waiters = append(w.waiters, e)
}

func triggerChan(e *Event, mask EventType) {
	c := e.Context.(chan EventType)

	select {
	case c <- mask:
	default:
	}
}

// RegisterChannel delivers matching notifications on c. Delivery never
// blocks, a notification is dropped when c is full.
func (w *Waiter) RegisterChannel(mask EventType, c chan EventType) *Event {
	e := &Event{
		Callback: triggerChan,
		Context:  c,
		Mask:     mask,
	}

	w.Register(e)

	return e
}

func (w *Waiter) Unregister(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, x := range w.waiters {
		if x == e {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			return
		}
	}
}

func (w *Waiter) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return len(w.waiters)
}

func (w *Waiter) Notify(mask EventType) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	log.L.Trace("waiters-notify", "count", len(w.waiters), "mask", mask)

	for _, e := range w.waiters {
		if mask&e.Mask != 0 {
			e.Callback(e, mask)
		}
	}
}
