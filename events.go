package rechannel

import (
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

const (
	EventConnected                   = "connected"
	EventData                        = "data"
	EventDisconnected                = "disconnected"
	EventError                       = "error"
	EventMaxReconnectAttemptsReached = "maxReconnectAttemptsReached"
)

// Event is handed to every listener of a named event.
// Body is set for data events, Err for error events.
type Event struct {
	Name      string
	ChannelID string
	Body      interface{}
	Err       error
	Attempt   int
}

// Data returns the body as a JSON object, or nil when the payload was not an object.
func (e *Event) Data() Data {
	m, ok := e.Body.(map[string]interface{})
	if !ok {
		return nil
	}
	return Data(m)
}

type Listener func(e *Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// listeners maps an event name to its callbacks in subscription order.
// Each channel owns one registry.
type listeners struct {
	m    map[string][]listenerEntry
	next uint64
	mu   sync.Mutex
	log  *zap.Logger
}

func newListeners(log *zap.Logger) *listeners {
	return &listeners{
		m:   make(map[string][]listenerEntry),
		log: log,
	}
}

// add registers fn under name and returns a remover that is safe to call more than once
func (l *listeners) add(name string, fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	id := l.next
	l.m[name] = append(l.m[name], listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(name, id) })
	}
}

func (l *listeners) remove(name string, id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.m[name]
	for i, e := range entries {
		if e.id != id {
			continue
		}

		kept := make([]listenerEntry, 0, len(entries)-1)
		kept = append(kept, entries[:i]...)
		kept = append(kept, entries[i+1:]...)

		if len(kept) == 0 {
			delete(l.m, name)
		} else {
			l.m[name] = kept
		}
		return
	}
}

func (l *listeners) len(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.m[name])
}

func (l *listeners) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.m = make(map[string][]listenerEntry)
}

// dispatch calls every listener of e.Name outside the lock, so listeners may
// subscribe, unsubscribe or send while being called.
func (l *listeners) dispatch(e *Event) {
	l.mu.Lock()
	entries := l.m[e.Name]
	snapshot := make([]listenerEntry, len(entries))
	copy(snapshot, entries)
	l.mu.Unlock()

	for _, entry := range snapshot {
		l.call(entry.fn, e)
	}
}

func (l *listeners) call(fn Listener, e *Event) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("listener panicked",
				zap.String("event", e.Name),
				zap.String("channel", e.ChannelID),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	fn(e)
}
