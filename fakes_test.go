package rechannel

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var errDialRefused = errors.New("connection refused")

// fakeConn is an in-memory Conn. Messages pushed with deliver come out of
// ReadMessage; drop simulates the peer going away.
type fakeConn struct {
	inbound chan []byte
	done    chan struct{}
	dropErr chan error

	mu       sync.Mutex
	written  [][]byte
	writeErr error
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
		dropErr: make(chan error, 1),
	}
}

func (f *fakeConn) deliver(b string) {
	f.inbound <- []byte(b)
}

func (f *fakeConn) drop(err error) {
	f.dropErr <- err
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-f.inbound:
		return b, nil
	case err := <-f.dropErr:
		return nil, err
	case <-f.done:
		return nil, errors.Wrap(ErrConnectionClosed, "closed locally")
	}
}

func (f *fakeConn) WriteMessage(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, b)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fakeConn) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.written))
	for _, b := range f.written {
		out = append(out, string(b))
	}
	return out
}

// fakeDialer answers each Dial with the next scripted outcome; once the
// script runs out every dial fails.
type fakeDialer struct {
	mu      sync.Mutex
	script  []*fakeConn
	dials   int
	opened  []*fakeConn
	failAll bool
}

func (d *fakeDialer) succeedWith(conns ...*fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.script = append(d.script, conns...)
}

// fail queues n failing dials
func (d *fakeDialer) fail(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := 0; i < n; i++ {
		d.script = append(d.script, nil)
	}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.failAll || len(d.script) == 0 {
		return nil, errDialRefused
	}

	next := d.script[0]
	d.script = d.script[1:]
	if next == nil {
		return nil, errDialRefused
	}

	d.opened = append(d.opened, next)
	return next, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dials
}

type scheduled struct {
	clock   *manualClock
	delay   time.Duration
	f       func()
	stopped bool
}

func (s *scheduled) Stop() bool {
	s.clock.mu.Lock()
	defer s.clock.mu.Unlock()

	was := !s.stopped
	s.stopped = true
	return was
}

// manualClock records scheduled calls; tests fire them explicitly.
type manualClock struct {
	mu    sync.Mutex
	calls []*scheduled
}

func (m *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &scheduled{clock: m, delay: d, f: f}
	m.calls = append(m.calls, s)
	return s
}

func (m *manualClock) delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]time.Duration, 0, len(m.calls))
	for _, s := range m.calls {
		out = append(out, s.delay)
	}
	return out
}

func (m *manualClock) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.calls)
}

// fireLast runs the most recently scheduled call even if it was stopped,
// the way a timer that already fired races with Stop.
func (m *manualClock) fireLast() {
	m.mu.Lock()
	s := m.calls[len(m.calls)-1]
	m.mu.Unlock()

	s.f()
}

func (m *manualClock) lastStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[len(m.calls)-1].stopped
}

// recorder collects event names in delivery order
type recorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *recorder) listen(cfg *Config, names ...string) *Config {
	for _, n := range names {
		cfg.On(n, func(e *Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
		})
	}
	return cfg
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

func (r *recorder) count(name string) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

func (r *recorder) last(name string) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name == name {
			return r.events[i]
		}
	}
	return nil
}

var allEvents = []string{EventConnected, EventData, EventDisconnected, EventError, EventMaxReconnectAttemptsReached}
