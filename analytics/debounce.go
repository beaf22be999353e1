package analytics

import (
	"sync"
	"time"
)

const DefaultDebounce = 300 * time.Millisecond

// Debouncer calls fn with the latest pushed value once no new value has
// arrived for the wait period.
type Debouncer[T any] struct {
	wait   time.Duration
	fn     func(T)
	mu     sync.Mutex
	timer  *time.Timer
	seq    uint64
	latest T
}

func NewDebouncer[T any](wait time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{wait: wait, fn: fn}
}

func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.latest = v
	if d.timer != nil {
		d.timer.Stop()
	}

	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.wait, func() { d.fire(seq) })
}

// fire runs fn only if no Push or Stop happened since seq was armed
func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	v := d.latest
	d.timer = nil
	d.mu.Unlock()

	d.fn(v)
}

// Stop drops a pending call
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
