package rechannel

import "time"

// Clock schedules delayed work. Tests swap it for a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled call
type Timer interface {
	Stop() bool
}

// SystemClock schedules with time.AfterFunc
type SystemClock struct{}

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
