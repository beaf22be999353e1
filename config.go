package rechannel

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
)

// Config holds the retry policy and collaborators of a Channel.
// The zero value is not usable, start from NewConfig.
type Config struct {
	maxAttempts int
	baseDelay   time.Duration
	dialer      Dialer
	clock       Clock
	log         *zap.Logger
	initial     []subscription
}

type subscription struct {
	event string
	fn    Listener
}

// NewConfig returns a config with the default retry policy and a websocket dialer
func NewConfig() *Config {
	return &Config{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
	}
}

// SetMaxAttempts sets how many reconnects are tried before giving up
func (c *Config) SetMaxAttempts(n int) *Config {
	c.maxAttempts = n
	return c
}

// SetBaseDelay sets the unit of the linear backoff.
// Attempt N waits N * d.
func (c *Config) SetBaseDelay(d time.Duration) *Config {
	c.baseDelay = d
	return c
}

// SetDialer replaces the transport used to open connections
func (c *Config) SetDialer(d Dialer) *Config {
	c.dialer = d
	return c
}

// SetClock replaces the timer source used for reconnect scheduling
func (c *Config) SetClock(clock Clock) *Config {
	c.clock = clock
	return c
}

// On registers a listener that every channel built from this config gets
// before its first connect, so no early event is missed.
func (c *Config) On(event string, l Listener) *Config {
	c.initial = append(c.initial, subscription{event: event, fn: l})
	return c
}

func (c *Config) SetLogger(log *zap.Logger) *Config {
	c.log = log
	return c
}

func (c *Config) MaxAttempts() int {
	return c.maxAttempts
}

func (c *Config) BaseDelay() time.Duration {
	return c.baseDelay
}

// Delay returns the wait before the given reconnect attempt (1-based).
func (c *Config) Delay(attempt int) time.Duration {
	return c.baseDelay * time.Duration(attempt)
}

func (c *Config) validate() error {
	if c.maxAttempts < 1 {
		return errors.Wrapf(ErrInvalidConfig, "max attempts must be positive, got %d", c.maxAttempts)
	}

	if c.baseDelay < 0 {
		return errors.Wrapf(ErrInvalidConfig, "base delay must not be negative, got %s", c.baseDelay)
	}

	return nil
}

// withDefaults fills unset collaborators on a copy so a Config can be shared
// between channels.
func (c *Config) withDefaults() *Config {
	cp := *c

	if cp.dialer == nil {
		cp.dialer = NewWebsocketDialer()
	}

	if cp.clock == nil {
		cp.clock = SystemClock{}
	}

	if cp.log == nil {
		cp.log = zap.L()
	}

	return &cp
}
