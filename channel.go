package rechannel

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Channel keeps one logical connection to an endpoint alive. A lost or failed
// connection is retried with linear backoff until MaxAttempts consecutive
// attempts fail. Listeners are told what happens through named events.
type Channel struct {
	ID       string
	endpoint string
	cfg      *Config
	log      *zap.Logger
	ls       *listeners

	mu        sync.Mutex
	state     State
	attempts  int
	conn      Conn
	gen       uint64
	timer     Timer
	closed    bool
	exhausted bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New validates cfg and starts connecting in the background. A nil cfg uses
// the defaults: 5 attempts, 1s base delay, websocket transport.
func New(endpoint string, cfg *Config) (*Channel, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	if len(strings.TrimSpace(endpoint)) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "endpoint is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Channel{
		ID:       strings.Replace(uuid.NewString(), "-", "", -1),
		endpoint: endpoint,
		cfg:      cfg,
		ls:       newListeners(cfg.log),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.log = cfg.log.With(zap.String("channel", c.ID), zap.String("endpoint", endpoint))

	for _, s := range cfg.initial {
		if s.fn != nil {
			c.ls.add(s.event, s.fn)
		}
	}

	c.connect()
	return c, nil
}

func (c *Channel) Endpoint() string {
	return c.endpoint
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Attempts returns the number of reconnects tried since the last successful connection
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.attempts
}

// Exhausted reports whether the channel gave up after MaxAttempts failures
func (c *Channel) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exhausted
}

// Subscribe registers l for the named event. Listeners run synchronously in
// subscription order. The returned func removes l and may be called repeatedly.
func (c *Channel) Subscribe(event string, l Listener) func() {
	if l == nil {
		return func() {}
	}
	return c.ls.add(event, l)
}

// Connect starts a new connection cycle with a fresh attempt count. It is
// how a channel that gave up is revived; a pending reconnect is replaced.
func (c *Channel) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}

	c.stopTimer()
	c.attempts = 0
	c.exhausted = false
	c.mu.Unlock()

	c.connect()
	return nil
}

// Send encodes v as JSON and writes it to the open connection. Without one it
// logs a warning and returns ErrNotConnected.
func (c *Channel) Send(v interface{}) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != Connected || conn == nil {
		c.log.Warn("send while not connected", zap.Stringer("state", state))
		return ErrNotConnected
	}

	b, err := encode(v)
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}

	if err := conn.WriteMessage(b); err != nil {
		err = errors.Wrap(err, "write message")
		c.publish(&Event{Name: EventError, Err: err})
		return err
	}

	return nil
}

// Close tears the channel down: the pending reconnect and any dial in flight
// are cancelled, the connection is closed and the listeners are dropped.
// A channel is not reusable after Close.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	c.gen++
	c.stopTimer()
	c.cancel()

	conn := c.conn
	wasConnected := c.state == Connected
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	if wasConnected {
		c.publish(&Event{Name: EventDisconnected})
	}

	c.ls.clear()
	c.log.Info("channel closed")

	return errors.Wrap(err, "close connection")
}

// stopTimer must be called with mu held
func (c *Channel) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.gen++
	gen := c.gen
	c.timer = nil
	c.state = Connecting
	ctx := c.ctx
	c.mu.Unlock()

	go c.dial(ctx, gen)
}

// current reports whether gen still identifies the live connection cycle
func (c *Channel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.closed && gen == c.gen
}

func (c *Channel) dial(ctx context.Context, gen uint64) {
	conn, err := c.cfg.dialer.Dial(ctx, c.endpoint)

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.state = Disconnected
		c.mu.Unlock()

		c.log.Warn("connect failed", zap.Error(err))
		c.publish(&Event{Name: EventDisconnected})
		c.scheduleReconnect(gen)
		return
	}

	c.conn = conn
	c.state = Connected
	c.attempts = 0
	c.exhausted = false
	c.mu.Unlock()

	c.log.Info("connected")
	c.publish(&Event{Name: EventConnected})

	c.readLoop(conn, gen)
}

func (c *Channel) readLoop(conn Conn, gen uint64) {
	for {
		body, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, gen, err)
			return
		}

		if !c.current(gen) {
			return
		}

		payload, err := decode(body)
		if err != nil {
			c.log.Warn("dropping malformed payload", zap.Error(err))
			c.publish(&Event{Name: EventError, Err: errors.Wrap(ErrMalformedPayload, err.Error())})
			continue
		}

		c.publish(&Event{Name: EventData, Body: payload})
	}
}

func (c *Channel) handleClose(conn Conn, gen uint64, cause error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}

	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()

	conn.Close()

	if !errors.Is(cause, ErrConnectionClosed) {
		c.publish(&Event{Name: EventError, Err: cause})
	}

	c.log.Info("disconnected", zap.Error(cause))
	c.publish(&Event{Name: EventDisconnected})
	c.scheduleReconnect(gen)
}

// scheduleReconnect arms the timer for the next attempt, or gives up once
// MaxAttempts consecutive attempts have failed.
func (c *Channel) scheduleReconnect(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}

	if c.attempts >= c.cfg.maxAttempts {
		c.exhausted = true
		attempts := c.attempts
		c.mu.Unlock()

		c.log.Error("max reconnect attempts reached", zap.Int("attempts", attempts))
		c.publish(&Event{Name: EventMaxReconnectAttemptsReached, Attempt: attempts})
		return
	}

	c.attempts++
	attempt := c.attempts
	delay := c.cfg.Delay(attempt)
	c.timer = c.cfg.clock.AfterFunc(delay, func() {
		if c.current(gen) {
			c.connect()
		}
	})
	c.mu.Unlock()

	c.log.Info("reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Int("max", c.cfg.maxAttempts),
		zap.Duration("delay", delay))
}

func (c *Channel) publish(e *Event) {
	e.ChannelID = c.ID
	if e.Attempt == 0 {
		e.Attempt = c.Attempts()
	}
	c.ls.dispatch(e)
}
