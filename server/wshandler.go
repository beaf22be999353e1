package server

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	nbiowebsocket "github.com/lesismal/nbio/nbhttp/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024

	outQueue = 64
)

// wshandler drives one gorilla connection: a read goroutine feeding the
// client handler and a write pump owning all writes.
type wshandler struct {
	ID            string
	c             *websocket.Conn
	out           chan Data
	ex            chan struct{}
	exOnce        sync.Once
	clienthandler WsHandler
	server        *WsServer
	log           *zap.Logger
}

func newWsHandler(c *websocket.Conn, log *zap.Logger) *wshandler {
	id := ID()
	return &wshandler{
		ID:  id,
		c:   c,
		out: make(chan Data, outQueue),
		ex:  make(chan struct{}),
		log: log.With(zap.String("session", id)),
	}
}

func (wh *wshandler) id() string {
	return wh.ID
}

// send queues data without blocking; a full queue drops it
func (wh *wshandler) send(data Data) bool {
	select {
	case <-wh.ex:
		return false
	default:
	}

	select {
	case wh.out <- data:
		return true
	default:
		wh.log.Warn("outbound queue full, dropping message")
		return false
	}
}

func (wh *wshandler) close() {
	wh.exOnce.Do(func() { close(wh.ex) })
}

func (wh *wshandler) args(eventType string, body Data) *WSArgs {
	return &WSArgs{
		ID:        wh.ID,
		EventType: eventType,
		Body:      body,
		Sender: func(d Data) error {
			if d != nil && d.Bool("close") {
				wh.close()
				return nil
			}
			wh.send(d)
			return nil
		},
		Broadcast: wh.Broadcast,
	}
}

func (wh *wshandler) Broadcast(data Data) {
	if wh.server == nil {
		return
	}

	wh.server.conns.broadcast(data, wh.ID)
}

func (wh *wshandler) reply(response Data) bool {
	if response == nil {
		return true
	}

	if response.Bool("close") {
		wh.close()
		return false
	}

	wh.send(response)
	return true
}

// handle blocks until the session ends
func (wh *wshandler) handle(ctx context.Context, opendata Data) {
	defer wh.close()

	if !wh.reply(wh.clienthandler(wh.args("ws_open", opendata))) {
		return
	}

	wh.c.SetReadLimit(maxMessageSize)
	wh.c.SetReadDeadline(time.Now().Add(pongWait))
	wh.c.SetPongHandler(func(string) error {
		wh.c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go func() {
		defer wh.close()

		for {
			_, body, err := wh.c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wh.log.Info("read failed", zap.Error(err))
				}
				return
			}

			var data Data
			if err := json.Unmarshal(body, &data); err != nil {
				wh.log.Debug("ignoring non-json message", zap.Error(err))
				continue
			}

			if !wh.reply(wh.clienthandler(wh.args("ws_message", data))) {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

out:
	for {
		select {
		case outgoing := <-wh.out:
			wh.c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wh.c.WriteMessage(websocket.TextMessage, []byte(outgoing.Json())); err != nil {
				break out
			}
		case <-ticker.C:
			wh.c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wh.c.WriteMessage(websocket.PingMessage, nil); err != nil {
				break out
			}
		case <-ctx.Done():
			break out
		case <-wh.ex:
			break out
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	wh.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (wh *wshandler) Dispose() {
	wh.close()
	wh.c.Close()
}

// nbioSession is the nbio counterpart of wshandler. nbio calls back per
// message, so there is no pump; writes go straight to the connection.
type nbioSession struct {
	ID     string
	c      *nbiowebsocket.Conn
	mu     sync.Mutex
	closed bool
}

func (s *nbioSession) id() string {
	return s.ID
}

func (s *nbioSession) send(data Data) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.c == nil {
		return false
	}

	return s.c.WriteMessage(nbiowebsocket.TextMessage, []byte(data.Json())) == nil
}

// attach binds the upgraded connection; false when the peer already left
func (s *nbioSession) attach(c *nbiowebsocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.c = c
	return true
}

func (s *nbioSession) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
}

func (s *nbioSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	if s.c != nil {
		s.c.Close()
	}
}
