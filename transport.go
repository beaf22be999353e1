package rechannel

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024
)

// Conn is one open transport connection owned by a Channel.
// ReadMessage blocks until a message arrives or the connection ends; a normal
// close is reported as ErrConnectionClosed.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(b []byte) error
	Close() error
}

// Dialer opens connections to an endpoint
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebsocketDialer dials text-frame websocket connections
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	ReadLimit        int64
	Header           http.Header
}

func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		HandshakeTimeout: 10 * time.Second,
		WriteWait:        writeWait,
		ReadLimit:        maxMessageSize,
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  d.HandshakeTimeout,
		EnableCompression: true,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", endpoint)
	}

	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}

	return &wsConn{c: conn, writeWait: d.WriteWait}, nil
}

type wsConn struct {
	c         *websocket.Conn
	writeWait time.Duration
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, body, err := w.c.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, errors.Wrap(ErrConnectionClosed, err.Error())
		}
		return nil, err
	}
	return body, nil
}

func (w *wsConn) WriteMessage(b []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.writeWait > 0 {
		w.c.SetWriteDeadline(time.Now().Add(w.writeWait))
	}
	return w.c.WriteMessage(websocket.TextMessage, b)
}

// Close sends a close frame when possible and releases the connection.
func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		w.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		w.writeMu.Unlock()

		w.closeErr = w.c.Close()
	})
	return w.closeErr
}
