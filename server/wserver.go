package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	UpgraderGorilla = "gorilla"
	UpgraderNBIO    = "nbio"
)

type WsServer struct {
	isclosing      atomic.Bool
	MessageHandler WsHandler
	conns          *cmap
	upgrader       string
	log            *zap.Logger
}

func newWsServer(mh WsHandler, upgrader string, log *zap.Logger) *WsServer {
	return &WsServer{
		MessageHandler: mh,
		conns:          newcmap(),
		upgrader:       upgrader,
		log:            log,
	}
}

func (ws *WsServer) Close() {
	if ws == nil {
		return
	}

	ws.isclosing.Store(true)
	ws.conns.closeAll()
}

func (ws *WsServer) Count() int {
	return ws.conns.count()
}

func (ws *WsServer) Broadcast(data Data, exclude ...string) int {
	return ws.conns.broadcast(data, exclude...)
}

func (ws *WsServer) Send(id string, data Data) bool {
	return ws.conns.send(id, data)
}

// openData collects query parameters and route params of the upgrade request
func openData(c *Context) Data {
	var data = Data{}

	for k, q := range c.URL().Query() {
		if len(q) == 0 {
			continue
		}
		data[strings.ToLower(k)] = q[0]
	}

	for _, v := range c.params {
		data[strings.ToLower(v.Key)] = v.Value
	}

	return data
}

func (ws *WsServer) Handle(c *Context) {
	defer func() {
		if r := recover(); r != nil {
			ws.log.Error("websocket handler panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()

	c.IsWebsocket = true

	if ws.isclosing.Load() {
		c.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	if ws.upgrader == UpgraderNBIO {
		ws.handleNBIO(c)
		return
	}

	con, err := c.Upgrade()
	if err != nil {
		ws.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	handler := newWsHandler(con, ws.log)
	handler.server = ws
	handler.clienthandler = ws.MessageHandler
	defer handler.Dispose()

	data := openData(c)
	ws.conns.add(handler.ID, handler)
	data.Set("count", ws.conns.count())

	handler.handle(context.Background(), data)

	ws.conns.remove(handler.ID)
	ws.MessageHandler(&WSArgs{ID: handler.ID, EventType: "ws_close", Body: Data{"count": ws.conns.count()}})
}

// handleNBIO registers the session before upgrading so a close callback
// that runs early always finds it in the hub.
func (ws *WsServer) handleNBIO(c *Context) {
	s := &nbioSession{ID: ID()}
	data := openData(c)
	ws.conns.add(s.ID, s)

	conn, err := c.UpgradeNBIO(
		func(body []byte) {
			var msg Data
			if err := json.Unmarshal(body, &msg); err != nil {
				return
			}

			response := ws.MessageHandler(&WSArgs{ID: s.ID, EventType: "ws_message", Body: msg})
			if response == nil {
				return
			}
			if response.Bool("close") {
				s.close()
				return
			}
			s.send(response)
		},
		func(err error) {
			s.markClosed()
			ws.conns.remove(s.ID)
			ws.MessageHandler(&WSArgs{ID: s.ID, EventType: "ws_close", Body: Data{"count": ws.conns.count()}})
		},
	)
	if err != nil {
		ws.conns.remove(s.ID)
		ws.log.Warn("nbio upgrade failed", zap.Error(err))
		return
	}

	if !s.attach(conn) {
		return
	}
	data.Set("count", ws.conns.count())

	response := ws.MessageHandler(&WSArgs{
		ID:        s.ID,
		EventType: "ws_open",
		Body:      data,
		Sender: func(d Data) error {
			s.send(d)
			return nil
		},
		Broadcast: func(d Data) { ws.conns.broadcast(d, s.ID) },
	})
	if response != nil {
		if response.Bool("close") {
			s.close()
			return
		}
		s.send(response)
	}
}

func ID() string {
	return strings.Replace(uuid.NewString(), "-", "", -1)
}
