package server

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	nbiowebsocket "github.com/lesismal/nbio/nbhttp/websocket"
	"github.com/pkg/errors"
)

type Context struct {
	ResponseWriter http.ResponseWriter
	Request        *http.Request
	params         httprouter.Params
	IsWebsocket    bool
	store          *store
}

func (c *Context) Set(k string, v interface{}) {
	c.store.Set(k, v)
}

func (c *Context) Get(k string) interface{} {
	return c.store.Get(k)
}

func (c *Context) Del(k string) {
	c.store.Del(k)
}

func (c *Context) Query(key string) string {
	return c.Request.URL.Query().Get(key)
}

func (c *Context) QueryInt(key string) (int, error) {
	v := c.Query(key)
	if len(v) == 0 {
		return 0, errors.Errorf("query parameter %q not set", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "query parameter %q", key)
	}
	return i, nil
}

func (c *Context) Params(name string) string {
	return c.params.ByName(name)
}

func (c *Context) Json(data interface{}) (int, error) {
	c.ResponseWriter.Header().Set("Content-Type", "application/json")

	bts, err := json.Marshal(data)
	if err != nil {
		c.WriteHeader(http.StatusInternalServerError)
		return 0, errors.Wrap(err, "encode response")
	}
	return c.Write(bts)
}

func (c Context) WriteHeader(n int) {
	c.ResponseWriter.WriteHeader(n)
}

func (c Context) Write(b []byte) (int, error) {
	return c.ResponseWriter.Write(b)
}

func (c *Context) URL() *url.URL {
	return c.Request.URL
}

func (c *Context) Upgrade() (*websocket.Conn, error) {
	var upgrader = websocket.Upgrader{EnableCompression: true, HandshakeTimeout: time.Second * 5, ReadBufferSize: 4096, WriteBufferSize: 4096}

	upgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}

	conn, err := upgrader.Upgrade(c.ResponseWriter, c.Request, nil)
	return conn, err
}

// UpgradeNBIO upgrades with a per-connection nbio upgrader whose callbacks
// feed onMessage and onClose.
func (c *Context) UpgradeNBIO(onMessage func([]byte), onClose func(error)) (*nbiowebsocket.Conn, error) {
	u := nbiowebsocket.NewUpgrader()

	u.CheckOrigin = func(r *http.Request) bool {
		return true
	}

	u.OnMessage(func(conn *nbiowebsocket.Conn, messageType nbiowebsocket.MessageType, data []byte) {
		if messageType != nbiowebsocket.TextMessage {
			return
		}
		onMessage(data)
	})

	u.OnClose(func(conn *nbiowebsocket.Conn, err error) {
		onClose(err)
	})

	return u.Upgrade(c.ResponseWriter, c.Request, nil)
}
