package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Middleware func(c *Context) bool
type Handler func(c *Context)

type reqcount struct {
	r map[string]uint64
	s sync.Mutex
}

func (r *reqcount) Add(k string) {
	r.s.Lock()
	defer r.s.Unlock()

	if r.r == nil {
		r.r = make(map[string]uint64)
	}
	r.r[k]++
}

func (r *reqcount) Snapshot() map[string]uint64 {
	r.s.Lock()
	defer r.s.Unlock()

	out := make(map[string]uint64, len(r.r))
	for k, v := range r.r {
		out[k] = v
	}
	return out
}

type Router struct {
	mux           *httprouter.Router
	middlewares   []Middleware
	port          int
	ssl           *SSLConfig
	isDev         bool
	server        *http.Server
	stopOnInt     bool
	wsserver      *WsServer
	upgrader      string
	requestCount  uint64
	rqc           *reqcount
	statstoken    string
	statsendpoint string
	prepareOnce   sync.Once
	onStop        []func()
	log           *zap.Logger
}

type Config struct {
	r *Router
}

// NewRouter creates a router listening on 8080. The stats endpoint stays off
// until a token is set.
func NewRouter(log *zap.Logger) *Router {
	if log == nil {
		log = zap.L()
	}

	return &Router{
		port:          8080,
		mux:           httprouter.New(),
		rqc:           &reqcount{r: make(map[string]uint64)},
		upgrader:      UpgraderGorilla,
		statsendpoint: "/__internal__/stats/:token",
		ssl:           NewSSLConfig(),
		log:           log,
	}
}

// Config gets the config for the server
func (r *Router) Config() *Config {
	return &Config{r: r}
}

// SetDev logs every request
func (c *Config) SetDev(dev bool) *Config {
	c.r.isDev = dev
	return c
}

// SetStatsToken enables the stats endpoint behind token
func (c *Config) SetStatsToken(token string) *Config {
	c.r.statstoken = token
	return c
}

// SetStatsEndpoint moves the stats route; it must contain a :token parameter
func (c *Config) SetStatsEndpoint(endpoint string) *Config {
	c.r.statsendpoint = endpoint
	return c
}

func (c *Config) DisableStats() *Config {
	c.r.statsendpoint = ""
	return c
}

func (c *Config) SetPort(port int) *Config {
	c.r.port = port
	return c
}

func (c *Config) StopOnInterrupt() *Config {
	c.r.stopOnInt = true
	return c
}

// SetUpgrader picks the websocket implementation: "gorilla" (default) or "nbio"
func (c *Config) SetUpgrader(name string) *Config {
	c.r.upgrader = strings.ToLower(name)
	return c
}

// UseSSL serves TLS from certificate files
func (c *Config) UseSSL(cert, key string) *Config {
	c.r.ssl.WithCertificate(cert, key)
	return c
}

// UseAutoTLS obtains certificates from Let's Encrypt for domains
func (c *Config) UseAutoTLS(domains []string, cacheDir string) *Config {
	c.r.ssl.WithAutoTLS(domains, cacheDir)
	return c
}

// OnStop registers fn to run when the server stops
func (c *Config) OnStop(fn func()) *Config {
	c.r.onStop = append(c.r.onStop, fn)
	return c
}

// Ws sets the websocket endpoint. Only one is allowed per Router.
func (r *Router) Ws(pattern string, mh WsHandler) *WsServer {
	if r.wsserver != nil {
		panic(errors.New("only one websocket server is allowed per Router"))
	}

	if mh == nil {
		panic(errors.New("websocket handler cannot be nil"))
	}

	if r.upgrader != UpgraderGorilla && r.upgrader != UpgraderNBIO {
		panic(errors.Errorf("unknown websocket upgrader %q", r.upgrader))
	}

	r.wsserver = newWsServer(mh, r.upgrader, r.log)
	r.mux.GET(pattern, r.middleware(r.wsserver.Handle))
	return r.wsserver
}

func (r *Router) Get(pattern string, fn Handler) {
	r.mux.GET(pattern, r.middleware(fn))
}

func (r *Router) Post(pattern string, fn Handler) {
	r.mux.POST(pattern, r.middleware(fn))
}

// Use adds a middleware; returning false stops the request
func (r *Router) Use(fn Middleware) {
	r.middlewares = append(r.middlewares, fn)
}

func (r *Router) runMiddlewares(c *Context) bool {
	for _, middle := range r.middlewares {
		if !middle(c) {
			return false
		}
	}
	return true
}

func (r *Router) middleware(fn Handler) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, p httprouter.Params) {
		start := time.Now()
		c := &Context{store: newStore(), ResponseWriter: w, Request: req, params: p}
		c.IsWebsocket = strings.EqualFold(req.Header.Get("Upgrade"), "websocket")

		r.rqc.Add(req.URL.Path)
		atomic.AddUint64(&r.requestCount, 1)

		if r.runMiddlewares(c) {
			fn(c)
		}

		if r.isDev && !c.IsWebsocket {
			r.log.Debug("request",
				zap.String("url", req.URL.String()),
				zap.Duration("time", time.Since(start)),
				zap.Uint64("path_count", r.rqc.Snapshot()[req.URL.Path]),
				zap.Uint64("total", atomic.LoadUint64(&r.requestCount)))
		}
	}
}

// Stats is what the stats endpoint returns
func (r *Router) Stats() Data {
	o := Data{
		"totalRequests":      atomic.LoadUint64(&r.requestCount),
		"requestCountByPath": r.rqc.Snapshot(),
	}

	if r.wsserver != nil {
		o["wsConnectionCount"] = r.wsserver.Count()
	}
	return o
}

func (r *Router) prepare() {
	r.prepareOnce.Do(func() {
		if len(r.statsendpoint) == 0 || len(r.statstoken) == 0 {
			return
		}

		r.mux.GET(r.statsendpoint, func(w http.ResponseWriter, req *http.Request, p httprouter.Params) {
			c := &Context{store: newStore(), ResponseWriter: w, Request: req, params: p}
			if c.Params("token") != r.statstoken {
				c.WriteHeader(http.StatusForbidden)
				return
			}
			c.Json(r.Stats())
		})
	})
}

// Handler returns the fully routed handler, for tests or embedding
func (r *Router) Handler() http.Handler {
	r.prepare()
	return r.mux
}

// StartServer blocks serving HTTP, or HTTPS when SSL is configured
func (r *Router) StartServer() error {
	r.server = &http.Server{
		Addr:    ":" + strconv.Itoa(r.port),
		Handler: r.Handler(),
	}

	if r.stopOnInt {
		exitChan := make(chan os.Signal, 2)
		signal.Notify(exitChan, os.Interrupt, syscall.SIGTERM)

		go func() {
			<-exitChan
			r.log.Info("shutting down")
			r.StopServer()
		}()
	}

	r.log.Info("listening", zap.Int("port", r.port), zap.String("upgrader", r.upgrader))

	var err error
	switch {
	case r.ssl.Enabled && r.ssl.AutoTLS:
		err = r.serveAutoTLS(r.server, r.ssl)
	case r.ssl.Enabled:
		err = r.serveManualTLS(r.server, r.ssl)
	default:
		err = r.server.ListenAndServe()
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// StopServer closes websocket sessions and shuts the server down
func (r *Router) StopServer() error {
	for _, fn := range r.onStop {
		fn()
	}

	r.wsserver.Close()

	if r.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := r.server.Shutdown(ctx)
	if err == nil {
		return nil
	}

	return r.server.Close()
}
