// Package http serves the dispatcher over HTTP: one POST endpoint that
// accepts {name, params} messages and answers with the JSON result.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dapp-works/urpc/core/channel"
	"github.com/dapp-works/urpc/core/runtime"
	"github.com/dapp-works/urpc/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// MaxBodyBytes bounds the size of a request message.
const MaxBodyBytes = 1 << 20

// Config configures the HTTP channel.
type Config struct {
	// Addr is the listen address. Empty means the channel only serves
	// through Handler and Start does not listen.
	Addr string

	// Path is the dispatch endpoint (default "/urpc").
	Path string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// TLS, when set, terminates TLS on the listener.
	TLS *tls.Config

	// Context extracts the caller from a request (default channel.Anonymous).
	Context channel.ContextFunc

	// Metrics, when set, is served at MetricsPath (default "/metrics").
	Metrics     http.Handler
	MetricsPath string

	// Middleware wraps every route, outermost first.
	Middleware []func(http.Handler) http.Handler

	Logger zerolog.Logger
}

// Channel implements runtime.Channel for HTTP.
type Channel struct {
	router     chi.Router
	dispatcher channel.Dispatcher
	config     Config
	logger     zerolog.Logger

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// New creates a new HTTP channel.
func New(d channel.Dispatcher, cfg Config) *Channel {
	if cfg.Path == "" {
		cfg.Path = "/urpc"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Context == nil {
		cfg.Context = channel.Anonymous
	}

	c := &Channel{
		router:     chi.NewRouter(),
		dispatcher: d,
		config:     cfg,
		logger:     cfg.Logger.With().Str("channel", "http").Logger(),
	}

	r := c.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(c.logRequests)
	r.Use(middleware.Recoverer)
	for _, mw := range cfg.Middleware {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonapi.WriteNotFound(w, "endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonapi.WriteMethodNotAllowed(w, r.Method, []string{http.MethodPost})
	})

	r.Get("/healthz", c.handleHealth)
	r.Post(cfg.Path, c.handleDispatch)
	if cfg.Metrics != nil {
		r.Handle(cfg.MetricsPath, cfg.Metrics)
	}

	return c
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "http"
}

// Handler returns the HTTP handler.
func (c *Channel) Handler() http.Handler {
	return c.router
}

// Mount attaches h below pattern, e.g. the WebSocket upgrade endpoint.
// Mount must be called before Start.
func (c *Channel) Mount(pattern string, h http.Handler) {
	c.router.Handle(pattern, h)
}

// Addr returns the bound listen address once started.
func (c *Channel) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Start starts the HTTP server in the background.
func (c *Channel) Start(ctx context.Context) error {
	if c.config.Addr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", c.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.config.Addr, err)
	}
	if c.config.TLS != nil {
		ln = tls.NewListener(ln, c.config.TLS)
	}

	server := &http.Server{
		Handler:      c.router,
		ReadTimeout:  c.config.ReadTimeout,
		WriteTimeout: c.config.WriteTimeout,
	}

	c.mu.Lock()
	c.server = server
	c.addr = ln.Addr()
	c.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error().Err(err).Msg("http server error")
		}
	}()

	c.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("path", c.config.Path).
		Bool("tls", c.config.TLS != nil).
		Msg("http channel listening")
	return nil
}

// Stop gracefully shuts the server down.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	server := c.server
	c.server = nil
	c.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (c *Channel) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *Channel) handleDispatch(w http.ResponseWriter, r *http.Request) {
	caller, err := c.config.Context(r)
	if err != nil {
		jsonapi.WriteUnauthorized(w, err.Error())
		return
	}

	var req runtime.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "BadRequest", "Bad Request").
			Detailf("decode request: %v", err).
			Pointer("/").
			Build())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "BadRequest", "Bad Request").
			Detail("missing name").
			Pointer("/name").
			Build())
		return
	}
	req.Caller = caller

	result, err := c.dispatcher.Handle(r.Context(), req)
	if err != nil {
		jsonapi.WriteError(w, channel.ErrorObject(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// logRequests logs HTTP requests.
func (c *Channel) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/healthz" || r.URL.Path == c.config.MetricsPath {
			return
		}

		c.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
