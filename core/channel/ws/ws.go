// Package ws serves the dispatcher over WebSocket.
//
// Text frames carry JSON and binary frames carry CBOR. A message is
// {id?, name, params}; the reply echoes the id as {id, result} or
// {id, error} in the same frame type. Change notices from the event bus
// are pushed to every socket whose caller can see the changed entity, as
// {event, path, entity, member?}.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/dapp-works/urpc/core/access"
	"github.com/dapp-works/urpc/core/channel"
	"github.com/dapp-works/urpc/core/events"
	"github.com/dapp-works/urpc/core/runtime"
	"github.com/dapp-works/urpc/core/schema"
	"github.com/dapp-works/urpc/pkg/jsonapi"
	"github.com/fxamacker/cbor/v2"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"
)

// Gauge tracks open connections. prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

// Entities resolves an entity by id for notice filtering.
// *registry.Registry satisfies it.
type Entities interface {
	ByID(id string) (schema.Entity, bool)
}

// Config configures the WebSocket channel.
type Config struct {
	// Path is where bootstrap mounts Handler (default "/urpc/ws").
	Path string

	// Context extracts the caller from the upgrade request.
	Context channel.ContextFunc

	// Events, when set, is subscribed on Start and its notices are pushed.
	Events *events.Bus

	// Entities, when set, hides notices about entities the caller cannot see.
	Entities Entities

	Connections Gauge

	Logger zerolog.Logger
}

// Channel implements runtime.Channel for WebSocket clients.
type Channel struct {
	dispatcher channel.Dispatcher
	config     Config
	logger     zerolog.Logger
	decMode    cbor.DecMode

	mu          sync.Mutex
	conns       map[*conn]struct{}
	unsubscribe func()
}

type conn struct {
	net.Conn
	caller schema.Caller
	binary atomic.Bool
	wmu    sync.Mutex
}

func (c *conn) write(op ws.OpCode, p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, op, p)
}

// New creates a new WebSocket channel.
func New(d channel.Dispatcher, cfg Config) *Channel {
	if cfg.Path == "" {
		cfg.Path = "/urpc/ws"
	}
	if cfg.Context == nil {
		cfg.Context = channel.Anonymous
	}

	decMode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("ws: cbor decode options: %v", err))
	}

	return &Channel{
		dispatcher: d,
		config:     cfg,
		logger:     cfg.Logger.With().Str("channel", "ws").Logger(),
		decMode:    decMode,
		conns:      make(map[*conn]struct{}),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "ws"
}

// Path returns the mount path for Handler.
func (c *Channel) Path() string {
	return c.config.Path
}

// Handler returns the upgrade handler.
func (c *Channel) Handler() http.Handler {
	return http.HandlerFunc(c.serve)
}

// Len returns the number of open sockets.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Start subscribes to change notices.
func (c *Channel) Start(ctx context.Context) error {
	if c.config.Events == nil {
		return nil
	}
	c.mu.Lock()
	c.unsubscribe = c.config.Events.Subscribe("*", c.broadcast)
	c.mu.Unlock()
	return nil
}

// Stop unsubscribes and closes every open socket.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	conns := make([]*conn, 0, len(c.conns))
	for cn := range c.conns {
		conns = append(conns, cn)
	}
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	for _, cn := range conns {
		cn.write(ws.OpClose, ws.NewCloseFrameBody(ws.StatusGoingAway, "shutting down"))
		cn.Close()
	}
	return nil
}

func (c *Channel) serve(w http.ResponseWriter, r *http.Request) {
	caller, err := c.config.Context(r)
	if err != nil {
		jsonapi.WriteUnauthorized(w, err.Error())
		return
	}

	netConn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		c.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	cn := &conn{Conn: netConn, caller: caller}
	c.add(cn)
	defer c.remove(cn)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	for {
		data, op, err := wsutil.ReadClientData(cn)
		if err != nil {
			var closed wsutil.ClosedError
			if !errors.As(err, &closed) && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}

		binary := op == ws.OpBinary
		cn.binary.Store(binary)

		out, err := c.encode(c.handleFrame(ctx, data, binary, caller), binary)
		if err != nil {
			c.logger.Error().Err(err).Msg("encode reply")
			continue
		}
		if err := cn.write(op, out); err != nil {
			c.logger.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

func (c *Channel) add(cn *conn) {
	c.mu.Lock()
	c.conns[cn] = struct{}{}
	c.mu.Unlock()
	if c.config.Connections != nil {
		c.config.Connections.Inc()
	}
}

func (c *Channel) remove(cn *conn) {
	c.mu.Lock()
	_, ok := c.conns[cn]
	delete(c.conns, cn)
	c.mu.Unlock()
	cn.Close()
	if ok && c.config.Connections != nil {
		c.config.Connections.Dec()
	}
}

// frame is an inbound message in either encoding.
type frame struct {
	ID     any    `json:"id,omitempty" cbor:"id,omitempty"`
	Name   string `json:"name" cbor:"name"`
	Params any    `json:"params,omitempty" cbor:"params,omitempty"`
}

func (c *Channel) handleFrame(ctx context.Context, data []byte, binary bool, caller schema.Caller) map[string]any {
	var (
		in     frame
		params json.RawMessage
		err    error
	)
	if binary {
		err = c.decMode.Unmarshal(data, &in)
		if err == nil && in.Params != nil {
			params, err = json.Marshal(in.Params)
		}
	} else {
		var raw struct {
			ID     any             `json:"id,omitempty"`
			Name   string          `json:"name"`
			Params json.RawMessage `json:"params,omitempty"`
		}
		err = json.Unmarshal(data, &raw)
		in.ID, in.Name, params = raw.ID, raw.Name, raw.Params
	}

	reply := map[string]any{}
	if in.ID != nil {
		reply["id"] = in.ID
	}
	if err != nil {
		reply["error"] = channel.ErrorObject(schema.Errorf(schema.ErrBadRequest, "", "decode message: %v", err))
		return reply
	}

	result, err := c.dispatcher.Handle(ctx, runtime.Request{Name: in.Name, Params: params, Caller: caller})
	if err != nil {
		reply["error"] = channel.ErrorObject(err)
		return reply
	}
	reply["result"] = result
	return reply
}

// encode renders v as JSON, or as CBOR for binary frames. CBOR payloads are
// built from the JSON form so both encodings carry the same shape.
func (c *Channel) encode(v any, binary bool) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil || !binary {
		return raw, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return cbor.Marshal(generic)
}

func (c *Channel) broadcast(ctx context.Context, event events.Event) error {
	var entity schema.Entity
	if c.config.Entities != nil && event.ID != "" {
		entity, _ = c.config.Entities.ByID(event.ID)
	}

	notice := map[string]any{
		"event":  event.Name,
		"path":   event.Path,
		"entity": event.ID,
	}
	if event.Member != "" {
		notice["member"] = event.Member
	}

	c.mu.Lock()
	conns := make([]*conn, 0, len(c.conns))
	for cn := range c.conns {
		if entity != nil && !access.IsVisible(entity, cn.caller) {
			continue
		}
		conns = append(conns, cn)
	}
	c.mu.Unlock()

	for _, cn := range conns {
		binary := cn.binary.Load()
		out, err := c.encode(notice, binary)
		if err != nil {
			return err
		}
		op := ws.OpText
		if binary {
			op = ws.OpBinary
		}
		if err := cn.write(op, out); err != nil {
			c.logger.Debug().Err(err).Str("event", event.Name).Msg("push failed, closing socket")
			cn.Close()
		}
	}
	return nil
}
