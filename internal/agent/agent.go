// Package agent implements the remote side of the bridge: one outbound
// WebSocket connection to the server, an auth handshake, and a dispatch
// loop that executes sandboxed filesystem operations.
package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/brandonline/filebridge/internal/protocol"
	"github.com/brandonline/filebridge/internal/sandbox"
)

// DefaultReconnectDelay is the fixed wait between connection attempts.
const DefaultReconnectDelay = 5 * time.Second

const writeWait = 10 * time.Second

// Agent maintains connectivity to the bridge server and executes incoming
// operation requests against its sandbox.
type Agent struct {
	url            string
	secret         string
	box            *sandbox.Sandbox
	reconnectDelay time.Duration
	log            *zap.Logger
}

// New creates an agent that serves the given sandbox over the bridge at url.
func New(url, secret string, box *sandbox.Sandbox, reconnectDelay time.Duration, log *zap.Logger) *Agent {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{
		url:            url,
		secret:         secret,
		box:            box,
		reconnectDelay: reconnectDelay,
		log:            log,
	}
}

// Run connects, serves, and reconnects with a fixed delay until ctx is
// cancelled. Transient failures never terminate the loop.
func (a *Agent) Run(ctx context.Context) error {
	for {
		if err := a.serve(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("connection lost", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.reconnectDelay):
		}
	}
}

// serve runs one connection: dial, handshake, then dispatch requests until
// the connection fails.
func (a *Agent) serve(ctx context.Context) error {
	a.log.Info("connecting", zap.String("url", a.url))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Tear the connection down when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	w := &connWriter{conn: conn}
	if err := w.writeJSON(protocol.Auth{Type: protocol.TypeAuth, Secret: a.secret}); err != nil {
		return err
	}
	a.log.Info("connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			a.log.Warn("invalid frame", zap.Error(err))
			continue
		}

		switch env.Type {
		case protocol.TypeRequest:
			var req protocol.Request
			if err := json.Unmarshal(data, &req); err != nil {
				a.log.Warn("invalid request frame", zap.Error(err))
				continue
			}
			// Requests are handled concurrently; responses may go out in
			// any order, the server matches them by id.
			go func() {
				resp := a.handle(req)
				if err := w.writeJSON(resp); err != nil {
					a.log.Warn("response write failed", zap.String("id", req.ID), zap.Error(err))
				}
			}()

		case protocol.TypePing:
			if err := w.writeJSON(protocol.Envelope{Type: protocol.TypePong}); err != nil {
				return err
			}

		case protocol.TypePong:
			// keepalive ack

		default:
			a.log.Warn("unknown frame type", zap.String("type", env.Type))
		}
	}
}

// handle executes one operation request and builds its response. Failures
// are carried in the error field, never raised.
func (a *Agent) handle(req protocol.Request) protocol.Response {
	resp := protocol.Response{Type: protocol.TypeResponse, ID: req.ID}

	switch req.Action {
	case protocol.ActionList:
		items, err := a.box.List(req.Path)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Path = req.Path
		resp.Parent = sandbox.Parent(req.Path)
		resp.Items = items

	case protocol.ActionRead:
		content, err := a.box.ReadText(req.Path)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Content = content
		resp.Kind = protocol.KindText
		if st, err := a.box.Stat(req.Path); err == nil {
			resp.Name = st.Name
		}

	case protocol.ActionDownload:
		data, err := a.box.ReadBinary(req.Path)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Name = data.Name
		resp.Size = data.Size
		resp.Bytes = data.Bytes

	case protocol.ActionOpen:
		st, err := a.box.Stat(req.Path)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Name = st.Name
		resp.Size = st.Size
		resp.Path = st.Path
		resp.Downloadable = st.Downloadable

	case protocol.ActionPing:
		resp.Status = "ok"
		resp.Time = time.Now().Format(time.RFC3339)

	default:
		resp.Error = "unknown action: " + req.Action
	}

	return resp
}

// connWriter serializes frame writes from concurrent request handlers.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *connWriter) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}
