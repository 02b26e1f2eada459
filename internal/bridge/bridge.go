// Package bridge implements the server side of the remote filesystem
// bridge: the agent session lifecycle, the request/response correlator, and
// the operation API the HTTP layer calls.
package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/brandonline/filebridge/internal/fault"
	"github.com/brandonline/filebridge/internal/metrics"
	"github.com/brandonline/filebridge/internal/protocol"
	"github.com/brandonline/filebridge/internal/sandbox"
)

const (
	// DefaultRequestTimeout bounds metadata, list and text-read round trips.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultDownloadTimeout bounds whole-file downloads.
	DefaultDownloadTimeout = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The agent dials from arbitrary networks; auth happens in-band.
		return true
	},
}

// Options configures a Bridge.
type Options struct {
	Secret          string
	AuthWindow      time.Duration
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	MaxPending      int
}

// Bridge owns the single live agent session and the correlator. At most one
// authenticated session exists at a time; a second inbound agent replaces
// the current one and its pending requests are cancelled (replace-and-cancel).
type Bridge struct {
	opts       Options
	correlator *Correlator
	log        *zap.Logger

	mu      sync.RWMutex
	session *Session
}

// ListResult is the payload of a remote directory listing.
type ListResult struct {
	Path   string               `json:"path"`
	Parent string               `json:"parent"`
	Items  []protocol.FileEntry `json:"items"`
}

// ReadResult is the payload of a remote text read.
type ReadResult struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Download is the payload of a remote whole-file download.
type Download struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Bytes []byte `json:"bytes"`
}

// New creates a bridge with the given options. Unset timeouts and bounds
// fall back to defaults.
func New(opts Options, log *zap.Logger) *Bridge {
	if opts.AuthWindow <= 0 {
		opts.AuthWindow = defaultAuthWindow
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = DefaultDownloadTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		opts:       opts,
		correlator: NewCorrelator(opts.MaxPending),
		log:        log,
	}
}

// HandleAgentWebSocket upgrades the agent's inbound connection, runs the
// auth handshake, and services the session until it disconnects.
func (b *Bridge) HandleAgentWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("agent websocket upgrade failed", zap.Error(err))
		return
	}

	sess := newSession(conn)
	if err := sess.authenticate(b.opts.Secret, b.opts.AuthWindow); err != nil {
		b.log.Warn("agent handshake rejected", zap.Error(err))
		sess.rejectUnauthorized()
		return
	}

	b.attach(sess)
	b.log.Info("agent connected", zap.String("remote", r.RemoteAddr))

	go b.pingLoop(sess)
	b.readLoop(sess)
	b.detach(sess)
}

// attach makes sess the live session, replacing and cancelling any previous
// one.
func (b *Bridge) attach(sess *Session) {
	b.mu.Lock()
	old := b.session
	b.session = sess
	b.mu.Unlock()

	if old != nil {
		b.log.Info("replacing existing agent session")
		old.close()
		b.correlator.CancelAll(fault.New(fault.AgentOffline, "agent connection replaced"))
	}
	metrics.SetAgentConnected(true)
}

// detach tears down sess. If it is still the live session, every pending
// request is cancelled so no waiter is orphaned.
func (b *Bridge) detach(sess *Session) {
	b.mu.Lock()
	current := b.session == sess
	if current {
		b.session = nil
	}
	b.mu.Unlock()

	sess.close()
	if current {
		b.correlator.CancelAll(fault.New(fault.AgentOffline, "agent disconnected"))
		metrics.SetAgentConnected(false)
		b.log.Info("agent disconnected")
	}
}

// readLoop processes inbound frames until the connection fails.
func (b *Bridge) readLoop(sess *Session) {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.log.Warn("agent read failed", zap.Error(err))
			}
			return
		}
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			b.log.Warn("invalid agent frame", zap.Error(err))
			continue
		}

		switch env.Type {
		case protocol.TypeResponse:
			var resp protocol.Response
			if err := json.Unmarshal(data, &resp); err != nil {
				b.log.Warn("invalid response frame", zap.Error(err))
				continue
			}
			b.correlator.Deliver(&resp)

		case protocol.TypePong:
			// keepalive ack, presence is enough

		case protocol.TypePing:
			if err := sess.writeJSON(protocol.Envelope{Type: protocol.TypePong}); err != nil {
				return
			}

		default:
			b.log.Warn("unknown agent frame type", zap.String("type", env.Type))
		}
	}
}

// pingLoop sends application-level keepalive pings until the session ends.
func (b *Bridge) pingLoop(sess *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := sess.writeJSON(protocol.Envelope{Type: protocol.TypePing}); err != nil {
				sess.close()
				return
			}
		case <-sess.done:
			return
		}
	}
}

// Connected reports whether an authenticated agent session is live.
func (b *Bridge) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session != nil && b.session.State() == StateConnected
}

// send performs one correlated round trip: register, transmit, wait for the
// matched response or a timeout. Every call resolves to a payload or a
// classified failure; the pending slot is always removed on exit.
func (b *Bridge) send(ctx context.Context, action, path string, timeout time.Duration) (*protocol.Response, error) {
	start := time.Now()
	resp, err := b.roundTrip(ctx, action, path, timeout)

	status := "ok"
	if err != nil {
		status = string(fault.KindOf(err))
	}
	metrics.ObserveRequest(action, status, time.Since(start))
	return resp, err
}

func (b *Bridge) roundTrip(ctx context.Context, action, path string, timeout time.Duration) (*protocol.Response, error) {
	b.mu.RLock()
	sess := b.session
	b.mu.RUnlock()

	if sess == nil || sess.State() != StateConnected {
		return nil, fault.New(fault.AgentOffline, "agent not connected")
	}

	p, err := b.correlator.register(action)
	if err != nil {
		return nil, err
	}

	req := protocol.Request{
		Type:   protocol.TypeRequest,
		ID:     p.id,
		Action: action,
		Path:   path,
	}
	if err := sess.writeJSON(req); err != nil {
		b.correlator.drop(p.id)
		return nil, fault.New(fault.AgentOffline, "send failed: %v", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-p.done:
		if res.err != nil {
			return nil, res.err
		}
		if res.resp.Error != "" {
			return nil, fault.Parse(res.resp.Error)
		}
		return res.resp, nil

	case <-timer.C:
		// A late response for this id is discarded as unmatched.
		b.correlator.drop(p.id)
		return nil, fault.New(fault.Timeout, "%s timed out after %s", action, timeout)

	case <-ctx.Done():
		b.correlator.drop(p.id)
		return nil, fault.New(fault.OperationFailed, "request cancelled: %v", ctx.Err())
	}
}

// ListRemote lists a directory on the agent's sandbox.
func (b *Bridge) ListRemote(ctx context.Context, path string) (*ListResult, error) {
	resp, err := b.send(ctx, protocol.ActionList, path, b.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Path:   resp.Path,
		Parent: resp.Parent,
		Items:  resp.Items,
	}, nil
}

// ReadRemote reads a text file on the agent's sandbox. Binary content is
// reported as a classified BinaryContent failure.
func (b *Bridge) ReadRemote(ctx context.Context, path string) (*ReadResult, error) {
	resp, err := b.send(ctx, protocol.ActionRead, path, b.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Name: resp.Name, Content: resp.Content}, nil
}

// DownloadRemote fetches a whole file from the agent's sandbox.
func (b *Bridge) DownloadRemote(ctx context.Context, path string) (*Download, error) {
	resp, err := b.send(ctx, protocol.ActionDownload, path, b.opts.DownloadTimeout)
	if err != nil {
		return nil, err
	}
	metrics.AddDownloadBytes(resp.Size)
	return &Download{Name: resp.Name, Size: resp.Size, Bytes: resp.Bytes}, nil
}

// StatRemote returns metadata for a path on the agent's sandbox.
func (b *Bridge) StatRemote(ctx context.Context, path string) (*sandbox.StatInfo, error) {
	resp, err := b.send(ctx, protocol.ActionOpen, path, b.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return &sandbox.StatInfo{
		Name:         resp.Name,
		Size:         resp.Size,
		Path:         resp.Path,
		Downloadable: resp.Downloadable,
	}, nil
}

// PingRemote performs an application-level liveness round trip.
func (b *Bridge) PingRemote(ctx context.Context) (string, error) {
	resp, err := b.send(ctx, protocol.ActionPing, "", b.opts.RequestTimeout)
	if err != nil {
		return "", err
	}
	return resp.Time, nil
}
