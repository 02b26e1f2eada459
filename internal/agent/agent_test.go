package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandonline/filebridge/internal/fault"
	"github.com/brandonline/filebridge/internal/protocol"
	"github.com/brandonline/filebridge/internal/sandbox"
)

const testSecret = "agent-secret"

// fakeServer accepts agent connections and hands them to the test.
type fakeServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs := &fakeServer{conns: make(chan *websocket.Conn, 4)}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

// accept waits for the next agent connection and verifies its handshake.
func (fs *fakeServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		t.Cleanup(func() { conn.Close() })
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var auth protocol.Auth
		require.NoError(t, conn.ReadJSON(&auth))
		require.Equal(t, protocol.TypeAuth, auth.Type)
		require.Equal(t, testSecret, auth.Secret)
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("agent never connected")
		return nil
	}
}

// startAgent runs an agent against the fake server until the test ends.
func startAgent(t *testing.T, fs *fakeServer, box *sandbox.Sandbox) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a := New(fs.url(), testSecret, box, 20*time.Millisecond, nil)
	go a.Run(ctx)
}

func readResponse(t *testing.T, conn *websocket.Conn) protocol.Response {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp protocol.Response
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func TestDispatchList(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "reports"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0644))

	fs := newFakeServer(t)
	startAgent(t, fs, sandbox.New(root, 0, 0))
	conn := fs.accept(t)

	require.NoError(t, conn.WriteJSON(protocol.Request{
		Type: protocol.TypeRequest, ID: "req-1", Action: protocol.ActionList, Path: "",
	}))

	resp := readResponse(t, conn)
	assert.Equal(t, protocol.TypeResponse, resp.Type)
	assert.Equal(t, "req-1", resp.ID)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "", resp.Parent)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "reports", resp.Items[0].Name)
	assert.Equal(t, "a.txt", resp.Items[1].Name)
}

func TestDispatchRead(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("# note"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pic.png"), []byte{0x89, 0x50}, 0644))

	fs := newFakeServer(t)
	startAgent(t, fs, sandbox.New(root, 0, 0))
	conn := fs.accept(t)

	require.NoError(t, conn.WriteJSON(protocol.Request{
		Type: protocol.TypeRequest, ID: "r1", Action: protocol.ActionRead, Path: "note.md",
	}))
	resp := readResponse(t, conn)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "# note", resp.Content)
	assert.Equal(t, protocol.KindText, resp.Kind)
	assert.Equal(t, "note.md", resp.Name)

	// binary content travels back as a classified error string
	require.NoError(t, conn.WriteJSON(protocol.Request{
		Type: protocol.TypeRequest, ID: "r2", Action: protocol.ActionRead, Path: "pic.png",
	}))
	resp = readResponse(t, conn)
	assert.Equal(t, "r2", resp.ID)
	require.NotEmpty(t, resp.Error)
	assert.Equal(t, fault.BinaryContent, fault.Parse(resp.Error).Kind)
}

func TestDispatchDownload(t *testing.T) {
	root := t.TempDir()
	payload := []byte{0x00, 0x01, 0x02, 0xff}
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), payload, 0644))

	fs := newFakeServer(t)
	startAgent(t, fs, sandbox.New(root, 0, 0))
	conn := fs.accept(t)

	require.NoError(t, conn.WriteJSON(protocol.Request{
		Type: protocol.TypeRequest, ID: "d1", Action: protocol.ActionDownload, Path: "blob.bin",
	}))
	resp := readResponse(t, conn)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "blob.bin", resp.Name)
	assert.Equal(t, int64(4), resp.Size)
	assert.Equal(t, payload, resp.Bytes)
}

func TestDispatchOpenAndPing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.txt"), []byte("hello"), 0644))

	fs := newFakeServer(t)
	startAgent(t, fs, sandbox.New(root, 0, 0))
	conn := fs.accept(t)

	require.NoError(t, conn.WriteJSON(protocol.Request{
		Type: protocol.TypeRequest, ID: "o1", Action: protocol.ActionOpen, Path: "doc.txt",
	}))
	resp := readResponse(t, conn)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "doc.txt", resp.Name)
	assert.Equal(t, int64(5), resp.Size)
	assert.True(t, resp.Downloadable)

	require.NoError(t, conn.WriteJSON(protocol.Request{
		Type: protocol.TypeRequest, ID: "p1", Action: protocol.ActionPing,
	}))
	resp = readResponse(t, conn)
	assert.Equal(t, "ok", resp.Status)
	_, err := time.Parse(time.RFC3339, resp.Time)
	assert.NoError(t, err)
}

func TestDispatchUnknownAction(t *testing.T) {
	fs := newFakeServer(t)
	startAgent(t, fs, sandbox.New(t.TempDir(), 0, 0))
	conn := fs.accept(t)

	require.NoError(t, conn.WriteJSON(protocol.Request{
		Type: protocol.TypeRequest, ID: "u1", Action: "format_disk",
	}))
	resp := readResponse(t, conn)
	assert.Equal(t, "u1", resp.ID)
	assert.Contains(t, resp.Error, "unknown action")
}

func TestKeepalivePingAnswered(t *testing.T) {
	fs := newFakeServer(t)
	startAgent(t, fs, sandbox.New(t.TempDir(), 0, 0))
	conn := fs.accept(t)

	require.NoError(t, conn.WriteJSON(protocol.Envelope{Type: protocol.TypePing}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env protocol.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, protocol.TypePong, env.Type)
}

func TestReconnectAfterDisconnect(t *testing.T) {
	fs := newFakeServer(t)
	startAgent(t, fs, sandbox.New(t.TempDir(), 0, 0))

	first := fs.accept(t)
	first.Close()

	// a fresh connection arrives with a fresh handshake
	second := fs.accept(t)

	require.NoError(t, second.WriteJSON(protocol.Request{
		Type: protocol.TypeRequest, ID: "after", Action: protocol.ActionPing,
	}))
	resp := readResponse(t, second)
	assert.Equal(t, "after", resp.ID)
	assert.Equal(t, "ok", resp.Status)
}
