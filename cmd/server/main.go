package main

import (
	"encoding/json"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/brandonline/filebridge/internal/auth"
	"github.com/brandonline/filebridge/internal/bridge"
	"github.com/brandonline/filebridge/internal/config"
	"github.com/brandonline/filebridge/internal/fault"
	"github.com/brandonline/filebridge/internal/logging"
	"github.com/brandonline/filebridge/internal/metrics"
	"github.com/brandonline/filebridge/internal/sandbox"
)

func main() {
	cfg := config.LoadServer()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Secret == "" {
		log.Fatal("BRIDGE_SECRET must be set")
	}
	if err := os.MkdirAll(cfg.LocalRoot, 0755); err != nil {
		log.Fatal("cannot create local files root", zap.Error(err))
	}

	br := bridge.New(bridge.Options{
		Secret:          cfg.Secret,
		AuthWindow:      cfg.AuthWindow,
		RequestTimeout:  cfg.RequestTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
		MaxPending:      cfg.MaxPending,
	}, log.Named("bridge"))

	local := sandbox.New(cfg.LocalRoot, cfg.LocalTextLimit, cfg.LocalBinaryLimit)
	server := NewServer(br, local, auth.NewMiddleware(cfg.APIToken), log)

	log.Info("starting server",
		zap.String("addr", cfg.ListenAddr),
		zap.String("local_root", local.Root()))
	if err := http.ListenAndServe(cfg.ListenAddr, server.Handler()); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

// Server wires the bridge, the server-local sandbox, and the HTTP API.
type Server struct {
	bridge *bridge.Bridge
	local  *sandbox.Sandbox
	auth   *auth.Middleware
	log    *zap.Logger
}

func NewServer(br *bridge.Bridge, local *sandbox.Sandbox, am *auth.Middleware, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{bridge: br, local: local, auth: am, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	// Agent bridge
	mux.HandleFunc("GET /ws/agent", s.bridge.HandleAgentWebSocket)

	// Remote file browser (proxied over the bridge)
	mux.HandleFunc("GET /api/remote/status", s.handleRemoteStatus)
	mux.HandleFunc("GET /api/remote/files", s.handleRemoteList)
	mux.HandleFunc("GET /api/remote/file", s.handleRemoteRead)
	mux.HandleFunc("GET /api/remote/download", s.handleRemoteDownload)
	mux.HandleFunc("GET /api/remote/stat", s.handleRemoteStat)

	// Server-local files
	mux.HandleFunc("GET /api/local/files", s.handleLocalList)
	mux.HandleFunc("GET /api/local/file", s.handleLocalRead)
	mux.HandleFunc("PUT /api/local/file", s.auth.RequireAuthFunc(s.handleLocalWrite))
	mux.HandleFunc("POST /api/local/mkdir", s.auth.RequireAuthFunc(s.handleLocalMkdir))
	mux.HandleFunc("DELETE /api/local/file", s.auth.RequireAuthFunc(s.handleLocalDelete))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// httpStatus maps failure kinds to conventional status codes.
func httpStatus(kind fault.Kind) int {
	switch kind {
	case fault.AccessDenied:
		return http.StatusForbidden
	case fault.Unauthorized:
		return http.StatusUnauthorized
	case fault.NotFound:
		return http.StatusNotFound
	case fault.NotAFile, fault.NotADirectory:
		return http.StatusBadRequest
	case fault.TooLarge:
		return http.StatusRequestEntityTooLarge
	case fault.NotEmpty:
		return http.StatusConflict
	case fault.AgentOffline:
		return http.StatusBadGateway
	case fault.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	writeJSON(w, httpStatus(kind), map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
