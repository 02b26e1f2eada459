package main

import (
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/brandonline/filebridge/internal/fault"
	"github.com/brandonline/filebridge/internal/protocol"
)

func (s *Server) handleRemoteStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"connected": s.bridge.Connected()})
}

func (s *Server) handleRemoteList(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")

	res, err := s.bridge.ListRemote(r.Context(), path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if res.Items == nil {
		res.Items = []protocol.FileEntry{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRemoteRead(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path parameter required", http.StatusBadRequest)
		return
	}

	res, err := s.bridge.ReadRemote(r.Context(), path)
	if err != nil {
		// Binary content is a typed result for the browser, not an HTTP error.
		if fault.Is(err, fault.BinaryContent) {
			writeJSON(w, http.StatusOK, map[string]string{
				"type":  "binary",
				"error": err.Error(),
			})
			return
		}
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"type":    "text",
		"name":    res.Name,
		"content": res.Content,
	})
}

func (s *Server) handleRemoteDownload(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path parameter required", http.StatusBadRequest)
		return
	}

	dl, err := s.bridge.DownloadRemote(r.Context(), path)
	if err != nil {
		s.writeError(w, err)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(dl.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+dl.Name+`"`)
	w.Write(dl.Bytes)
}

func (s *Server) handleRemoteStat(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path parameter required", http.StatusBadRequest)
		return
	}

	st, err := s.bridge.StatRemote(r.Context(), path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
