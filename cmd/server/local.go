package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/brandonline/filebridge/internal/fault"
	"github.com/brandonline/filebridge/internal/protocol"
	"github.com/brandonline/filebridge/internal/sandbox"
)

func (s *Server) handleLocalList(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")

	items, err := s.local.List(path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if items == nil {
		items = []protocol.FileEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":   path,
		"parent": sandbox.Parent(path),
		"items":  items,
	})
}

func (s *Server) handleLocalRead(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path parameter required", http.StatusBadRequest)
		return
	}

	content, err := s.local.ReadText(path)
	if err != nil {
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
		"content": content,
	})
}

func (s *Server) handleLocalWrite(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path parameter required", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.local.WriteText(path, string(body)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleLocalMkdir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, "path required", http.StatusBadRequest)
		return
	}

	if err := s.local.Mkdir(req.Path); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleLocalDelete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path parameter required", http.StatusBadRequest)
		return
	}
	confirm := r.URL.Query().Get("confirm") == "true"

	if err := s.local.Delete(path, confirm); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
