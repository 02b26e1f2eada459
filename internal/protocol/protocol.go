// Package protocol defines the JSON messages exchanged between the bridge
// server and the remote agent over the persistent WebSocket connection.
package protocol

import "time"

// Message types carried in the "type" field of every frame.
const (
	TypeAuth     = "auth"
	TypeRequest  = "request"
	TypeResponse = "response"
	TypePing     = "ping"
	TypePong     = "pong"
)

// Actions the server may request from the agent.
const (
	ActionList     = "list"
	ActionRead     = "read"
	ActionDownload = "download"
	ActionOpen     = "open"
	ActionPing     = "ping"
)

// Content kinds reported by read responses.
const (
	KindText   = "text"
	KindBinary = "binary"
)

// Entry types in directory listings.
const (
	EntryFile   = "file"
	EntryFolder = "folder"
)

// Envelope is the minimal frame used to route an incoming message by type.
type Envelope struct {
	Type string `json:"type"`
}

// Auth is the first frame the agent sends after connecting.
type Auth struct {
	Type   string `json:"type"`
	Secret string `json:"secret"`
}

// Request asks the agent to perform one filesystem operation.
type Request struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Action string `json:"action"`
	Path   string `json:"path"`
}

// FileEntry describes one entry in a directory listing. Size and Extension
// are null for folders; Extension is also null for extensionless files.
type FileEntry struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Size      *int64    `json:"size"`
	Modified  time.Time `json:"modified"`
	Extension *string   `json:"extension"`
}

// Response carries the result of one request back to the server. The payload
// is flat: only the fields relevant to the action are populated, everything
// else is omitted. Error is set instead of result fields on failure.
type Response struct {
	Type  string `json:"type,omitempty"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`

	// list
	Path   string      `json:"path,omitempty"`
	Parent string      `json:"parent,omitempty"`
	Items  []FileEntry `json:"items,omitempty"`

	// read
	Content string `json:"content,omitempty"`
	Kind    string `json:"kind,omitempty"`

	// download
	Bytes []byte `json:"bytes,omitempty"`

	// read / download / open
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`

	// open
	Downloadable bool `json:"downloadable,omitempty"`

	// ping
	Status string `json:"status,omitempty"`
	Time   string `json:"time,omitempty"`
}
