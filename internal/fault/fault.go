// Package fault defines the typed failure taxonomy shared by the sandbox
// executor, the bridge, and the HTTP layer.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	AccessDenied    Kind = "access_denied"
	NotFound        Kind = "not_found"
	NotAFile        Kind = "not_a_file"
	NotADirectory   Kind = "not_a_directory"
	TooLarge        Kind = "too_large"
	BinaryContent   Kind = "binary_content"
	NotEmpty        Kind = "not_empty"
	AgentOffline    Kind = "agent_offline"
	Timeout         Kind = "timeout"
	Unauthorized    Kind = "unauthorized"
	OperationFailed Kind = "operation_failed"
)

// Error is a classified failure with a human-readable detail.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// New creates a classified failure.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error, preserving its message as detail.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return &Error{Kind: kind}
	}
	return &Error{Kind: kind, Detail: err.Error()}
}

// KindOf returns the kind of a classified error, or OperationFailed for
// anything unclassified. Nil maps to the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return OperationFailed
}

// Is reports whether err is a classified failure of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var knownKinds = map[Kind]bool{
	AccessDenied:    true,
	NotFound:        true,
	NotAFile:        true,
	NotADirectory:   true,
	TooLarge:        true,
	BinaryContent:   true,
	NotEmpty:        true,
	AgentOffline:    true,
	Timeout:         true,
	Unauthorized:    true,
	OperationFailed: true,
}

// Parse recovers a classified failure from its Error() string, as carried in
// the wire-level error field. Strings without a recognized kind prefix are
// classified as OperationFailed.
func Parse(s string) *Error {
	if kind, detail, ok := strings.Cut(s, ": "); ok && knownKinds[Kind(kind)] {
		return &Error{Kind: Kind(kind), Detail: detail}
	}
	if knownKinds[Kind(s)] {
		return &Error{Kind: Kind(s)}
	}
	return &Error{Kind: OperationFailed, Detail: s}
}
