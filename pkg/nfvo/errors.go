package nfvo

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is matched by every error that means the requested entity
	// does not exist on the orchestrator.
	ErrNotFound = errors.New("nfvo: not found")

	// ErrProjectNotFound is returned when a session is opened for an owner
	// without a project.
	ErrProjectNotFound = errors.New("nfvo: project not found")

	// ErrMalformedResponse is returned when a response body cannot be decoded.
	ErrMalformedResponse = errors.New("nfvo: malformed response")
)

// APIError is an error reported by the orchestrator, either as an HTTP
// status or as an error document in a response body.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("nfvo")
	if e.Method != "" {
		fmt.Fprintf(&b, " %s %s", e.Method, e.Path)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses and error
// documents the orchestrator raises for missing entities.
func (e *APIError) Is(target error) bool {
	if target != ErrNotFound {
		return false
	}
	if e.StatusCode == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "notfoundexception")
}

// IsNotFound reports whether err means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
