// Package session provides file-backed persistence for authenticated ADT
// sessions. A persisted session carries everything a brand-new process needs
// to resume the authenticated channel of a crashed one: the cookie jar and
// the anti-forgery token, plus provenance (pid, timestamp) for diagnosing
// stale sessions.
package session

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"
)

// StoredCookie is one cookie captured from the connection's jar. Persisting
// the structured form alongside the raw header lets recovery re-inject
// cookies with their attributes intact.
type StoredCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
	Secure bool   `json:"secure,omitempty"`
}

// AuthState is the portable authentication state of a connection: enough to
// re-establish the channel without a fresh logon.
type AuthState struct {
	// Cookies is the raw Cookie header value as last sent
	Cookies string `json:"cookies"`
	// CookieMap is the parsed name -> value form of Cookies
	CookieMap map[string]string `json:"cookie_map,omitempty"`
	// CSRFToken is the anti-forgery token required for mutating requests
	CSRFToken string `json:"csrf_token"`
	// CookieStore is the structured cookie jar, when available
	CookieStore []StoredCookie `json:"cookie_store,omitempty"`
}

// ParseCookieHeader splits a raw Cookie header value into a name -> value
// map. Malformed fragments are skipped.
func ParseCookieHeader(raw string) map[string]string {
	m := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		m[strings.TrimSpace(name)] = value
	}
	return m
}

// State is one persisted session record. It is immutable once written
// except by full overwrite.
type State struct {
	SessionID string    `json:"session_id"`
	Timestamp int64     `json:"timestamp"` // unix millis at creation
	PID       int       `json:"pid"`
	State     AuthState `json:"state"`
}

// NewState creates a State for the given id, stamped with the current
// process and time.
func NewState(sessionID string) *State {
	return &State{
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
		PID:       os.Getpid(),
	}
}

// Created returns the creation time of the session.
func (s *State) Created() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// OwnerAlive reports whether the process that wrote this session still runs.
func (s *State) OwnerAlive() bool {
	return isProcessAlive(s.PID)
}

// NewSessionID derives a session id in the process-wide default format
// "<label>_<unixMillis>".
func NewSessionID(label string) string {
	return fmt.Sprintf("%s_%d", label, time.Now().UnixMilli())
}

// ResolveSessionID maps the configured id format to a concrete id:
// "auto" derives one from the label, anything else is used verbatim.
func ResolveSessionID(format, label string) string {
	if format == "auto" || format == "" {
		return NewSessionID(label)
	}
	return format
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	// On Unix, sending signal 0 checks if process exists without affecting it
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	return err == nil
}
