// Package connection provides the authenticated HTTP channel to the ADT
// backend. It owns the cookie jar and the anti-forgery token, and can
// export that state for persistence and re-import it in a different
// process, which is what makes crash recovery of a logged-on session
// possible without a fresh logon.
package connection

import (
	"context"
	"net/url"
	"time"

	"github.com/openabap/adtflow/internal/session"
)

// Request describes one HTTP exchange with the backend. Path is relative
// to the connection's base URL.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    []byte
	// Timeout overrides the connection's default per-request timeout
	// when non-zero.
	Timeout time.Duration
}

// Response is the raw transport result. Business-level errors embedded in
// a 2xx body are the caller's concern; the connection reports only what
// the wire said.
type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Connection is the channel the orchestrator and recovery coordinator
// speak through. Implementations must be safe for sequential reuse across
// many requests; they need not support concurrent requests.
type Connection interface {
	// Connect establishes the authenticated channel: logon, cookie
	// acquisition, and CSRF token fetch. Calling Connect on an already
	// connected channel refreshes the token.
	Connect(ctx context.Context) error

	// Do issues a single request on the established channel.
	Do(ctx context.Context, req *Request) (*Response, error)

	// Reset drops all channel state (cookies, token), forcing the next
	// Connect to perform a fresh handshake.
	Reset()

	// ExportState captures the cookie jar and CSRF token for persistence.
	ExportState() session.AuthState

	// ImportState installs previously persisted cookies and token, so a
	// new process can resume a crashed process's session.
	ImportState(state session.AuthState)
}
