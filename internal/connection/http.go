package connection

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/openabap/adtflow/internal/config"
	"github.com/openabap/adtflow/internal/errors"
	"github.com/openabap/adtflow/internal/logging"
	"github.com/openabap/adtflow/internal/session"
)

const (
	csrfHeader     = "x-csrf-token"
	csrfFetchValue = "fetch"

	// discoveryPath is a cheap authenticated endpoint used for the logon
	// handshake and CSRF token fetch.
	discoveryPath = "/sap/bc/adt/discovery"
)

// HTTPConnection implements Connection over net/http with basic
// authentication, a manually managed cookie jar, and CSRF token handling.
// The jar is managed manually rather than via http.CookieJar so its full
// contents can be exported for persistence and re-imported verbatim.
type HTTPConnection struct {
	cfg    config.ConnectionConfig
	client *http.Client
	logger *logging.Logger

	mu        sync.Mutex
	cookies   map[string]string
	csrfToken string
	connected bool
}

// NewHTTPConnection creates an HTTPConnection from the given configuration.
// The logger may be nil.
func NewHTTPConnection(cfg config.ConnectionConfig, logger *logging.Logger) *HTTPConnection {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &HTTPConnection{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout()},
		logger:  logger,
		cookies: make(map[string]string),
	}
}

// Connect performs the logon handshake: an authenticated GET against the
// discovery endpoint with a CSRF fetch header. The backend responds with
// session cookies and the token all subsequent mutating requests need.
func (c *HTTPConnection) Connect(ctx context.Context) error {
	resp, err := c.do(ctx, &Request{
		Method:  http.MethodGet,
		Path:    discoveryPath,
		Headers: map[string]string{csrfHeader: csrfFetchValue},
	}, true)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return errors.NewTransportError("logon handshake failed", nil).
			WithStatus(resp.StatusCode, resp.Status)
	}

	c.mu.Lock()
	c.connected = true
	token := c.csrfToken
	c.mu.Unlock()

	if token == "" {
		return errors.NewTransportError("backend returned no csrf token", nil).
			WithStatus(resp.StatusCode, resp.Status)
	}

	c.logger.Debug("connection established", "base_url", c.cfg.BaseURL)
	return nil
}

// Do issues a request on the established channel. A 403 with a rejected
// token triggers one transparent token re-fetch and retry; token expiry
// mid-run is routine on long lifecycles.
func (c *HTTPConnection) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.do(ctx, req, false)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusForbidden &&
		strings.EqualFold(resp.Headers[csrfHeader], "required") {
		c.logger.Debug("csrf token rejected, refreshing")
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c.do(ctx, req, false)
	}

	return resp, nil
}

// do performs a single exchange. handshake requests send the fetch header
// and basic credentials; regular requests ride on cookies and the token.
func (c *HTTPConnection) do(ctx context.Context, req *Request, handshake bool) (*Response, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, errors.NewTransportError("invalid base url", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + req.Path

	query := url.Values{}
	for k, vs := range req.Query {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	if c.cfg.Client != "" {
		query.Set("sap-client", c.cfg.Client)
	}
	if c.cfg.Language != "" {
		query.Set("sap-language", c.cfg.Language)
	}
	u.RawQuery = query.Encode()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, errors.NewTransportError("failed to build request", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	c.mu.Lock()
	if handshake || len(c.cookies) == 0 {
		httpReq.SetBasicAuth(c.cfg.User, c.cfg.Password())
	}
	if cookie := c.cookieHeaderLocked(); cookie != "" {
		httpReq.Header.Set("Cookie", cookie)
	}
	if !handshake && c.csrfToken != "" && httpReq.Header.Get(csrfHeader) == "" {
		httpReq.Header.Set(csrfHeader, c.csrfToken)
	}
	c.mu.Unlock()

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewTransportError("request failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.NewTransportError("failed to read response body", err)
	}

	c.absorb(httpResp)

	headers := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		headers[strings.ToLower(k)] = httpResp.Header.Get(k)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    headers,
		Body:       respBody,
	}, nil
}

// absorb captures Set-Cookie values and any refreshed CSRF token from a
// response into the connection's state.
func (c *HTTPConnection) absorb(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cookie := range resp.Cookies() {
		if cookie.Value == "" {
			delete(c.cookies, cookie.Name)
			continue
		}
		c.cookies[cookie.Name] = cookie.Value
	}

	if token := resp.Header.Get(csrfHeader); token != "" && !strings.EqualFold(token, "required") {
		c.csrfToken = token
	}
}

// cookieHeaderLocked renders the jar as a Cookie header value.
// The caller must hold the mutex.
func (c *HTTPConnection) cookieHeaderLocked() string {
	if len(c.cookies) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c.cookies))
	for name, value := range c.cookies {
		parts = append(parts, name+"="+value)
	}
	return strings.Join(parts, "; ")
}

// Reset drops cookies and token, forcing a fresh handshake on the next
// Connect.
func (c *HTTPConnection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cookies = make(map[string]string)
	c.csrfToken = ""
	c.connected = false
}

// ExportState captures the jar and token for persistence.
func (c *HTTPConnection) ExportState() session.AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()

	cookieMap := make(map[string]string, len(c.cookies))
	store := make([]session.StoredCookie, 0, len(c.cookies))
	for name, value := range c.cookies {
		cookieMap[name] = value
		store = append(store, session.StoredCookie{Name: name, Value: value})
	}

	return session.AuthState{
		Cookies:     c.cookieHeaderLocked(),
		CookieMap:   cookieMap,
		CSRFToken:   c.csrfToken,
		CookieStore: store,
	}
}

// ImportState installs persisted cookies and token. The next request rides
// on them directly; Connect is only needed if the backend has discarded
// the session server-side.
func (c *HTTPConnection) ImportState(state session.AuthState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cookies := make(map[string]string)
	for _, cookie := range state.CookieStore {
		cookies[cookie.Name] = cookie.Value
	}
	for name, value := range state.CookieMap {
		cookies[name] = value
	}
	if len(cookies) == 0 && state.Cookies != "" {
		cookies = session.ParseCookieHeader(state.Cookies)
	}

	c.cookies = cookies
	c.csrfToken = state.CSRFToken
	c.connected = len(cookies) > 0
}
