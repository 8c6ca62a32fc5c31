package adt

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/openabap/adtflow/internal/connection"
	"github.com/openabap/adtflow/internal/errors"
	"github.com/openabap/adtflow/internal/logging"
)

const (
	// sessionTypeHeader marks a request as part of a stateful channel.
	// Lock handles are only valid within such a channel.
	sessionTypeHeader = "X-sap-adt-sessiontype"
	sessionStateful   = "stateful"

	activationPath = "/sap/bc/adt/activation"
	checkRunPath   = "/sap/bc/adt/checkruns"
)

// Client drives any repository object type described by an ObjectConfig
// over a Connection, implementing RemoteObject. Per-type payload assembly
// is delegated to the configured Builders.
type Client struct {
	conn     connection.Connection
	cfg      ObjectConfig
	builders Builders
	logger   *logging.Logger
}

// NewClient creates a Client for one object. The logger may be nil.
func NewClient(conn connection.Connection, cfg ObjectConfig, builders Builders, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Client{
		conn:     conn,
		cfg:      cfg,
		builders: builders,
		logger:   logger.WithObject(cfg.Type, cfg.Name),
	}
}

// Config returns the object configuration the client was built for.
func (c *Client) Config() ObjectConfig {
	return c.cfg
}

// objectPath is the object's own URL under its collection.
func (c *Client) objectPath() string {
	return strings.TrimSuffix(c.cfg.BasePath, "/") + "/" + strings.ToLower(c.cfg.Name)
}

func (c *Client) contentType() string {
	if c.cfg.ContentType != "" {
		return c.cfg.ContentType
	}
	return "application/xml"
}

// Validate asks the backend to vet name, package and description before
// anything is created.
func (c *Client) Validate(ctx context.Context) (*Response, error) {
	query := url.Values{}
	query.Set("objtype", c.cfg.Type)
	query.Set("objname", c.cfg.Name)
	query.Set("packagename", c.cfg.Package)
	if c.cfg.Description != "" {
		query.Set("description", c.cfg.Description)
	}
	return c.exchange(ctx, &connection.Request{
		Method: http.MethodPost,
		Path:   strings.TrimSuffix(c.cfg.BasePath, "/") + "/validation",
		Query:  query,
	})
}

func (c *Client) Create(ctx context.Context) (*Response, error) {
	payload, err := c.buildPayload(c.builders.Create)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	if c.cfg.Transport != "" {
		query.Set("corrNr", c.cfg.Transport)
	}
	return c.exchange(ctx, &connection.Request{
		Method:  http.MethodPost,
		Path:    c.cfg.BasePath,
		Query:   query,
		Headers: map[string]string{"Content-Type": c.contentType()},
		Body:    payload,
	})
}

func (c *Client) Read(ctx context.Context, version CheckVersion) (*Response, error) {
	query := url.Values{}
	if version != "" {
		query.Set("version", string(version))
	}
	return c.exchange(ctx, &connection.Request{
		Method: http.MethodGet,
		Path:   c.objectPath() + "/source/main",
		Query:  query,
	})
}

// Update replaces the object's main source under the given lock handle.
func (c *Client) Update(ctx context.Context, lockHandle string) (*Response, error) {
	if lockHandle == "" {
		return nil, errors.ErrLockHandleMissing
	}
	payload, err := c.buildUpdatePayload()
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("lockHandle", lockHandle)
	if c.cfg.Transport != "" {
		query.Set("corrNr", c.cfg.Transport)
	}
	return c.exchange(ctx, &connection.Request{
		Method: http.MethodPut,
		Path:   c.objectPath() + "/source/main",
		Query:  query,
		Headers: map[string]string{
			"Content-Type":    "text/plain; charset=utf-8",
			sessionTypeHeader: sessionStateful,
		},
		Body: payload,
	})
}

func (c *Client) Delete(ctx context.Context, lockHandle string) (*Response, error) {
	if lockHandle == "" {
		return nil, errors.ErrLockHandleMissing
	}
	query := url.Values{}
	query.Set("lockHandle", lockHandle)
	return c.exchange(ctx, &connection.Request{
		Method:  http.MethodDelete,
		Path:    c.objectPath(),
		Query:   query,
		Headers: map[string]string{sessionTypeHeader: sessionStateful},
	})
}

// Activate promotes the inactive version via the central activation
// endpoint, referencing the object by URI and name.
func (c *Client) Activate(ctx context.Context) (*Response, error) {
	query := url.Values{}
	query.Set("method", "activate")
	query.Set("preauditRequested", "true")
	return c.exchange(ctx, &connection.Request{
		Method:  http.MethodPost,
		Path:    activationPath,
		Query:   query,
		Headers: map[string]string{"Content-Type": "application/xml"},
		Body:    []byte(c.activationPayload()),
	})
}

// Check runs the syntax/consistency check against the given version.
func (c *Client) Check(ctx context.Context, version CheckVersion) (*Response, error) {
	if version == "" {
		version = VersionActive
	}
	query := url.Values{}
	query.Set("reporters", "abapCheckRun")
	return c.exchange(ctx, &connection.Request{
		Method:  http.MethodPost,
		Path:    checkRunPath,
		Query:   query,
		Headers: map[string]string{"Content-Type": "application/vnd.sap.adt.checkobjects+xml"},
		Body:    []byte(c.checkPayload(version)),
	})
}

// Lock acquires the modification lock. The backend answers with an opaque
// handle that all locked mutations and the eventual unlock must carry.
func (c *Client) Lock(ctx context.Context) (string, *Response, error) {
	query := url.Values{}
	query.Set("_action", "LOCK")
	query.Set("accessMode", "MODIFY")
	resp, err := c.exchange(ctx, &connection.Request{
		Method:  http.MethodPost,
		Path:    c.objectPath(),
		Query:   query,
		Headers: map[string]string{sessionTypeHeader: sessionStateful},
	})
	if err != nil {
		return "", nil, err
	}
	if !resp.IsSuccess() {
		if isForeignLock(resp) {
			return "", resp, errors.NewLockConflictError(c.cfg.Type, c.cfg.Name).
				WithCause(errors.NewTransportError("lock rejected", nil).
					WithStatus(resp.StatusCode, resp.Status))
		}
		return "", resp, errors.NewTransportError("lock request rejected", nil).
			WithStatus(resp.StatusCode, resp.Status)
	}

	handle := parseLockHandle(resp.Body)
	if handle == "" {
		return "", resp, errors.NewTransportError("lock response carried no handle", nil).
			WithStatus(resp.StatusCode, resp.Status)
	}
	c.logger.Debug("lock acquired", "handle", handle)
	return handle, resp, nil
}

func (c *Client) Unlock(ctx context.Context, lockHandle string) (*Response, error) {
	if lockHandle == "" {
		return nil, errors.ErrLockHandleMissing
	}
	query := url.Values{}
	query.Set("_action", "UNLOCK")
	query.Set("lockHandle", lockHandle)
	return c.exchange(ctx, &connection.Request{
		Method:  http.MethodPost,
		Path:    c.objectPath(),
		Query:   query,
		Headers: map[string]string{sessionTypeHeader: sessionStateful},
	})
}

// exchange performs one round-trip and folds the wire response into the
// domain Response, parsing any embedded entries.
func (c *Client) exchange(ctx context.Context, req *connection.Request) (*Response, error) {
	wire, err := c.conn.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		StatusCode: wire.StatusCode,
		Status:     wire.Status,
		Body:       wire.Body,
		Messages:   parseMessages(wire.Body),
	}
	c.logger.Debug("exchange completed",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"messages", len(resp.Messages))
	return resp, nil
}

func (c *Client) buildPayload(builder PayloadBuilder) ([]byte, error) {
	if builder == nil {
		return []byte(c.metadataPayload()), nil
	}
	return builder(c.cfg)
}

func (c *Client) buildUpdatePayload() ([]byte, error) {
	if c.builders.Update != nil {
		return c.builders.Update(c.cfg)
	}
	return []byte(c.cfg.Source), nil
}

// metadataPayload is the generic create body used when no per-type builder
// is registered.
func (c *Client) metadataPayload() string {
	return fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?>`+
			`<adtcore:objectData xmlns:adtcore="http://www.sap.com/adt/core"`+
			` adtcore:type=%q adtcore:name=%q adtcore:description=%q>`+
			`<adtcore:packageRef adtcore:name=%q/>`+
			`</adtcore:objectData>`,
		c.cfg.Type, c.cfg.Name, c.cfg.Description, c.cfg.Package)
}

func (c *Client) activationPayload() string {
	return fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?>`+
			`<adtcore:objectReferences xmlns:adtcore="http://www.sap.com/adt/core">`+
			`<adtcore:objectReference adtcore:uri=%q adtcore:name=%q/>`+
			`</adtcore:objectReferences>`,
		c.objectPath(), strings.ToUpper(c.cfg.Name))
}

func (c *Client) checkPayload(version CheckVersion) string {
	return fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?>`+
			`<chkrun:checkObjectList xmlns:chkrun="http://www.sap.com/adt/checkrun"`+
			` xmlns:adtcore="http://www.sap.com/adt/core">`+
			`<chkrun:checkObject adtcore:uri=%q chkrun:version=%q/>`+
			`</chkrun:checkObjectList>`,
		c.objectPath(), string(version))
}

// parseLockHandle extracts the LOCK_HANDLE value from a lock response body.
func parseLockHandle(body []byte) string {
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "LOCK_HANDLE" {
			continue
		}
		var value string
		if err := dec.DecodeElement(&value, &start); err != nil {
			return ""
		}
		return strings.TrimSpace(value)
	}
}

// isForeignLock reports whether a rejected lock attempt failed because
// another user or session already holds the object.
func isForeignLock(resp *Response) bool {
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusConflict {
		return true
	}
	body := strings.ToLower(string(resp.Body))
	return strings.Contains(body, "locked by") || strings.Contains(body, "foreign lock")
}
