package adt

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/openabap/adtflow/internal/connection"
	"github.com/openabap/adtflow/internal/errors"
	"github.com/openabap/adtflow/internal/session"
)

// ============================================================================
// Fake Connection
// ============================================================================

// fakeConn records every request and replays canned responses in order.
type fakeConn struct {
	requests  []*connection.Request
	responses []*connection.Response
	errs      []error
}

func (f *fakeConn) Connect(ctx context.Context) error { return nil }

func (f *fakeConn) Do(ctx context.Context, req *connection.Request) (*connection.Response, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return &connection.Response{StatusCode: http.StatusOK, Status: "200 OK"}, nil
}

func (f *fakeConn) Reset()                              {}
func (f *fakeConn) ExportState() session.AuthState      { return session.AuthState{} }
func (f *fakeConn) ImportState(state session.AuthState) {}

func (f *fakeConn) last(t *testing.T) *connection.Request {
	t.Helper()
	if len(f.requests) == 0 {
		t.Fatal("no request recorded")
	}
	return f.requests[len(f.requests)-1]
}

func testObject() ObjectConfig {
	return ObjectConfig{
		Type:        "CLAS/OC",
		Name:        "ZCL_DEMO",
		Package:     "ZDEMO",
		Description: "demo class",
		BasePath:    "/sap/bc/adt/oo/classes",
		Source:      "CLASS zcl_demo DEFINITION PUBLIC. ENDCLASS.",
	}
}

// ============================================================================
// Request Shape Tests
// ============================================================================

func TestValidateRequest(t *testing.T) {
	conn := &fakeConn{}
	client := NewClient(conn, testObject(), Builders{}, nil)

	resp, err := client.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !resp.IsSuccess() {
		t.Errorf("status = %d", resp.StatusCode)
	}

	req := conn.last(t)
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if req.Path != "/sap/bc/adt/oo/classes/validation" {
		t.Errorf("path = %s", req.Path)
	}
	if req.Query.Get("objname") != "ZCL_DEMO" || req.Query.Get("packagename") != "ZDEMO" {
		t.Errorf("query = %v", req.Query)
	}
}

func TestCreateUsesBuilderAndTransport(t *testing.T) {
	conn := &fakeConn{}
	cfg := testObject()
	cfg.Transport = "DEVK900001"
	builders := Builders{
		Create: func(c ObjectConfig) ([]byte, error) {
			return []byte("<custom name=\"" + c.Name + "\"/>"), nil
		},
	}
	client := NewClient(conn, cfg, builders, nil)

	if _, err := client.Create(context.Background()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	req := conn.last(t)
	if req.Path != "/sap/bc/adt/oo/classes" {
		t.Errorf("path = %s", req.Path)
	}
	if req.Query.Get("corrNr") != "DEVK900001" {
		t.Errorf("corrNr = %q", req.Query.Get("corrNr"))
	}
	if !strings.Contains(string(req.Body), `name="ZCL_DEMO"`) {
		t.Errorf("body = %s, builder output not used", req.Body)
	}
}

func TestCreateFallsBackToMetadataPayload(t *testing.T) {
	conn := &fakeConn{}
	client := NewClient(conn, testObject(), Builders{}, nil)

	if _, err := client.Create(context.Background()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	body := string(conn.last(t).Body)
	for _, want := range []string{"ZCL_DEMO", "ZDEMO", "demo class", "CLAS/OC"} {
		if !strings.Contains(body, want) {
			t.Errorf("metadata payload missing %q: %s", want, body)
		}
	}
}

func TestUpdateRequiresHandle(t *testing.T) {
	conn := &fakeConn{}
	client := NewClient(conn, testObject(), Builders{}, nil)

	if _, err := client.Update(context.Background(), ""); !errors.Is(err, errors.ErrLockHandleMissing) {
		t.Errorf("Update(\"\") error = %v, want ErrLockHandleMissing", err)
	}
	if len(conn.requests) != 0 {
		t.Error("no request should be sent without a handle")
	}
}

func TestUpdateSendsSourceUnderHandle(t *testing.T) {
	conn := &fakeConn{}
	client := NewClient(conn, testObject(), Builders{}, nil)

	if _, err := client.Update(context.Background(), "H123"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	req := conn.last(t)
	if req.Method != http.MethodPut {
		t.Errorf("method = %s, want PUT", req.Method)
	}
	if req.Path != "/sap/bc/adt/oo/classes/zcl_demo/source/main" {
		t.Errorf("path = %s", req.Path)
	}
	if req.Query.Get("lockHandle") != "H123" {
		t.Errorf("lockHandle = %q", req.Query.Get("lockHandle"))
	}
	if req.Headers[sessionTypeHeader] != sessionStateful {
		t.Error("locked mutation must ride on the stateful channel")
	}
	if !strings.Contains(string(req.Body), "CLASS zcl_demo") {
		t.Errorf("body = %s", req.Body)
	}
}

func TestCheckVersions(t *testing.T) {
	conn := &fakeConn{}
	client := NewClient(conn, testObject(), Builders{}, nil)

	if _, err := client.Check(context.Background(), VersionInactive); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	req := conn.last(t)
	if req.Path != checkRunPath {
		t.Errorf("path = %s", req.Path)
	}
	if !strings.Contains(string(req.Body), `chkrun:version="inactive"`) {
		t.Errorf("body = %s", req.Body)
	}
}

func TestActivateReferencesObject(t *testing.T) {
	conn := &fakeConn{}
	client := NewClient(conn, testObject(), Builders{}, nil)

	if _, err := client.Activate(context.Background()); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	req := conn.last(t)
	if req.Path != activationPath {
		t.Errorf("path = %s", req.Path)
	}
	if req.Query.Get("method") != "activate" {
		t.Errorf("method param = %q", req.Query.Get("method"))
	}
	body := string(req.Body)
	if !strings.Contains(body, "/sap/bc/adt/oo/classes/zcl_demo") || !strings.Contains(body, "ZCL_DEMO") {
		t.Errorf("body = %s", body)
	}
}

// ============================================================================
// Lock / Unlock Tests
// ============================================================================

const lockResponseBody = `<?xml version="1.0" encoding="utf-8"?>
<asx:abap xmlns:asx="http://www.sap.com/abapxml" version="1.0">
	<asx:values>
		<DATA>
			<LOCK_HANDLE>4AFE0A2C6E2D</LOCK_HANDLE>
			<CORRNR/>
		</DATA>
	</asx:values>
</asx:abap>`

func TestLockParsesHandle(t *testing.T) {
	conn := &fakeConn{responses: []*connection.Response{
		{StatusCode: 200, Status: "200 OK", Body: []byte(lockResponseBody)},
	}}
	client := NewClient(conn, testObject(), Builders{}, nil)

	handle, resp, err := client.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if handle != "4AFE0A2C6E2D" {
		t.Errorf("handle = %q", handle)
	}
	if !resp.IsSuccess() {
		t.Errorf("status = %d", resp.StatusCode)
	}

	req := conn.last(t)
	if req.Query.Get("_action") != "LOCK" || req.Query.Get("accessMode") != "MODIFY" {
		t.Errorf("query = %v", req.Query)
	}
	if req.Headers[sessionTypeHeader] != sessionStateful {
		t.Error("lock must ride on the stateful channel")
	}
}

func TestLockConflictClassifies(t *testing.T) {
	conn := &fakeConn{responses: []*connection.Response{
		{StatusCode: 403, Status: "403 Forbidden", Body: []byte("Object is locked by user OTHER")},
	}}
	client := NewClient(conn, testObject(), Builders{}, nil)

	_, _, err := client.Lock(context.Background())
	if err == nil {
		t.Fatal("Lock() should fail on a foreign lock")
	}
	if !errors.Is(err, errors.ErrLockHeld) {
		t.Errorf("error = %v, want ErrLockHeld classification", err)
	}
}

func TestLockWithoutHandleInBody(t *testing.T) {
	conn := &fakeConn{responses: []*connection.Response{
		{StatusCode: 200, Status: "200 OK", Body: []byte("<asx:abap/>")},
	}}
	client := NewClient(conn, testObject(), Builders{}, nil)

	_, _, err := client.Lock(context.Background())
	if err == nil {
		t.Fatal("Lock() should fail when the response carries no handle")
	}
	var te *errors.TransportError
	if !errors.As(err, &te) {
		t.Errorf("error = %T, want *TransportError", err)
	}
}

func TestUnlockRequest(t *testing.T) {
	conn := &fakeConn{}
	client := NewClient(conn, testObject(), Builders{}, nil)

	if _, err := client.Unlock(context.Background(), "H9"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	req := conn.last(t)
	if req.Query.Get("_action") != "UNLOCK" || req.Query.Get("lockHandle") != "H9" {
		t.Errorf("query = %v", req.Query)
	}
}

func TestUnlockRequiresHandle(t *testing.T) {
	client := NewClient(&fakeConn{}, testObject(), Builders{}, nil)
	if _, err := client.Unlock(context.Background(), ""); !errors.Is(err, errors.ErrLockHandleMissing) {
		t.Errorf("Unlock(\"\") error = %v, want ErrLockHandleMissing", err)
	}
}

// ============================================================================
// Embedded Message Tests
// ============================================================================

func TestExchangeParsesEmbeddedMessages(t *testing.T) {
	body := `<chkrun:checkRunReports xmlns:chkrun="http://www.sap.com/adt/checkrun">
		<chkrun:checkMessage type="E" line="4">Unknown type</chkrun:checkMessage>
	</chkrun:checkRunReports>`
	conn := &fakeConn{responses: []*connection.Response{
		{StatusCode: 200, Status: "200 OK", Body: []byte(body)},
	}}
	client := NewClient(conn, testObject(), Builders{}, nil)

	resp, err := client.Check(context.Background(), VersionActive)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if resp.Err() == nil {
		t.Error("a 200 with error entries must still classify as failed")
	}
}
