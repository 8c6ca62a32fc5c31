package adt

import "context"

// CheckVersion selects which version of an object a check runs against.
type CheckVersion string

const (
	VersionActive   CheckVersion = "active"
	VersionInactive CheckVersion = "inactive"
)

// ObjectConfig describes one repository artifact and where it lives in the
// backend's URL space. BasePath is the collection (e.g.
// "/sap/bc/adt/oo/classes"); the object itself sits at BasePath/Name.
type ObjectConfig struct {
	// Type is the repository type identifier, e.g. "CLAS/OC" or "TABL/DT".
	Type string
	// Name is the object name, e.g. "ZCL_DEMO".
	Name        string
	Package     string
	Description string
	BasePath    string
	// ContentType of create/update payloads; defaults to application/xml.
	ContentType string
	// Source is the body content for object types updated as plain source.
	Source string
	// Transport is the change request the object is created under, if any.
	Transport string
}

// PayloadBuilder assembles a request body for one operation of one object
// type. New object types plug in their own builders without touching the
// lifecycle.
type PayloadBuilder func(cfg ObjectConfig) ([]byte, error)

// Builders groups the per-type payload assembly hooks. A nil Create falls
// back to a generic metadata payload; a nil Update sends cfg.Source as-is.
type Builders struct {
	Create PayloadBuilder
	Update PayloadBuilder
}

// RemoteObject is the contract the lifecycle drives. All methods block on
// the remote round-trip and honor context cancellation. Responses carry
// both the transport status and any parsed business entries; a nil error
// means the exchange completed, not that the backend agreed.
type RemoteObject interface {
	// Validate asks the backend whether the object may be created as
	// configured. A 2xx response can still carry error entries.
	Validate(ctx context.Context) (*Response, error)
	Create(ctx context.Context) (*Response, error)
	Read(ctx context.Context, version CheckVersion) (*Response, error)
	// Update applies the configured payload under the given lock handle.
	Update(ctx context.Context, lockHandle string) (*Response, error)
	Delete(ctx context.Context, lockHandle string) (*Response, error)
	// Activate promotes the inactive version. Activation may complete
	// asynchronously on the backend; a check immediately after can
	// observe stale state.
	Activate(ctx context.Context) (*Response, error)
	Check(ctx context.Context, version CheckVersion) (*Response, error)
	// Lock acquires an exclusive modification lock and returns the opaque
	// handle that all locked mutations and the eventual unlock require.
	Lock(ctx context.Context) (string, *Response, error)
	Unlock(ctx context.Context, lockHandle string) (*Response, error)
}
