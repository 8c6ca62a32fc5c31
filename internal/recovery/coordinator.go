// Package recovery reconstructs enough state from disk to safely release
// locks left behind by a crashed run. A new process loads the persisted
// session, re-injects its cookies and CSRF token into a fresh connection,
// looks up the lock handle in the registry, and performs the remote unlock
// the dead process never got to. The coordinator never guesses: a missing
// session or registry entry fails recovery loudly.
package recovery

import (
	"context"

	"github.com/openabap/adtflow/internal/adt"
	"github.com/openabap/adtflow/internal/connection"
	"github.com/openabap/adtflow/internal/errors"
	"github.com/openabap/adtflow/internal/lockreg"
	"github.com/openabap/adtflow/internal/logging"
	"github.com/openabap/adtflow/internal/session"
)

// ObjectFactory builds the remote-object client for one registry entry,
// bound to whatever connection the coordinator restored.
type ObjectFactory func(objectType, objectName string) adt.RemoteObject

// Coordinator releases locks on behalf of dead processes.
type Coordinator struct {
	store    *session.Store
	registry *lockreg.Registry
	conn     connection.Connection
	factory  ObjectFactory
	logger   *logging.Logger
}

// NewCoordinator creates a Coordinator. The logger may be nil.
func NewCoordinator(store *session.Store, registry *lockreg.Registry, conn connection.Connection, factory ObjectFactory, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Coordinator{
		store:    store,
		registry: registry,
		conn:     conn,
		factory:  factory,
		logger:   logger,
	}
}

// Recover releases the lock a crashed session holds on one object and
// removes its registry entry. It returns the entry that was released.
func (c *Coordinator) Recover(ctx context.Context, sessionID, objectType, objectName string) (*lockreg.Entry, error) {
	logger := c.logger.WithSession(sessionID).WithObject(objectType, objectName)

	state, err := c.store.Load(sessionID)
	if err != nil {
		if errors.Is(err, errors.ErrSessionNotFound) {
			return nil, errors.NewRecoveryError("no persisted session", err).WithSessionID(sessionID)
		}
		return nil, err
	}

	c.conn.ImportState(state.State)
	if err := c.conn.Connect(ctx); err != nil {
		return nil, errors.NewRecoveryError("restored channel failed to connect", err).WithSessionID(sessionID)
	}
	logger.Debug("session channel restored", "created", state.Created().Format("2006-01-02 15:04:05"))

	entry, err := c.registry.Get(objectType, objectName)
	if err != nil {
		if errors.Is(err, errors.ErrLockNotFound) {
			return nil, errors.NewRecoveryError("no lock entry for object", err).WithSessionID(sessionID)
		}
		return nil, err
	}
	if entry.SessionID != sessionID {
		return nil, errors.NewRecoveryError("lock is owned by a different session", errors.ErrLockHeld).
			WithSessionID(sessionID)
	}

	object := c.factory(objectType, objectName)
	resp, err := object.Unlock(ctx, entry.LockHandle)
	if err != nil {
		return nil, errors.NewRecoveryError("remote unlock failed", err).WithSessionID(sessionID)
	}
	if !resp.IsSuccess() {
		return nil, errors.NewRecoveryError("remote unlock rejected",
			errors.NewTransportError("unlock rejected", nil).WithStatus(resp.StatusCode, resp.Status)).
			WithSessionID(sessionID)
	}

	if err := c.registry.Remove(objectType, objectName); err != nil {
		return nil, err
	}
	logger.Info("lock released", "handle", entry.LockHandle)
	return &entry, nil
}

// RecoverSession releases every registry entry owned by the session.
// Entries that fail to release are reported together; the loop does not
// stop at the first failure, a half-recovered session is still progress.
func (c *Coordinator) RecoverSession(ctx context.Context, sessionID string) ([]lockreg.Entry, error) {
	owned := c.ownedBy(sessionID)
	if len(owned) == 0 {
		return nil, errors.NewRecoveryError("session owns no lock entries", errors.ErrNothingToRecover).
			WithSessionID(sessionID)
	}

	var released []lockreg.Entry
	var errs []error
	for _, entry := range owned {
		if _, err := c.Recover(ctx, sessionID, entry.ObjectType, entry.ObjectName); err != nil {
			errs = append(errs, err)
			continue
		}
		released = append(released, entry)
	}
	return released, errors.Join(errs...)
}

// Candidates returns registry entries whose owning process is dead, the
// targets an operator-driven `recover --scan` should look at.
func (c *Coordinator) Candidates() []lockreg.Entry {
	return c.registry.Stale()
}

func (c *Coordinator) ownedBy(sessionID string) []lockreg.Entry {
	var owned []lockreg.Entry
	for _, entry := range c.registry.List() {
		if entry.SessionID == sessionID {
			owned = append(owned, entry)
		}
	}
	return owned
}
