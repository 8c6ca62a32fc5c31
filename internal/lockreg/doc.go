// Package lockreg tracks which session owns the remote lock on which ABAP
// object, persisted to a single shared file so that a brand-new process can
// discover and release locks left behind by a crashed one.
//
// The registry does not arbitrate real remote locks. The backend does that;
// lockreg only records this process family's bookkeeping: the opaque lock
// handle the backend returned, the session that obtained it, and when.
//
// # Architecture
//
// The [Registry] keeps an in-memory map of (objectType, objectName) to
// [Entry] and rewrites the whole registry file atomically (temp file +
// rename) on every mutation, before the mutating call returns. A crash
// immediately after Register still leaves the lock discoverable on disk,
// and a crash mid-write can never be read back as a valid-but-truncated
// registry.
//
// There remains a window between the backend granting a lock and Register
// persisting it; a crash inside that window leaves the remote object locked
// with no local record. That window is inherent to tracking a remote
// resource from the outside.
//
// # Basic Usage
//
//	reg, err := lockreg.Open("/var/lib/adtflow/locks.json")
//
//	// Record a freshly acquired remote lock
//	err = reg.Register(lockreg.Entry{
//		ObjectType: "class",
//		ObjectName: "ZCL_FOO",
//		SessionID:  "run_1700000000000",
//		LockHandle: "H123",
//	})
//
//	// A different process, later
//	entry, err := reg.Get("class", "ZCL_FOO")
//	err = reg.Remove("class", "ZCL_FOO")
//
// # Thread Safety
//
// All [Registry] methods are safe for concurrent use via an internal
// sync.Mutex. Cross-process writers are serialized by an advisory lock
// file next to the registry: each mutation acquires it, re-reads the file,
// applies the change, and rewrites. Owners that died while holding the
// advisory lock are detected by PID liveness and their lock file is
// reclaimed. This coordinates cooperating local processes only; it is not
// a distributed lock.
package lockreg
