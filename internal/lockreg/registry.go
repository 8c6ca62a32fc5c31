package lockreg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/gobwas/glob"

	"github.com/openabap/adtflow/internal/errors"
)

// Entry records ownership of one remote lock.
type Entry struct {
	ObjectType string    `json:"object_type"`
	ObjectName string    `json:"object_name"`
	SessionID  string    `json:"session_id"`
	LockHandle string    `json:"lock_handle"`
	AcquiredAt time.Time `json:"acquired_at"`
	// OwnerFile names the test or run that registered the lock, for
	// diagnosing leftovers.
	OwnerFile string `json:"owner_file,omitempty"`
	// PID of the registering process, used for staleness detection.
	PID int `json:"pid"`
}

// Key returns the composite registry key for the entry.
func (e Entry) Key() string {
	return e.ObjectType + "/" + e.ObjectName
}

// registryFile is the on-disk representation: all entries in one document.
type registryFile struct {
	Entries []Entry `json:"entries"`
}

// Registry is the file-backed lock ownership registry.
type Registry struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry // key -> entry
}

// Open loads (or initializes) the registry at the given path. A missing
// file is an empty registry, not an error; the file is created on the
// first Register.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.NewStorageError("failed to create lock directory", err).WithPath(path)
	}

	r := &Registry{
		path:    path,
		entries: make(map[string]Entry),
	}
	if err := r.loadLocked(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return r.path
}

// lockPath is the advisory lock file guarding cross-process writes.
func (r *Registry) lockPath() string {
	return r.path + ".lock"
}

// loadLocked reads the registry file into memory. Callers at Open time
// hold no lock yet; Reload takes the mutex itself.
func (r *Registry) loadLocked() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewStorageError("failed to read lock registry", err).WithPath(r.path)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.NewStorageError("failed to parse lock registry", err).WithPath(r.path)
	}

	entries := make(map[string]Entry, len(file.Entries))
	for _, entry := range file.Entries {
		entries[entry.Key()] = entry
	}
	r.entries = entries
	return nil
}

// persistLocked writes the full registry synchronously and atomically.
// The caller must hold the mutex. Write failures surface unconditionally:
// a swallowed failure here would make a remotely-locked object untracked.
func (r *Registry) persistLocked() error {
	file := registryFile{Entries: make([]Entry, 0, len(r.entries))}
	for _, entry := range r.entries {
		file.Entries = append(file.Entries, entry)
	}
	sort.Slice(file.Entries, func(i, j int) bool {
		return file.Entries[i].Key() < file.Entries[j].Key()
	})

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.NewStorageError("failed to marshal lock registry", err)
	}

	if err := atomicWriteFile(r.path, data, 0644); err != nil {
		return errors.NewStorageError("failed to write lock registry", err).WithPath(r.path)
	}
	return nil
}

// Register adds or replaces the entry for the entry's object key and
// persists the registry before returning. Registering an object currently
// held by a different session is a LockConflictError; the registry refuses
// to silently adopt someone else's lock. Re-registering by the same
// session replaces the entry (a re-acquired handle supersedes the old one).
func (r *Registry) Register(entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ObjectType == "" || entry.ObjectName == "" {
		return errors.NewStorageError("lock entry missing object identity", nil)
	}
	if entry.LockHandle == "" {
		return errors.ErrLockHandleMissing
	}

	adv, err := acquireAdvisory(r.lockPath(), advisoryTimeout)
	if err != nil {
		return err
	}
	defer adv.release()
	// Re-read under the advisory lock so the conflict check sees entries
	// other processes wrote since our last load.
	if err := r.loadLocked(); err != nil {
		return err
	}

	if existing, ok := r.entries[entry.Key()]; ok && existing.SessionID != entry.SessionID {
		return errors.NewLockConflictError(entry.ObjectType, entry.ObjectName).
			WithHolder(existing.SessionID)
	}

	if entry.AcquiredAt.IsZero() {
		entry.AcquiredAt = time.Now()
	}
	if entry.PID == 0 {
		entry.PID = os.Getpid()
	}

	r.entries[entry.Key()] = entry
	return r.persistLocked()
}

// Get returns the entry for an object, or errors.ErrLockNotFound.
func (r *Registry) Get(objectType, objectName string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[objectType+"/"+objectName]
	if !ok {
		return Entry{}, errors.ErrLockNotFound
	}
	return entry, nil
}

// Remove deletes the entry for an object and persists. Idempotent:
// removing an absent entry is a no-op.
func (r *Registry) Remove(objectType, objectName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	adv, err := acquireAdvisory(r.lockPath(), advisoryTimeout)
	if err != nil {
		return err
	}
	defer adv.release()
	if err := r.loadLocked(); err != nil {
		return err
	}

	key := objectType + "/" + objectName
	if _, ok := r.entries[key]; !ok {
		return nil
	}

	delete(r.entries, key)
	return r.persistLocked()
}

// Clear wipes all entries and the registry file. Used by cleanup tooling.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	adv, err := acquireAdvisory(r.lockPath(), advisoryTimeout)
	if err != nil {
		return err
	}
	defer adv.release()

	r.entries = make(map[string]Entry)
	return r.persistLocked()
}

// List returns all entries sorted by key.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key() < entries[j].Key()
	})
	return entries
}

// Match returns all entries whose "type/name" key matches the glob
// pattern, e.g. "class/ZCL_TEST_*" or "*/Z*_RECOVERY".
func (r *Registry) Match(pattern string) ([]Entry, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}

	var matched []Entry
	for _, entry := range r.List() {
		if g.Match(entry.Key()) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

// Stale returns all entries whose registering process is no longer
// running. These are the candidates for crash recovery: the remote lock
// may still be held, but nobody local is driving it.
func (r *Registry) Stale() []Entry {
	var stale []Entry
	for _, entry := range r.List() {
		if !isProcessAlive(entry.PID) {
			stale = append(stale, entry)
		}
	}
	return stale
}

// Reload re-reads the registry file, picking up changes written by other
// processes. Used by the watcher.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}

// atomicWriteFile writes data via a temp file in the same directory and an
// atomic rename, so readers never observe a partial registry.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	success = true
	return nil
}
