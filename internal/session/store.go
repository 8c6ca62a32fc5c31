package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openabap/adtflow/internal/errors"
)

// -----------------------------------------------------------------------------
// Store - File-Backed Session Persistence
// -----------------------------------------------------------------------------

// Store persists session state as one pretty-printed JSON file per session
// id, so files stay inspectable during debugging. Writes are atomic (temp
// file + rename); a crash mid-write never leaves a truncated file that
// parses as a valid session.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store rooted at the given directory.
// The directory is created if it doesn't exist.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewStorageError("failed to create session directory", err).WithPath(dir)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory session files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save persists the state under its session id. Safe to call repeatedly
// for the same id; last write wins.
func (s *Store) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state == nil || state.SessionID == "" {
		return errors.NewStorageError("session id cannot be empty", nil)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.NewStorageError("failed to marshal session", err)
	}

	path := s.path(state.SessionID)
	if err := atomicWriteFile(path, data, 0600); err != nil {
		return errors.NewStorageError("failed to write session file", err).WithPath(path)
	}
	return nil
}

// Load retrieves the state for a session id.
// Returns errors.ErrSessionNotFound when no file exists; a missing session
// is an answer, not a failure. Corrupt content surfaces as a StorageError
// wrapping errors.ErrSessionCorrupted, never as a partially-populated state.
func (s *Store) Load(sessionID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.path(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrSessionNotFound
		}
		return nil, errors.NewStorageError("failed to read session file", err).WithPath(path)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.NewStorageError("failed to parse session file",
			errors.Join(errors.ErrSessionCorrupted, err)).WithPath(path)
	}
	if state.SessionID == "" {
		return nil, errors.NewStorageError("session file has no session id",
			errors.ErrSessionCorrupted).WithPath(path)
	}

	return &state, nil
}

// Delete removes the session file. Idempotent: deleting a non-existent
// session is not an error.
func (s *Store) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(sessionID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError("failed to delete session file", err).WithPath(path)
	}
	return nil
}

// Exists checks if a session file exists without loading it.
func (s *Store) Exists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path(sessionID))
	return err == nil
}

// Info is a summary of one persisted session, cheap to list.
type Info struct {
	SessionID  string    `json:"session_id"`
	Created    time.Time `json:"created"`
	PID        int       `json:"pid"`
	OwnerAlive bool      `json:"owner_alive"`
	HasToken   bool      `json:"has_token"`
}

// List returns summaries for all persisted sessions, sorted by creation
// time, newest first. Unparseable files are skipped; List is a reporting
// surface, not a validator.
func (s *Store) List() ([]*Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStorageError("failed to read session directory", err).WithPath(s.dir)
	}

	var infos []*Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sessionFileExt) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var state State
		if err := json.Unmarshal(data, &state); err != nil || state.SessionID == "" {
			continue
		}

		infos = append(infos, &Info{
			SessionID:  state.SessionID,
			Created:    state.Created(),
			PID:        state.PID,
			OwnerAlive: state.OwnerAlive(),
			HasToken:   state.State.CSRFToken != "",
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Created.After(infos[j].Created)
	})
	return infos, nil
}

const sessionFileExt = ".session.json"

// path maps a session id to its file path.
func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+sessionFileExt)
}

// -----------------------------------------------------------------------------
// Helper Functions
// -----------------------------------------------------------------------------

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. This ensures the target file is never in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// Create temp file in same directory to ensure atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
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

	// Sync to disk
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

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	success = true
	return nil
}
