package lockreg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openabap/adtflow/internal/errors"
)

// =============================================================================
// Test Helpers
// =============================================================================

func testEntry(objectType, objectName, sessionID, handle string) Entry {
	return Entry{
		ObjectType: objectType,
		ObjectName: objectName,
		SessionID:  sessionID,
		LockHandle: handle,
		OwnerFile:  "registry_test",
	}
}

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()

	reg, err := Open(filepath.Join(t.TempDir(), "locks.json"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return reg
}

// =============================================================================
// Registry Tests
// =============================================================================

func TestOpen(t *testing.T) {
	t.Run("missing file is empty registry", func(t *testing.T) {
		reg := openTestRegistry(t)

		if entries := reg.List(); len(entries) != 0 {
			t.Errorf("List() = %v, want empty", entries)
		}
	})

	t.Run("creates missing parent directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "locks.json")

		if _, err := Open(path); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if _, err := os.Stat(filepath.Dir(path)); err != nil {
			t.Errorf("parent directory not created: %v", err)
		}
	})

	t.Run("corrupt file surfaces as StorageError", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "locks.json")
		if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
			t.Fatalf("failed to seed corrupt file: %v", err)
		}

		_, err := Open(path)
		var sErr *errors.StorageError
		if !errors.As(err, &sErr) {
			t.Errorf("Open corrupt registry = %v, want StorageError", err)
		}
	})
}

func TestRegistry_RegisterGetRemove(t *testing.T) {
	reg := openTestRegistry(t)

	entry := testEntry("class", "ZCL_TEST", "run_1", "H123")
	if err := reg.Register(entry); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := reg.Get("class", "ZCL_TEST")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.LockHandle != "H123" {
		t.Errorf("LockHandle = %q, want H123", got.LockHandle)
	}
	if got.SessionID != "run_1" {
		t.Errorf("SessionID = %q, want run_1", got.SessionID)
	}
	if got.AcquiredAt.IsZero() {
		t.Error("AcquiredAt was not defaulted")
	}
	if got.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", got.PID, os.Getpid())
	}

	if err := reg.Remove("class", "ZCL_TEST"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := reg.Get("class", "ZCL_TEST"); !errors.Is(err, errors.ErrLockNotFound) {
		t.Errorf("Get after Remove = %v, want ErrLockNotFound", err)
	}
}

func TestRegistry_Remove_Idempotent(t *testing.T) {
	reg := openTestRegistry(t)

	if err := reg.Remove("class", "NEVER_LOCKED"); err != nil {
		t.Errorf("Remove of absent entry failed: %v", err)
	}
	if err := reg.Remove("class", "NEVER_LOCKED"); err != nil {
		t.Errorf("second Remove failed: %v", err)
	}
}

func TestRegistry_Register_Conflict(t *testing.T) {
	reg := openTestRegistry(t)

	if err := reg.Register(testEntry("table", "ZTAB", "run_1", "H1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := reg.Register(testEntry("table", "ZTAB", "run_2", "H2"))
	if !errors.Is(err, errors.ErrLockHeld) {
		t.Fatalf("Register by other session = %v, want ErrLockHeld", err)
	}
	var cErr *errors.LockConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("error = %v, want LockConflictError", err)
	}
	if cErr.HeldBy != "run_1" {
		t.Errorf("HeldBy = %q, want run_1", cErr.HeldBy)
	}

	// Original entry is untouched
	got, err := reg.Get("table", "ZTAB")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.LockHandle != "H1" {
		t.Errorf("LockHandle = %q, want H1", got.LockHandle)
	}
}

func TestRegistry_Register_SameSessionReplaces(t *testing.T) {
	reg := openTestRegistry(t)

	if err := reg.Register(testEntry("class", "ZCL_A", "run_1", "H_old")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register(testEntry("class", "ZCL_A", "run_1", "H_new")); err != nil {
		t.Fatalf("re-Register failed: %v", err)
	}

	got, err := reg.Get("class", "ZCL_A")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.LockHandle != "H_new" {
		t.Errorf("LockHandle = %q, want H_new", got.LockHandle)
	}
}

func TestRegistry_Register_Validation(t *testing.T) {
	reg := openTestRegistry(t)

	if err := reg.Register(Entry{ObjectName: "X", SessionID: "s", LockHandle: "h"}); err == nil {
		t.Error("Register without object type should fail")
	}
	if err := reg.Register(Entry{ObjectType: "class", ObjectName: "X", SessionID: "s"}); !errors.Is(err, errors.ErrLockHandleMissing) {
		t.Errorf("Register without handle = %v, want ErrLockHandleMissing", err)
	}
}

func TestRegistry_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.json")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := first.Register(testEntry("class", "ZCL_CRASH", "run_dead", "H9")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// A brand-new Registry (separate process in real life) sees the entry.
	second, err := Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	got, err := second.Get("class", "ZCL_CRASH")
	if err != nil {
		t.Fatalf("Get from second registry failed: %v", err)
	}
	if got.LockHandle != "H9" {
		t.Errorf("LockHandle = %q, want H9", got.LockHandle)
	}
}

func TestRegistry_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.json")

	reg, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := reg.Register(testEntry("class", "ZCL_B", "run_1", "H1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register(testEntry("class", "ZCL_A", "run_1", "H2")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read registry file: %v", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("registry file is not valid JSON: %v", err)
	}
	if len(file.Entries) != 2 {
		t.Fatalf("file holds %d entries, want 2", len(file.Entries))
	}
	// Deterministic order: sorted by key
	if file.Entries[0].ObjectName != "ZCL_A" {
		t.Errorf("first entry = %q, want ZCL_A", file.Entries[0].ObjectName)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Error("registry file is not pretty-printed")
	}
}

func TestRegistry_Clear(t *testing.T) {
	reg := openTestRegistry(t)

	for _, name := range []string{"ZCL_A", "ZCL_B", "ZCL_C"} {
		if err := reg.Register(testEntry("class", name, "run_1", "H_"+name)); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	if err := reg.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if entries := reg.List(); len(entries) != 0 {
		t.Errorf("List after Clear = %v, want empty", entries)
	}

	// The cleared state is persisted, not just in memory
	reopened, err := Open(reg.Path())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if entries := reopened.List(); len(entries) != 0 {
		t.Errorf("reopened List = %v, want empty", entries)
	}
}

func TestRegistry_Match(t *testing.T) {
	reg := openTestRegistry(t)

	seed := []Entry{
		testEntry("class", "ZCL_TEST_ALPHA", "run_1", "H1"),
		testEntry("class", "ZCL_TEST_BETA", "run_1", "H2"),
		testEntry("table", "ZTAB_ORDERS", "run_1", "H3"),
	}
	for _, entry := range seed {
		if err := reg.Register(entry); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	tests := []struct {
		pattern string
		want    int
	}{
		{"class/ZCL_TEST_*", 2},
		{"*/ZTAB_ORDERS", 1},
		{"class/*", 2},
		{"program/*", 0},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			matched, err := reg.Match(tt.pattern)
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}
			if len(matched) != tt.want {
				t.Errorf("Match(%q) = %d entries, want %d", tt.pattern, len(matched), tt.want)
			}
		})
	}

	t.Run("invalid pattern", func(t *testing.T) {
		if _, err := reg.Match("[broken"); err == nil {
			t.Error("Match with invalid pattern should fail")
		}
	})
}

func TestRegistry_Stale(t *testing.T) {
	reg := openTestRegistry(t)

	alive := testEntry("class", "ZCL_ALIVE", "run_1", "H1")
	dead := testEntry("class", "ZCL_DEAD", "run_2", "H2")
	dead.PID = 1 << 30 // implausible pid, counts as dead

	if err := reg.Register(alive); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register(dead); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	stale := reg.Stale()
	if len(stale) != 1 {
		t.Fatalf("Stale() = %d entries, want 1", len(stale))
	}
	if stale[0].ObjectName != "ZCL_DEAD" {
		t.Errorf("stale entry = %q, want ZCL_DEAD", stale[0].ObjectName)
	}
}

func TestRegistry_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	reg, err := Open(filepath.Join(dir, "locks.json"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := reg.Register(testEntry("class", "ZCL_X", "run_1", "H")); err != nil {
			t.Fatalf("Register %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}

// =============================================================================
// Watcher Tests
// =============================================================================

func TestWatcher_SeesExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.json")

	observer, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	watcher, err := NewWatcher(observer)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	changed := make(chan []Entry, 1)
	watcher.SetChangeCallback(func(entries []Entry) {
		select {
		case changed <- entries:
		default:
		}
	})
	watcher.Start()

	// Another process writes the registry.
	writer, err := Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	if err := writer.Register(testEntry("class", "ZCL_EXT", "run_other", "H7")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	select {
	case entries := <-changed:
		if len(entries) != 1 || entries[0].ObjectName != "ZCL_EXT" {
			t.Errorf("callback entries = %v, want ZCL_EXT", entries)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe external write")
	}

	// The observer's in-memory view was reloaded too.
	if _, err := observer.Get("class", "ZCL_EXT"); err != nil {
		t.Errorf("observer Get after reload = %v", err)
	}
}
