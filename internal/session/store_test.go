package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openabap/adtflow/internal/errors"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestState(id string) *State {
	state := NewState(id)
	state.State = AuthState{
		Cookies:   "SAP_SESSIONID=abc123; sap-usercontext=sap-client=001",
		CookieMap: map[string]string{"SAP_SESSIONID": "abc123", "sap-usercontext": "sap-client=001"},
		CSRFToken: "token-xyz",
		CookieStore: []StoredCookie{
			{Name: "SAP_SESSIONID", Value: "abc123", Path: "/", Secure: true},
		},
	}
	return state
}

// =============================================================================
// Store Tests
// =============================================================================

func TestNewStore(t *testing.T) {
	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "sessions")

		store, err := NewStore(dir)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		if store == nil {
			t.Fatal("NewStore returned nil store")
		}

		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("directory was not created: %v", err)
		}
		if !info.IsDir() {
			t.Fatal("path is not a directory")
		}
	})
}

func TestStore_SaveLoad_RoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	saved := newTestState("run_1700000000000")
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load("run_1700000000000")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.SessionID != saved.SessionID {
		t.Errorf("SessionID = %q, want %q", loaded.SessionID, saved.SessionID)
	}
	if loaded.PID != saved.PID {
		t.Errorf("PID = %d, want %d", loaded.PID, saved.PID)
	}
	if loaded.Timestamp != saved.Timestamp {
		t.Errorf("Timestamp = %d, want %d", loaded.Timestamp, saved.Timestamp)
	}
	if loaded.State.CSRFToken != "token-xyz" {
		t.Errorf("CSRFToken = %q, want token-xyz", loaded.State.CSRFToken)
	}
	if loaded.State.CookieMap["SAP_SESSIONID"] != "abc123" {
		t.Errorf("CookieMap = %v, missing SAP_SESSIONID", loaded.State.CookieMap)
	}
	if len(loaded.State.CookieStore) != 1 || !loaded.State.CookieStore[0].Secure {
		t.Errorf("CookieStore = %v, want one secure cookie", loaded.State.CookieStore)
	}
}

func TestStore_Save_LastWriteWins(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	first := newTestState("run_1")
	first.State.CSRFToken = "first-token"
	if err := store.Save(first); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	second := newTestState("run_1")
	second.State.CSRFToken = "second-token"
	if err := store.Save(second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := store.Load("run_1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.State.CSRFToken != "second-token" {
		t.Errorf("CSRFToken = %q, want second-token", loaded.State.CSRFToken)
	}
}

func TestStore_Save_EmptyID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := store.Save(&State{}); err == nil {
		t.Error("Save with empty session id should fail")
	}
	if err := store.Save(nil); err == nil {
		t.Error("Save(nil) should fail")
	}
}

func TestStore_Load_NotFound(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	_, err = store.Load("no_such_session")
	if !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("Load missing session = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_Load_Corrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", "{not json"},
		{"missing session id", `{"timestamp": 1, "pid": 2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "bad"+sessionFileExt)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("failed to write corrupt file: %v", err)
			}

			_, err := store.Load("bad")
			if err == nil {
				t.Fatal("Load of corrupt session should fail")
			}
			if !errors.Is(err, errors.ErrSessionCorrupted) {
				t.Errorf("error = %v, want ErrSessionCorrupted in chain", err)
			}
			var sErr *errors.StorageError
			if !errors.As(err, &sErr) {
				t.Errorf("error = %v, want StorageError", err)
			}
		})
	}
}

func TestStore_Delete_Idempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := store.Save(newTestState("run_del")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete("run_del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("run_del"); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
	if err := store.Delete("never_existed"); err != nil {
		t.Errorf("Delete of non-existent session failed: %v", err)
	}

	if store.Exists("run_del") {
		t.Error("session still exists after Delete")
	}
}

func TestStore_FileIsPrettyPrinted(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := store.Save(newTestState("run_pretty")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "run_pretty"+sessionFileExt))
	if err != nil {
		t.Fatalf("failed to read session file: %v", err)
	}

	// Human-inspectable on disk: indented, multi-line
	if !strings.Contains(string(data), "\n  ") {
		t.Errorf("session file is not pretty-printed:\n%s", data)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("session file is not valid JSON: %v", err)
	}
	for _, key := range []string{"session_id", "timestamp", "pid", "state"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("session file missing key %q", key)
		}
	}
}

func TestStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := store.Save(newTestState("run_tmp")); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
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

func TestStore_List(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	older := newTestState("run_older")
	older.Timestamp = 1000
	newer := newTestState("run_newer")
	newer.Timestamp = 2000
	newer.State.CSRFToken = ""

	for _, state := range []*State{older, newer} {
		if err := store.Save(state); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List returned %d sessions, want 2", len(infos))
	}

	// Newest first
	if infos[0].SessionID != "run_newer" {
		t.Errorf("first session = %q, want run_newer", infos[0].SessionID)
	}
	if infos[0].HasToken {
		t.Error("run_newer should report HasToken = false")
	}
	if !infos[1].HasToken {
		t.Error("run_older should report HasToken = true")
	}
	// Both were written by this (alive) process
	if !infos[0].OwnerAlive {
		t.Error("OwnerAlive = false for current process")
	}
}

func TestStore_List_SkipsGarbage(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := store.Save(newTestState("run_ok")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "junk"+sessionFileExt), []byte("not json"), 0600); err != nil {
		t.Fatalf("failed to write junk: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0600); err != nil {
		t.Fatalf("failed to write readme: %v", err)
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 1 || infos[0].SessionID != "run_ok" {
		t.Errorf("List = %v, want only run_ok", infos)
	}
}
