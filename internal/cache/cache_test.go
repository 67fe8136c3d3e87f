package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "cache"), 24, true)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return s
}

func TestNewStore(t *testing.T) {
	s := newTestStore(t)
	if !s.Enabled() {
		t.Error("store should be enabled")
	}

	s, err := NewStore("", 0, false)
	if err != nil {
		t.Fatalf("NewStore() error for disabled store: %v", err)
	}
	if s.Enabled() {
		t.Error("store should be disabled")
	}
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache", "dir")
	if _, err := NewStore(dir, 24, true); err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("NewStore() should create the directory")
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	report := []byte(`{"dead_symbols":[]}`)

	if err := s.Save("/ws", "fp1", report); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, ok := s.Load("/ws", "fp1")
	if !ok {
		t.Fatal("Load() returned false for a saved report")
	}
	if string(got) != string(report) {
		t.Errorf("Load() = %s, want %s", got, report)
	}

	if _, ok := s.Load("/ws", "fp2"); ok {
		t.Error("Load() should miss when the fingerprint changed")
	}
	if _, ok := s.Load("/other", "fp1"); ok {
		t.Error("Load() should miss for another workspace")
	}
}

func TestSaveReplaces(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save("/ws", "fp1", []byte(`1`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save("/ws", "fp2", []byte(`2`)); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Load("/ws", "fp1"); ok {
		t.Error("old fingerprint should no longer load")
	}
	got, ok := s.Load("/ws", "fp2")
	if !ok || string(got) != "2" {
		t.Errorf("Load() = %s, %v", got, ok)
	}
}

func TestSaveRejectsInvalidJSON(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save("/ws", "fp", []byte("not json")); err == nil {
		t.Error("Save() should reject a non-JSON report")
	}
}

func TestInvalidate(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save("/ws", "fp", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	if err := s.Invalidate("/ws"); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if _, ok := s.Load("/ws", "fp"); ok {
		t.Error("report should be gone after invalidation")
	}

	if err := s.Invalidate("/never-saved"); err != nil {
		t.Errorf("Invalidate() of a missing report should not error: %v", err)
	}
}

func TestClear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	s, err := NewStore(dir, 24, true)
	if err != nil {
		t.Fatal(err)
	}
	for _, ws := range []string{"/a", "/b", "/c"} {
		if err := s.Save(ws, "fp", []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Clear() should remove the store directory")
	}
}

func TestDisabledStore(t *testing.T) {
	s, err := NewStore("", 0, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Save("/ws", "fp", []byte(`{}`)); err != nil {
		t.Errorf("Save() on disabled store should not error: %v", err)
	}
	if _, ok := s.Load("/ws", "fp"); ok {
		t.Error("Load() on disabled store should return false")
	}
	if err := s.Invalidate("/ws"); err != nil {
		t.Errorf("Invalidate() on disabled store should not error: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Errorf("Clear() on disabled store should not error: %v", err)
	}
	stats, err := s.Stats()
	if err != nil || stats.Entries != 0 {
		t.Errorf("Stats() = %+v, %v", stats, err)
	}
}

func TestHashBytes(t *testing.T) {
	hash1 := HashBytes([]byte("hello world"))
	hash2 := HashBytes([]byte("hello world"))
	hash3 := HashBytes([]byte("different"))

	if hash1 == "" {
		t.Error("HashBytes() returned empty hash")
	}
	if hash1 != hash2 {
		t.Error("HashBytes() should return consistent hashes for same content")
	}
	if hash1 == hash3 {
		t.Error("HashBytes() should return different hashes for different content")
	}
}

func TestStoreStats(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("empty store should have 0 entries, got %d", stats.Entries)
	}

	for _, ws := range []string{"/a", "/b", "/c"} {
		if err := s.Save(ws, "fp", []byte(`{"ok":true}`)); err != nil {
			t.Fatal(err)
		}
	}

	stats, err = s.Stats()
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.Entries != 3 {
		t.Errorf("store should have 3 entries, got %d", stats.Entries)
	}
	if stats.TotalSize <= 0 {
		t.Error("TotalSize should be positive")
	}
}

func TestTTLExpiration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping TTL test in short mode")
	}

	s := &Store{
		dir:     filepath.Join(t.TempDir(), "cache"),
		ttl:     time.Second,
		enabled: true,
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		t.Fatal(err)
	}

	if err := s.Save("/ws", "fp", []byte(`{}`)); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, ok := s.Load("/ws", "fp"); !ok {
		t.Error("Load() should return data before the TTL expires")
	}

	time.Sleep(2 * time.Second)

	if _, ok := s.Load("/ws", "fp"); ok {
		t.Error("Load() should return false after the TTL expires")
	}
	if _, err := os.Stat(s.keyPath("/ws")); !os.IsNotExist(err) {
		t.Error("expired record should be removed")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "cache"), 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save("/ws", "fp", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Load("/ws", "fp"); !ok {
		t.Error("zero TTL should keep records")
	}
}

func TestKeyPath(t *testing.T) {
	s := newTestStore(t)

	path1 := s.keyPath("/repo/one")
	path2 := s.keyPath("/repo/two")

	if path1 == path2 {
		t.Error("different workspaces should produce different paths")
	}
	if path1 != s.keyPath("/repo/one") {
		t.Error("same workspace should produce the same path")
	}
	if filepath.Ext(path1) != ".json" {
		t.Errorf("key path should end with .json, got %s", path1)
	}
	if filepath.Dir(path1) != s.dir {
		t.Error("key path should be in the store directory")
	}
}
