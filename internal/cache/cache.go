// Package cache holds built dependency graphs in memory and persists
// rendered reports on disk.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// Store keeps the last JSON report per workspace on disk. A stored report
// is only returned while its fingerprint matches and it is younger than the
// TTL.
type Store struct {
	dir     string
	ttl     time.Duration
	enabled bool
}

// record is the on-disk layout of a stored report.
type record struct {
	Workspace   string          `json:"workspace"`
	Fingerprint string          `json:"fingerprint"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data"`
}

// NewStore creates a report store rooted at dir. A TTL of zero hours never
// expires entries. A disabled store accepts writes and returns nothing.
func NewStore(dir string, ttlHours int, enabled bool) (*Store, error) {
	if !enabled {
		return &Store{enabled: false}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return &Store{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: true,
	}, nil
}

// Enabled reports whether the store persists anything.
func (s *Store) Enabled() bool { return s.enabled }

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Load returns the stored report for workspace if it was saved under the
// same fingerprint and has not expired. Expired records are removed.
func (s *Store) Load(workspace, fingerprint string) ([]byte, bool) {
	if !s.enabled {
		return nil, false
	}

	path := s.keyPath(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	if rec.Workspace != workspace || rec.Fingerprint != fingerprint {
		return nil, false
	}
	if s.ttl > 0 && time.Since(rec.Timestamp) > s.ttl {
		_ = os.Remove(path)
		return nil, false
	}

	return rec.Data, true
}

// Save stores a JSON report for workspace, replacing any previous one.
func (s *Store) Save(workspace, fingerprint string, report []byte) error {
	if !s.enabled {
		return nil
	}

	data, err := json.Marshal(record{
		Workspace:   workspace,
		Fingerprint: fingerprint,
		Timestamp:   time.Now(),
		Data:        report,
	})
	if err != nil {
		return err
	}

	// Write then rename so readers never see a partial record.
	path := s.keyPath(workspace)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Invalidate removes the stored report for workspace.
func (s *Store) Invalidate(workspace string) error {
	if !s.enabled {
		return nil
	}
	err := os.Remove(s.keyPath(workspace))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes every stored report.
func (s *Store) Clear() error {
	if !s.enabled {
		return nil
	}
	return os.RemoveAll(s.dir)
}

// keyPath hashes the workspace path into a flat file name.
func (s *Store) keyPath(workspace string) string {
	return filepath.Join(s.dir, HashBytes([]byte(workspace))+".json")
}

// StoreStats describes the on-disk store.
type StoreStats struct {
	Entries   int           `json:"entries"`
	TotalSize int64         `json:"total_size"`
	OldestAge time.Duration `json:"oldest_age"`
	NewestAge time.Duration `json:"newest_age"`
}

// Stats walks the store directory.
func (s *Store) Stats() (*StoreStats, error) {
	if !s.enabled {
		return &StoreStats{}, nil
	}

	stats := &StoreStats{}
	var oldest, newest time.Time

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		stats.Entries++
		stats.TotalSize += info.Size()

		modTime := info.ModTime()
		if oldest.IsZero() || modTime.Before(oldest) {
			oldest = modTime
		}
		if newest.IsZero() || modTime.After(newest) {
			newest = modTime
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !oldest.IsZero() {
		stats.OldestAge = time.Since(oldest)
	}
	if !newest.IsZero() {
		stats.NewestAge = time.Since(newest)
	}
	return stats, nil
}
