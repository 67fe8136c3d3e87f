package cache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// FileLister enumerates the tracked files of a workspace.
type FileLister interface {
	ScanDir(root string) ([]string, error)
}

type fileDigest struct {
	rel    string
	digest uint64
}

// Fingerprint summarises the state of files under root. Each file
// contributes an xxhash of its relative path, size and modification time;
// the sorted digests are folded into a BLAKE3 hash. Files that vanish
// before they can be stat'ed are ignored.
func Fingerprint(root string, files []string) (string, error) {
	digests := make([]fileDigest, 0, len(files))
	var buf [8]byte

	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("fingerprint %s: %w", path, err)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		h := xxhash.New()
		_, _ = h.WriteString(rel)
		binary.LittleEndian.PutUint64(buf[:], uint64(info.Size()))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(info.ModTime().UnixNano()))
		_, _ = h.Write(buf[:])

		digests = append(digests, fileDigest{rel: rel, digest: h.Sum64()})
	}

	sort.Slice(digests, func(i, j int) bool { return digests[i].rel < digests[j].rel })

	agg := blake3.New()
	for _, d := range digests {
		_, _ = agg.Write([]byte(d.rel))
		binary.LittleEndian.PutUint64(buf[:], d.digest)
		_, _ = agg.Write(buf[:])
	}
	return hex.EncodeToString(agg.Sum(nil)), nil
}

// WorkspaceFingerprint fingerprints the files lister reports for root.
func WorkspaceFingerprint(root string, lister FileLister) (string, error) {
	files, err := lister.ScanDir(root)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", root, err)
	}
	return Fingerprint(root, files)
}
