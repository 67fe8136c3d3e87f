package fileproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/symreach/pkg/parser"
)

func writeFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	files := make([]string, n)
	for i := range files {
		files[i] = filepath.Join(dir, fmt.Sprintf("f%03d.go", i))
		src := fmt.Sprintf("package main\n\nfunc f%d() {}\n", i)
		require.NoError(t, os.WriteFile(files[i], []byte(src), 0o644))
	}
	return files
}

func TestMapFilesPreservesOrder(t *testing.T) {
	files := writeFiles(t, 50)

	results, failed := MapFiles(context.Background(), files, 4, func(_ *parser.Parser, path string) (string, error) {
		return filepath.Base(path), nil
	})

	assert.Empty(t, failed)
	require.Len(t, results, len(files))
	for i, r := range results {
		assert.Equal(t, filepath.Base(files[i]), r)
	}
}

func TestMapFilesEmpty(t *testing.T) {
	results, failed := MapFiles(context.Background(), nil, 0, func(*parser.Parser, string) (int, error) {
		t.Fatal("fn called for no files")
		return 0, nil
	})
	assert.Nil(t, results)
	assert.Nil(t, failed)
}

func TestMapFilesParses(t *testing.T) {
	files := writeFiles(t, 3)

	names, failed := MapFiles(context.Background(), files, 0, func(psr *parser.Parser, path string) (string, error) {
		res, err := psr.ParseFile(context.Background(), path)
		if err != nil {
			return "", err
		}
		defer res.Close()
		decls := parser.Declarations(res)
		if len(decls) != 1 {
			return "", fmt.Errorf("got %d declarations", len(decls))
		}
		return decls[0].Name, nil
	})

	assert.Empty(t, failed)
	assert.Equal(t, []string{"f0", "f1", "f2"}, names)
}

func TestMapFilesCollectsFailures(t *testing.T) {
	files := writeFiles(t, 6)
	boom := errors.New("boom")

	results, failed := MapFiles(context.Background(), files, 3, func(_ *parser.Parser, path string) (int, error) {
		base := filepath.Base(path)
		if base == "f001.go" || base == "f004.go" {
			return 0, boom
		}
		return 1, nil
	})

	assert.Len(t, results, 4)
	require.Len(t, failed, 2)
	assert.Equal(t, []string{files[1], files[4]}, failed.Paths())
	assert.ErrorIs(t, failed[0], boom)

	var err error = failed
	assert.Contains(t, err.Error(), "2 files failed")
}

func TestMapFilesReusesParsers(t *testing.T) {
	files := writeFiles(t, 40)

	var mu sync.Mutex
	seen := make(map[*parser.Parser]bool)
	var active, peak atomic.Int32

	_, failed := MapFiles(context.Background(), files, 2, func(psr *parser.Parser, _ string) (int, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		mu.Lock()
		seen[psr] = true
		mu.Unlock()
		return 0, nil
	})

	assert.Empty(t, failed)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.LessOrEqual(t, len(seen), 2, "each worker should keep its parser")
}

func TestMapFilesCancelled(t *testing.T) {
	files := writeFiles(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results, failed := MapFiles(ctx, files, 2, func(*parser.Parser, string) (int, error) {
		calls.Add(1)
		return 0, nil
	})

	assert.Empty(t, results)
	assert.Zero(t, calls.Load())
	require.Len(t, failed, len(files))
	for _, f := range failed {
		assert.ErrorIs(t, f, context.Canceled)
	}
}

func TestFailures(t *testing.T) {
	var none Failures
	assert.Equal(t, "no failures", none.Error())

	one := Failures{{Path: "a.go", Err: errors.New("bad")}}
	assert.Equal(t, "a.go: bad", one.Error())
}
