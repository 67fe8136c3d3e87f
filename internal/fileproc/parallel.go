// Package fileproc parses many files concurrently.
package fileproc

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/symreach/pkg/parser"
)

// DefaultWorkerMultiplier scales NumCPU into the default worker count.
// Parsing mixes file I/O with cgo, so twice the cores keeps them busy.
const DefaultWorkerMultiplier = 2

// Failure is a file that could not be processed.
type Failure struct {
	Path string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Failures lists failed files in path order. It is an error when non-empty.
type Failures []Failure

func (fs Failures) Error() string {
	switch len(fs) {
	case 0:
		return "no failures"
	case 1:
		return fs[0].Error()
	default:
		return fmt.Sprintf("%d files failed (first: %v)", len(fs), fs[0])
	}
}

// Paths returns the failed paths.
func (fs Failures) Paths() []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Path
	}
	return out
}

// parsers recycles parsers between tasks so each worker builds at most one.
type parsers chan *parser.Parser

func (ps parsers) get() *parser.Parser {
	select {
	case p := <-ps:
		return p
	default:
		return parser.New()
	}
}

func (ps parsers) put(p *parser.Parser) {
	select {
	case ps <- p:
	default:
		p.Close()
	}
}

func (ps parsers) close() {
	for {
		select {
		case p := <-ps:
			p.Close()
		default:
			return
		}
	}
}

// MapFiles applies fn to every file with at most maxWorkers running at once
// and returns the successful results in input order. Each call gets a parser
// no other call is using. Files not started before ctx ends fail with the
// context error.
//
// A maxWorkers of zero or less uses DefaultWorkerMultiplier x NumCPU.
func MapFiles[T any](
	ctx context.Context,
	files []string,
	maxWorkers int,
	fn func(*parser.Parser, string) (T, error),
) ([]T, Failures) {
	if len(files) == 0 {
		return nil, nil
	}
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() * DefaultWorkerMultiplier
	}

	free := make(parsers, maxWorkers)
	defer free.close()

	// Tasks write only their own slot.
	results := make([]T, len(files))
	errs := make([]error, len(files))

	p := pool.New().WithMaxGoroutines(maxWorkers)
	for i, path := range files {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			psr := free.get()
			defer free.put(psr)
			results[i], errs[i] = fn(psr, path)
		})
	}
	p.Wait()

	out := make([]T, 0, len(files))
	var failed Failures
	for i, err := range errs {
		if err != nil {
			failed = append(failed, Failure{Path: files[i], Err: err})
			continue
		}
		out = append(out, results[i])
	}
	sort.SliceStable(failed, func(i, j int) bool { return failed[i].Path < failed[j].Path })
	return out, failed
}
