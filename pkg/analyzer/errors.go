package analyzer

import (
	"context"
	"errors"
	"fmt"
)

// ErrCancelled marks an analysis abandoned because its context ended.
var ErrCancelled = errors.New("analysis cancelled")

// ErrorKind classifies an AnalysisError.
type ErrorKind int

const (
	// KindEnumeration means the workspace symbol listing failed. Nothing
	// useful can be built without it.
	KindEnumeration ErrorKind = iota + 1
	// KindProvider is a per-symbol provider failure.
	KindProvider
	// KindResolution is a reference that could not be mapped to a symbol.
	KindResolution
	// KindCancelled means the caller's context ended.
	KindCancelled
	// KindCache is an internal cache coordination failure.
	KindCache
	// KindInvalidWorkspace means the workspace root is unusable.
	KindInvalidWorkspace
)

func (k ErrorKind) String() string {
	switch k {
	case KindEnumeration:
		return "enumeration"
	case KindProvider:
		return "provider"
	case KindResolution:
		return "resolution"
	case KindCancelled:
		return "cancelled"
	case KindCache:
		return "cache"
	case KindInvalidWorkspace:
		return "invalid workspace"
	default:
		return "unknown"
	}
}

// AnalysisError is returned by engines for failures that abort an analysis.
type AnalysisError struct {
	Kind      ErrorKind
	Op        string
	Workspace string
	Err       error
}

func (e *AnalysisError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Workspace != "" {
		msg += " (" + e.Workspace + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is makes every cancellation error match ErrCancelled.
func (e *AnalysisError) Is(target error) bool {
	return target == ErrCancelled && e.Kind == KindCancelled
}

// NewError wraps err with the given kind.
func NewError(kind ErrorKind, op, workspace string, err error) *AnalysisError {
	return &AnalysisError{Kind: kind, Op: op, Workspace: workspace, Err: err}
}

// Cancelled wraps a context error as a cancellation.
func Cancelled(op, workspace string, err error) *AnalysisError {
	if err == nil {
		err = context.Canceled
	}
	return NewError(KindCancelled, op, workspace, err)
}

// IsCancelled reports whether err is a cancellation rather than a failure.
// An AnalysisError decides by its kind, so a provider timeout reported as
// an enumeration failure is not a cancellation.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if kind, ok := KindOf(err); ok {
		return kind == KindCancelled
	}
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// KindOf returns the kind of the first AnalysisError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

// Errorf builds an AnalysisError with a formatted cause.
func Errorf(kind ErrorKind, op, workspace, format string, args ...any) *AnalysisError {
	return NewError(kind, op, workspace, fmt.Errorf(format, args...))
}
