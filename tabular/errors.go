package tabular

import (
	"github.com/cockroachdb/errors"
)

// Sentinel error kinds. Every failure surfaced by the store, the views and the
// query engine is marked with exactly one of these; use errors.Is to inspect.
var (
	// ErrInvalidArgument indicates a malformed entity, attribute or tuple on write,
	// or a malformed dataset configuration
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidQuery indicates a bad orderBy, filter, limit or offset
	ErrInvalidQuery = errors.New("invalid query")

	// ErrDanglingView indicates a view whose source store or view has been released
	ErrDanglingView = errors.New("dangling view")

	// ErrNotFound indicates a dataset id or nested config that does not resolve
	ErrNotFound = errors.New("not found")
)

// ErrorKind names an error category for transports
type ErrorKind string

const (
	KindInvalidArgument ErrorKind = "InvalidArgument"
	KindInvalidQuery    ErrorKind = "InvalidQuery"
	KindDanglingView    ErrorKind = "DanglingView"
	KindNotFound        ErrorKind = "NotFound"
	KindInternal        ErrorKind = "Internal"
)

// InvalidArgumentf creates an error marked as ErrInvalidArgument
func InvalidArgumentf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrInvalidArgument)
}

// InvalidQueryf creates an error marked as ErrInvalidQuery
func InvalidQueryf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrInvalidQuery)
}

// DanglingViewf creates an error marked as ErrDanglingView
func DanglingViewf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrDanglingView)
}

// NotFoundf creates an error marked as ErrNotFound
func NotFoundf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrNotFound)
}

// KindOf classifies err. Errors not carrying one of the sentinel marks are Internal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrInvalidQuery):
		return KindInvalidQuery
	case errors.Is(err, ErrDanglingView):
		return KindDanglingView
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindInternal
}
