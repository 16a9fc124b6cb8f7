// Package common holds cross-cutting types shared by the storage and
// processor packages: the error taxonomy and assertion helpers.
package common

import "fmt"

// Kind classifies an error into one of GraphFlow's error taxonomy buckets.
// Kind is never compared for control flow outside error-reporting code;
// every kind shares the one *Error type, and callers classify an error with
// IsKind.
type Kind uint8

const (
	KindConversion Kind = iota
	KindBinder
	KindRuntime
	KindStorage
	KindTransactionManager
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConversion:
		return "ConversionError"
	case KindBinder:
		return "BinderError"
	case KindRuntime:
		return "RuntimeError"
	case KindStorage:
		return "StorageError"
	case KindTransactionManager:
		return "TransactionManagerError"
	case KindInternal:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// Error is the common shape of every GraphFlow error: a Kind plus a
// message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func wrapf(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ConversionErrorf reports a value-parse or out-of-range conversion failure.
func ConversionErrorf(format string, args ...any) error { return newf(KindConversion, format, args...) }

// RuntimeErrorf reports an execution-time failure with a well-defined cause.
func RuntimeErrorf(format string, args ...any) error { return newf(KindRuntime, format, args...) }

// StorageErrorf reports an I/O failure, checksum mismatch, or WAL corruption.
func StorageErrorf(format string, args ...any) error { return newf(KindStorage, format, args...) }

// WrapStorageErrorf wraps a lower-level I/O error as a StorageError.
func WrapStorageErrorf(cause error, format string, args ...any) error {
	return wrapf(KindStorage, cause, format, args...)
}

// TransactionConflictf reports a write-transaction conflict or a commit
// timeout while earlier read-only transactions hold a snapshot.
func TransactionConflictf(format string, args ...any) error {
	return newf(KindTransactionManager, format, args...)
}

// InternalErrorf reports an assertion violation: a bug, not a user error.
func InternalErrorf(format string, args ...any) error { return newf(KindInternal, format, args...) }

// IsKind reports whether err (or something it wraps) is a GraphFlow error
// of the given Kind.
func IsKind(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == k {
				return true
			}
			err = e.Cause
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
