package vannoy

import (
	"errors"
	"fmt"

	"github.com/xDarkicex/vannoy/internal/builder"
	"github.com/xDarkicex/vannoy/internal/reader"
	"github.com/xDarkicex/vannoy/internal/upgrade"
)

// Core errors
var (
	ErrDatabaseClosed = errors.New("database is closed")
	ErrTooManyIndexes = errors.New("maximum number of indexes exceeded")
	ErrInvalidK       = errors.New("k must be positive")
)

// ErrorCode classifies every error the engine surfaces. Validation, state
// and integrity errors reach the caller unchanged; nothing is silently
// recovered inside the engine.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	// CodeStorage: propagated from the key-value store verbatim.
	CodeStorage
	// CodeIO: from temporary spill files.
	CodeIO
	// CodeValidation: the caller handed the engine something malformed
	// (wrong dimension, out-of-order append, mismatched distance).
	CodeValidation
	// CodeState: the index is in a state that forbids the operation
	// (missing metadata, pending build, exhausted id space).
	CodeState
	// CodeIntegrity: persisted records contradict each other; the
	// database is corrupted.
	CodeIntegrity
	// CodeControl: the operation was cancelled cooperatively.
	CodeControl
)

// String returns the string representation of the error code
func (c ErrorCode) String() string {
	switch c {
	case CodeStorage:
		return "STORAGE"
	case CodeIO:
		return "IO"
	case CodeValidation:
		return "VALIDATION"
	case CodeState:
		return "STATE"
	case CodeIntegrity:
		return "INTEGRITY"
	case CodeControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// Error is the structured error the public API returns: a code for
// programmatic dispatch, the component and operation that failed, and the
// underlying cause available through errors.Unwrap.
type Error struct {
	Code      ErrorCode
	Component string
	Operation string
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vannoy: %s: %s: [%s] %v", e.Component, e.Operation, e.Code, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// wrapError classifies err and wraps it with component/operation context.
// A nil err stays nil; an already-wrapped *Error passes through unchanged
// so the innermost classification wins.
func wrapError(component, operation string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	return &Error{Code: classify(err), Component: component, Operation: operation, Cause: err}
}

func classify(err error) ErrorCode {
	var (
		invalidDim     *builder.InvalidVecDimension
		invalidDimRead *reader.InvalidVecDimension
		invalidAppend  *builder.InvalidItemAppend
		unmatched      *builder.UnmatchingDistance
		unmatchedRead  *reader.UnmatchingDistance
		missingMeta    *builder.MissingMetadata
		missingMetaR   *reader.MissingMetadata
		missingMetaU   *upgrade.MissingMetadata
		needBuild      *builder.NeedBuild
		full           *builder.DatabaseFull
		cancelled      *builder.BuildCancelled
		missingKey     *builder.MissingKey
		missingKeyR    *reader.MissingKey
		unsupported    *upgrade.UnsupportedVersion
		corruptLegacy  *upgrade.CorruptLegacyRecord
	)
	switch {
	case errors.As(err, &invalidDim), errors.As(err, &invalidDimRead),
		errors.As(err, &invalidAppend),
		errors.As(err, &unmatched), errors.As(err, &unmatchedRead):
		return CodeValidation
	case errors.As(err, &missingMeta), errors.As(err, &missingMetaR),
		errors.As(err, &missingMetaU),
		errors.As(err, &needBuild), errors.As(err, &full),
		errors.As(err, &unsupported):
		return CodeState
	case errors.As(err, &missingKey), errors.As(err, &missingKeyR),
		errors.As(err, &corruptLegacy):
		return CodeIntegrity
	case errors.As(err, &cancelled):
		return CodeControl
	default:
		return CodeStorage
	}
}
