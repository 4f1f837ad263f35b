package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for broker failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrAccessDenied indicates the authentication callback rejected the credentials.
	ErrAccessDenied = errors.New("access denied")

	// ErrNoIdentifier indicates a missing or unknown spool identifier.
	ErrNoIdentifier = errors.New("wrong or no identifier")

	// ErrNoData indicates neither a payload nor an identifier was supplied.
	ErrNoData = errors.New("no data to be converted")

	// ErrNoConnection indicates the conversion engine stayed unreachable after retries.
	ErrNoConnection = errors.New("no connection to conversion engine")
)

// BrokerError wraps an underlying error with broker classification.
// It preserves the original error in the chain for inspection via errors.As.
type BrokerError struct {
	// Kind is the sentinel error for classification (e.g., ErrNoIdentifier).
	Kind error
	// Op is the operation that failed (e.g., "convert", "upload").
	Op string
	// Err is the underlying error, if any.
	Err error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *BrokerError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *BrokerError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewBrokerError creates a classified broker error.
func NewBrokerError(kind error, op string, err error) *BrokerError {
	return &BrokerError{Kind: kind, Op: op, Err: err}
}

// ErrorKind returns the classification sentinel for err, or nil when err
// is not one of the broker's classified failures (engine and merge
// failures propagate unclassified).
func ErrorKind(err error) error {
	for _, kind := range []error{ErrAccessDenied, ErrNoIdentifier, ErrNoData, ErrNoConnection} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// ErrorName returns the stable client-facing name for err's class:
// AccessDenied, NoIdentifier, NoData, NoConnection, or EngineError for
// everything unclassified. Returns "" for a nil error.
func ErrorName(err error) string {
	if err == nil {
		return ""
	}
	switch ErrorKind(err) {
	case ErrAccessDenied:
		return "AccessDenied"
	case ErrNoIdentifier:
		return "NoIdentifier"
	case ErrNoData:
		return "NoData"
	case ErrNoConnection:
		return "NoConnection"
	default:
		return "EngineError"
	}
}
