package mirror

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for mirror failure classification.
var (
	// ErrAccessDenied indicates authorization failure (valid creds but no permission).
	ErrAccessDenied = errors.New("access denied")

	// ErrAuth indicates authentication failure (no credentials, expired token).
	ErrAuth = errors.New("authentication failed")

	// ErrNotFound indicates the bucket does not exist.
	ErrNotFound = errors.New("not found")

	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")

	// ErrUnclassified is used when no pattern matches.
	ErrUnclassified = errors.New("mirror error")
)

// MirrorError wraps an upload failure with its classification.
type MirrorError struct {
	Kind error
	Path string
	Err  error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror put %s: %v: %v", e.Path, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *MirrorError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *MirrorError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// WrapPutError classifies and wraps an upload error.
// Returns nil if err is nil.
func WrapPutError(err error, path string) error {
	if err == nil {
		return nil
	}
	return &MirrorError{Kind: classifyError(err), Path: path, Err: err}
}

func classifyError(err error) error {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "accessdenied", "forbidden", "403"):
		return ErrAccessDenied
	case containsAny(msg, "nocredentialproviders", "invalidaccesskeyid", "signaturedoesnotmatch",
		"expiredtoken", "401", "unauthorized"):
		return ErrAuth
	case containsAny(msg, "nosuchbucket", "404", "not found"):
		return ErrNotFound
	case containsAny(msg, "slowdown", "throttl", "429", "toomanyrequests"):
		return ErrThrottled
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(msg, "connection refused", "no route to host", "network unreachable", "dial tcp", "no such host"):
		return ErrNetwork
	default:
		return ErrUnclassified
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
