// Package engine wraps the connection to the external office conversion
// engine.
//
// The engine models a single open document at a time. Client owns the one
// connection, re-establishes it on demand with a bounded number of
// attempts, and serializes document sessions so that at most one
// load/append/save/close sequence is in flight.
package engine

import (
	"context"
	"errors"
	"io"
	"iter"
	"net"
	"syscall"
)

// Conn is an established connection to the conversion engine.
type Conn interface {
	// Load opens data as the current document using the import filter.
	// An empty filter lets the engine detect the format.
	Load(ctx context.Context, data []byte, filter string, readOnly bool) error
	// Append inserts each document of docs, in order, at the end of the
	// current document. docs is consumed lazily, one document at a time.
	Append(ctx context.Context, docs iter.Seq2[[]byte, error], filter string) error
	// SaveAs exports the current document with the export filter.
	SaveAs(ctx context.Context, filter string) ([]byte, error)
	// CloseDocument discards the current document.
	CloseDocument(ctx context.Context) error
	// Close releases the connection.
	Close() error
}

// Dialer establishes a new engine connection.
type Dialer func(ctx context.Context) (Conn, error)

// ErrConnectionLost is returned (or wrapped) by Conn implementations when
// the transport to the engine is gone.
var ErrConnectionLost = errors.New("engine connection lost")

// IsConnectionLoss reports whether err means the engine connection can no
// longer be used. Engine-side failures (bad filter, corrupt document) are
// not connection loss.
func IsConnectionLoss(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// State is the connection state of a Client.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
