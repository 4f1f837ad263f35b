package ipc

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"sync"
	"time"

	"github.com/pithecene-io/docbroker/engine"
)

// Conn is an engine.Conn over a framed stream (normally TCP).
// Calls are strictly sequential; Conn is not meant for concurrent use,
// which engine.Client guarantees by serializing sessions.
type Conn struct {
	nc  net.Conn
	enc *FrameEncoder
	dec *FrameDecoder

	mu     sync.Mutex
	nextID uint64
}

// NewConn wraps an established stream.
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		nc:  nc,
		enc: NewFrameEncoder(nc),
		dec: NewFrameDecoder(nc),
	}
}

// Dialer returns an engine.Dialer that connects to addr over TCP.
// timeout bounds each connection attempt; zero means no bound beyond ctx.
func Dialer(addr string, timeout time.Duration) engine.Dialer {
	return func(ctx context.Context) (engine.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("ipc: dial %s: %w", addr, err)
		}
		return NewConn(nc), nil
	}
}

// Load implements engine.Conn.
func (c *Conn) Load(ctx context.Context, data []byte, filter string, readOnly bool) error {
	_, err := c.call(ctx, &Request{Method: MethodLoad, Filter: filter, ReadOnly: readOnly, Data: data})
	return err
}

// Append implements engine.Conn. Each document is sent as its own append
// request, so only one document is held in memory at a time.
func (c *Conn) Append(ctx context.Context, docs iter.Seq2[[]byte, error], filter string) error {
	for doc, err := range docs {
		if err != nil {
			return err
		}
		if _, err := c.call(ctx, &Request{Method: MethodAppend, Filter: filter, Data: doc}); err != nil {
			return err
		}
	}
	return nil
}

// SaveAs implements engine.Conn.
func (c *Conn) SaveAs(ctx context.Context, filter string) ([]byte, error) {
	resp, err := c.call(ctx, &Request{Method: MethodSave, Filter: filter})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CloseDocument implements engine.Conn.
func (c *Conn) CloseDocument(ctx context.Context) error {
	_, err := c.call(ctx, &Request{Method: MethodClose})
	return err
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// call performs one request/response exchange. Transport and framing
// failures are wrapped with engine.ErrConnectionLost, except a request
// that could not be framed at all; engine-reported failures come back
// as *RemoteError.
func (c *Conn) call(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.nextID++
	req.ID = c.nextID

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.nc.SetDeadline(deadline)
		defer func() { _ = c.nc.SetDeadline(time.Time{}) }()
	}
	// Unblock reads and writes when ctx is canceled mid-call.
	stop := context.AfterFunc(ctx, func() { _ = c.nc.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := c.enc.WriteMessage(req); err != nil {
		return nil, c.transportError(ctx, req, err)
	}

	resp, err := c.dec.ReadResponse()
	if err != nil {
		return nil, c.transportError(ctx, req, err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("ipc: %s: response id %d for request %d: %w",
			req.Method, resp.ID, req.ID, engine.ErrConnectionLost)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp, nil
}

func (c *Conn) transportError(ctx context.Context, req *Request, err error) error {
	var frameErr *FrameError
	if errors.As(err, &frameErr) && !IsFatalFrameError(err) {
		// Rejected before any byte was written; the stream is intact.
		return fmt.Errorf("ipc: %s: %w", req.Method, err)
	}

	// Otherwise the stream position is unknown, so any failure here,
	// cancellation included, ends the connection.
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(ctxErr, err)
	}
	return fmt.Errorf("ipc: %s: %w: %w", req.Method, engine.ErrConnectionLost, err)
}

var _ engine.Conn = (*Conn)(nil)
