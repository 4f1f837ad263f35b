// Package enginetest provides an in-memory conversion engine for tests.
package enginetest

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/pithecene-io/docbroker/engine"
)

// Call records one engine call.
type Call struct {
	Method   string
	Filter   string
	ReadOnly bool
	Data     []byte
}

// Conn is a fake engine connection. The "converted" output of SaveAs is
// the loaded document followed by every appended document, prefixed with
// "<filter>:" so tests can check which export filter was used.
type Conn struct {
	mu sync.Mutex

	// Injected failures, returned by the matching method when set.
	LoadErr   error
	AppendErr error
	SaveErr   error
	CloseErr  error

	calls    []Call
	document []byte
	open     bool
	closed   bool
}

// Calls returns a copy of the recorded calls.
func (c *Conn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Count returns how many times method was called.
func (c *Conn) Count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

// Closed reports whether the connection itself was released.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) record(call Call) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

// Load implements engine.Conn.
func (c *Conn) Load(_ context.Context, data []byte, filter string, readOnly bool) error {
	c.record(Call{Method: "load", Filter: filter, ReadOnly: readOnly, Data: data})
	if c.LoadErr != nil {
		return c.LoadErr
	}
	c.mu.Lock()
	c.document = append([]byte(nil), data...)
	c.open = true
	c.mu.Unlock()
	return nil
}

// Append implements engine.Conn.
func (c *Conn) Append(_ context.Context, docs iter.Seq2[[]byte, error], filter string) error {
	for doc, err := range docs {
		if err != nil {
			c.record(Call{Method: "append", Filter: filter})
			return err
		}
		c.record(Call{Method: "append", Filter: filter, Data: doc})
		if c.AppendErr != nil {
			return c.AppendErr
		}
		c.mu.Lock()
		c.document = append(c.document, doc...)
		c.mu.Unlock()
	}
	return nil
}

// SaveAs implements engine.Conn.
func (c *Conn) SaveAs(_ context.Context, filter string) ([]byte, error) {
	c.record(Call{Method: "save", Filter: filter})
	if c.SaveErr != nil {
		return nil, c.SaveErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, errors.New("enginetest: no document loaded")
	}
	var out bytes.Buffer
	out.WriteString(filter)
	out.WriteByte(':')
	out.Write(c.document)
	return out.Bytes(), nil
}

// CloseDocument implements engine.Conn.
func (c *Conn) CloseDocument(context.Context) error {
	c.record(Call{Method: "close"})
	c.mu.Lock()
	c.open = false
	c.document = nil
	c.mu.Unlock()
	return c.CloseErr
}

// Close implements engine.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Dialer hands out connections and counts dial attempts.
type Dialer struct {
	mu sync.Mutex

	// Conn is returned by successful dials.
	Conn *Conn
	// Err, when set, fails every dial.
	Err error
	// FailFirst fails that many dials before succeeding.
	FailFirst int

	dials int
}

// Dial implements engine.Dialer.
func (d *Dialer) Dial(context.Context) (engine.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.Err != nil {
		return nil, d.Err
	}
	if d.dials <= d.FailFirst {
		return nil, errors.New("enginetest: connection refused")
	}
	return d.Conn, nil
}

// Dials returns the number of dial attempts so far.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Compile-time interface check.
var _ engine.Conn = (*Conn)(nil)
