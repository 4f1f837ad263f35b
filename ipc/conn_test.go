package ipc

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"net"
	"testing"
	"time"

	"github.com/pithecene-io/docbroker/engine"
)

// fakeEngine is a minimal engine server: it keeps one document and answers
// save with the loaded document followed by every appended one.
type fakeEngine struct {
	doc     []byte
	methods []string
	// reject makes the named method fail with a remote error.
	reject string
	// hangOn makes the server stop answering at the named method.
	hangOn string
}

func (f *fakeEngine) serve(nc net.Conn) {
	defer nc.Close()
	dec := NewFrameDecoder(nc)
	enc := NewFrameEncoder(nc)
	for {
		req, err := dec.ReadRequest()
		if err != nil {
			return
		}
		f.methods = append(f.methods, req.Method)
		if req.Method == f.hangOn {
			// Drain until the client gives up.
			_, _ = dec.ReadFrame()
			return
		}
		resp := &Response{ID: req.ID}
		switch {
		case req.Method == f.reject:
			resp.Error = &RemoteError{Code: "rejected", Message: req.Method}
		case req.Method == MethodLoad:
			f.doc = append([]byte(nil), req.Data...)
		case req.Method == MethodAppend:
			f.doc = append(f.doc, req.Data...)
		case req.Method == MethodSave:
			resp.Data = append([]byte(req.Filter+":"), f.doc...)
		case req.Method == MethodClose:
			f.doc = nil
		}
		if err := enc.WriteMessage(resp); err != nil {
			return
		}
	}
}

func pipeConn(t *testing.T, f *fakeEngine) *Conn {
	t.Helper()
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.serve(server)
	}()
	t.Cleanup(func() {
		_ = client.Close()
		<-done
	})
	return NewConn(client)
}

func docs(items ...string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, item := range items {
			if !yield([]byte(item), nil) {
				return
			}
		}
	}
}

func TestConn_Session(t *testing.T) {
	f := &fakeEngine{}
	conn := pipeConn(t, f)
	ctx := t.Context()

	if err := conn.Load(ctx, []byte("a"), "writer_pdf_Export", true); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := conn.Append(ctx, docs("b", "c"), "writer_pdf_Export"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	out, err := conn.SaveAs(ctx, "writer8")
	if err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}
	if string(out) != "writer8:abc" {
		t.Errorf("SaveAs = %q, want %q", out, "writer8:abc")
	}
	if err := conn.CloseDocument(ctx); err != nil {
		t.Fatalf("CloseDocument failed: %v", err)
	}

	want := []string{MethodLoad, MethodAppend, MethodAppend, MethodSave, MethodClose}
	if len(f.methods) != len(want) {
		t.Fatalf("methods = %v, want %v", f.methods, want)
	}
	for i := range want {
		if f.methods[i] != want[i] {
			t.Errorf("methods[%d] = %q, want %q", i, f.methods[i], want[i])
		}
	}
}

func TestConn_RemoteErrorKeepsConnection(t *testing.T) {
	f := &fakeEngine{reject: MethodLoad}
	conn := pipeConn(t, f)
	ctx := t.Context()

	err := conn.Load(ctx, []byte("broken"), "", false)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %T: %v", err, err)
	}
	if engine.IsConnectionLoss(err) {
		t.Error("remote error must not count as connection loss")
	}

	// The stream is still in sync.
	if err := conn.CloseDocument(ctx); err != nil {
		t.Fatalf("CloseDocument after remote error failed: %v", err)
	}
}

func TestConn_OversizedDocumentKeepsConnection(t *testing.T) {
	f := &fakeEngine{}
	conn := pipeConn(t, f)
	conn.enc.maxPayload = 64
	ctx := t.Context()

	err := conn.Load(ctx, bytes.Repeat([]byte("x"), 128), "", false)
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorEncode {
		t.Fatalf("expected FrameErrorEncode, got %T: %v", err, err)
	}
	if engine.IsConnectionLoss(err) {
		t.Error("a request rejected before writing must not count as connection loss")
	}

	if err := conn.Load(ctx, []byte("small"), "", false); err != nil {
		t.Fatalf("Load after rejection failed: %v", err)
	}
	out, err := conn.SaveAs(ctx, "pdf")
	if err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}
	if string(out) != "pdf:small" {
		t.Errorf("SaveAs = %q, want %q", out, "pdf:small")
	}
	if len(f.methods) != 2 {
		t.Errorf("server saw %v, want one load and one save", f.methods)
	}
}

func TestConn_AppendStopsOnSourceError(t *testing.T) {
	f := &fakeEngine{}
	conn := pipeConn(t, f)
	boom := errors.New("spool read failed")

	seq := func(yield func([]byte, error) bool) {
		if !yield([]byte("x"), nil) {
			return
		}
		yield(nil, boom)
	}
	err := conn.Append(t.Context(), seq, "")
	if !errors.Is(err, boom) {
		t.Fatalf("Append error = %v, want %v", err, boom)
	}
	if len(f.methods) != 1 {
		t.Errorf("sent %d requests, want 1", len(f.methods))
	}
}

func TestConn_ServerGoneIsConnectionLoss(t *testing.T) {
	client, server := net.Pipe()
	_ = server.Close()
	conn := NewConn(client)
	defer conn.Close()

	err := conn.Load(t.Context(), []byte("a"), "", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if !engine.IsConnectionLoss(err) {
		t.Errorf("expected connection loss, got %v", err)
	}
}

func TestConn_CancelMidCall(t *testing.T) {
	f := &fakeEngine{hangOn: MethodSave}
	conn := pipeConn(t, f)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := conn.SaveAs(ctx, "writer8")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if !engine.IsConnectionLoss(err) {
		t.Error("an interrupted exchange leaves the stream unusable")
	}
}

func TestConn_CanceledBeforeCall(t *testing.T) {
	f := &fakeEngine{}
	conn := pipeConn(t, f)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := conn.Load(ctx, []byte("a"), "", false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if engine.IsConnectionLoss(err) {
		t.Error("nothing was sent, the connection is still usable")
	}
	if len(f.methods) != 0 {
		t.Errorf("server saw %v", f.methods)
	}
}

func TestDialer_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	f := &fakeEngine{}
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		f.serve(nc)
	}()

	conn, err := Dialer(ln.Addr().String(), time.Second)(t.Context())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.Load(t.Context(), []byte("hello"), "", false); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	out, err := conn.SaveAs(t.Context(), "pdf")
	if err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}
	if string(out) != "pdf:hello" {
		t.Errorf("SaveAs = %q", out)
	}
}

func TestDialer_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	if _, err := Dialer(addr, time.Second)(t.Context()); err == nil {
		t.Fatal("expected dial error")
	}
}
