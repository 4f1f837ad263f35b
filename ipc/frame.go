// Package ipc implements the conversion engine wire protocol.
//
// Every message is a frame: a 4-byte big-endian length prefix followed by
// a msgpack payload. The broker sends Request frames and reads exactly one
// Response frame per request; there is no pipelining.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (256 MiB), including length prefix.
	// Whole documents travel in a single frame.
	MaxFrameSize = 256 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Request methods understood by the engine.
const (
	MethodLoad   = "load"
	MethodAppend = "append"
	MethodSave   = "save"
	MethodClose  = "close"
)

// Request is a broker → engine frame.
type Request struct {
	// ID correlates the response; strictly increasing per connection.
	ID uint64 `msgpack:"id"`
	// Method is one of the Method* constants.
	Method string `msgpack:"method"`
	// Filter is the engine import/export filter name; empty means default.
	Filter string `msgpack:"filter,omitempty"`
	// ReadOnly opens the loaded document read-only.
	ReadOnly bool `msgpack:"read_only,omitempty"`
	// Data is the document for load and append.
	Data []byte `msgpack:"data,omitempty"`
}

// Response is an engine → broker frame.
type Response struct {
	// ID echoes the request ID.
	ID uint64 `msgpack:"id"`
	// Data is the exported document for save.
	Data []byte `msgpack:"data,omitempty"`
	// Error is set when the engine rejected the request.
	Error *RemoteError `msgpack:"error,omitempty"`
}

// RemoteError is a failure reported by the engine itself. The connection
// remains usable after a RemoteError.
type RemoteError struct {
	Code    string `msgpack:"code"`
	Message string `msgpack:"message"`
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return "engine: " + e.Message
	}
	return fmt.Sprintf("engine: %s: %s", e.Code, e.Message)
}

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates an incoming frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
	// FrameErrorEncode indicates an outgoing message that could not be
	// framed (msgpack failure or oversized payload). Nothing was written.
	FrameErrorEncode
	// FrameErrorWrite indicates a failed write; part of the frame may
	// have reached the stream.
	FrameErrorWrite
)

// FrameError represents a framing failure.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream can no longer be trusted. Only an
// encode failure leaves it untouched.
func (e *FrameError) IsFatal() bool {
	return e.Kind != FrameErrorEncode
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// ReadRequest reads and decodes one Request frame.
func (d *FrameDecoder) ReadRequest() (*Request, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	var req Request
	if err := msgpack.Unmarshal(payload, &req); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode request", Err: err}
	}
	return &req, nil
}

// ReadResponse reads and decodes one Response frame.
func (d *FrameDecoder) ReadResponse() (*Response, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := msgpack.Unmarshal(payload, &resp); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode response", Err: err}
	}
	return &resp, nil
}

// FrameEncoder writes length-prefixed msgpack frames to a stream.
type FrameEncoder struct {
	writer     io.Writer
	maxPayload int
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w, maxPayload: MaxPayloadSize}
}

// WriteMessage msgpack-encodes v and writes it as one frame.
func (e *FrameEncoder) WriteMessage(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return &FrameError{Kind: FrameErrorEncode, Msg: "failed to encode frame", Err: err}
	}
	return e.WriteFrame(payload)
}

// WriteFrame writes payload with its length prefix in a single write.
// An oversized payload is rejected as FrameErrorEncode before any write.
func (e *FrameEncoder) WriteFrame(payload []byte) error {
	if len(payload) > e.maxPayload {
		return &FrameError{
			Kind: FrameErrorEncode,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), e.maxPayload),
		}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	if _, err := e.writer.Write(buf); err != nil {
		return &FrameError{Kind: FrameErrorWrite, Msg: "failed to write frame", Err: err}
	}
	return nil
}
