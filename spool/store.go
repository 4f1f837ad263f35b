// Package spool implements the content-addressed document spool.
//
// Every entry lives in a single directory under the MD5 digest of its
// identifier. An entry is in-progress while its name carries the "_"
// prefix and is receiving chunks; it becomes readable only after an atomic
// rename to the bare digest. Entries hold the document base64 encoded.
// The spool never deletes entries.
package spool

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pithecene-io/docbroker/iox"
	"github.com/pithecene-io/docbroker/log"
	"github.com/pithecene-io/docbroker/metrics"
	"github.com/pithecene-io/docbroker/types"
)

// InProgressPrefix marks entries that are still receiving chunks.
const InProgressPrefix = "_"

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// Mirror receives a copy of every finalized entry.
// Implementations must be safe for concurrent use.
type Mirror interface {
	// PutEntry stores the finalized entry body under key (the entry digest).
	PutEntry(ctx context.Context, key string, body []byte) error
}

// Store is the spool. Safe for concurrent use across identifiers; chunks
// for one identifier must be submitted sequentially by the caller.
type Store struct {
	dir     string
	alloc   *Allocator
	mirror  Mirror
	logger  *log.Logger
	metrics *metrics.Collector
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Store) { s.metrics = c }
}

// WithMirror copies finalized entries to m.
func WithMirror(m Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

// WithRandSource replaces the identifier random source.
// fn must return values in [1, math.MaxInt64].
func WithRandSource(fn func() int64) Option {
	return func(s *Store) { s.alloc.rand = fn }
}

// New opens (creating if needed) the spool rooted at dir.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("spool directory is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("spool: create %s: %w", dir, err)
	}

	s := &Store{dir: dir, logger: log.Nop()}
	s.alloc = newAllocator(s)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the spool root.
func (s *Store) Dir() string { return s.dir }

// Allocator returns the identifier allocator bound to this store.
func (s *Store) Allocator() *Allocator { return s.alloc }

// FinalPath returns the finalized entry path for id.
func (s *Store) FinalPath(id types.Identifier) string {
	return filepath.Join(s.dir, id.Digest())
}

// InProgressPath returns the in-progress entry path for id.
func (s *Store) InProgressPath(id types.Identifier) string {
	return filepath.Join(s.dir, InProgressPrefix+id.Digest())
}

// WriteChunk appends chunk to the in-progress entry for id and, when
// isLast is set, finalizes it. An empty id allocates a new identifier; a
// supplied id must name an upload that is still in progress.
// The resolved identifier is returned on success.
func (s *Store) WriteChunk(ctx context.Context, id types.Identifier, chunk []byte, isLast bool) (types.Identifier, error) {
	if id.IsZero() {
		allocated, err := s.alloc.Allocate()
		if err != nil {
			return "", err
		}
		id = allocated
	} else if !s.Uploading(id) {
		return "", types.NewBrokerError(types.ErrNoIdentifier, "upload", nil)
	}

	if err := appendFile(s.InProgressPath(id), chunk); err != nil {
		return "", fmt.Errorf("spool: append chunk: %w", err)
	}
	s.metrics.IncSpoolChunk()
	s.logger.Debug("chunk appended", map[string]any{
		"identifier": id.String(),
		"bytes":      len(chunk),
		"is_last":    isLast,
	})

	if isLast {
		if err := s.finalize(ctx, id); err != nil {
			return "", err
		}
	}
	return id, nil
}

// Put stores data as a new finalized entry and returns its identifier.
func (s *Store) Put(ctx context.Context, data []byte) (types.Identifier, error) {
	id, err := s.alloc.Allocate()
	if err != nil {
		return "", err
	}

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(encoded, data)
	if err := os.WriteFile(s.InProgressPath(id), encoded, filePerm); err != nil {
		return "", fmt.Errorf("spool: write entry: %w", err)
	}
	if err := s.finalize(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// Read returns the decoded document bytes of a finalized entry.
func (s *Store) Read(id types.Identifier) ([]byte, error) {
	raw, err := s.readFinal(id)
	if err != nil {
		return nil, err
	}
	// StdEncoding skips '\r' and '\n', so line-wrapped entries decode too.
	data := make([]byte, base64.StdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(data, raw)
	if err != nil {
		return nil, fmt.Errorf("spool: decode entry %s: %w", id, err)
	}
	return data[:n], nil
}

// ReadText returns a finalized entry exactly as stored, without decoding.
func (s *Store) ReadText(id types.Identifier) (string, error) {
	raw, err := s.readFinal(id)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Uploading reports whether id has an upload in progress.
func (s *Store) Uploading(id types.Identifier) bool {
	return !id.IsZero() && exists(s.InProgressPath(id))
}

// Exists reports whether id has a finalized entry.
func (s *Store) Exists(id types.Identifier) bool {
	return exists(s.FinalPath(id))
}

func (s *Store) readFinal(id types.Identifier) ([]byte, error) {
	if id.IsZero() {
		return nil, types.NewBrokerError(types.ErrNoIdentifier, "read", nil)
	}
	path := s.FinalPath(id)
	s.logger.Debug("read spool entry", map[string]any{"identifier": id.String(), "digest": id.Digest()})

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewBrokerError(types.ErrNoIdentifier, "read", err)
		}
		return nil, fmt.Errorf("spool: read %s: %w", path, err)
	}
	return raw, nil
}

// finalize renames the in-progress entry into place and hands it to the mirror.
func (s *Store) finalize(ctx context.Context, id types.Identifier) error {
	if err := os.Rename(s.InProgressPath(id), s.FinalPath(id)); err != nil {
		return fmt.Errorf("spool: finalize %s: %w", id, err)
	}
	s.metrics.IncSpoolFinalized()
	s.logger.Debug("spool entry finalized", map[string]any{"identifier": id.String()})

	if s.mirror != nil {
		s.mirrorEntry(ctx, id)
	}
	return nil
}

// mirrorEntry copies a finalized entry to the mirror. Failures are logged
// and counted; the spool entry itself is already durable.
func (s *Store) mirrorEntry(ctx context.Context, id types.Identifier) {
	body, err := os.ReadFile(s.FinalPath(id))
	if err == nil {
		err = s.mirror.PutEntry(ctx, id.Digest(), body)
	}
	if err != nil {
		s.metrics.IncMirrorUploadFailure()
		s.logger.Warn("mirror upload failed", map[string]any{
			"identifier": id.String(),
			"error":      err.Error(),
		})
		return
	}
	s.metrics.IncMirrorUploadSuccess()
}

func appendFile(path string, chunk []byte) (err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return err
	}
	defer iox.CloseInto(f, &err)

	_, err = f.Write(chunk)
	return err
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
