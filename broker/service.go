// Package broker implements the public conversion operations.
//
// Every operation authenticates first and fails with types.ErrAccessDenied
// before touching the spool or the engine. Engine work runs inside an
// engine session, so the document is closed even when the conversion fails.
package broker

import (
	"context"
	"encoding/base64"
	"iter"
	"time"

	"github.com/pithecene-io/docbroker/adapter"
	"github.com/pithecene-io/docbroker/auth"
	"github.com/pithecene-io/docbroker/engine"
	"github.com/pithecene-io/docbroker/log"
	"github.com/pithecene-io/docbroker/metrics"
	"github.com/pithecene-io/docbroker/types"
)

// Store is the spool surface the service needs.
type Store interface {
	Read(id types.Identifier) ([]byte, error)
	Uploading(id types.Identifier) bool
	WriteChunk(ctx context.Context, id types.Identifier, chunk []byte, isLast bool) (types.Identifier, error)
}

// Engine runs document sessions. Implemented by *engine.Client.
type Engine interface {
	Do(ctx context.Context, fn func(ctx context.Context, s *engine.Session) error) error
}

// Merger merges spooled PDFs. Implemented by *merge.Batcher.
type Merger interface {
	Merge(ctx context.Context, ids []types.Identifier) ([]byte, error)
}

// Service is the conversion orchestrator.
type Service struct {
	auth       auth.Authenticator
	store      Store
	engine     Engine
	merger     Merger
	events     *adapter.Dispatcher
	logger     *log.Logger
	metrics    *metrics.Collector
	instanceID string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEvents sets the completion event dispatcher.
func WithEvents(d *adapter.Dispatcher) Option {
	return func(s *Service) { s.events = d }
}

// WithInstanceID sets the instance id reported in completion events.
func WithInstanceID(id string) Option {
	return func(s *Service) { s.instanceID = id }
}

// NewService wires the orchestrator. A nil authenticator allows all.
func NewService(a auth.Authenticator, store Store, eng Engine, merger Merger, opts ...Option) *Service {
	if a == nil {
		a = auth.AllowAll
	}
	s := &Service{
		auth:   a,
		store:  store,
		engine: eng,
		merger: merger,
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetFile returns the decoded contents of a finalized spool entry.
func (s *Service) GetFile(ctx context.Context, creds types.Credentials, id types.Identifier) (out []byte, err error) {
	ev := &adapter.ConversionCompletedEvent{Operation: metrics.OpGetFile, Identifiers: idStrings(id)}
	start := time.Now()
	defer func() { s.track(ctx, ev, start, len(out), err) }()

	if err := s.authenticate(creds, metrics.OpGetFile); err != nil {
		return nil, err
	}
	return s.store.Read(id)
}

// Convert converts req.Data, or the spooled req.Identifier when Data is
// empty, from InFormat to OutFormat.
func (s *Service) Convert(ctx context.Context, req *types.ConversionRequest) (out []byte, err error) {
	ev := &adapter.ConversionCompletedEvent{
		Operation: metrics.OpConvert,
		InFormat:  req.InFormat,
		OutFormat: req.OutFormat,
	}
	start := time.Now()
	defer func() { s.track(ctx, ev, start, len(out), err) }()

	if err := s.authenticate(req.Credentials, metrics.OpConvert); err != nil {
		return nil, err
	}

	st := newSteps(s.logger.With(map[string]any{"op": metrics.OpConvert}))
	var data []byte
	switch {
	case req.Data != "":
		data, err = base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return nil, types.NewBrokerError(types.ErrNoData, metrics.OpConvert, err)
		}
	case !req.Identifier.IsZero():
		ev.Identifiers = idStrings(req.Identifier)
		data, err = s.store.Read(req.Identifier)
		if err != nil {
			return nil, err
		}
	default:
		return nil, types.NewBrokerError(types.ErrNoData, metrics.OpConvert, nil)
	}
	st.done("read file")

	inFilter, outFilter := Filter(req.InFormat), Filter(req.OutFormat)
	err = s.engine.Do(ctx, func(ctx context.Context, sess *engine.Session) error {
		st.done("connection test ok")
		if err := sess.Load(ctx, data, inFilter, false); err != nil {
			return err
		}
		st.done("upload document to engine")
		converted, err := sess.SaveAs(ctx, outFilter)
		if err != nil {
			st.done("conversion failed")
			return err
		}
		st.done("download converted document")
		out = converted
		return nil
	})
	if err != nil {
		return nil, err
	}
	st.done("convert finished")
	return out, nil
}

// Upload appends one chunk to a spool entry. An empty Identifier starts a
// new entry; the returned identifier is used for the following chunks.
// An unknown identifier is reported before missing data.
func (s *Service) Upload(ctx context.Context, req *types.UploadRequest) (res types.UploadResult, err error) {
	ev := &adapter.ConversionCompletedEvent{Operation: metrics.OpUpload, Identifiers: idStrings(req.Identifier)}
	start := time.Now()
	defer func() {
		if err == nil {
			ev.Identifiers = idStrings(res.Identifier)
		}
		s.track(ctx, ev, start, 0, err)
	}()

	if err := s.authenticate(req.Credentials, metrics.OpUpload); err != nil {
		return types.UploadResult{}, err
	}
	if !req.Identifier.IsZero() && !s.store.Uploading(req.Identifier) {
		return types.UploadResult{}, types.NewBrokerError(types.ErrNoIdentifier, metrics.OpUpload, nil)
	}
	if req.Data == "" {
		return types.UploadResult{}, types.NewBrokerError(types.ErrNoData, metrics.OpUpload, nil)
	}

	st := newSteps(s.logger.With(map[string]any{"op": metrics.OpUpload}))
	id, err := s.store.WriteChunk(ctx, req.Identifier, []byte(req.Data), req.IsLast)
	if err != nil {
		return types.UploadResult{}, err
	}
	st.done("chunk finished")
	return types.UploadResult{Identifier: id}, nil
}

// Join combines the spooled documents behind req.Identifiers, in order.
// pdf to pdf joins are merged by the Merger; every other pair loads the
// first document into the engine and appends the rest.
func (s *Service) Join(ctx context.Context, req *types.JoinRequest) (out []byte, err error) {
	ev := &adapter.ConversionCompletedEvent{
		Operation:   metrics.OpJoin,
		Identifiers: idStrings(req.Identifiers...),
		InFormat:    req.InFormat,
		OutFormat:   req.OutFormat,
	}
	start := time.Now()
	defer func() { s.track(ctx, ev, start, len(out), err) }()

	if err := s.authenticate(req.Credentials, metrics.OpJoin); err != nil {
		return nil, err
	}
	if len(req.Identifiers) == 0 {
		return nil, types.NewBrokerError(types.ErrNoIdentifier, metrics.OpJoin, nil)
	}
	if req.InFormat == FormatPDF && req.OutFormat == FormatPDF {
		return s.merger.Merge(ctx, req.Identifiers)
	}
	return s.joinDefault(ctx, req)
}

func (s *Service) joinDefault(ctx context.Context, req *types.JoinRequest) (out []byte, err error) {
	st := newSteps(s.logger.With(map[string]any{"op": metrics.OpJoin}))

	first, rest := req.Identifiers[0], req.Identifiers[1:]
	data, err := s.store.Read(first)
	if err != nil {
		return nil, err
	}
	st.done("read first file")

	inFilter := Filter(req.InFormat)
	if inFilter == "" {
		inFilter = DefaultJoinFilter
	}
	outFilter := Filter(req.OutFormat)

	err = s.engine.Do(ctx, func(ctx context.Context, sess *engine.Session) error {
		st.done("connection test ok")
		if err := sess.Load(ctx, data, inFilter, true); err != nil {
			return err
		}
		st.done("upload first document to engine")
		if err := sess.Append(ctx, s.readSeq(st, rest), inFilter); err != nil {
			st.done("conversion failed")
			return err
		}
		joined, err := sess.SaveAs(ctx, outFilter)
		if err != nil {
			st.done("conversion failed")
			return err
		}
		out = joined
		return nil
	})
	if err != nil {
		return nil, err
	}
	st.done("join finished")
	return out, nil
}

// readSeq yields the spooled documents one at a time, stopping at the
// first read failure.
func (s *Service) readSeq(st *steps, ids []types.Identifier) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, id := range ids {
			doc, err := s.store.Read(id)
			if err == nil {
				st.done("read next file")
			}
			if !yield(doc, err) || err != nil {
				return
			}
		}
	}
}

func (s *Service) authenticate(creds types.Credentials, op string) error {
	s.metrics.IncOpStarted(op)
	if s.auth.Authenticate(creds.Username, creds.Password) {
		return nil
	}
	s.metrics.IncAuthFailure()
	s.logger.Warn("authentication failed", map[string]any{"op": op, "username": creds.Username})
	return types.NewBrokerError(types.ErrAccessDenied, op, nil)
}

// track records the outcome of one operation and publishes its event.
func (s *Service) track(ctx context.Context, ev *adapter.ConversionCompletedEvent, start time.Time, outLen int, err error) {
	if err != nil {
		s.metrics.IncOpFailed(ev.Operation)
		ev.Outcome = adapter.OutcomeFailure
		ev.ErrorKind = types.ErrorName(err)
		s.logger.Error("operation failed", map[string]any{
			"op":    ev.Operation,
			"kind":  ev.ErrorKind,
			"error": err.Error(),
		})
	} else {
		s.metrics.IncOpSucceeded(ev.Operation)
		ev.Outcome = adapter.OutcomeSuccess
		ev.OutputBytes = outLen
	}

	ev.ContractVersion = types.EventContractVersion
	ev.EventType = adapter.EventTypeConversionCompleted
	ev.InstanceID = s.instanceID
	ev.RequestID = RequestID(ctx)
	ev.Timestamp = start.UTC().Format(time.RFC3339Nano)
	ev.DurationMs = time.Since(start).Milliseconds()
	s.events.Dispatch(ctx, ev)
}

func idStrings(ids ...types.Identifier) []string {
	var out []string
	for _, id := range ids {
		if !id.IsZero() {
			out = append(out, id.String())
		}
	}
	return out
}
