// Package merge reduces a list of spooled PDF documents to one.
//
// Large lists are merged in fixed-width passes: each pass merges batches
// of at most BatchSize documents and spools every batch result, and the
// next pass works on those results. Peak memory stays bounded by one batch.
package merge

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/docbroker/log"
	"github.com/pithecene-io/docbroker/metrics"
	"github.com/pithecene-io/docbroker/types"
)

// DefaultBatchSize is the maximum number of documents merged at once.
const DefaultBatchSize = 100

// DefaultReadConcurrency bounds concurrent spool reads within a batch.
const DefaultReadConcurrency = 8

// Store is the spool surface the batcher needs.
type Store interface {
	Read(id types.Identifier) ([]byte, error)
	Put(ctx context.Context, data []byte) (types.Identifier, error)
}

// PassObserver is called after each completed pass with the 1-based pass
// number and the size of every batch merged in it.
type PassObserver func(pass int, batchSizes []int)

// Batcher merges spooled PDFs in batches.
type Batcher struct {
	store           Store
	newMerger       func() PDFMerger
	batchSize       int
	readConcurrency int
	observer        PassObserver
	logger          *log.Logger
	metrics         *metrics.Collector
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithBatchSize overrides DefaultBatchSize. Values below 2 are ignored.
func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n >= 2 {
			b.batchSize = n
		}
	}
}

// WithReadConcurrency overrides DefaultReadConcurrency.
func WithReadConcurrency(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.readConcurrency = n
		}
	}
}

// WithMergerFactory replaces the pdfcpu merger.
func WithMergerFactory(fn func() PDFMerger) Option {
	return func(b *Batcher) { b.newMerger = fn }
}

// WithObserver sets the pass observer.
func WithObserver(fn PassObserver) Option {
	return func(b *Batcher) { b.observer = fn }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Batcher) { b.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(b *Batcher) { b.metrics = m }
}

// NewBatcher creates a Batcher over store.
func NewBatcher(store Store, opts ...Option) *Batcher {
	b := &Batcher{
		store:           store,
		newMerger:       NewPDFMerger,
		batchSize:       DefaultBatchSize,
		readConcurrency: DefaultReadConcurrency,
		logger:          log.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Merge merges the documents behind ids, in order, and returns the result.
// Even a single identifier goes through one pass. Every intermediate and
// final result is spooled; on failure those entries are left in place.
func (b *Batcher) Merge(ctx context.Context, ids []types.Identifier) ([]byte, error) {
	if len(ids) == 0 {
		return nil, types.NewBrokerError(types.ErrNoIdentifier, "merge", nil)
	}

	work := ids
	for pass := 1; ; pass++ {
		start := time.Now()
		next := make([]types.Identifier, 0, (len(work)+b.batchSize-1)/b.batchSize)
		sizes := make([]int, 0, cap(next))

		for lo := 0; lo < len(work); lo += b.batchSize {
			hi := min(lo+b.batchSize, len(work))
			id, err := b.mergeBatch(ctx, work[lo:hi])
			if err != nil {
				return nil, fmt.Errorf("merge: pass %d batch %d: %w", pass, len(sizes)+1, err)
			}
			next = append(next, id)
			sizes = append(sizes, hi-lo)
		}

		b.metrics.IncMergePass()
		b.metrics.AddMergeBatches(len(sizes))
		b.logger.Debug("merge pass", map[string]any{
			"pass":    pass,
			"inputs":  len(work),
			"batches": len(sizes),
			"elapsed": time.Since(start).Seconds(),
		})
		if b.observer != nil {
			b.observer(pass, sizes)
		}

		work = next
		if len(work) == 1 {
			return b.store.Read(work[0])
		}
	}
}

// mergeBatch merges one batch and spools the result.
func (b *Batcher) mergeBatch(ctx context.Context, batch []types.Identifier) (types.Identifier, error) {
	docs, err := b.readAll(ctx, batch)
	if err != nil {
		return "", err
	}

	m := b.newMerger()
	for i, doc := range docs {
		if err := m.Append(doc); err != nil {
			return "", fmt.Errorf("append %s: %w", batch[i], err)
		}
	}
	merged, err := m.Finalize()
	if err != nil {
		return "", err
	}
	return b.store.Put(ctx, merged)
}

// readAll reads batch members concurrently, preserving order.
func (b *Batcher) readAll(ctx context.Context, batch []types.Identifier) ([][]byte, error) {
	docs := make([][]byte, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.readConcurrency)
	for i, id := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := b.store.Read(id)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}
