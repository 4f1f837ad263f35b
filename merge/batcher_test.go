package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/pithecene-io/docbroker/metrics"
	"github.com/pithecene-io/docbroker/spool"
	"github.com/pithecene-io/docbroker/types"
)

// concatMerger joins documents byte for byte.
type concatMerger struct {
	buf    bytes.Buffer
	reject bool
}

func (m *concatMerger) Append(doc []byte) error {
	if m.reject {
		return errors.New("merger rejected document")
	}
	m.buf.Write(doc)
	return nil
}

func (m *concatMerger) Finalize() ([]byte, error) {
	return m.buf.Bytes(), nil
}

type pass struct {
	n     int
	sizes []int
}

func newStore(t *testing.T) *spool.Store {
	t.Helper()
	s, err := spool.New(t.TempDir())
	if err != nil {
		t.Fatalf("spool.New: %v", err)
	}
	return s
}

func putDocs(t *testing.T, s *spool.Store, n int) ([]types.Identifier, string) {
	t.Helper()
	ids := make([]types.Identifier, n)
	var want strings.Builder
	for i := range n {
		doc := fmt.Sprintf("[%d]", i)
		id, err := s.Put(t.Context(), []byte(doc))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		ids[i] = id
		want.WriteString(doc)
	}
	return ids, want.String()
}

func spoolFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	return len(entries)
}

func TestBatcher_TwoPasses(t *testing.T) {
	store := newStore(t)
	ids, want := putDocs(t, store, 250)

	var passes []pass
	mc := metrics.NewCollector("test", "")
	b := NewBatcher(store,
		WithMergerFactory(func() PDFMerger { return &concatMerger{} }),
		WithObserver(func(n int, sizes []int) { passes = append(passes, pass{n, sizes}) }),
		WithMetrics(mc),
	)

	got, err := b.Merge(t.Context(), ids)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if string(got) != want {
		t.Errorf("merged document out of order")
	}

	if len(passes) != 2 {
		t.Fatalf("passes = %d, want 2", len(passes))
	}
	if !slices.Equal(passes[0].sizes, []int{100, 100, 50}) {
		t.Errorf("first pass batches = %v, want [100 100 50]", passes[0].sizes)
	}
	if !slices.Equal(passes[1].sizes, []int{3}) {
		t.Errorf("second pass batches = %v, want [3]", passes[1].sizes)
	}

	snap := mc.Snapshot()
	if snap.MergePasses != 2 {
		t.Errorf("MergePasses = %d, want 2", snap.MergePasses)
	}
	if snap.MergeBatches != 4 {
		t.Errorf("MergeBatches = %d, want 4", snap.MergeBatches)
	}

	// 250 inputs + 3 intermediate + 1 final.
	if n := spoolFiles(t, store.Dir()); n != 254 {
		t.Errorf("spool entries = %d, want 254", n)
	}
}

func TestBatcher_SingleIdentifierStillMerged(t *testing.T) {
	store := newStore(t)
	ids, want := putDocs(t, store, 1)

	var passes []pass
	b := NewBatcher(store,
		WithMergerFactory(func() PDFMerger { return &concatMerger{} }),
		WithObserver(func(n int, sizes []int) { passes = append(passes, pass{n, sizes}) }),
	)

	got, err := b.Merge(t.Context(), ids)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if len(passes) != 1 || !slices.Equal(passes[0].sizes, []int{1}) {
		t.Errorf("passes = %v, want one pass of [1]", passes)
	}
	if n := spoolFiles(t, store.Dir()); n != 2 {
		t.Errorf("spool entries = %d, want 2", n)
	}
}

func TestBatcher_ExactBatchBoundary(t *testing.T) {
	store := newStore(t)
	ids, want := putDocs(t, store, 6)

	var passes []pass
	b := NewBatcher(store,
		WithBatchSize(3),
		WithMergerFactory(func() PDFMerger { return &concatMerger{} }),
		WithObserver(func(n int, sizes []int) { passes = append(passes, pass{n, sizes}) }),
	)

	got, err := b.Merge(t.Context(), ids)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if len(passes) != 2 {
		t.Fatalf("passes = %d, want 2", len(passes))
	}
	if !slices.Equal(passes[0].sizes, []int{3, 3}) || !slices.Equal(passes[1].sizes, []int{2}) {
		t.Errorf("passes = %v", passes)
	}
}

func TestBatcher_Empty(t *testing.T) {
	b := NewBatcher(newStore(t))
	_, err := b.Merge(t.Context(), nil)
	if !errors.Is(err, types.ErrNoIdentifier) {
		t.Errorf("expected ErrNoIdentifier, got %v", err)
	}
}

func TestBatcher_UnknownIdentifierAborts(t *testing.T) {
	store := newStore(t)
	ids, _ := putDocs(t, store, 2)
	ids = append(ids, "does-not-exist")

	merged := 0
	b := NewBatcher(store, WithMergerFactory(func() PDFMerger {
		merged++
		return &concatMerger{}
	}))

	_, err := b.Merge(t.Context(), ids)
	if !errors.Is(err, types.ErrNoIdentifier) {
		t.Fatalf("expected ErrNoIdentifier, got %v", err)
	}
	if merged != 0 {
		t.Errorf("merger created %d times, want 0", merged)
	}
}

func TestBatcher_FailureLeavesIntermediates(t *testing.T) {
	store := newStore(t)
	ids, _ := putDocs(t, store, 5)

	batches := 0
	b := NewBatcher(store,
		WithBatchSize(2),
		WithMergerFactory(func() PDFMerger {
			batches++
			// The third batch rejects its document.
			return &concatMerger{reject: batches == 3}
		}),
	)

	_, err := b.Merge(t.Context(), ids)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "pass 1 batch 3") {
		t.Errorf("error = %v, want pass 1 batch 3", err)
	}
	// Two completed batch results remain spooled next to the inputs.
	if n := spoolFiles(t, store.Dir()); n != 7 {
		t.Errorf("spool entries = %d, want 7", n)
	}
}

func TestBatcher_CanceledContext(t *testing.T) {
	store := newStore(t)
	ids, _ := putDocs(t, store, 3)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	b := NewBatcher(store, WithMergerFactory(func() PDFMerger { return &concatMerger{} }))
	if _, err := b.Merge(ctx, ids); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
