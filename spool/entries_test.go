package spool

import (
	"os"
	"testing"
)

func TestEntries(t *testing.T) {
	s := newTestStore(t)

	done, err := s.Put(t.Context(), []byte("finished"))
	if err != nil {
		t.Fatal(err)
	}
	pending, err := s.WriteChunk(t.Context(), "", []byte("cGFy"), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(s.Dir()+"/nested", 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}

	byDigest := map[string]EntryInfo{}
	for _, e := range entries {
		byDigest[e.Digest] = e
	}

	fin, ok := byDigest[done.Digest()]
	if !ok || fin.InProgress {
		t.Errorf("finalized entry = %+v, ok=%v", fin, ok)
	}
	if fin.Size != int64(len("ZmluaXNoZWQ=")) {
		t.Errorf("finalized size = %d", fin.Size)
	}

	inp, ok := byDigest[pending.Digest()]
	if !ok || !inp.InProgress || inp.Size != 4 {
		t.Errorf("in-progress entry = %+v, ok=%v", inp, ok)
	}
}

func TestEntries_Empty(t *testing.T) {
	entries, err := newTestStore(t).Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}
