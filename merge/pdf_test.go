package merge

import (
	"errors"
	"testing"
)

func TestPDFMerger_RejectsEmptyDocument(t *testing.T) {
	m := NewPDFMerger()
	if err := m.Append(nil); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestPDFMerger_NothingToMerge(t *testing.T) {
	if _, err := NewPDFMerger().Finalize(); err == nil {
		t.Error("expected error")
	}
}

func TestPDFMerger_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		docs []string
	}{
		{"single", []string{"not a pdf"}},
		{"several", []string{"not a pdf", "neither is this"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewPDFMerger()
			for _, doc := range tt.docs {
				if err := m.Append([]byte(doc)); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}
			if _, err := m.Finalize(); err == nil {
				t.Error("expected error for invalid PDF input")
			}
		})
	}
}
