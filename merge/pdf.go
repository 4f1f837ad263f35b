package merge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFMerger concatenates PDF documents. Documents are appended in order;
// Finalize returns the combined document. A PDFMerger is used once.
type PDFMerger interface {
	Append(doc []byte) error
	Finalize() ([]byte, error)
}

// ErrEmptyDocument is returned when an empty document is appended.
var ErrEmptyDocument = errors.New("merge: empty document")

var disableConfigDir sync.Once

// pdfcpuMerger is the production PDFMerger backed by pdfcpu.
type pdfcpuMerger struct {
	docs [][]byte
	conf *model.Configuration
}

// NewPDFMerger returns a PDFMerger backed by pdfcpu. pdfcpu never touches
// the user config directory.
func NewPDFMerger() PDFMerger {
	disableConfigDir.Do(api.DisableConfigDir)
	return &pdfcpuMerger{conf: model.NewDefaultConfiguration()}
}

func (m *pdfcpuMerger) Append(doc []byte) error {
	if len(doc) == 0 {
		return ErrEmptyDocument
	}
	m.docs = append(m.docs, doc)
	return nil
}

func (m *pdfcpuMerger) Finalize() ([]byte, error) {
	switch len(m.docs) {
	case 0:
		return nil, errors.New("merge: nothing to merge")
	case 1:
		if err := api.Validate(bytes.NewReader(m.docs[0]), m.conf); err != nil {
			return nil, fmt.Errorf("merge: validate: %w", err)
		}
		return m.docs[0], nil
	}

	rsc := make([]io.ReadSeeker, len(m.docs))
	for i, doc := range m.docs {
		rsc[i] = bytes.NewReader(doc)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(rsc, &out, false, m.conf); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	m.docs = nil
	return out.Bytes(), nil
}
