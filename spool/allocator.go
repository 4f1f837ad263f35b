package spool

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/pithecene-io/docbroker/types"
)

// maxAllocAttempts bounds the draw loop. With a 63-bit space a healthy
// random source never gets close; hitting it means the source is broken.
const maxAllocAttempts = 1024

// ErrAllocExhausted is returned when no free identifier was found.
var ErrAllocExhausted = errors.New("spool: identifier allocation exhausted")

// Allocator hands out identifiers that are unused in its store.
//
// Allocation reserves the identifier by creating its in-progress file with
// O_EXCL, so two workers sharing the spool directory can never be handed
// the same identifier.
type Allocator struct {
	store *Store
	rand  func() int64
}

func newAllocator(s *Store) *Allocator {
	return &Allocator{
		store: s,
		rand:  func() int64 { return rand.Int64N(math.MaxInt64) + 1 },
	}
}

// Allocate returns a fresh identifier whose in-progress entry now exists
// (empty) and whose finalized entry does not.
func (a *Allocator) Allocate() (types.Identifier, error) {
	for range maxAllocAttempts {
		id := types.Identifier(strconv.FormatInt(a.rand(), 10))
		if exists(a.store.FinalPath(id)) {
			continue
		}

		reserved, err := a.reserve(id)
		if err != nil {
			return "", err
		}
		if !reserved {
			continue
		}

		// A concurrent finalize may have landed between the check and the
		// reservation; release and draw again.
		if exists(a.store.FinalPath(id)) {
			_ = os.Remove(a.store.InProgressPath(id))
			continue
		}

		a.store.logger.Debug("assigned new identifier", map[string]any{"identifier": id.String()})
		return id, nil
	}
	return "", ErrAllocExhausted
}

// reserve atomically creates the in-progress file for id. It reports false
// when the file already exists.
func (a *Allocator) reserve(id types.Identifier) (bool, error) {
	f, err := os.OpenFile(a.store.InProgressPath(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("spool: reserve identifier: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("spool: reserve identifier: %w", err)
	}
	return true, nil
}
