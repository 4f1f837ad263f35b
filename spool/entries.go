package spool

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// EntryInfo describes one file in the spool directory.
type EntryInfo struct {
	Digest     string    `json:"digest" yaml:"digest"`
	Size       int64     `json:"size" yaml:"size"`
	InProgress bool      `json:"in_progress" yaml:"in_progress"`
	Modified   time.Time `json:"modified" yaml:"modified"`
}

// Entries lists spool entries, finalized and in-progress, ordered by digest.
// Identifiers are not recoverable from the directory; only digests are.
func (s *Store) Entries() ([]EntryInfo, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("spool: list %s: %w", s.dir, err)
	}

	entries := make([]EntryInfo, 0, len(dirents))
	for _, de := range dirents {
		if !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info (released reservation).
			continue
		}
		name := de.Name()
		entries = append(entries, EntryInfo{
			Digest:     strings.TrimPrefix(name, InProgressPrefix),
			Size:       info.Size(),
			InProgress: strings.HasPrefix(name, InProgressPrefix),
			Modified:   info.ModTime().UTC(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Digest != entries[j].Digest {
			return entries[i].Digest < entries[j].Digest
		}
		return !entries[i].InProgress && entries[j].InProgress
	})
	return entries, nil
}
