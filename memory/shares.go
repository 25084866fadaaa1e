package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/rbaliyan/keymanager"
)

// Shares is an in-memory keymanager.ShareIndex that returns records in insertion order.
type Shares struct {
	mu      sync.RWMutex
	records []keymanager.ShareRecord
}

// NewShares creates an index holding records.
func NewShares(records ...keymanager.ShareRecord) *Shares {
	return &Shares{records: slices.Clone(records)}
}

// Compile-time interface check.
var _ keymanager.ShareIndex = (*Shares)(nil)

// Add appends a record.
func (s *Shares) Add(rec keymanager.ShareRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// Remove deletes every record equal to rec and reports how many were removed.
func (s *Shares) Remove(rec keymanager.ShareRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, func(r keymanager.ShareRecord) bool { return r == rec })
	return before - len(s.records)
}

// SharesByTarget returns the records with the given target and recipient.
func (s *Shares) SharesByTarget(_ context.Context, target string, sharedWith keymanager.Identity) ([]keymanager.ShareRecord, error) {
	return s.filter(func(r keymanager.ShareRecord) bool {
		return r.Target == target && r.SharedWith == sharedWith
	}), nil
}

// SharesBySource returns the records with the given source.
func (s *Shares) SharesBySource(_ context.Context, source string) ([]keymanager.ShareRecord, error) {
	return s.filter(func(r keymanager.ShareRecord) bool {
		return r.Source == source
	}), nil
}

func (s *Shares) filter(keep func(keymanager.ShareRecord) bool) []keymanager.ShareRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []keymanager.ShareRecord
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
