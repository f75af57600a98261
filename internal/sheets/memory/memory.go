// Package memory is an in-process EntryMirror used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"financeflow/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []sheets.Row
}

func New() *Store {
	return &Store{}
}

// AppendEntry stores the row and returns a synthetic row reference.
func (s *Store) AppendEntry(_ context.Context, r sheets.Row) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, r)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) UpdateEntry(ctx context.Context, r sheets.Row) error {
	s.mu.Lock()
	for i := range s.rows {
		if s.rows[i].EntryID == r.EntryID {
			s.rows[i] = r
			s.mu.Unlock()
			return nil
		}
	}
	s.mu.Unlock()
	_, err := s.AppendEntry(ctx, r)
	return err
}

func (s *Store) RemoveEntry(_ context.Context, entryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.rows[:0]
	for _, r := range s.rows {
		if r.EntryID != entryID {
			out = append(out, r)
		}
	}
	s.rows = out
	return nil
}

// Rows returns a copy of the mirrored rows in insertion order.
func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...)
}
