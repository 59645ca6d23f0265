package client

import (
	"sync/atomic"

	"boardsync/domain"
)

// Store holds the local board snapshot. Replace swaps the whole snapshot in
// one atomic assignment: readers observe either the previous or the next
// board, never a half-applied mutation.
type Store struct {
	board atomic.Pointer[domain.Board]
}

func NewStore() *Store {
	s := &Store{}
	s.board.Store(&domain.Board{})
	return s
}

// Board returns the current snapshot. Callers must not mutate it; changes go
// through Replace.
func (s *Store) Board() domain.Board {
	return *s.board.Load()
}

// Replace installs the given board as the new snapshot.
func (s *Store) Replace(b domain.Board) {
	s.board.Store(&b)
}
