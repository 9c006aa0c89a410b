// Package memory is the in-memory cartstore used when no DATABASE_URL is
// configured and in tests. Carts do not survive a restart.
package memory

import (
	"context"
	"sync"

	"petpos/terminal/internal/cart"
	"petpos/terminal/internal/cartstore"
)

type Store struct {
	mu    sync.RWMutex
	carts map[string][]cart.SavedLine
}

func New() *Store {
	return &Store{carts: make(map[string][]cart.SavedLine)}
}

func (s *Store) Load(_ context.Context, key string) ([]cart.SavedLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines, ok := s.carts[key]
	if !ok {
		return nil, cartstore.ErrNotFound
	}
	out := make([]cart.SavedLine, len(lines))
	copy(out, lines)
	return out, nil
}

func (s *Store) Save(_ context.Context, key string, lines []cart.SavedLine) error {
	stored := make([]cart.SavedLine, len(lines))
	copy(stored, lines)

	s.mu.Lock()
	s.carts[key] = stored
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.carts, key)
	s.mu.Unlock()
	return nil
}
