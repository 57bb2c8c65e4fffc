// Package memstore is the in-memory reference implementation of
// identity.Store. State lives for the life of the process; use the SQLite
// store for anything that must survive a restart.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/lp24213/agroisync-sub001/internal/identity"
)

// Store keeps identities in two maps, by id and by email, behind one lock.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*identity.Identity
	byEmail map[string]string // email -> id
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*identity.Identity),
		byEmail: make(map[string]string),
	}
}

func (s *Store) Get(_ context.Context, id string) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, identity.ErrIdentityNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, identity.ErrIdentityNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) Put(_ context.Context, rec *identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.byID[cp.ID] = &cp
	s.byEmail[strings.ToLower(cp.Email)] = cp.ID
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byID[id]; ok {
		delete(s.byEmail, strings.ToLower(rec.Email))
		delete(s.byID, id)
	}
	return nil
}

func (s *Store) Scan(_ context.Context, fn func(*identity.Identity) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.byID {
		cp := *rec
		if !fn(&cp) {
			return nil
		}
	}
	return nil
}
