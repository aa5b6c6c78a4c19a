package main

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrResultNotFound  = errors.New("result not found")
)

// Store keeps sessions and materialized results keyed by session id.
// The two keyspaces are independent; no operation spans both.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// UpdateSession applies fn to the stored session. If fn returns an
	// error nothing is written.
	UpdateSession(ctx context.Context, id string, fn func(*Session) error) error
	PutResult(ctx context.Context, r *Result) error
	GetResult(ctx context.Context, id string) (*Result, error)
}

// MemStore is the process-local Store. Values are copied in and out so
// callers never share state with the maps.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	results  map[string]*Result
}

func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]*Session),
		results:  make(map[string]*Result),
	}
}

func (m *MemStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrSessionExists
	}
	m.sessions[s.ID] = s.clone()
	return nil
}

func (m *MemStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.clone(), nil
}

func (m *MemStore) UpdateSession(_ context.Context, id string, fn func(*Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	next := s.clone()
	if err := fn(next); err != nil {
		return err
	}
	m.sessions[id] = next
	return nil
}

func (m *MemStore) PutResult(_ context.Context, r *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ID] = r.clone()
	return nil
}

func (m *MemStore) GetResult(_ context.Context, id string) (*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok {
		return nil, ErrResultNotFound
	}
	return r.clone(), nil
}
