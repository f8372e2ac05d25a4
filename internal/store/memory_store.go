package store

import (
	"bytes"
	"sync"

	"github.com/metasecret/metasecret/internal/model"
)

// MemoryStore is an in-process Store used by unit and integration
// tests that don't need a file on disk — test-only scaffolding, not a
// backend the spec asks for (persistent backends are out of scope,
// spec §1); kept in-package so tests can exercise C2-C5 without bbolt.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Save(event model.GenericKvLogEvent) (model.ArtifactId, error) {
	id := event.ArtifactId()
	data, err := encodeEvent(event)
	if err != nil {
		return id, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyString(id)
	if existing, ok := s.data[key]; ok && !bytes.Equal(existing, data) {
		return id, ErrChainCollision
	}
	s.data[key] = data
	return id, nil
}

func (s *MemoryStore) FindOne(id model.ArtifactId) (*model.GenericKvLogEvent, error) {
	s.mu.RLock()
	data, ok := s.data[keyString(id)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	event, err := decodeEvent(data)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *MemoryStore) Delete(id model.ArtifactId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, keyString(id))
	return nil
}

func (s *MemoryStore) DBCleanUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}
