package store

import (
	"context"
	"sync"
)

// InMemoryStore keeps session documents in process memory. Used when no
// database URL is configured and in tests.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]SessionDoc
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]SessionDoc)}
}

func (s *InMemoryStore) SaveSession(_ context.Context, doc SessionDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *InMemoryStore) GetSession(_ context.Context, id string) (SessionDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return SessionDoc{}, ErrNotFound
	}
	return doc, nil
}

func (s *InMemoryStore) UpdateParticipants(_ context.Context, id string, participants []ParticipantDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Participants = participants
	s.docs[id] = doc
	return nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
