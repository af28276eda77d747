package contentstore

import (
	"context"
	"sync"

	"certify/pkg/domain"
	"certify/pkg/platform/sentinel"
)

type InMemory struct {
	mu    sync.RWMutex
	blobs map[domain.ContentID][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{blobs: make(map[domain.ContentID][]byte)}
}

func (s *InMemory) Put(_ context.Context, blob []byte) (domain.ContentID, error) {
	id := IDFor(blob)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		s.blobs[id] = append([]byte(nil), blob...)
	}
	return id, nil
}

func (s *InMemory) Get(_ context.Context, id domain.ContentID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), blob...), nil
}
