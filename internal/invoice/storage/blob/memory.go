package blob

import (
	"context"
	"sync"
)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// InMemoryStore keeps objects in a map. Set Err to make every Put fail.
type InMemoryStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string]Object
	puts    int
	Err     error
}

func NewInMemory(baseURL string) *InMemoryStore {
	return &InMemoryStore{baseURL: baseURL, objects: make(map[string]Object)}
}

func (s *InMemoryStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	s.puts++
	s.objects[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return s.baseURL + "/" + key, nil
}

func (s *InMemoryStore) Get(key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Len returns how many distinct objects exist.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Puts counts successful Put calls, overwrites included.
func (s *InMemoryStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
