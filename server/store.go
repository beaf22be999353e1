package server

import "sync"

// store holds request scoped values set by middlewares
type store struct {
	m  map[string]interface{}
	mu sync.Mutex
}

func newStore() *store {
	return &store{
		m: make(map[string]interface{}),
	}
}

func (s *store) Set(k string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[k] = v
}

func (s *store) Get(k string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.m[k]
}

func (s *store) Del(k string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, k)
}

func (s *store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.m)
}
