package server

import "sync"

// session is one connected websocket client, whichever upgrader accepted it
type session interface {
	id() string
	send(data Data) bool
	close()
}

// Hub Code
type cmap struct {
	m     map[string]session
	_lock sync.RWMutex
}

func newcmap() *cmap {
	return &cmap{m: make(map[string]session)}
}

func (m *cmap) add(id string, s session) {
	m._lock.Lock()
	defer m._lock.Unlock()

	m.m[id] = s
}

func (m *cmap) remove(id string) {
	m._lock.Lock()
	defer m._lock.Unlock()

	delete(m.m, id)
}

func (m *cmap) count() int {
	m._lock.RLock()
	defer m._lock.RUnlock()

	return len(m.m)
}

func (m *cmap) closeAll() {
	m._lock.RLock()
	all := make([]session, 0, len(m.m))
	for _, s := range m.m {
		all = append(all, s)
	}
	m._lock.RUnlock()

	for _, s := range all {
		s.close()
	}
}

func (m *cmap) send(id string, data Data) bool {
	m._lock.RLock()
	s, ok := m.m[id]
	m._lock.RUnlock()

	if !ok {
		return false
	}
	return s.send(data)
}

// broadcast queues data on every session not listed in exclude and returns how many accepted it
func (m *cmap) broadcast(data Data, exclude ...string) int {
	m._lock.RLock()
	defer m._lock.RUnlock()

	n := 0
	for id, s := range m.m {
		if excluded(id, exclude) {
			continue
		}

		if s.send(data) {
			n++
		}
	}
	return n
}

func excluded(id string, exclude []string) bool {
	for _, e := range exclude {
		if e == id {
			return true
		}
	}
	return false
}
