// Package serverstate tracks daemon connectivity and per-resource running
// flags as observed by an explorer client. Views read it; only the Poller
// writes it.
package serverstate

import (
	"sync"
	"sync/atomic"
)

// State is the connectivity store. IsUp reports whether the daemon answered
// its last health probe; IsResourceRunning answers the live per-name query
// the view re-evaluates on every observation cycle.
type State struct {
	mu      sync.RWMutex
	up      bool
	running map[string]bool
	version atomic.Uint64
}

func New() *State {
	return &State{running: make(map[string]bool)}
}

func (s *State) IsUp() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.up
}

func (s *State) IsResourceRunning(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running[name]
}

// Version increases on every mutation; views key their memoization on it.
func (s *State) Version() uint64 { return s.version.Load() }

func (s *State) SetUp(up bool) {
	s.mu.Lock()
	changed := s.up != up
	s.up = up
	s.mu.Unlock()
	if changed {
		s.version.Add(1)
	}
}

func (s *State) SetRunning(name string, running bool) {
	s.mu.Lock()
	changed := s.running[name] != running
	s.running[name] = running
	s.mu.Unlock()
	if changed {
		s.version.Add(1)
	}
}

// ReplaceRunning swaps the whole running set, used when a full status
// snapshot arrives.
func (s *State) ReplaceRunning(running map[string]bool) {
	cp := make(map[string]bool, len(running))
	for k, v := range running {
		cp[k] = v
	}
	s.mu.Lock()
	s.running = cp
	s.mu.Unlock()
	s.version.Add(1)
}

func (s *State) Forget(name string) {
	s.mu.Lock()
	_, ok := s.running[name]
	delete(s.running, name)
	s.mu.Unlock()
	if ok {
		s.version.Add(1)
	}
}
