// internal/eventlistener/dedup.go
package eventlistener

import "sync"

// DefaultDedupCapacity bounds the processed-signature set.
const DefaultDedupCapacity = 1000

type ringEntry struct {
	sig string
	gen uint64
}

// SignatureSet remembers the most recent signatures up to a fixed capacity
// and evicts the oldest first.
type SignatureSet struct {
	mu    sync.Mutex
	ring  []ringEntry
	head  int
	gen   uint64
	index map[string]uint64
}

// NewSignatureSet creates a set holding at most capacity signatures.
func NewSignatureSet(capacity int) *SignatureSet {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &SignatureSet{
		ring:  make([]ringEntry, capacity),
		index: make(map[string]uint64, capacity),
	}
}

// Add records sig and reports whether it was not already present.
func (s *SignatureSet) Add(sig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[sig]; ok {
		return false
	}

	old := s.ring[s.head]
	if old.sig != "" && s.index[old.sig] == old.gen {
		delete(s.index, old.sig)
	}

	s.gen++
	s.ring[s.head] = ringEntry{sig: sig, gen: s.gen}
	s.index[sig] = s.gen
	s.head = (s.head + 1) % len(s.ring)
	return true
}

// Forget removes sig so a later observation is processed again.
func (s *SignatureSet) Forget(sig string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.index, sig)
}

// Contains reports whether sig is in the set.
func (s *SignatureSet) Contains(sig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[sig]
	return ok
}

// Len returns the number of remembered signatures.
func (s *SignatureSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}
