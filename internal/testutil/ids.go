package testutil

import (
	"fmt"
	"sync"
)

// Sequence generates prefixed, zero-padded identifiers: "p-0001", "p-0002".
//
// This enables deterministic test execution and golden snapshot comparison.
// The same scenario with fresh sequences produces byte-identical traces.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	format string
	n      int
}

// NewSequence creates an id sequence. Ids look like prefix + "-0001".
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix, format: "%s-%04d"}
}

// NewCodeSequence creates a code sequence for tokens and certificates.
// Codes are upper-case alphanumerics with no separator: "C000001".
func NewCodeSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix, format: "%s%06d"}
}

// Next returns the next identifier.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf(s.format, s.prefix, s.n)
}

// Reset restarts the sequence at 1.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}
