package testutil

import (
	"fmt"
	"sync"
)

// SequentialSessionGenerator generates predictable session IDs:
// "<prefix>-1", "<prefix>-2", ...
//
// This enables deterministic test execution and golden trace comparison.
// The same scenario with the same generator produces byte-identical traces.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialSessionGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialSessionGenerator creates a generator. An empty prefix
// becomes "test-session".
func NewSequentialSessionGenerator(prefix string) *SequentialSessionGenerator {
	if prefix == "" {
		prefix = "test-session"
	}
	return &SequentialSessionGenerator{prefix: prefix}
}

// Generate returns the next session ID.
//
// Implements engine.SessionIDGenerator interface.
func (g *SequentialSessionGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
