// Package idgen provides record id generation implementations.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// UUID generates UUID v4 identifiers.
type UUID struct{}

// New generates a new UUID v4 string.
func (UUID) New() string {
	return uuid.New().String()
}

// Sequential generates prefixed sequential ids (for testing).
type Sequential struct {
	prefix  string
	counter uint64
}

// NewSequential creates a sequential id generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential id.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return s.prefix + strconv.FormatUint(n, 10)
}

// Reset resets the counter (for testing).
func (s *Sequential) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}
