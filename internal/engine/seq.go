package engine

import "sync/atomic"

// Sequence numbers events in the order they are queued. Feed clients use
// the numbers to spot gaps after a reconnect.
type Sequence struct {
	last atomic.Int64
}

// NewSequence returns a sequence whose first number is start+1.
func NewSequence(start int64) *Sequence {
	s := &Sequence{}
	s.last.Store(start)
	return s
}

// Next returns the next number.
func (s *Sequence) Next() int64 {
	return s.last.Add(1)
}

// Last returns the most recently issued number, or the start value.
func (s *Sequence) Last() int64 {
	return s.last.Load()
}
