package result

import "sync/atomic"

// IDGenerator hands out incremental detection ids and is safe for concurrent
// use
type IDGenerator struct {
	id atomic.Int64
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// GetNext returns the next id, starting at 1
func (g *IDGenerator) GetNext() int64 {
	return g.id.Add(1)
}

// Reset restarts numbering from 1
func (g *IDGenerator) Reset() {
	g.id.Store(0)
}
