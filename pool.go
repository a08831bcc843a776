package vtrack

import (
	"errors"
	"sync"
)

// Pool holds several instances of the same model so independent images can
// be detected concurrently
type Pool struct {
	detectors chan Detector
	size      int
	mu        sync.Mutex
	closed    bool
}

// NewPool opens size detectors with the given function.  It is passed the
// index of the instance being opened.
func NewPool(size int, open func(i int) (Detector, error)) (*Pool, error) {

	if size < 1 {
		return nil, errors.New("pool size must be at least 1")
	}

	p := &Pool{
		detectors: make(chan Detector, size),
		size:      size,
	}

	for i := 0; i < size; i++ {
		d, err := open(i)

		if err != nil {
			// close instances created before the error
			p.Close()
			return nil, err
		}

		p.Return(d)
	}

	return p, nil
}

// Get takes a detector from the pool, blocking until one is free.  It
// returns nil once the pool is closed.
func (p *Pool) Get() Detector {
	return <-p.detectors
}

// Return puts a detector back in the pool.  Detectors returned to a closed
// or full pool are closed.
func (p *Pool) Return(d Detector) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		select {
		case p.detectors <- d:
			return
		default:
		}
	}

	_ = d.Close()
}

// Size returns the number of detectors in the pool
func (p *Pool) Size() int {
	return p.size
}

// Close the pool and every detector in it
func (p *Pool) Close() {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return
	}

	p.closed = true
	close(p.detectors)
	p.mu.Unlock()

	for next := range p.detectors {
		_ = next.Close()
	}
}
