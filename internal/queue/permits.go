package queue

// Permits is a channel-backed counting semaphore bounding in-flight sends.
// Acquisition is strictly non-blocking: a sweep that finds no permits skips
// its work instead of queueing more.
type Permits struct {
	tokens chan struct{}
}

// NewPermits creates a pool holding n permits.
func NewPermits(n int) *Permits {
	p := &Permits{tokens: make(chan struct{}, n)}
	for range n {
		p.tokens <- struct{}{}
	}
	return p
}

// TryAcquire takes a permit if one is available and reports whether it did.
func (p *Permits) TryAcquire() bool {
	select {
	case <-p.tokens:
		return true
	default:
		return false
	}
}

// Release returns a permit to the pool. Releasing more permits than were
// acquired indicates a reconciliation bug; the surplus is dropped.
func (p *Permits) Release() {
	select {
	case p.tokens <- struct{}{}:
	default:
	}
}

// Available returns the number of free permits.
func (p *Permits) Available() int {
	return len(p.tokens)
}

// Cap returns the pool size.
func (p *Permits) Cap() int {
	return cap(p.tokens)
}
