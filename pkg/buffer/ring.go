package buffer

import (
	"sync"

	"github.com/c360/tracekit/errors"
	"github.com/c360/tracekit/packet"
)

// Ring is a thread-safe FIFO packet buffer bounded by a byte budget
// rather than an item count. Pushing beyond the budget evicts the oldest
// packets first.
type Ring struct {
	mu       sync.Mutex
	items    []packet.Packet
	bytes    int64
	maxBytes int64
	stats    *Statistics  // always initialized for observability
	metrics  *ringMetrics // optional Prometheus metrics
	opts     *ringOptions
	closed   bool
}

// NewRing creates a ring with the given byte budget.
// Returns an error if metrics registration fails when requested.
func NewRing(maxBytes int64, options ...Option) (*Ring, error) {
	if maxBytes <= 0 {
		maxBytes = 1
	}

	opts := applyOptions(options...)

	var metrics *ringMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newRingMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewRing", "metrics registration")
		}
	}

	return &Ring{
		maxBytes: maxBytes,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}, nil
}

// Push appends p to the ring, evicting the oldest packets until the byte
// budget is respected. It returns the number of packets evicted. A packet
// larger than the entire budget evicts everything and is then dropped
// itself; in that case the returned count includes it.
func (r *Ring) Push(p packet.Packet) int {
	if p == nil {
		return 0
	}

	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return 0
	}

	size := int64(p.Size())
	evicted := 0
	var droppedItems []packet.Packet

	for len(r.items) > 0 && r.bytes+size > r.maxBytes {
		oldest := r.items[0]
		r.items[0] = nil
		r.items = r.items[1:]
		r.bytes -= int64(oldest.Size())
		evicted++
		r.stats.Overflow()
		r.stats.Drop()
		if r.metrics != nil {
			r.metrics.recordOverflow()
			r.metrics.recordDrop()
		}
		if r.opts.dropCallback != nil {
			droppedItems = append(droppedItems, oldest)
		}
	}

	if size > r.maxBytes {
		// The packet alone exceeds the budget; drop it and carry on.
		r.stats.Overflow()
		r.stats.Drop()
		if r.metrics != nil {
			r.metrics.recordOverflow()
			r.metrics.recordDrop()
		}
		if r.opts.dropCallback != nil {
			droppedItems = append(droppedItems, p)
		}
		evicted++
	} else {
		r.items = append(r.items, p)
		r.bytes += size
		r.stats.Write()
	}

	r.stats.UpdateSize(r.bytes)
	if r.metrics != nil {
		r.metrics.recordWrite(r.bytes, r.maxBytes, len(r.items))
	}
	r.mu.Unlock()

	// Run callbacks outside the lock to avoid deadlock.
	for _, item := range droppedItems {
		r.opts.dropCallback(item)
	}

	return evicted
}

// Pop removes and returns the oldest packet.
func (r *Ring) Pop() (packet.Packet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) == 0 {
		return nil, false
	}

	p := r.items[0]
	r.items[0] = nil
	r.items = r.items[1:]
	r.bytes -= int64(p.Size())

	r.stats.Read()
	r.stats.UpdateSize(r.bytes)
	if r.metrics != nil {
		r.metrics.recordRead(r.bytes, r.maxBytes, len(r.items))
	}

	return p, true
}

// Drain removes every retained packet in FIFO order and passes it to fn.
// Draining stops at the first error; packets already handed to fn are
// gone either way.
func (r *Ring) Drain(fn func(packet.Packet) error) error {
	for {
		p, ok := r.Pop()
		if !ok {
			return nil
		}
		if err := fn(p); err != nil {
			return err
		}
	}
}

// Snapshot returns the retained packets in FIFO order without removing
// them.
func (r *Ring) Snapshot() []packet.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]packet.Packet, len(r.items))
	copy(out, r.items)
	return out
}

// Clear removes all retained packets.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var droppedItems []packet.Packet
	if r.opts.dropCallback != nil {
		droppedItems = append(droppedItems, r.items...)
	}

	for i := range r.items {
		r.items[i] = nil
	}
	r.items = r.items[:0]
	r.bytes = 0

	r.stats.UpdateSize(0)
	if r.metrics != nil {
		r.metrics.updateSize(0, r.maxBytes, 0)
	}

	if r.opts.dropCallback != nil {
		defer func() {
			for _, item := range droppedItems {
				r.opts.dropCallback(item)
			}
		}()
	}
}

// Count returns the number of retained packets.
func (r *Ring) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Bytes returns the total retained packet bytes.
func (r *Ring) Bytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// MaxBytes returns the ring's byte budget.
func (r *Ring) MaxBytes() int64 {
	return r.maxBytes // immutable, no lock needed
}

// Stats returns ring statistics (always available for observability).
func (r *Ring) Stats() *Statistics {
	return r.stats
}

// Close shuts down the ring. Subsequent pushes are ignored.
func (r *Ring) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
