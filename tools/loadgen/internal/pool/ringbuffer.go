package pool

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferCapacity = 1000

// RingBuffer is a bounded, thread-safe buffer of ParameterValues for a single
// semantic type. Values are kept in insertion order; when the buffer is full,
// one value is evicted according to the configured policy before the new value
// is appended.
//
// LRU eviction relies on the access stamp each ParameterValue carries, so no
// separate access bookkeeping is needed here.
type RingBuffer struct {
	mu       sync.RWMutex
	values   []*ParameterValue // insertion order, oldest first
	capacity int

	policy        EvictionPolicy
	evictionCount atomic.Int64

	rng *rand.Rand
}

// NewRingBuffer creates a buffer with the given capacity and eviction policy.
// Non-positive capacities fall back to a default of 1000.
func NewRingBuffer(capacity int, policy EvictionPolicy) *RingBuffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	return &RingBuffer{
		values:   make([]*ParameterValue, 0, capacity),
		capacity: capacity,
		policy:   policy,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add appends a value, evicting one first if the buffer is full.
// Returns the number of values evicted.
func (rb *RingBuffer) Add(value *ParameterValue) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	evicted := 0
	if len(rb.values) >= rb.capacity {
		evicted = rb.evictOne()
	}
	rb.values = append(rb.values, value)
	return evicted
}

// evictOne drops one value per the eviction policy. Lock must be held.
func (rb *RingBuffer) evictOne() int {
	if len(rb.values) == 0 {
		return 0
	}

	victim := 0
	switch rb.policy {
	case EvictionLRU:
		oldest := rb.values[0].LastAccessedAt()
		for i, v := range rb.values[1:] {
			if at := v.LastAccessedAt(); at.Before(oldest) {
				oldest = at
				victim = i + 1
			}
		}
	case EvictionRandom:
		victim = rb.rng.Intn(len(rb.values))
	default: // EvictionFIFO: oldest insertion
	}

	rb.values = append(rb.values[:victim], rb.values[victim+1:]...)
	rb.evictionCount.Add(1)
	return 1
}

// Get returns the oldest value without removing it, or nil when empty.
func (rb *RingBuffer) Get() *ParameterValue {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.values) == 0 {
		return nil
	}
	v := rb.values[0]
	v.Touch()
	return v
}

// GetRandom returns a uniformly random value without removing it,
// or nil when empty.
func (rb *RingBuffer) GetRandom() *ParameterValue {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.values) == 0 {
		return nil
	}
	v := rb.values[rb.rng.Intn(len(rb.values))]
	v.Touch()
	return v
}

// GetAll returns a snapshot of all buffered values.
func (rb *RingBuffer) GetAll() []*ParameterValue {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]*ParameterValue, len(rb.values))
	copy(out, rb.values)
	return out
}

// Count returns the number of buffered values.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.values)
}

// Capacity returns the maximum number of values the buffer holds.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// EvictionCount returns how many values have been evicted so far.
func (rb *RingBuffer) EvictionCount() int64 {
	return rb.evictionCount.Load()
}

// Remove removes a specific value. Returns true if it was present.
func (rb *RingBuffer) Remove(value *ParameterValue) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for i, v := range rb.values {
		if v == value {
			rb.values = append(rb.values[:i], rb.values[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops all values and returns how many were dropped.
func (rb *RingBuffer) Clear() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(rb.values)
	rb.values = rb.values[:0]
	return n
}

// RemoveExpired drops all expired values and returns how many were dropped.
func (rb *RingBuffer) RemoveExpired() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	kept := rb.values[:0]
	removed := 0
	for _, v := range rb.values {
		if v.IsExpired() {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	rb.values = kept
	return removed
}

// IsFull reports whether the buffer is at capacity.
func (rb *RingBuffer) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.values) >= rb.capacity
}

// IsEmpty reports whether the buffer holds no values.
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.values) == 0
}
