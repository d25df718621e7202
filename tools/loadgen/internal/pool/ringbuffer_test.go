package pool

import (
	"sync"
	"testing"
	"time"
)

// fillBuffer adds n distinct unit-ID values and returns them in add order.
func fillBuffer(rb *RingBuffer, n int) []*ParameterValue {
	values := make([]*ParameterValue, n)
	for i := range n {
		values[i] = NewParameterValue(i, SemanticTypeUnitID, 0)
		rb.Add(values[i])
	}
	return values
}

func TestRingBuffer_AddAndGet(t *testing.T) {
	rb := NewRingBuffer(5, EvictionFIFO)

	if !rb.IsEmpty() {
		t.Error("new buffer should be empty")
	}
	if rb.IsFull() {
		t.Error("new buffer should not be full")
	}

	v := NewParameterValue("unit-1", SemanticTypeUnitID, 0)
	if evicted := rb.Add(v); evicted != 0 {
		t.Errorf("Add evicted %d values, want 0", evicted)
	}
	if rb.Count() != 1 {
		t.Errorf("Count = %d, want 1", rb.Count())
	}
	if got := rb.Get(); got != v {
		t.Errorf("Get = %v, want the added value", got)
	}
}

func TestRingBuffer_Eviction(t *testing.T) {
	policies := []EvictionPolicy{EvictionFIFO, EvictionLRU, EvictionRandom}

	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			rb := NewRingBuffer(3, policy)
			fillBuffer(rb, 3)

			if policy == EvictionLRU {
				// Touch the oldest value so LRU has a distinct victim.
				time.Sleep(time.Millisecond)
				rb.Get()
			}

			evicted := rb.Add(NewParameterValue("overflow", SemanticTypeUnitID, 0))

			if evicted != 1 {
				t.Errorf("Add evicted %d values, want 1", evicted)
			}
			if rb.Count() != 3 {
				t.Errorf("Count = %d, want 3", rb.Count())
			}
			if rb.EvictionCount() != 1 {
				t.Errorf("EvictionCount = %d, want 1", rb.EvictionCount())
			}
		})
	}
}

func TestRingBuffer_FIFOEvictsOldest(t *testing.T) {
	rb := NewRingBuffer(3, EvictionFIFO)
	values := fillBuffer(rb, 3)

	rb.Add(NewParameterValue("overflow", SemanticTypeUnitID, 0))

	for _, v := range rb.GetAll() {
		if v == values[0] {
			t.Error("oldest value should have been evicted")
		}
	}
}

func TestRingBuffer_GetRandom(t *testing.T) {
	rb := NewRingBuffer(10, EvictionFIFO)

	if rb.GetRandom() != nil {
		t.Error("GetRandom on empty buffer should return nil")
	}

	fillBuffer(rb, 5)

	got := rb.GetRandom()
	if got == nil {
		t.Fatal("GetRandom returned nil from a populated buffer")
	}

	initialCount := got.AccessCount()
	for range 10 {
		rb.GetRandom()
	}

	var totalAccess int64
	for _, v := range rb.GetAll() {
		totalAccess += v.AccessCount()
	}
	if totalAccess <= initialCount {
		t.Error("GetRandom should bump access counts")
	}
}

func TestRingBuffer_Remove(t *testing.T) {
	rb := NewRingBuffer(5, EvictionFIFO)
	values := fillBuffer(rb, 2)

	if !rb.Remove(values[0]) {
		t.Error("Remove = false for present value, want true")
	}
	if rb.Count() != 1 {
		t.Errorf("Count = %d, want 1", rb.Count())
	}
	if rb.Remove(values[0]) {
		t.Error("Remove = true for absent value, want false")
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(5, EvictionFIFO)
	fillBuffer(rb, 5)

	if cleared := rb.Clear(); cleared != 5 {
		t.Errorf("Clear = %d, want 5", cleared)
	}
	if !rb.IsEmpty() {
		t.Error("buffer should be empty after Clear")
	}
}

func TestRingBuffer_RemoveExpired(t *testing.T) {
	rb := NewRingBuffer(5, EvictionFIFO)
	rb.Add(NewParameterValue("short-1", SemanticTypeUnitID, time.Millisecond))
	rb.Add(NewParameterValue("long", SemanticTypeUnitID, time.Hour))
	rb.Add(NewParameterValue("short-2", SemanticTypeUnitID, time.Millisecond))

	time.Sleep(10 * time.Millisecond)

	if removed := rb.RemoveExpired(); removed != 2 {
		t.Errorf("RemoveExpired = %d, want 2", removed)
	}
	if rb.Count() != 1 {
		t.Errorf("Count = %d, want 1", rb.Count())
	}
}

func TestRingBuffer_Concurrency(t *testing.T) {
	rb := NewRingBuffer(100, EvictionFIFO)

	const goroutines = 10
	const operations = 100

	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range operations {
				rb.Add(NewParameterValue(id*1000+j, SemanticTypeUnitID, 0))
			}
		}(i)
	}
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range operations {
				rb.Get()
				rb.GetRandom()
				rb.Count()
			}
		}()
	}
	wg.Wait()

	if rb.Count() > rb.Capacity() {
		t.Errorf("Count (%d) exceeds capacity (%d)", rb.Count(), rb.Capacity())
	}
}

func TestNewRingBuffer_Capacity(t *testing.T) {
	tests := []struct {
		requested int
		effective int
	}{
		{10, 10},
		{0, 1000},
		{-5, 1000},
	}

	for _, tt := range tests {
		rb := NewRingBuffer(tt.requested, EvictionFIFO)
		if rb.Capacity() != tt.effective {
			t.Errorf("NewRingBuffer(%d).Capacity() = %d, want %d", tt.requested, rb.Capacity(), tt.effective)
		}
	}
}
