package pool

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// ShardedParameterPool spreads semantic types across multiple independently
// locked shards to keep lock contention low when many workers harvest and
// consume values concurrently. Each semantic type maps to one RingBuffer
// inside its shard.
type ShardedParameterPool struct {
	shards    []*poolShard
	shardMask uint64

	config  PoolConfig
	startAt time.Time

	evictionCount atomic.Int64

	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	closed        atomic.Bool
}

type poolShard struct {
	mu      sync.RWMutex
	buffers map[SemanticType]*RingBuffer

	hitCount    atomic.Int64
	missCount   atomic.Int64
	addCount    atomic.Int64
	expireCount atomic.Int64
}

// NewShardedParameterPool creates a pool with the configured shard count,
// rounded up to the next power of two so shard selection is a mask.
func NewShardedParameterPool(config PoolConfig) *ShardedParameterPool {
	count := config.ShardCount
	if count <= 0 {
		count = 16
	}
	count = nextPowerOfTwo(count)

	shards := make([]*poolShard, count)
	for i := range shards {
		shards[i] = &poolShard{buffers: make(map[SemanticType]*RingBuffer)}
	}

	p := &ShardedParameterPool{
		shards:      shards,
		shardMask:   uint64(count - 1),
		config:      config,
		startAt:     time.Now(),
		cleanupDone: make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		p.cleanupTicker = time.NewTicker(config.CleanupInterval)
		go p.cleanupLoop()
	}
	return p
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func (p *ShardedParameterPool) shardFor(semanticType SemanticType) *poolShard {
	h := fnv.New64a()
	h.Write([]byte(semanticType))
	return p.shards[h.Sum64()&p.shardMask]
}

// bufferFor returns the shard's buffer for the type, creating it on first use.
// Shard write lock must be held.
func (p *ShardedParameterPool) bufferFor(s *poolShard, semanticType SemanticType) *RingBuffer {
	rb, ok := s.buffers[semanticType]
	if !ok {
		capacity := p.config.MaxValuesPerType
		if capacity <= 0 {
			capacity = defaultBufferCapacity
		}
		rb = NewRingBuffer(capacity, p.config.EvictionPolicy)
		s.buffers[semanticType] = rb
	}
	return rb
}

// Add stores a value under its semantic type.
func (p *ShardedParameterPool) Add(ctx context.Context, value *ParameterValue) (int, error) {
	if p.closed.Load() {
		return 0, ErrPoolClosed
	}

	s := p.shardFor(value.SemanticType)
	s.mu.Lock()
	rb := p.bufferFor(s, value.SemanticType)
	evicted := rb.Add(value)
	s.addCount.Add(1)
	s.mu.Unlock()

	if evicted > 0 {
		p.evictionCount.Add(int64(evicted))
	}
	return evicted, nil
}

// lookup fetches the buffer for a type if one exists.
func (p *ShardedParameterPool) lookup(semanticType SemanticType) (*poolShard, *RingBuffer, bool) {
	s := p.shardFor(semanticType)
	s.mu.RLock()
	rb, ok := s.buffers[semanticType]
	s.mu.RUnlock()
	return s, rb, ok
}

// Get retrieves the oldest value for the given semantic type.
func (p *ShardedParameterPool) Get(ctx context.Context, semanticType SemanticType) (*ParameterValue, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	s, rb, ok := p.lookup(semanticType)
	if !ok {
		s.missCount.Add(1)
		return nil, nil
	}
	v := rb.Get()
	if v == nil || v.IsExpired() {
		s.missCount.Add(1)
		return nil, nil
	}
	s.hitCount.Add(1)
	return v, nil
}

// GetRandom retrieves a random value for the given semantic type.
func (p *ShardedParameterPool) GetRandom(ctx context.Context, semanticType SemanticType) (*ParameterValue, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	s, rb, ok := p.lookup(semanticType)
	if !ok {
		s.missCount.Add(1)
		return nil, nil
	}
	v := rb.GetRandom()
	if v == nil || v.IsExpired() {
		s.missCount.Add(1)
		return nil, nil
	}
	s.hitCount.Add(1)
	return v, nil
}

// GetAll returns all live values for the given semantic type.
func (p *ShardedParameterPool) GetAll(ctx context.Context, semanticType SemanticType) ([]*ParameterValue, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	_, rb, ok := p.lookup(semanticType)
	if !ok {
		return nil, nil
	}

	all := rb.GetAll()
	live := make([]*ParameterValue, 0, len(all))
	for _, v := range all {
		if !v.IsExpired() {
			live = append(live, v)
		}
	}
	return live, nil
}

// Count returns the number of values stored for the given semantic type.
func (p *ShardedParameterPool) Count(ctx context.Context, semanticType SemanticType) (int, error) {
	if p.closed.Load() {
		return 0, ErrPoolClosed
	}

	_, rb, ok := p.lookup(semanticType)
	if !ok {
		return 0, nil
	}
	return rb.Count(), nil
}

// Remove removes a specific value. Returns true if it was present.
func (p *ShardedParameterPool) Remove(ctx context.Context, value *ParameterValue) (bool, error) {
	if p.closed.Load() {
		return false, ErrPoolClosed
	}

	s := p.shardFor(value.SemanticType)
	s.mu.Lock()
	defer s.mu.Unlock()

	rb, ok := s.buffers[value.SemanticType]
	if !ok {
		return false, nil
	}
	return rb.Remove(value), nil
}

// Clear drops all values for the given semantic type.
func (p *ShardedParameterPool) Clear(ctx context.Context, semanticType SemanticType) (int, error) {
	if p.closed.Load() {
		return 0, ErrPoolClosed
	}

	s := p.shardFor(semanticType)
	s.mu.Lock()
	defer s.mu.Unlock()

	rb, ok := s.buffers[semanticType]
	if !ok {
		return 0, nil
	}
	cleared := rb.Clear()
	delete(s.buffers, semanticType)
	return cleared, nil
}

// ClearAll drops every value in every shard.
func (p *ShardedParameterPool) ClearAll(ctx context.Context) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	for _, s := range p.shards {
		s.mu.Lock()
		for st, rb := range s.buffers {
			rb.Clear()
			delete(s.buffers, st)
		}
		s.mu.Unlock()
	}
	return nil
}

// Cleanup drops expired values across all shards.
func (p *ShardedParameterPool) Cleanup(ctx context.Context) (int, error) {
	if p.closed.Load() {
		return 0, ErrPoolClosed
	}

	total := 0
	for _, s := range p.shards {
		s.mu.Lock()
		for _, rb := range s.buffers {
			n := rb.RemoveExpired()
			total += n
			s.expireCount.Add(int64(n))
		}
		s.mu.Unlock()
	}
	return total, nil
}

func (p *ShardedParameterPool) cleanupLoop() {
	for {
		select {
		case <-p.cleanupTicker.C:
			_, _ = p.Cleanup(context.Background())
		case <-p.cleanupDone:
			return
		}
	}
}

// Stats aggregates counters across all shards.
func (p *ShardedParameterPool) Stats(ctx context.Context) (Stats, error) {
	if p.closed.Load() {
		return Stats{}, ErrPoolClosed
	}

	stats := Stats{
		ValuesByType:  make(map[SemanticType]int64),
		EvictionCount: p.evictionCount.Load(),
		Uptime:        time.Since(p.startAt),
	}
	for _, s := range p.shards {
		s.mu.RLock()
		stats.HitCount += s.hitCount.Load()
		stats.MissCount += s.missCount.Load()
		stats.AddCount += s.addCount.Load()
		stats.ExpiredCount += s.expireCount.Load()
		for st, rb := range s.buffers {
			n := int64(rb.Count())
			stats.TotalValues += n
			stats.ValuesByType[st] += n
		}
		s.mu.RUnlock()
	}
	return stats, nil
}

// Types lists all semantic types that currently hold values.
func (p *ShardedParameterPool) Types(ctx context.Context) ([]SemanticType, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	var types []SemanticType
	seen := make(map[SemanticType]bool)
	for _, s := range p.shards {
		s.mu.RLock()
		for st, rb := range s.buffers {
			if rb.Count() > 0 && !seen[st] {
				types = append(types, st)
				seen[st] = true
			}
		}
		s.mu.RUnlock()
	}
	return types, nil
}

// Close stops background cleanup. Further operations return ErrPoolClosed.
func (p *ShardedParameterPool) Close() error {
	if p.closed.Swap(true) {
		return ErrPoolClosed
	}
	if p.cleanupTicker != nil {
		p.cleanupTicker.Stop()
		close(p.cleanupDone)
	}
	return nil
}

// ShardCount returns the number of shards.
func (p *ShardedParameterPool) ShardCount() int {
	return len(p.shards)
}

// EvictionCount returns the total number of values evicted so far.
func (p *ShardedParameterPool) EvictionCount() int64 {
	return p.evictionCount.Load()
}
