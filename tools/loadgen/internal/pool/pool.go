package pool

import (
	"context"
	"errors"
	"time"
)

// ErrPoolClosed is returned when an operation is attempted on a closed pool.
var ErrPoolClosed = errors.New("parameter pool is closed")

// EvictionPolicy selects which value is dropped when a buffer is full.
type EvictionPolicy int

const (
	// EvictionFIFO drops the oldest value first.
	EvictionFIFO EvictionPolicy = iota

	// EvictionLRU drops the least recently accessed value first.
	EvictionLRU

	// EvictionRandom drops a uniformly random value.
	EvictionRandom
)

func (e EvictionPolicy) String() string {
	switch e {
	case EvictionFIFO:
		return "FIFO"
	case EvictionLRU:
		return "LRU"
	case EvictionRandom:
		return "Random"
	default:
		return "Unknown"
	}
}

// ParseEvictionPolicy parses a policy name, defaulting to FIFO for
// unrecognized input.
func ParseEvictionPolicy(s string) EvictionPolicy {
	switch s {
	case "LRU", "lru":
		return EvictionLRU
	case "Random", "random", "RANDOM":
		return EvictionRandom
	default:
		return EvictionFIFO
	}
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	TotalValues  int64
	ValuesByType map[SemanticType]int64

	// Hit and miss counts cover Get and GetRandom lookups.
	HitCount  int64
	MissCount int64

	EvictionCount int64
	ExpiredCount  int64
	AddCount      int64

	Uptime time.Duration
}

// HitRate returns the hit rate as a percentage (0-100).
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total) * 100
}

// ParameterPool stores values keyed by semantic type so request generators
// can feed IDs harvested from earlier responses into later requests.
// All methods are safe for concurrent use.
type ParameterPool interface {
	// Add stores a value under its semantic type and reports how many
	// values were evicted to make room.
	Add(ctx context.Context, value *ParameterValue) (evicted int, err error)

	// Get returns a value of the given type, or nil when none is live.
	Get(ctx context.Context, semanticType SemanticType) (*ParameterValue, error)

	// GetRandom returns a uniformly random value of the given type, or
	// nil when none is live.
	GetRandom(ctx context.Context, semanticType SemanticType) (*ParameterValue, error)

	// GetAll returns every live value of the given type.
	GetAll(ctx context.Context, semanticType SemanticType) ([]*ParameterValue, error)

	// Count returns the number of values held for the given type.
	Count(ctx context.Context, semanticType SemanticType) (int, error)

	// Remove deletes one specific value, reporting whether it was found.
	Remove(ctx context.Context, value *ParameterValue) (bool, error)

	// Clear drops every value of the given type and returns how many
	// were removed.
	Clear(ctx context.Context, semanticType SemanticType) (int, error)

	// ClearAll empties the pool.
	ClearAll(ctx context.Context) error

	// Cleanup drops expired values and returns how many were removed.
	Cleanup(ctx context.Context) (int, error)

	// Stats returns a snapshot of pool activity.
	Stats(ctx context.Context) (Stats, error)

	// Types lists the semantic types currently holding values.
	Types(ctx context.Context) ([]SemanticType, error)

	// Close releases resources held by the pool.
	Close() error
}

// PoolConfig holds tuning options shared by pool implementations.
type PoolConfig struct {
	// DefaultTTL applies to values added without an explicit TTL;
	// zero means values never expire.
	DefaultTTL time.Duration

	// MaxValuesPerType caps each type's buffer; zero means unlimited.
	MaxValuesPerType int

	// EvictionPolicy picks the victim when a full buffer takes a new value.
	EvictionPolicy EvictionPolicy

	// CleanupInterval is the period of the background expiry sweep;
	// zero disables the sweep.
	CleanupInterval time.Duration

	// ShardCount is the number of shards for ShardedParameterPool
	// and must be a power of two.
	ShardCount int
}

// DefaultPoolConfig returns a PoolConfig with sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		DefaultTTL:       5 * time.Minute,
		MaxValuesPerType: 1000,
		EvictionPolicy:   EvictionFIFO,
		CleanupInterval:  1 * time.Minute,
		ShardCount:       16,
	}
}
