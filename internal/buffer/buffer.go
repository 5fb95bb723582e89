// Package buffer implements the ring-buffer experience memory: a fixed
// capacity circular store in which every insert into a full buffer evicts
// the oldest record.
package buffer

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/YARL-project/YARL/internal/agent"
	"github.com/YARL-project/YARL/internal/spec"
)

const (
	PolicyFIFO      = "fifo"
	PolicyFreshness = "freshness"
)

type Record struct {
	Transition Transition `json:"transition"`
	WorkerID   string     `json:"worker_id,omitempty"`
	EnvID      int        `json:"env_id"`
	InsertedAt time.Time  `json:"inserted_at"`
}

type RingBuffer struct {
	mu       sync.Mutex
	records  []Record
	head     int // index of the oldest record
	size     int
	capacity int
	policy   string // "fifo" or "freshness"

	inserted  uint64
	evictions uint64
	rng       *rand.Rand
}

var (
	ErrBufferEmpty   = errors.New("buffer is empty")
	ErrInvalidPolicy = errors.New("policy must be 'fifo' or 'freshness'")
)

func NewRingBuffer(capacity int, policy string, seed int64) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be greater than zero", spec.ErrInvalidValue)
	}
	if policy != PolicyFIFO && policy != PolicyFreshness {
		return nil, ErrInvalidPolicy
	}
	return &RingBuffer{
		records:  make([]Record, capacity),
		capacity: capacity,
		policy:   policy,
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// FromSpec builds the memory described by an agent's memory_spec.
func FromSpec(ms agent.MemorySpec, policy string, seed int64) (*RingBuffer, error) {
	switch strings.ReplaceAll(strings.ToLower(ms.Type), "_", "-") {
	case "ring-buffer", "ringbuffer":
	default:
		return nil, fmt.Errorf("%w: memory type %q", spec.ErrUnknownType, ms.Type)
	}
	if err := ms.Capacity.Err(); err != nil {
		return nil, fmt.Errorf("%w: capacity: %v", spec.ErrInvalidValue, err)
	}
	return NewRingBuffer(ms.Capacity.N, policy, seed)
}

// Insert stores r and reports whether the oldest record had to be evicted.
func (rb *RingBuffer) Insert(r Record) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.insertLocked(r)
}

// InsertBatch stores records in order and returns how many were evicted.
func (rb *RingBuffer) InsertBatch(rs []Record) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	evicted := 0
	for _, r := range rs {
		if rb.insertLocked(r) {
			evicted++
		}
	}
	return evicted
}

func (rb *RingBuffer) insertLocked(r Record) bool {
	rb.inserted++
	if rb.size < rb.capacity {
		rb.records[(rb.head+rb.size)%rb.capacity] = r
		rb.size++
		return false
	}
	rb.records[rb.head] = r
	rb.head = (rb.head + 1) % rb.capacity
	rb.evictions++
	return true
}

// Dequeue removes one record: the oldest under fifo, the newest under freshness.
func (rb *RingBuffer) Dequeue() (Record, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return Record{}, ErrBufferEmpty
	}

	switch rb.policy {
	case PolicyFIFO:
		r := rb.records[rb.head]
		rb.records[rb.head] = Record{}
		rb.head = (rb.head + 1) % rb.capacity
		rb.size--
		return r, nil
	case PolicyFreshness:
		idx := (rb.head + rb.size - 1) % rb.capacity
		r := rb.records[idx]
		rb.records[idx] = Record{}
		rb.size--
		return r, nil
	default:
		return Record{}, ErrInvalidPolicy
	}
}

// Sample draws n records uniformly with replacement without removing them.
// n may not exceed the buffer capacity.
func (rb *RingBuffer) Sample(n int) ([]Record, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: sample size must be > 0", spec.ErrInvalidValue)
	}
	if n > rb.capacity {
		return nil, fmt.Errorf("%w: sample size %d exceeds capacity %d", spec.ErrInvalidValue, n, rb.capacity)
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return nil, ErrBufferEmpty
	}
	out := make([]Record, n)
	for i := range out {
		out[i] = rb.records[(rb.head+rb.rng.Intn(rb.size))%rb.capacity]
	}
	return out, nil
}

// Snapshot copies the stored records, oldest first.
func (rb *RingBuffer) Snapshot() []Record {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]Record, rb.size)
	for i := range out {
		out[i] = rb.records[(rb.head+i)%rb.capacity]
	}
	return out
}

func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

func (rb *RingBuffer) Policy() string {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.policy
}

func (rb *RingBuffer) SetPolicy(policy string) error {
	if policy != PolicyFIFO && policy != PolicyFreshness {
		return ErrInvalidPolicy
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.policy = policy
	return nil
}

func (rb *RingBuffer) Size() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.size
}

func (rb *RingBuffer) Stats() Stats {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return Stats{
		Size:      rb.size,
		Capacity:  rb.capacity,
		Policy:    rb.policy,
		Inserted:  rb.inserted,
		Evictions: rb.evictions,
	}
}
