package idgen

import (
	"errors"
	"sync"
	"time"
)

// File IDs are 64-bit snowflakes:
//   1 sign bit (unused) | 41 bits milliseconds since Epoch | 10 bits node | 12 bits sequence
// which gives 1024 nodes and 4096 IDs per node per millisecond.

const (
	nodeBits     = 10
	sequenceBits = 12

	maxNodeID   = -1 ^ (-1 << nodeBits)
	maxSequence = -1 ^ (-1 << sequenceBits)

	nodeShift      = sequenceBits
	timestampShift = sequenceBits + nodeBits

	// Epoch is 2024-01-01 00:00:00 UTC in milliseconds.
	Epoch = 1704067200000
)

var (
	ErrNodeIDTooLarge = errors.New("node ID too large")
	ErrClockMovedBack = errors.New("clock moved backwards")
)

// Clock abstracts the time source, in milliseconds.
type Clock interface {
	Now() int64
}

// SystemClock reads the local system time.
type SystemClock struct{}

func (s *SystemClock) Now() int64 {
	return time.Now().UnixMilli()
}

// Snowflake allocates unique file IDs.
type Snowflake struct {
	mu       sync.Mutex
	clock    Clock
	nodeID   int64
	lastTime int64
	sequence int64
}

// New creates a generator for the given node. A nil clock falls back to
// the system clock.
func New(nodeID int64, clock Clock) (*Snowflake, error) {
	if nodeID < 0 || nodeID > int64(maxNodeID) {
		return nil, ErrNodeIDTooLarge
	}
	if clock == nil {
		clock = &SystemClock{}
	}
	return &Snowflake{clock: clock, nodeID: nodeID, lastTime: -1}, nil
}

// Next returns the next ID, spinning into the following millisecond when
// the per-millisecond sequence is exhausted.
func (s *Snowflake) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if now < s.lastTime {
		return 0, ErrClockMovedBack
	}

	if now == s.lastTime {
		s.sequence = (s.sequence + 1) & int64(maxSequence)
		if s.sequence == 0 {
			for now <= s.lastTime {
				now = s.clock.Now()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastTime = now

	return ((now - Epoch) << timestampShift) | (s.nodeID << nodeShift) | s.sequence, nil
}
