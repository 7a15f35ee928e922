package buffer

import (
	"sync/atomic"
)

// Statistics tracks buffer activity. All methods are safe for concurrent use.
type Statistics struct {
	writes  atomic.Int64
	reads   atomic.Int64
	drops   atomic.Int64
	rejects atomic.Int64
	size    atomic.Int64
	maxSize atomic.Int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Write records an accepted write.
func (s *Statistics) Write() { s.writes.Add(1) }

// Read records a read.
func (s *Statistics) Read() { s.reads.Add(1) }

// Drop records an item removed by DropOldest.
func (s *Statistics) Drop() { s.drops.Add(1) }

// Reject records a write refused by Reject.
func (s *Statistics) Reject() { s.rejects.Add(1) }

// UpdateSize records the current size and tracks the high-water mark.
func (s *Statistics) UpdateSize(size int64) {
	s.size.Store(size)
	for {
		old := s.maxSize.Load()
		if size <= old || s.maxSize.CompareAndSwap(old, size) {
			return
		}
	}
}

// Writes returns the number of accepted writes.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the number of reads.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Drops returns the number of items dropped by DropOldest.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// Rejects returns the number of writes refused by Reject.
func (s *Statistics) Rejects() int64 { return s.rejects.Load() }

// CurrentSize returns the last recorded size.
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// MaxSize returns the largest size observed.
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// Utilization returns the current fill ratio for the given capacity.
func (s *Statistics) Utilization(capacity int64) float64 {
	if capacity == 0 {
		return 0.0
	}
	return float64(s.CurrentSize()) / float64(capacity)
}
