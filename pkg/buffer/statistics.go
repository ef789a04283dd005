package buffer

import "sync/atomic"

// Statistics counts buffer activity. It is always collected.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	overflows atomic.Int64
	drops     atomic.Int64

	maxSize atomic.Int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) Write()        { s.writes.Add(1) }
func (s *Statistics) Read(n int64)  { s.reads.Add(n) }
func (s *Statistics) Overflow()     { s.overflows.Add(1) }
func (s *Statistics) Drop()         { s.drops.Add(1) }
func (s *Statistics) Writes() int64 { return s.writes.Load() }
func (s *Statistics) Reads() int64  { return s.reads.Load() }

// Overflows counts writes that found the buffer full, whatever the policy did.
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// Drops counts items discarded by DropOldest or DropNewest.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// MaxSize is the high-water mark.
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// UpdateSize raises the high-water mark to size.
func (s *Statistics) UpdateSize(size int64) {
	for {
		prev := s.maxSize.Load()
		if size <= prev || s.maxSize.CompareAndSwap(prev, size) {
			return
		}
	}
}

// DropRate is the fraction of writes whose item, or an older one, was dropped.
func (s *Statistics) DropRate() float64 {
	writes := s.Writes()
	if writes == 0 {
		return 0
	}
	return float64(s.Drops()) / float64(writes)
}
