package pinger

import (
	"slices"
	"sync"
	"time"
)

const (
	// SuccessLatencyBufferSize is the number of successful ping latencies to track
	SuccessLatencyBufferSize = 100

	// ErrorLatencyBufferSize is the number of error ping latencies to track
	ErrorLatencyBufferSize = 10
)

// LatencyBuffer is a fixed size ring of the most recent durations.
type LatencyBuffer struct {
	values []time.Duration
	next   int
	full   bool
}

func NewLatencyBuffer(capacity int) *LatencyBuffer {
	return &LatencyBuffer{values: make([]time.Duration, capacity)}
}

// Add stores d, evicting the oldest value once the buffer is full.
func (b *LatencyBuffer) Add(d time.Duration) {
	if len(b.values) == 0 {
		return
	}

	b.values[b.next] = d
	b.next = (b.next + 1) % len(b.values)

	if b.next == 0 {
		b.full = true
	}
}

// GetAll returns the stored durations oldest first.
func (b *LatencyBuffer) GetAll() []time.Duration {
	if !b.full {
		return slices.Clone(b.values[:b.next])
	}

	return slices.Concat(b.values[b.next:], b.values[:b.next])
}

func (b *LatencyBuffer) Len() int {
	if b.full {
		return len(b.values)
	}

	return b.next
}

// LatencyMetrics summarizes a latency window.
type LatencyMetrics struct {
	Count   int           `json:"count"`
	Median  time.Duration `json:"median"`
	Average time.Duration `json:"average"`
	P90     time.Duration `json:"p90"`
	Max     time.Duration `json:"max"`
}

// Statistics is a point in time view of one pinger.
type Statistics struct {
	IsReady          bool           `json:"ready"`
	IsHealthy        bool           `json:"healthy"`
	LastRun          time.Time      `json:"lastRun"`
	LastError        string         `json:"lastError,omitempty"`
	LastErrorAt      *time.Time     `json:"lastErrorAt,omitempty"`
	SuccessLatencies LatencyMetrics `json:"successLatencies"`
	ErrorLatencies   LatencyMetrics `json:"errorLatencies"`
}

type stats struct {
	mu          sync.Mutex
	lastRun     time.Time
	lastErr     error
	lastErrorAt *time.Time
	success     *LatencyBuffer
	failures    *LatencyBuffer
}

func newStats() *stats {
	return &stats{
		success:  NewLatencyBuffer(SuccessLatencyBufferSize),
		failures: NewLatencyBuffer(ErrorLatencyBufferSize),
	}
}

func (s *stats) record(at time.Time, latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRun = at
	s.lastErr = err

	if err != nil {
		s.lastErrorAt = &at
		s.failures.Add(latency)

		return
	}

	s.success.Add(latency)
}

func (i *pingerInfo) statistics() *Statistics {
	s := i.stats

	s.mu.Lock()
	defer s.mu.Unlock()

	// a pinger that has not run yet counts as passing
	failing := s.lastErr != nil

	out := &Statistics{
		IsReady:          !i.readyCritical || !failing,
		IsHealthy:        !i.healthCritical || !failing,
		LastRun:          s.lastRun,
		LastErrorAt:      s.lastErrorAt,
		SuccessLatencies: Summarize(s.success.GetAll()),
		ErrorLatencies:   Summarize(s.failures.GetAll()),
	}

	if failing {
		out.LastError = s.lastErr.Error()
	}

	return out
}

// Summarize computes latency metrics over an unordered window.
func Summarize(latencies []time.Duration) LatencyMetrics {
	if len(latencies) == 0 {
		return LatencyMetrics{}
	}

	sorted := slices.Sorted(slices.Values(latencies))

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	n := len(sorted)

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return LatencyMetrics{
		Count:   n,
		Median:  median,
		Average: sum / time.Duration(n),
		P90:     sorted[(n-1)*90/100],
		Max:     sorted[n-1],
	}
}
