// Package samples buffers timestamped signal values per signal and answers
// time-range queries for rendering.
package samples

import (
	"math"
	"sort"

	"BusScope/internal/domain/models"
)

const (
	DefaultCapacity = 20000
	DefaultPreroll  = 0.25
)

// Option configures a Store.
type Option func(*Store)

// WithCapacity sets the hard per-signal sample cap.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithPreroll sets how far before a query start samples are still returned, in seconds.
func WithPreroll(seconds float64) Option {
	return func(s *Store) {
		if seconds >= 0 && !math.IsInf(seconds, 0) && !math.IsNaN(seconds) {
			s.preroll = seconds
		}
	}
}

// Store holds one ring buffer per signal id. It is not safe for concurrent use;
// the owning session serializes access.
type Store struct {
	capacity int
	preroll  float64
	buffers  map[string]*ring
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		capacity: DefaultCapacity,
		preroll:  DefaultPreroll,
		buffers:  make(map[string]*ring),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preroll returns the configured preroll in seconds.
func (s *Store) Preroll() float64 { return s.preroll }

// Append adds a sample to the buffer of id. Non-finite samples are rejected.
// It reports whether the sample was stored and whether the cap forced out the oldest one.
func (s *Store) Append(id string, t, v float64) (stored, capped bool) {
	if !finite(t) || !finite(v) {
		return false, false
	}
	r, ok := s.buffers[id]
	if !ok {
		r = newRing(s.capacity)
		s.buffers[id] = r
	}
	return true, r.push(models.Sample{T: t, V: v})
}

// Query returns the samples of id with timestamp in [start-preroll, end], in arrival order.
func (s *Store) Query(id string, start, end float64) []models.Sample {
	r, ok := s.buffers[id]
	if !ok {
		return nil
	}
	lo := start - s.preroll
	out := make([]models.Sample, 0, 64)
	for i := 0; i < r.len(); i++ {
		smp := r.at(i)
		if smp.T >= lo && smp.T <= end {
			out = append(out, smp)
		}
	}
	return out
}

// Snapshot returns the samples needed to draw id over [start, end]: the Query
// result plus the latest earlier sample when nothing is known at or before start,
// so a value held from before the window still renders. The result is ordered by
// timestamp regardless of arrival order.
func (s *Store) Snapshot(id string, start, end float64) []models.Sample {
	r, ok := s.buffers[id]
	if !ok {
		return nil
	}
	lo := start - s.preroll
	out := make([]models.Sample, 0, 64)
	var lead models.Sample
	hasLead, covered := false, false
	for i := 0; i < r.len(); i++ {
		smp := r.at(i)
		switch {
		case smp.T < lo:
			if !hasLead || smp.T >= lead.T {
				lead, hasLead = smp, true
			}
		case smp.T <= end:
			out = append(out, smp)
			if smp.T <= start {
				covered = true
			}
		}
	}
	if hasLead && !covered {
		out = append(out, lead)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].T < out[j].T })
	return out
}

// Latest returns the most recently appended sample of id.
func (s *Store) Latest(id string) (models.Sample, bool) {
	r, ok := s.buffers[id]
	if !ok {
		return models.Sample{}, false
	}
	return r.back()
}

// Evict drops every sample older than cutoff and returns the number removed.
func (s *Store) Evict(cutoff float64) int {
	removed := 0
	for _, r := range s.buffers {
		removed += r.evictBefore(cutoff)
	}
	return removed
}

// Drop forgets the buffer of id.
func (s *Store) Drop(id string) {
	delete(s.buffers, id)
}

// ClearAll empties every buffer.
func (s *Store) ClearAll() {
	for _, r := range s.buffers {
		r.reset()
	}
}

// Len returns the number of buffered samples for id.
func (s *Store) Len(id string) int {
	if r, ok := s.buffers[id]; ok {
		return r.len()
	}
	return 0
}

// Total returns the number of buffered samples across all signals.
func (s *Store) Total() int {
	n := 0
	for _, r := range s.buffers {
		n += r.len()
	}
	return n
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
