package samples

import "BusScope/internal/domain/models"

const minRingLen = 64

// ring is a bounded FIFO of samples in arrival order. It grows on demand up to
// capacity and then overwrites the oldest entry.
type ring struct {
	buf      []models.Sample
	head     int
	size     int
	capacity int
	// unordered is set once an arrival is older than the sample before it.
	unordered bool
}

func newRing(capacity int) *ring {
	return &ring{capacity: capacity}
}

func (r *ring) len() int { return r.size }

func (r *ring) at(i int) models.Sample {
	return r.buf[(r.head+i)%len(r.buf)]
}

func (r *ring) back() (models.Sample, bool) {
	if r.size == 0 {
		return models.Sample{}, false
	}
	return r.at(r.size - 1), true
}

func (r *ring) front() (models.Sample, bool) {
	if r.size == 0 {
		return models.Sample{}, false
	}
	return r.at(0), true
}

// push appends s and reports whether the oldest sample was overwritten.
func (r *ring) push(s models.Sample) bool {
	if last, ok := r.back(); ok && s.T < last.T {
		r.unordered = true
	}
	if r.size == len(r.buf) {
		if len(r.buf) < r.capacity {
			r.grow()
		} else {
			r.buf[r.head] = s
			r.head = (r.head + 1) % len(r.buf)
			return true
		}
	}
	r.buf[(r.head+r.size)%len(r.buf)] = s
	r.size++
	return false
}

func (r *ring) grow() {
	n := len(r.buf) * 2
	if n < minRingLen {
		n = minRingLen
	}
	if n > r.capacity {
		n = r.capacity
	}
	nb := make([]models.Sample, n)
	for i := 0; i < r.size; i++ {
		nb[i] = r.at(i)
	}
	r.buf = nb
	r.head = 0
}

func (r *ring) popFront() {
	if r.size == 0 {
		return
	}
	r.head = (r.head + 1) % len(r.buf)
	r.size--
}

// evictBefore drops samples with T < cutoff and returns how many were removed.
func (r *ring) evictBefore(cutoff float64) int {
	removed := 0
	for r.size > 0 {
		s, _ := r.front()
		if s.T >= cutoff {
			break
		}
		r.popFront()
		removed++
	}
	if !r.unordered || r.size == 0 {
		return removed
	}

	// Stragglers may sit behind newer samples; rewrite the buffer without them.
	kept := 0
	ordered := true
	var prev float64
	for i := 0; i < r.size; i++ {
		s := r.at(i)
		if s.T < cutoff {
			continue
		}
		if kept > 0 && s.T < prev {
			ordered = false
		}
		r.buf[(r.head+kept)%len(r.buf)] = s
		prev = s.T
		kept++
	}
	removed += r.size - kept
	r.size = kept
	r.unordered = !ordered
	return removed
}

func (r *ring) reset() {
	r.buf = nil
	r.head = 0
	r.size = 0
	r.unordered = false
}
