package feed

import "sync"

// entry is one broadcast envelope.
type entry struct {
	Seq  int64
	Data []byte
}

// Backlog is a fixed-size circular buffer of the newest envelopes of one
// channel. Safe for concurrent use.
type Backlog struct {
	mu   sync.RWMutex
	buf  []entry
	pos  int // next write position
	full bool
}

// NewBacklog creates a backlog holding capacity envelopes (500 if <= 0).
func NewBacklog(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = defaultBacklog
	}
	return &Backlog{buf: make([]entry, capacity)}
}

// Push stores a copy of data, overwriting the oldest entry when full.
func (b *Backlog) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf[b.pos] = entry{Seq: seq, Data: cp}
	b.pos = (b.pos + 1) % len(b.buf)
	if b.pos == 0 {
		b.full = true
	}
}

// Range returns the entries with seq in [from, to], oldest first.
func (b *Backlog) Range(from, to int64) []entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []entry
	n := b.len()
	for i := 0; i < n; i++ {
		e := b.buf[b.index(i)]
		if e.Seq >= from && e.Seq <= to {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of stored entries.
func (b *Backlog) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.len()
}

func (b *Backlog) len() int {
	if b.full {
		return len(b.buf)
	}
	return b.pos
}

// index maps a logical position (0 = oldest) to a slot.
func (b *Backlog) index(i int) int {
	if b.full {
		return (b.pos + i) % len(b.buf)
	}
	return i
}
