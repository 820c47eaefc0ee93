package economy

// Snapshot is one valve cycle: normalized residential population, commercial
// and industrial population, and the valves that cycle produced.
type Snapshot struct {
	Residential float64 `json:"residential"`
	Commercial  float64 `json:"commercial"`
	Industrial  float64 `json:"industrial"`
	Valves      Valves  `json:"valves"`
}

// History is a fixed-size rolling window of snapshots.
type History struct {
	buf   []Snapshot
	head  int // next write position
	count int
}

// NewHistory creates a window holding at most size snapshots.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{buf: make([]Snapshot, size)}
}

// Push records s, evicting the oldest entry when full.
func (h *History) Push(s Snapshot) {
	h.buf[h.head] = s
	h.head = (h.head + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

// Previous returns the newest snapshot. The zero snapshot is returned with
// false before the first Push.
func (h *History) Previous() (Snapshot, bool) {
	if h.count == 0 {
		return Snapshot{}, false
	}
	return h.buf[(h.head-1+len(h.buf))%len(h.buf)], true
}

// Len returns the number of stored snapshots.
func (h *History) Len() int {
	return h.count
}

// Cap returns the window size.
func (h *History) Cap() int {
	return len(h.buf)
}

// Entries returns the stored snapshots, newest first.
func (h *History) Entries() []Snapshot {
	out := make([]Snapshot, 0, h.count)
	for i := 1; i <= h.count; i++ {
		out = append(out, h.buf[(h.head-i+len(h.buf))%len(h.buf)])
	}
	return out
}
