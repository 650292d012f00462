package agent

// History is a bounded FIFO of recent positions.
// Once full, pushing a new position evicts the oldest.
type History struct {
	buf   []float64
	start int
	n     int
}

// NewHistory creates a history holding at most capacity positions (minimum 1).
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]float64, capacity)}
}

// Push appends a position, evicting the oldest when full.
func (h *History) Push(x float64) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = x
		h.n++
		return
	}
	h.buf[h.start] = x
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored positions.
func (h *History) Len() int { return h.n }

// Cap returns the history horizon.
func (h *History) Cap() int { return len(h.buf) }

// At returns the i-th stored position, oldest first.
func (h *History) At(i int) float64 {
	return h.buf[(h.start+i)%len(h.buf)]
}

// Back returns the position k steps before the newest (Back(0) is the newest).
// k is clamped to the oldest stored entry. ok is false when the history is empty.
func (h *History) Back(k int) (x float64, ok bool) {
	if h.n == 0 {
		return 0, false
	}
	if k > h.n-1 {
		k = h.n - 1
	}
	if k < 0 {
		k = 0
	}
	return h.At(h.n - 1 - k), true
}

// Values returns a copy of the stored positions, oldest first.
func (h *History) Values() []float64 {
	out := make([]float64, h.n)
	for i := range out {
		out[i] = h.At(i)
	}
	return out
}

// Clear drops all positions.
func (h *History) Clear() {
	h.start = 0
	h.n = 0
}
