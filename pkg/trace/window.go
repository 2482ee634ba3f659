package trace

// Window is a fixed-length ring of the most recent current readings.
type Window struct {
	buf  []float32
	head int // index of the oldest value
	n    int
}

// NewWindow creates a window holding up to size readings.
func NewWindow(size int) *Window {
	if size < 2 {
		size = 2
	}
	return &Window{buf: make([]float32, size)}
}

// Push adds a reading, evicting the oldest when full.
func (w *Window) Push(v float32) {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

// Reset empties the window.
func (w *Window) Reset() {
	w.head = 0
	w.n = 0
}

// Len returns the number of readings held.
func (w *Window) Len() int { return w.n }

// First returns the oldest reading.
func (w *Window) First() float32 {
	if w.n == 0 {
		return 0
	}
	return w.buf[w.head]
}

// Last returns the newest reading.
func (w *Window) Last() float32 {
	if w.n == 0 {
		return 0
	}
	return w.buf[(w.head+w.n-1)%len(w.buf)]
}

// Falling reports whether the newest reading is below the oldest.
func (w *Window) Falling() bool {
	return w.Last()-w.First() < 0
}
