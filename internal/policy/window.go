package policy

// LinearInterpolator maps x to a value on the line through (X0, Y0) and
// (X1, Y1). Without Extrapolate, x is clamped to [X0, X1] first.
type LinearInterpolator struct {
	X0, X1      float64
	Y0, Y1      float64
	Extrapolate bool
}

// Value returns the interpolated value at x.
func (l LinearInterpolator) Value(x float64) float64 {
	if l.X1 == l.X0 {
		return l.Y0
	}
	if !l.Extrapolate {
		lo, hi := l.X0, l.X1
		if lo > hi {
			lo, hi = hi, lo
		}
		x = min(max(x, lo), hi)
	}
	return l.Y0 + (x-l.X0)*(l.Y1-l.Y0)/(l.X1-l.X0)
}

// GrowingFIFO keeps the most recent values up to a fixed capacity and exposes
// a window over the newest of them. The window size is set on every push, so
// it can grow as an episode goes on; it never exceeds the capacity.
type GrowingFIFO struct {
	buf   []float64
	next  int
	count int
	size  int
}

// NewGrowingFIFO returns an empty FIFO holding at most capacity values.
func NewGrowingFIFO(capacity int) *GrowingFIFO {
	if capacity < 1 {
		capacity = 1
	}
	return &GrowingFIFO{buf: make([]float64, capacity)}
}

// Push appends v and sets the window to the newest size values.
func (f *GrowingFIFO) Push(v float64, size int) {
	f.buf[f.next] = v
	f.next = (f.next + 1) % len(f.buf)
	if f.count < len(f.buf) {
		f.count++
	}
	f.size = min(max(size, 1), len(f.buf))
}

// Len returns the number of values in the window.
func (f *GrowingFIFO) Len() int {
	return min(f.size, f.count)
}

// Window returns the windowed values, oldest first.
func (f *GrowingFIFO) Window() []float64 {
	n := f.Len()
	out := make([]float64, n)
	start := f.next - n
	if start < 0 {
		start += len(f.buf)
	}
	for i := range n {
		out[i] = f.buf[(start+i)%len(f.buf)]
	}
	return out
}

// CountNonZero returns how many windowed values are nonzero.
func (f *GrowingFIFO) CountNonZero() int {
	n := 0
	for _, v := range f.Window() {
		if v != 0 {
			n++
		}
	}
	return n
}
