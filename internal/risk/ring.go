package risk

// ring is a fixed-capacity ring buffer of periodic PnL/equity snapshots.
// Bounding the history is what lets a sustained drawdown age out of the
// window so tiers can relax without a full return to the all-time high.
type ring struct {
	buf   []float64
	next  int
	count int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]float64, capacity)}
}

func (r *ring) Push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Max returns the largest value in the window, or false when empty.
func (r *ring) Max() (float64, bool) {
	if r.count == 0 {
		return 0, false
	}
	max := r.buf[0]
	for i := 1; i < r.count; i++ {
		if r.buf[i] > max {
			max = r.buf[i]
		}
	}
	return max, true
}

// Values returns the window contents in insertion order.
func (r *ring) Values() []float64 {
	out := make([]float64, 0, r.count)
	if r.count < len(r.buf) {
		out = append(out, r.buf[:r.count]...)
		return out
	}
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// Fill replaces the window contents, keeping only the most recent values
// that fit the capacity.
func (r *ring) Fill(values []float64) {
	r.next = 0
	r.count = 0
	start := 0
	if len(values) > len(r.buf) {
		start = len(values) - len(r.buf)
	}
	for _, v := range values[start:] {
		r.Push(v)
	}
}
