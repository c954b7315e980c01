package mqtt

// outbound is a serialized message on its way to the broker.
type outbound struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ring keeps the newest values up to a fixed size, oldest first. The
// publisher holds system events in one while the broker is away. Callers
// synchronize.
type ring[T any] struct {
	items   []T
	next    int
	n       int
	dropped bool // an eviction happened since the last take
}

func newRing[T any](size int) *ring[T] {
	return &ring[T]{items: make([]T, size)}
}

// add stores v, evicting the oldest value when full. It reports true for the
// first eviction since the last take.
func (r *ring[T]) add(v T) bool {
	full := r.n == len(r.items)
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
	if !full {
		r.n++
		return false
	}
	first := !r.dropped
	r.dropped = true
	return first
}

// take empties the ring and returns what it held, oldest first.
func (r *ring[T]) take() []T {
	if r.n == 0 {
		return nil
	}
	out := make([]T, 0, r.n)
	for i := r.next - r.n; i < r.next; i++ {
		out = append(out, r.items[(i+len(r.items))%len(r.items)])
	}
	r.next, r.n, r.dropped = 0, 0, false
	return out
}

func (r *ring[T]) size() int { return r.n }

func (r *ring[T]) capacity() int { return len(r.items) }
