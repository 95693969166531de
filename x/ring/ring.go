// Package ring provides a single-producer single-consumer byte ring with
// lock-free indices. The diagnostic sink uses it to hand log lines from the
// control path to the low-priority drain task without ever blocking the
// producer.
package ring

import "sync/atomic"

// Ring is a single-producer, single-consumer byte ring. Size must be a power
// of two so index wrapping is a mask.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{} // empty->non-empty edge notification
}

// New allocates a ring. Panics unless size is a power of two >= 2; rings are
// created once at startup, so a bad size is a programming error.
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("ring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

// Space reports how many bytes can be written without overwriting.
func (r *Ring) Space() int {
	return int(r.size() - (r.wr.Load() - r.rd.Load()))
}

// Available reports how many bytes are ready to read.
func (r *Ring) Available() int {
	return int(r.wr.Load() - r.rd.Load())
}

// Readable signals when the ring transitions from empty to non-empty.
// The consumer should drain fully after each receive.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// WriteFrom copies as much of src as fits and returns the count. It never
// blocks and never overwrites unread data.
func (r *Ring) WriteFrom(src []byte) (n int) {
	if len(src) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	before := wr - rd
	space := int(r.size() - before)
	if space <= 0 {
		return 0
	}
	if len(src) < space {
		space = len(src)
	}
	n = space

	size := r.size()
	wrIdx := wr & r.mask
	first := int(size - wrIdx)
	if first > n {
		first = n
	}
	copy(r.buf[wrIdx:wrIdx+uint32(first)], src[:first])
	if second := n - first; second > 0 {
		copy(r.buf[:second], src[first:first+second])
	}
	r.wr.Store(wr + uint32(n))

	if before == 0 {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return n
}

// ReadInto copies up to len(dst) bytes out and returns the count. It never
// blocks; an empty ring returns 0.
func (r *Ring) ReadInto(dst []byte) (n int) {
	if len(dst) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	avail := int(wr - rd)
	if avail <= 0 {
		return 0
	}
	if len(dst) < avail {
		avail = len(dst)
	}
	n = avail

	size := r.size()
	rdIdx := rd & r.mask
	first := int(size - rdIdx)
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[rdIdx:rdIdx+uint32(first)])
	if second := n - first; second > 0 {
		copy(dst[first:first+second], r.buf[:second])
	}
	r.rd.Store(rd + uint32(n))
	return n
}
