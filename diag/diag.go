// Package diag is the best-effort diagnostic path. Producers on the control
// and sampling tasks format a line and push it into a byte ring; a
// lowest-priority drain task copies the ring out to the terminal UART (or
// stdout on the host). A full ring drops the line and counts the drop; the
// hot path never waits on diagnostics.
package diag

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"fridgecode-go/x/fmtx"
	"fridgecode-go/x/ring"
	"fridgecode-go/x/timex"
)

// Sink collects diagnostic lines. Logf is safe to call from every task: a
// short mutex serialises producers onto the ring (formatting happens before
// the lock, and a full ring drops rather than waits, so the critical section
// is one bounded copy). The drain side stays lock-free per the ring's
// single-consumer contract.
type Sink struct {
	ring    *ring.Ring
	mu      sync.Mutex // serialises producers; the ring itself is SPSC
	dropped atomic.Uint32
}

// NewSink allocates a sink with a power-of-two buffer size.
func NewSink(size int) *Sink {
	return &Sink{ring: ring.New(size)}
}

// Logf formats and enqueues one line, prefixed with the current tick.
// If the line does not fit in the ring as a whole it is dropped and
// counted; partial lines are never written.
func (s *Sink) Logf(format string, args ...any) {
	line := fmtx.Sprintf("[%d] ", int64(timex.Now())) + fmtx.Sprintf(format, args...) + "\n"
	s.mu.Lock()
	if s.ring.Space() < len(line) {
		s.mu.Unlock()
		s.dropped.Add(1)
		return
	}
	s.ring.WriteFrom([]byte(line))
	s.mu.Unlock()
}

// Dropped returns the number of lines lost to a full ring.
func (s *Sink) Dropped() uint32 { return s.dropped.Load() }

// DrainTo copies everything currently buffered to w. Returns bytes written.
func (s *Sink) DrainTo(w io.Writer) (int, error) {
	var buf [64]byte
	total := 0
	for {
		n := s.ring.ReadInto(buf[:])
		if n == 0 {
			return total, nil
		}
		wn, err := w.Write(buf[:n])
		total += wn
		if err != nil {
			return total, err
		}
	}
}

// Run is the drain task body: it sleeps on the ring's readable edge and
// drains fully on each wakeup. Write errors are ignored; diagnostics are
// best effort by definition.
func (s *Sink) Run(ctx context.Context, w io.Writer) {
	for {
		select {
		case <-ctx.Done():
			s.DrainTo(w)
			return
		case <-s.ring.Readable():
			s.DrainTo(w)
		}
	}
}
