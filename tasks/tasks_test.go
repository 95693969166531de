package tasks

import (
	"context"
	"testing"
	"time"

	"fridgecode-go/x/timex"
)

func TestPeriodicReleases(t *testing.T) {
	p := NewPeriodic(10)
	ctx := context.Background()

	start := timex.Now()
	var last timex.Tick
	for i := 0; i < 5; i++ {
		tick, missed, ok := p.Wait(ctx)
		if !ok {
			t.Fatal("Wait returned !ok")
		}
		if missed {
			t.Fatalf("release %d flagged missed", i)
		}
		if tick <= last && i > 0 {
			t.Fatalf("release %d not monotonic: %d after %d", i, tick, last)
		}
		last = tick
	}
	// Five 10 ms periods should take roughly 50 ms of wall time.
	if el := timex.Since(start); el < 40 {
		t.Fatalf("five releases in %d ms, schedule not honoured", el)
	}
}

func TestPeriodicNoDrift(t *testing.T) {
	p := NewPeriodic(10)
	ctx := context.Background()

	var ticks []timex.Tick
	for i := 0; i < 4; i++ {
		tick, _, _ := p.Wait(ctx)
		ticks = append(ticks, tick)
		// Work inside the period must not push later releases out.
		time.Sleep(3 * time.Millisecond)
	}
	for i := 1; i < len(ticks); i++ {
		if d := ticks[i] - ticks[i-1]; d != 10 {
			t.Fatalf("release gap %d = %d ms, want 10", i, d)
		}
	}
}

func TestPeriodicDetectsMiss(t *testing.T) {
	p := NewPeriodic(5)
	ctx := context.Background()

	p.Wait(ctx)
	time.Sleep(25 * time.Millisecond) // overrun several periods

	_, missed, ok := p.Wait(ctx)
	if !ok || !missed {
		t.Fatalf("missed = %v after overrun, want true", missed)
	}
	if p.Missed() != 1 {
		t.Fatalf("Missed() = %d, want 1 (resync, not replay)", p.Missed())
	}

	// The schedule recovered: the next release is on time again.
	_, missed, _ = p.Wait(ctx)
	if missed {
		t.Fatal("still missing after resync")
	}
}

func TestPeriodicCancel(t *testing.T) {
	p := NewPeriodic(10_000)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, _, ok := p.Wait(ctx)
		done <- ok
	}()
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("Wait returned ok after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not observe cancellation")
	}
}

func TestMonitorStale(t *testing.T) {
	var m Monitor
	now := timex.Now()

	fast := m.Register("sampling", 50)
	slow := m.Register("control", 1000)
	fast.BeatAt(now)
	slow.BeatAt(now)

	if names := m.Stale(now + 40); len(names) != 0 {
		t.Fatalf("stale = %v inside budget", names)
	}

	names := m.Stale(now + 100)
	if len(names) != 1 || names[0] != "sampling" {
		t.Fatalf("stale = %v, want [sampling]", names)
	}

	// A beat clears it.
	fast.BeatAt(now + 100)
	if names := m.Stale(now + 120); len(names) != 0 {
		t.Fatalf("stale = %v after beat", names)
	}
}

func TestPriorityOrder(t *testing.T) {
	if !(PriorityDiag < PriorityControl && PriorityControl < PrioritySampling && PrioritySampling < PrioritySafety) {
		t.Fatal("priority order broken")
	}
}
