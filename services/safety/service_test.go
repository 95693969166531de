package safety

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"fridgecode-go/bus"
	"fridgecode-go/errcode"
	"fridgecode-go/tasks"
	"fridgecode-go/types"
	"fridgecode-go/x/timex"
)

type countingWatchdog struct {
	refreshes atomic.Int32
}

func (w *countingWatchdog) Refresh() { w.refreshes.Add(1) }

type recordingStopper struct {
	forced atomic.Int32
}

func (s *recordingStopper) ForceOff(timex.Tick) { s.forced.Add(1) }

func startService(t *testing.T, b *bus.Bus, monitor *tasks.Monitor) (*Service, *countingWatchdog, *recordingStopper, context.CancelFunc) {
	t.Helper()
	cfg := testConfig()
	cfg.PeriodMs = 10

	wd := &countingWatchdog{}
	stop := &recordingStopper{}
	svc := &Service{
		Cfg:      cfg,
		Limit:    NewDutyLimit(1000),
		FullDuty: 1000,
		Monitor:  monitor,
		Watchdog: wd,
		Stopper:  stop,
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Start(ctx, b.NewConnection("safety")); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	return svc, wd, stop, cancel
}

func TestLoopRefreshesWatchdogWhileNormal(t *testing.T) {
	b := bus.New(4)
	_, wd, stop, cancel := startService(t, b, &tasks.Monitor{})
	defer cancel()

	// Healthy measurements keep flowing for the whole window.
	ctx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	conn := b.NewConnection("test")
	go func() {
		for {
			conn.Publish(conn.NewMessage(topicMeasurement, types.Measurement{
				Temp: types.TempFromCelsius(5), Valid: true, Healthy: 2, Tick: timex.Now(),
			}, false))
			conn.Publish(conn.NewMessage(topicSensorCount, 2, true))
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Millisecond):
			}
		}
	}()

	time.Sleep(100 * time.Millisecond)
	if wd.refreshes.Load() < 3 {
		t.Fatalf("refreshes = %d over 100ms, want several", wd.refreshes.Load())
	}
	if stop.forced.Load() != 0 {
		t.Fatal("ForceOff fired with a healthy system")
	}
}

func TestWedgedTaskStopsWatchdogAndForcesOff(t *testing.T) {
	b := bus.New(4)
	monitor := &tasks.Monitor{}
	// Registered but never beaten: stale once its budget elapses.
	monitor.Register("sampling", 20)

	_, wd, stop, cancel := startService(t, b, monitor)
	defer cancel()

	// Give the stale budget and a few supervisor cycles time to trip.
	time.Sleep(150 * time.Millisecond)

	if got := stop.forced.Load(); got != 1 {
		t.Fatalf("ForceOff fired %d times, want exactly 1", got)
	}

	// The refresh stream must have stopped; the hardware watchdog is now
	// the path to reset.
	before := wd.refreshes.Load()
	time.Sleep(50 * time.Millisecond)
	if after := wd.refreshes.Load(); after != before {
		t.Fatalf("watchdog still refreshed in shutdown (%d -> %d)", before, after)
	}

	// The retained status reports the scheduling fault.
	sub := b.NewConnection("status").SubscribeN(topicStatus, 1)
	select {
	case msg := <-sub.Channel():
		st := msg.Payload.(types.Status)
		if st.State != Shutdown.String() || st.Reason != errcode.SchedFault {
			t.Fatalf("status = %s/%s, want shutdown/sched_fault", st.State, st.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("no retained status")
	}
}
