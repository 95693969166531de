package terminal

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"fridgecode-go/bus"
	"fridgecode-go/onewire"
	"fridgecode-go/types"
	"fridgecode-go/x/timex"
)

type console struct {
	in  *io.PipeWriter
	out *lockedBuffer
	b   *bus.Bus
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func startConsole(t *testing.T) (*console, context.CancelFunc) {
	t.Helper()
	pr, pw := io.Pipe()
	out := &lockedBuffer{}
	b := bus.New(8)

	svc := &Service{
		In:             pr,
		Out:            out,
		InitSetpoint:   types.TempFromCelsius(5),
		InitGains:      types.Gains{Kp: 1 << 16, Ki: 1 << 14, Kd: 1 << 13},
		InitResolution: 12,
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Start(ctx, b.NewConnection("terminal")); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	return &console{in: pw, out: out, b: b}, cancel
}

func (c *console) send(t *testing.T, line string) {
	t.Helper()
	if _, err := c.in.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
}

func (c *console) waitFor(t *testing.T, substr string) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := c.out.String(); strings.Contains(got, substr) {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("output %q never contained %q", c.out.String(), substr)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestHelp(t *testing.T) {
	c, cancel := startConsole(t)
	defer cancel()
	c.send(t, "help")
	c.waitFor(t, "setpoint [c]")
}

func TestUnknownCommand(t *testing.T) {
	c, cancel := startConsole(t)
	defer cancel()
	c.send(t, "frobnicate")
	c.waitFor(t, "unknown_command: frobnicate")
}

func TestDevicesListsRetainedPopulation(t *testing.T) {
	c, cancel := startConsole(t)
	defer cancel()

	addr := onewire.Address(0x28FF123456789ABC)
	pub := c.b.NewConnection("pub")
	pub.Publish(pub.NewMessage(bus.T("thermo", "devices"), []onewire.Address{addr}, true))

	// Give the retained replay a moment to land before asking.
	time.Sleep(20 * time.Millisecond)
	c.send(t, "devices")
	c.waitFor(t, addr.String())
}

func TestSetpointRoundTrip(t *testing.T) {
	c, cancel := startConsole(t)
	defer cancel()

	sub := c.b.NewConnection("ctl").Subscribe(bus.T("control", "setpoint"))

	c.send(t, "setpoint")
	c.waitFor(t, "5.0000")

	c.send(t, "setpoint 3")
	select {
	case msg := <-sub.Channel():
		if got := msg.Payload.(types.Temp); got != types.TempFromCelsius(3) {
			t.Fatalf("setpoint = %s, want 3.0000", got.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("setpoint never published")
	}
	c.send(t, "setpoint")
	c.waitFor(t, "3.0000")
}

func TestSetpointRejectsGarbage(t *testing.T) {
	c, cancel := startConsole(t)
	defer cancel()
	c.send(t, "setpoint cold")
	c.waitFor(t, "invalid_params")
}

func TestPIDSetAndShow(t *testing.T) {
	c, cancel := startConsole(t)
	defer cancel()

	sub := c.b.NewConnection("ctl").Subscribe(bus.T("control", "gains"))

	c.send(t, "pid 131072 0 0")
	select {
	case msg := <-sub.Channel():
		g := msg.Payload.(types.Gains)
		if g.Kp != 2<<16 || g.Ki != 0 || g.Kd != 0 {
			t.Fatalf("gains = %+v", g)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gains never published")
	}
	c.send(t, "pid")
	c.waitFor(t, "kp=131072")
}

func TestResolutionValidation(t *testing.T) {
	c, cancel := startConsole(t)
	defer cancel()

	sub := c.b.NewConnection("thermo").Subscribe(bus.T("thermo", "set_resolution"))

	c.send(t, "resolution 13")
	c.waitFor(t, "invalid_params")

	c.send(t, "resolution 9")
	select {
	case msg := <-sub.Channel():
		if msg.Payload.(int) != 9 {
			t.Fatalf("resolution payload = %v", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resolution never published")
	}
}

func TestCoolerOnOff(t *testing.T) {
	c, cancel := startConsole(t)
	defer cancel()

	sub := c.b.NewConnection("ctl").Subscribe(bus.T("control", "enable"))

	c.send(t, "cooler off")
	select {
	case msg := <-sub.Channel():
		if msg.Payload.(bool) != false {
			t.Fatal("expected enable=false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("enable never published")
	}

	c.send(t, "cooler sideways")
	c.waitFor(t, "invalid_params")
}

func TestAckPublishes(t *testing.T) {
	c, cancel := startConsole(t)
	defer cancel()

	sub := c.b.NewConnection("safety").Subscribe(bus.T("safety", "ack"))
	c.send(t, "ack")
	select {
	case <-sub.Channel():
	case <-time.After(2 * time.Second):
		t.Fatal("ack never published")
	}
}

func TestTempAndHistory(t *testing.T) {
	c, cancel := startConsole(t)
	defer cancel()

	c.send(t, "temp")
	c.waitFor(t, "no data")

	pub := c.b.NewConnection("pub")
	for i, temp := range []int32{80, 81, 82} {
		pub.Publish(pub.NewMessage(bus.T("thermo", "measurement"), types.Measurement{
			Temp: types.Temp(temp), Tick: timex.Tick(i * 2000), Valid: true, Healthy: 1,
		}, false))
	}
	time.Sleep(20 * time.Millisecond)

	c.send(t, "temp")
	c.waitFor(t, "5.1250") // 82 sixteenths

	c.send(t, "history")
	out := c.waitFor(t, "5.1250")
	if !strings.Contains(out, "5.0000") || !strings.Contains(out, "5.0625") {
		t.Fatalf("history missing samples: %q", out)
	}
}

func TestStatus(t *testing.T) {
	c, cancel := startConsole(t)
	defer cancel()

	pub := c.b.NewConnection("pub")
	pub.Publish(pub.NewMessage(bus.T("safety", "status"), types.Status{
		State: "degraded", Reason: "sensor_fault", Temp: types.TempFromCelsius(6),
		Valid: true, Duty: 120, Faults: 1,
	}, true))
	time.Sleep(20 * time.Millisecond)

	c.send(t, "status")
	c.waitFor(t, "state=degraded reason=sensor_fault")
}
