package ds18b20

import (
	"testing"
	"time"

	"fridgecode-go/onewire"
)

// fakeWire records commands and plays back a canned scratchpad.
type fakeWire struct {
	commands   []byte
	selected   []*onewire.Address
	written    [][]byte
	scratchpad [9]byte
	resetErr   error
}

func (f *fakeWire) SendCommand(addr *onewire.Address, command byte) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.commands = append(f.commands, command)
	f.selected = append(f.selected, addr)
	return nil
}

func (f *fakeWire) WriteBytes(p []byte) {
	cp := make([]byte, len(p))
	copy(cp, p)
	f.written = append(f.written, cp)
}

func (f *fakeWire) ReadBytes(p []byte) {
	copy(p, f.scratchpad[:])
}

// scratchpadFor builds a valid scratchpad for a raw reading at a resolution.
func scratchpadFor(raw int16, res Resolution) [9]byte {
	var sp [9]byte
	sp[0] = byte(raw)
	sp[1] = byte(raw >> 8)
	sp[2] = 0x7F // TH
	sp[3] = 0x80 // TL
	sp[4] = res.configByte()
	sp[5] = 0xFF
	sp[7] = 0x10
	sp[8] = onewire.CRC8(sp[:8])
	return sp
}

const testAddr = onewire.Address(0x28FF123456789ABC)

func TestCollect(t *testing.T) {
	// 0x0191 = 401 sixteenths = 25.0625 degC.
	w := &fakeWire{scratchpad: scratchpadFor(0x0191, Bits12)}
	d := New(w, testAddr)

	raw, err := d.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if raw != 0x0191 {
		t.Fatalf("raw = %#x, want 0x0191", raw)
	}
	if got := w.commands[0]; got != cmdReadScratchpad {
		t.Fatalf("command = %#x, want read scratchpad", got)
	}
	if w.selected[0] == nil || *w.selected[0] != testAddr {
		t.Fatalf("device not match-addressed")
	}
}

func TestCollectNegative(t *testing.T) {
	// -10.125 degC = -162 sixteenths = 0xFF5E two's complement.
	w := &fakeWire{scratchpad: scratchpadFor(-162, Bits12)}
	d := New(w, testAddr)

	raw, err := d.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if raw != -162 {
		t.Fatalf("raw = %d, want -162", raw)
	}
}

func TestCollectMasksLowBits(t *testing.T) {
	cases := []struct {
		res  Resolution
		raw  int16
		want int16
	}{
		{Bits9, 0x0197, 0x0190},
		{Bits10, 0x0197, 0x0194},
		{Bits11, 0x0197, 0x0196},
		{Bits12, 0x0197, 0x0197},
	}
	for _, c := range cases {
		w := &fakeWire{scratchpad: scratchpadFor(c.raw, c.res)}
		d := New(w, testAddr)
		got, err := d.Collect()
		if err != nil {
			t.Fatalf("%d bits: %v", c.res, err)
		}
		if got != c.want {
			t.Fatalf("%d bits: raw = %#x, want %#x", c.res, got, c.want)
		}
		if d.Resolution() != c.res {
			t.Fatalf("%d bits: cached resolution = %d", c.res, d.Resolution())
		}
	}
}

func TestCollectBadCRC(t *testing.T) {
	sp := scratchpadFor(0x0191, Bits12)
	sp[1] ^= 0x01 // single-bit corruption must be caught
	w := &fakeWire{scratchpad: sp}
	d := New(w, testAddr)

	if _, err := d.Collect(); err != onewire.ErrCRC {
		t.Fatalf("err = %v, want ErrCRC", err)
	}
}

func TestCollectDeviceVanished(t *testing.T) {
	// Nothing drives the line: every read slot floats high.
	w := &fakeWire{scratchpad: [9]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}}
	d := New(w, testAddr)

	if _, err := d.Collect(); err != onewire.ErrUnexpectedResponse {
		t.Fatalf("err = %v, want ErrUnexpectedResponse", err)
	}
}

func TestCollectBusError(t *testing.T) {
	w := &fakeWire{resetErr: onewire.ErrNoPresence}
	d := New(w, testAddr)
	if _, err := d.Collect(); err != onewire.ErrNoPresence {
		t.Fatalf("err = %v, want ErrNoPresence", err)
	}
}

func TestConfigure(t *testing.T) {
	w := &fakeWire{}
	d := New(w, testAddr)

	if err := d.Configure(Bits10); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if len(w.commands) != 2 || w.commands[0] != cmdWriteScratchpad || w.commands[1] != cmdCopyScratchpad {
		t.Fatalf("commands = %#v", w.commands)
	}
	if len(w.written) != 1 || w.written[0][2] != Bits10.configByte() {
		t.Fatalf("scratchpad write = %#v", w.written)
	}
	if d.Resolution() != Bits10 {
		t.Fatalf("resolution = %d, want 10", d.Resolution())
	}
}

func TestTrigger(t *testing.T) {
	w := &fakeWire{}
	d := New(w, testAddr)
	if err := d.Trigger(); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if w.commands[0] != cmdConvertT {
		t.Fatalf("command = %#x, want convert", w.commands[0])
	}
}

func TestConvertAllBroadcasts(t *testing.T) {
	w := &fakeWire{}
	if err := ConvertAll(w); err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if w.commands[0] != cmdConvertT {
		t.Fatalf("command = %#x, want convert", w.commands[0])
	}
	if w.selected[0] != nil {
		t.Fatal("broadcast must not match a single address")
	}
}

func TestConversionTimes(t *testing.T) {
	cases := []struct {
		res  Resolution
		want time.Duration
	}{
		{Bits9, 94 * time.Millisecond},
		{Bits10, 188 * time.Millisecond},
		{Bits11, 375 * time.Millisecond},
		{Bits12, 750 * time.Millisecond},
	}
	for _, c := range cases {
		if got := c.res.ConversionTime(); got != c.want {
			t.Fatalf("%d bits: %v, want %v", c.res, got, c.want)
		}
	}
}

func TestConfigByteRoundTrip(t *testing.T) {
	for _, r := range []Resolution{Bits9, Bits10, Bits11, Bits12} {
		if got := resolutionFromConfig(r.configByte()); got != r {
			t.Fatalf("round trip %d -> %d", r, got)
		}
	}
}
