// Package simow emulates DS18B20 devices on a simulated single-wire line
// for host-side tests. The emulation is at protocol level: it advances a
// virtual clock from the master's delay calls and decodes pulses from the
// Low/Release/Read sequence, so the timing-driven bus code runs unmodified
// and instantly.
//
// Slot classification follows the wire discipline exactly. A long low pulse
// is a reset; a low pulse over 60 us is a write-0; a short low pulse is
// either a write-1 or a read slot, told apart by whether the master samples
// the line shortly after releasing it.
package simow

import (
	"fridgecode-go/onewire"
)

// Classification thresholds, virtual microseconds.
const (
	resetLowMin  = 480
	write0LowMin = 60
	sampleWindow = 15 // a Read this soon after release is a read slot
)

// Net is one simulated bus with any number of devices. It satisfies
// onewire.Pin; obtain the paired delay function from DelayFn.
type Net struct {
	devices []*Device

	vtime     uint64 // virtual microseconds
	lineLow   bool
	lowStart  uint64
	slotOpen  bool // short low pulse released, nature undecided
	slotStart uint64
	presence  uint64 // end of the presence window, 0 when none
}

// NewNet creates an empty bus. Attach devices before use.
func NewNet() *Net { return &Net{} }

// Attach adds a device to the bus.
func (n *Net) Attach(d *Device) { n.devices = append(n.devices, d) }

// DelayFn returns the delay function to pair with this pin.
func (n *Net) DelayFn() onewire.DelayUs {
	return func(us uint32) { n.vtime += uint64(us) }
}

// Low drives the line low (master side).
func (n *Net) Low() {
	n.settleSlot()
	n.lineLow = true
	n.lowStart = n.vtime
}

// Release lets the line float; classification of the finished pulse
// happens here or at the next sample.
func (n *Net) Release() {
	if !n.lineLow {
		return
	}
	n.lineLow = false
	width := n.vtime - n.lowStart

	switch {
	case width >= resetLowMin:
		for _, d := range n.devices {
			d.reset()
		}
		// Devices answer with a presence pulse for roughly 60-240 us
		// starting shortly after release.
		if n.anyPresent() {
			n.presence = n.vtime + 240
		}
	case width >= write0LowMin:
		n.writeBit(false)
	default:
		// Write-1 or read slot; decided on the next Read or Low.
		n.slotOpen = true
		n.slotStart = n.vtime
	}
}

// Read samples the line (master side).
func (n *Net) Read() bool {
	if n.lineLow {
		return false
	}
	if n.presence != 0 && n.vtime < n.presence {
		n.presence = 0
		return false // a device is holding the line down
	}
	if n.slotOpen && n.vtime-n.slotStart <= sampleWindow {
		// Read slot: open-drain AND of every device's output.
		n.slotOpen = false
		bit := true
		for _, d := range n.devices {
			if !d.outputBit() {
				bit = false
			}
		}
		return bit
	}
	n.settleSlot()
	return true
}

// settleSlot resolves a pending short pulse that was never sampled: the
// master moved on, so it was a write-1.
func (n *Net) settleSlot() {
	if n.slotOpen {
		n.slotOpen = false
		n.writeBit(true)
	}
}

func (n *Net) writeBit(bit bool) {
	for _, d := range n.devices {
		d.inputBit(bit)
	}
}

func (n *Net) anyPresent() bool {
	for _, d := range n.devices {
		if !d.missing.Load() {
			return true
		}
	}
	return false
}
