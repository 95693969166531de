package simow

import (
	"sync/atomic"

	"fridgecode-go/onewire"
)

type devState uint8

const (
	stIdle devState = iota // dropped out until the next reset
	stRomCmd
	stMatchRom
	stSearch
	stReadRom
	stFunc
	stReadScratch
	stWriteScratch
)

// search phases within one address bit.
const (
	phaseBit = iota
	phaseCmp
	phaseDir
)

// Device is one emulated DS18B20.
type Device struct {
	rom      [8]byte
	scratch  [9]byte
	eeprom   [3]byte      // TH, TL, config
	pendingA atomic.Int32 // temperature latched by the next conversion

	// Test knobs, safe to flip from another goroutine mid-run.
	missing atomic.Bool // no presence pulse, no participation
	corrupt atomic.Bool // flip a bit while streaming the scratchpad

	Conversions int // CONVERT T count, for assertions

	state  devState
	inByte byte
	inBits uint8

	// match/search progress
	bitIdx uint8
	phase  uint8

	// output streaming
	out    [9]byte
	outLen uint8
	outBit uint16
}

// NewDevice creates a device with the given ROM address. Scratchpad starts
// at the power-on value (85 degC, 12-bit).
func NewDevice(addr onewire.Address) *Device {
	d := &Device{rom: addr.Bytes()}
	d.pendingA.Store(0x0550)
	d.scratch[2] = 0x7F
	d.scratch[3] = 0x80
	d.scratch[4] = 0x7F // 12-bit config
	d.eeprom = [3]byte{0x7F, 0x80, 0x7F}
	d.latch(0x0550)
	return d
}

// SetTemp sets the temperature the next conversion will latch, in raw
// sixteenths of a degree.
func (d *Device) SetTemp(raw int16) { d.pendingA.Store(int32(raw)) }

// SetMissing detaches or reattaches the device: no presence pulse and no
// participation while missing.
func (d *Device) SetMissing(v bool) { d.missing.Store(v) }

// SetCorruptCRC makes scratchpad reads stream a corrupted byte.
func (d *Device) SetCorruptCRC(v bool) { d.corrupt.Store(v) }

// Resolution returns the configured conversion width in bits.
func (d *Device) Resolution() int { return int(d.scratch[4]>>5&0x03) + 9 }

func (d *Device) latch(raw int16) {
	switch d.Resolution() {
	case 9:
		raw &^= 0x7
	case 10:
		raw &^= 0x3
	case 11:
		raw &^= 0x1
	}
	d.scratch[0] = byte(raw)
	d.scratch[1] = byte(raw >> 8)
	d.seal()
}

func (d *Device) seal() {
	d.scratch[8] = onewire.CRC8(d.scratch[:8])
}

func (d *Device) reset() {
	if d.missing.Load() {
		d.state = stIdle
		return
	}
	d.state = stRomCmd
	d.inByte, d.inBits = 0, 0
	d.bitIdx, d.phase = 0, phaseBit
	d.outLen, d.outBit = 0, 0
}

func (d *Device) romBit(i uint8) bool {
	return d.rom[i/8]>>(i%8)&1 == 1
}

// inputBit consumes one master-written bit.
func (d *Device) inputBit(bit bool) {
	switch d.state {
	case stRomCmd, stFunc:
		if bit {
			d.inByte |= 1 << d.inBits
		}
		d.inBits++
		if d.inBits == 8 {
			cmd := d.inByte
			d.inByte, d.inBits = 0, 0
			if d.state == stRomCmd {
				d.romCommand(cmd)
			} else {
				d.funcCommand(cmd)
			}
		}

	case stMatchRom:
		if bit != d.romBit(d.bitIdx) {
			d.state = stIdle
			return
		}
		d.bitIdx++
		if d.bitIdx == 64 {
			d.state = stFunc
		}

	case stSearch:
		if d.phase != phaseDir {
			// A write before both read slots means the master aborted.
			d.state = stIdle
			return
		}
		if bit != d.romBit(d.bitIdx) {
			d.state = stIdle
			return
		}
		d.bitIdx++
		d.phase = phaseBit
		if d.bitIdx == 64 {
			d.state = stFunc
		}

	case stWriteScratch:
		if bit {
			d.inByte |= 1 << d.inBits
		}
		d.inBits++
		if d.inBits == 8 {
			// TH, TL, config in order.
			d.scratch[2+d.bitIdx] = d.inByte
			d.inByte, d.inBits = 0, 0
			d.bitIdx++
			if d.bitIdx == 3 {
				d.seal()
				d.state = stIdle
			}
		}
	}
}

// outputBit produces one bit for a master read slot. Non-participating
// devices release the line (true).
func (d *Device) outputBit() bool {
	switch d.state {
	case stSearch:
		b := d.romBit(d.bitIdx)
		switch d.phase {
		case phaseBit:
			d.phase = phaseCmp
			return b
		case phaseCmp:
			d.phase = phaseDir
			return !b
		}
		return true

	case stReadRom, stReadScratch:
		if d.outBit >= uint16(d.outLen)*8 {
			return true
		}
		b := d.out[d.outBit/8]>>(d.outBit%8)&1 == 1
		d.outBit++
		return b
	}
	return true
}

func (d *Device) romCommand(cmd byte) {
	switch cmd {
	case 0xCC: // skip
		d.state = stFunc
	case 0x55: // match
		d.state = stMatchRom
		d.bitIdx = 0
	case 0x33: // read rom
		d.state = stReadRom
		copy(d.out[:], d.rom[:])
		d.outLen, d.outBit = 8, 0
	case 0xF0: // search
		d.state = stSearch
		d.bitIdx, d.phase = 0, phaseBit
	default:
		d.state = stIdle
	}
}

func (d *Device) funcCommand(cmd byte) {
	switch cmd {
	case 0x44: // convert t
		d.Conversions++
		d.latch(int16(d.pendingA.Load()))
		d.state = stIdle
	case 0xBE: // read scratchpad
		copy(d.out[:], d.scratch[:])
		if d.corrupt.Load() {
			d.out[1] ^= 0x01
		}
		d.outLen, d.outBit = 9, 0
		d.state = stReadScratch
	case 0x4E: // write scratchpad
		d.state = stWriteScratch
		d.inByte, d.inBits, d.bitIdx = 0, 0, 0
	case 0x48: // copy scratchpad
		copy(d.eeprom[:], d.scratch[2:5])
		d.state = stIdle
	case 0xB8: // recall
		copy(d.scratch[2:5], d.eeprom[:])
		d.seal()
		d.state = stIdle
	default:
		d.state = stIdle
	}
}
