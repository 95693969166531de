// Package ds18b20 provides a driver for the DS18B20 digital thermometer on a
// single-wire bus. It exposes a two-phase measurement API:
//
//	d.Trigger()              // start a conversion (fast, returns immediately)
//	raw, err := d.Collect()  // fetch after the conversion time has elapsed
//
// Trigger never sleeps; the caller owns the wait between the phases and
// should schedule Collect no earlier than d.Resolution().ConversionTime().
// ConvertAll starts a conversion on every device of a bus at once so a
// multi-sensor cycle pays the conversion wait only once.
//
// All temperatures are raw sensor counts in sixteenths of a degree Celsius;
// no floating point anywhere.
package ds18b20

import (
	"time"

	"fridgecode-go/onewire"
)

// Family is the ROM family code of the DS18B20.
const Family = 0x28

// Function commands.
const (
	cmdConvertT        = 0x44
	cmdReadScratchpad  = 0xBE
	cmdWriteScratchpad = 0x4E
	cmdCopyScratchpad  = 0x48
	cmdRecallE2        = 0xB8
)

// Resolution selects the conversion width. Lower resolutions trade low bits
// of the result for a shorter conversion.
type Resolution uint8

const (
	Bits9 Resolution = iota + 9
	Bits10
	Bits11
	Bits12
)

// configByte returns the scratchpad configuration register encoding
// (R1 R0 1 1 1 1 1, bit 7 zero).
func (r Resolution) configByte() byte {
	return byte(r-9)<<5 | 0x1F
}

// resolutionFromConfig decodes a scratchpad configuration register.
func resolutionFromConfig(cfg byte) Resolution {
	return Resolution(cfg>>5&0x03) + 9
}

// ConversionTime returns the worst-case conversion duration at this
// resolution.
func (r Resolution) ConversionTime() time.Duration {
	switch r {
	case Bits9:
		return 94 * time.Millisecond
	case Bits10:
		return 188 * time.Millisecond
	case Bits11:
		return 375 * time.Millisecond
	default:
		return 750 * time.Millisecond
	}
}

// mask zeroes the undefined low bits of a raw reading taken at this
// resolution.
func (r Resolution) mask(raw int16) int16 {
	switch r {
	case Bits9:
		return raw &^ 0x7
	case Bits10:
		return raw &^ 0x3
	case Bits11:
		return raw &^ 0x1
	default:
		return raw
	}
}

// Wire is the bus surface the driver needs. *onewire.Bus satisfies it.
type Wire interface {
	SendCommand(addr *onewire.Address, command byte) error
	WriteBytes(p []byte)
	ReadBytes(p []byte)
}

// Device is one addressed DS18B20 on a shared bus.
type Device struct {
	wire Wire
	addr onewire.Address
	res  Resolution
	buf  [9]byte // scratchpad, reused to avoid allocations
}

// New creates a device handle. It does not touch the hardware; the stored
// resolution is assumed Bits12 (the power-on default) until Configure or
// ReadScratchpad says otherwise.
func New(wire Wire, addr onewire.Address) *Device {
	return &Device{wire: wire, addr: addr, res: Bits12}
}

// Address returns the device ROM address.
func (d *Device) Address() onewire.Address { return d.addr }

// Resolution returns the last resolution written to or read from the device.
func (d *Device) Resolution() Resolution { return d.res }

// Configure writes the alarm registers and resolution to the scratchpad and
// commits them to EEPROM so they survive a power cycle.
func (d *Device) Configure(res Resolution) error {
	if err := d.wire.SendCommand(&d.addr, cmdWriteScratchpad); err != nil {
		return err
	}
	// TH, TL, config. Alarms are unused; park them at the limits.
	d.wire.WriteBytes([]byte{0x7F, 0x80, res.configByte()})

	if err := d.wire.SendCommand(&d.addr, cmdCopyScratchpad); err != nil {
		return err
	}
	d.res = res
	return nil
}

// Trigger starts a temperature conversion on this device. The result is
// available after d.Resolution().ConversionTime().
func (d *Device) Trigger() error {
	return d.wire.SendCommand(&d.addr, cmdConvertT)
}

// ReadScratchpad fetches all nine scratchpad bytes and verifies the CRC.
// The returned slice aliases the device buffer and is valid until the next
// scratchpad read.
func (d *Device) ReadScratchpad() ([]byte, error) {
	if err := d.wire.SendCommand(&d.addr, cmdReadScratchpad); err != nil {
		return nil, err
	}
	d.wire.ReadBytes(d.buf[:])
	if allOnes(d.buf[:]) {
		// Nothing drove the line; the pull-up answered every read slot.
		// The device dropped off between selection and read-back.
		return nil, onewire.ErrUnexpectedResponse
	}
	if err := onewire.CheckCRC8(d.buf[:]); err != nil {
		return nil, err
	}
	return d.buf[:], nil
}

func allOnes(p []byte) bool {
	for _, b := range p {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// Collect reads the conversion result. The raw value is in sixteenths of a
// degree Celsius with undefined low bits masked off per the device's
// resolution. Call only after the conversion time has elapsed; an early read
// returns the previous result.
func (d *Device) Collect() (int16, error) {
	sp, err := d.ReadScratchpad()
	if err != nil {
		return 0, err
	}
	// Trust the device's own idea of its resolution over our cache.
	d.res = resolutionFromConfig(sp[4])
	raw := int16(uint16(sp[0]) | uint16(sp[1])<<8)
	return d.res.mask(raw), nil
}

// Recall reloads the EEPROM-stored alarm and configuration registers into
// the scratchpad.
func (d *Device) Recall() error {
	return d.wire.SendCommand(&d.addr, cmdRecallE2)
}

// ConvertAll broadcasts a conversion start to every device on the bus.
// Collect on each device afterwards; wait for the slowest resolution in use.
func ConvertAll(wire Wire) error {
	return wire.SendCommand(nil, cmdConvertT)
}
