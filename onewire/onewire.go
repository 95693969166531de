// Package onewire drives a half-duplex single-wire bus over one open-drain
// GPIO line. Addressing, commands and data share the line; correctness rests
// on pulse timing, so every operation is expressed as drive-low / release /
// sample steps separated by microsecond busy-waits supplied by the platform.
//
// The bit-slot budgets below follow the standard-speed timing tables:
// a reset pulse of 480 us with the presence sample 70 us after release, a
// write-1 slot of 10+55 us, a write-0 slot of 65+5 us, and a read slot that
// drives 3 us, samples 9 us in, and recovers for 53 us.
package onewire

// Pin is one bidirectional open-drain line. Release lets the external
// pull-up raise the bus; devices (and the master) only ever drive it low.
type Pin interface {
	Low()
	Release()
	Read() bool
}

// DelayUs busy-waits with microsecond precision. Busy-waiting is confined to
// slots far shorter than a scheduler tick; anything longer must go through
// the monotonic clock instead.
type DelayUs func(us uint32)

// Timing constants, microseconds.
const (
	tResetLow      = 480
	tPresenceWait  = 70
	tResetRecover  = 410
	tWrite1Low     = 10
	tWrite1Recover = 55
	tWrite0Low     = 65
	tWrite0Recover = 5
	tReadLow       = 3
	tReadSample    = 9
	tReadRecover   = 53

	// Before a reset the bus must already be high; poll up to this many
	// times at 2 us apart.
	resetHighRetries = 125
)

// Bus is the master side of one single-wire bus.
type Bus struct {
	pin   Pin
	delay DelayUs
}

// New returns a bus over pin. delay must provide microsecond busy-waits.
func New(pin Pin, delay DelayUs) *Bus {
	return &Bus{pin: pin, delay: delay}
}

// Reset performs the initialization sequence: a long low pulse followed by a
// presence-pulse check. Returns ErrBusNotHigh if the pull-up never raised
// the line, ErrNoPresence if no device answered.
func (b *Bus) Reset() error {
	// Wait for the pull-up to raise the bus.
	retries := resetHighRetries
	for !b.pin.Read() {
		if retries == 0 {
			return ErrBusNotHigh
		}
		retries--
		b.delay(2)
	}

	b.pin.Low()
	b.delay(tResetLow)

	b.pin.Release()
	b.delay(tPresenceWait)

	// A present device holds the line low during the presence window.
	present := !b.pin.Read()
	b.delay(tResetRecover)

	if !present {
		return ErrNoPresence
	}
	return nil
}

// WriteBit emits one bit slot.
func (b *Bus) WriteBit(bit bool) {
	if bit {
		b.pin.Low()
		b.delay(tWrite1Low)
		b.pin.Release()
		b.delay(tWrite1Recover)
	} else {
		b.pin.Low()
		b.delay(tWrite0Low)
		b.pin.Release()
		b.delay(tWrite0Recover)
	}
}

// ReadBit samples one bit slot.
func (b *Bus) ReadBit() bool {
	b.pin.Low()
	b.delay(tReadLow)
	b.pin.Release()
	b.delay(tReadSample)
	v := b.pin.Read()
	b.delay(tReadRecover)
	return v
}

// WriteByte shifts a byte out LSB first.
func (b *Bus) WriteByte(v byte) {
	for i := 0; i < 8; i++ {
		b.WriteBit((v>>i)&1 == 1)
	}
}

// WriteBytes shifts a sequence out LSB first.
func (b *Bus) WriteBytes(p []byte) {
	for _, v := range p {
		b.WriteByte(v)
	}
}

// ReadByte shifts a byte in LSB first.
func (b *Bus) ReadByte() byte {
	var v byte
	for i := 0; i < 8; i++ {
		if b.ReadBit() {
			v |= 1 << i
		}
	}
	return v
}

// ReadBytes fills p from the bus.
func (b *Bus) ReadBytes(p []byte) {
	for i := range p {
		p[i] = b.ReadByte()
	}
}

// MatchROM selects the device with the given address.
func (b *Bus) MatchROM(addr Address) {
	b.WriteByte(cmdMatchROM)
	bytes := addr.Bytes()
	b.WriteBytes(bytes[:])
}

// SkipROM broadcasts to every device on the bus. Only safe for commands that
// make sense for all devices at once (e.g. a conversion trigger) or on a
// single-device bus.
func (b *Bus) SkipROM() {
	b.WriteByte(cmdSkipROM)
}

// SendCommand resets the bus, selects addr (or broadcasts when addr is nil)
// and writes the command byte.
func (b *Bus) SendCommand(addr *Address, command byte) error {
	if err := b.Reset(); err != nil {
		return err
	}
	if addr != nil {
		b.MatchROM(*addr)
	} else {
		b.SkipROM()
	}
	b.WriteByte(command)
	return nil
}
