package onewire

// Search enumerates every device ROM on the bus using the standard binary
// discrepancy walk: each of the 64 address bits is read twice (true and
// complement form), the master picks a direction, and devices whose bit
// disagrees drop out until the next pass.
type Search struct {
	bus *Bus

	lastDiscrepancy uint8
	lastDeviceFlag  bool
	rom             [8]byte
}

// NewSearch starts a fresh enumeration.
func (b *Bus) NewSearch() *Search {
	return &Search{bus: b}
}

// Next returns the next address on the bus. ok is false once the enumeration
// is exhausted. An address whose CRC byte does not check out is returned
// with ErrCRC; a walk that dies out after a successful presence pulse
// returns ErrUnexpectedResponse. The caller decides whether to keep walking.
func (s *Search) Next() (addr Address, ok bool, err error) {
	if s.lastDeviceFlag {
		return 0, false, nil
	}

	if err := s.bus.Reset(); err != nil {
		return 0, false, err
	}
	s.bus.WriteByte(cmdSearchROM)

	idBitNumber := uint8(1)
	lastZero := uint8(0)
	romByte := 0
	romMask := byte(1)
	found := false

	for romByte < 8 {
		idBit := s.bus.ReadBit()
		cmpIDBit := s.bus.ReadBit()

		// Both high: no device is participating any more.
		if idBit && cmpIDBit {
			break
		}

		var dir bool
		if idBit != cmpIDBit {
			// All remaining devices agree on this bit.
			dir = idBit
		} else {
			// Discrepancy. Retrace the previous path up to the last
			// recorded fork, then take the zero branch first.
			if idBitNumber < s.lastDiscrepancy {
				dir = s.rom[romByte]&romMask > 0
			} else {
				dir = idBitNumber == s.lastDiscrepancy
			}
			if !dir {
				lastZero = idBitNumber
			}
		}

		if dir {
			s.rom[romByte] |= romMask
		} else {
			s.rom[romByte] &^= romMask
		}
		s.bus.WriteBit(dir)

		idBitNumber++
		romMask <<= 1
		if romMask == 0 {
			romByte++
			romMask = 1
		}
	}

	if idBitNumber >= 65 {
		s.lastDiscrepancy = lastZero
		if s.lastDiscrepancy == 0 {
			s.lastDeviceFlag = true
		}
		found = true
	}

	if !found || s.rom[0] == 0 {
		// A device answered the reset but the walk died out (or yielded an
		// all-zero ROM): something dropped off the bus mid-search.
		s.lastDiscrepancy = 0
		s.lastDeviceFlag = false
		return 0, false, ErrUnexpectedResponse
	}

	addr = AddressFromBytes(s.rom)
	if !addr.Valid() {
		return addr, true, ErrCRC
	}
	return addr, true, nil
}
