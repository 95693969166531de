package onewire

import (
	"fridgecode-go/x/conv"
	"fridgecode-go/x/strconvx"
)

// Address is the 64-bit ROM of a single one-wire device. These are globally
// unique and single out one device on a potentially crowded bus. Byte order
// follows the wire: byte 0 is the family code, bytes 1..6 the serial number,
// byte 7 the CRC-8 of the preceding seven.
type Address uint64

// FamilyCode returns the device family (0x28 for a DS18B20).
func (a Address) FamilyCode() byte { return byte(a) }

// Bytes returns the address in wire order (LSB first).
func (a Address) Bytes() [8]byte {
	var b [8]byte
	for i := range b {
		b[i] = byte(a >> (8 * i))
	}
	return b
}

// AddressFromBytes assembles an Address from wire order bytes.
func AddressFromBytes(b [8]byte) Address {
	var a Address
	for i := range b {
		a |= Address(b[i]) << (8 * i)
	}
	return a
}

// Valid reports whether the trailing CRC byte matches the CRC-8 of the first
// seven bytes.
func (a Address) Valid() bool {
	b := a.Bytes()
	return CRC8(b[:7]) == b[7]
}

// String formats the address as 16 uppercase hex digits, most significant
// first, without allocating beyond the result.
func (a Address) String() string {
	var buf [16]byte
	return string(conv.U64Hex(buf[:], uint64(a)))
}

// ParseAddress parses the String form back into an Address. The CRC is not
// checked here; call Valid on the result.
func ParseAddress(s string) (Address, error) {
	v, err := strconvx.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return Address(v), nil
}
