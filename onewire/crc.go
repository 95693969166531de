package onewire

// CRC8 computes the Dallas/Maxim CRC-8 (polynomial 0x31 reflected => 0x8C)
// over data, LSB first. Every ROM address and scratchpad carries one as its
// trailing byte; CRC-8 guarantees detection of all single-bit errors.
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8C
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// CheckCRC8 verifies a buffer whose last byte is the CRC of the preceding
// bytes. Returns ErrCRC on mismatch.
func CheckCRC8(buf []byte) error {
	if len(buf) < 2 {
		return ErrCRC
	}
	if CRC8(buf[:len(buf)-1]) != buf[len(buf)-1] {
		return ErrCRC
	}
	return nil
}
