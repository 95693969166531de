package conv

const hexd = "0123456789ABCDEF"

// U32Hex writes 8-digit uppercase hex without 0x, zero-padded.
func U32Hex(buf []byte, n uint32) []byte {
	if len(buf) < 8 {
		return buf[:0]
	}
	i := len(buf)
	for j := 0; j < 8; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}

// U64Hex writes 16-digit uppercase hex without 0x, zero-padded.
// Used for one-wire ROM addresses.
func U64Hex(buf []byte, n uint64) []byte {
	if len(buf) < 16 {
		return buf[:0]
	}
	i := len(buf)
	for j := 0; j < 16; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}
