package onewire

import "errors"

var (
	// ErrBusNotHigh: the line was expected to be pulled high by the external
	// pull-up resistor before a reset, but never rose.
	ErrBusNotHigh = errors.New("bus_not_high")
	// ErrNoPresence: no device answered the reset pulse within the presence
	// window.
	ErrNoPresence = errors.New("no_presence")
	// ErrCRC: a received byte sequence failed its CRC-8 check.
	ErrCRC = errors.New("crc_mismatch")
	// ErrFamilyCode: a discovered ROM carries an unexpected family code.
	ErrFamilyCode = errors.New("family_code_mismatch")
	// ErrUnexpectedResponse: a device answered a command with data outside
	// the documented encoding. Usually a device was added or removed
	// mid-transaction.
	ErrUnexpectedResponse = errors.New("unexpected_response")
)
