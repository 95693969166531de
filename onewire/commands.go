package onewire

// ROM-level command bytes common to all one-wire devices.
const (
	cmdSearchROM   = 0xF0
	cmdReadROM     = 0x33
	cmdMatchROM    = 0x55
	cmdSkipROM     = 0xCC
	cmdAlarmSearch = 0xEC
)
