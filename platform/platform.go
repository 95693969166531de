// Package platform is the seam between the control core and the board.
// Exactly one provider is compiled in: the rp2040 provider drives real
// pins, PWM slices, UART and the hardware watchdog; the host provider
// substitutes a simulated sensor net and stdio so the same binary logic
// runs in tests and on a workstation.
package platform

import (
	"io"

	"fridgecode-go/cooler"
	"fridgecode-go/onewire"
)

// Watchdog is the hardware watchdog. Nil on builds without one.
type Watchdog interface {
	Refresh()
}

// Resetter reboots the board. Nil on builds without one.
type Resetter interface {
	Reset()
}

// Provider bundles everything the boot path needs from the board.
type Provider struct {
	Pin     onewire.Pin
	DelayUs onewire.DelayUs

	CoolerPWM cooler.PWM
	FanPWM    cooler.PWM // nil when no fan is fitted

	TerminalIn  io.Reader
	TerminalOut io.Writer

	Watchdog Watchdog // nil on host
	Resetter Resetter // nil on host
}
