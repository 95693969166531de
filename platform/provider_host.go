//go:build !(rp2040 || rp2350)

package platform

import (
	"os"

	"fridgecode-go/onewire"
	"fridgecode-go/platform/simow"
	"fridgecode-go/types"
)

// Host build: the appliance runs against simulated hardware so the whole
// stack can be exercised on a workstation. Sensors live on a simow net,
// PWM outputs record their last level, the terminal is stdio.

type hostPWM struct {
	freq  uint32
	level uint16
}

func (p *hostPWM) Configure(freqHz uint32) error { p.freq = freqHz; return nil }
func (p *hostPWM) Top() uint16                   { return 999 }
func (p *hostPWM) Set(counts uint16)             { p.level = counts }

// New builds the host provider: two simulated sensors at plausible cabinet
// temperatures, recording PWMs, stdio terminal, no watchdog.
func New(thermo types.ThermoConfig, cool types.CoolerConfig) (*Provider, error) {
	net := simow.NewNet()
	for i, raw := range []int16{7 * 16, 7*16 + 8} {
		dev := simow.NewDevice(simAddress(uint64(i + 1)))
		dev.SetTemp(raw)
		net.Attach(dev)
	}

	p := &Provider{
		Pin:         net,
		DelayUs:     net.DelayFn(),
		CoolerPWM:   &hostPWM{},
		TerminalIn:  os.Stdin,
		TerminalOut: os.Stdout,
	}
	if cool.FanPin >= 0 {
		p.FanPWM = &hostPWM{}
	}
	return p, nil
}

// ArmWatchdog is a no-op on the host.
func ArmWatchdog(timeoutMs int64) {}

// simAddress builds a valid sensor ROM for the simulated net.
func simAddress(serial uint64) onewire.Address {
	var b [8]byte
	b[0] = 0x28
	for i := 1; i < 7; i++ {
		b[i] = byte(serial >> (8 * (i - 1)))
	}
	b[7] = onewire.CRC8(b[:7])
	return onewire.AddressFromBytes(b)
}
