//go:build rp2040

package platform

import (
	"machine"

	"device/arm"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"fridgecode-go/types"
	"fridgecode-go/x/mathx"
	"fridgecode-go/x/timex"
)

// Terminal UART wiring (UART0 on the standard Pico pins).
const (
	uartTX   = 0
	uartRX   = 1
	uartBaud = 115200
)

// -----------------------------------------------------------------------------
// One-wire pin (open drain over a GPIO)
// -----------------------------------------------------------------------------

// owPin bit-bangs the single-wire line: drive low as an output, release by
// switching back to input and letting the external pull-up raise the bus.
type owPin struct {
	p machine.Pin
}

func (o *owPin) Low() {
	o.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	o.p.Low()
}

func (o *owPin) Release() {
	o.p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}

func (o *owPin) Read() bool { return o.p.Get() }

// delayUs busy-waits with the cycle counter scaled from the core clock.
// The loop body costs a few cycles; the divisor is calibrated for the
// RP2040 at 125 MHz and errs slow, which the slot budgets tolerate.
func delayUs(us uint32) {
	cycles := uint64(us) * uint64(machine.CPUFrequency()) / 1_000_000 / 4
	for i := uint64(0); i < cycles; i++ {
		arm.Asm("nop")
	}
}

// -----------------------------------------------------------------------------
// PWM (one channel of an RP2040 slice)
// -----------------------------------------------------------------------------

type pwmCtrl interface {
	Configure(cfg machine.PWMConfig) error
	Top() uint32
	Set(channel uint8, value uint32)
	Channel(pin machine.Pin) (uint8, error)
}

func pwmGroupBySlice(slice uint8) pwmCtrl {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}

type rpPWM struct {
	pin  machine.Pin
	ctrl pwmCtrl
	ch   uint8
	top  uint16
}

func newRPPWM(pin int) (*rpPWM, error) {
	p := machine.Pin(pin)
	slice, err := machine.PWMPeripheral(p)
	if err != nil {
		return nil, err
	}
	return &rpPWM{pin: p, ctrl: pwmGroupBySlice(slice)}, nil
}

func (w *rpPWM) Configure(freqHz uint32) error {
	if err := w.ctrl.Configure(machine.PWMConfig{Period: timex.PeriodFromHz(freqHz)}); err != nil {
		return err
	}
	w.pin.Configure(machine.PinConfig{Mode: machine.PinPWM})
	ch, err := w.ctrl.Channel(w.pin)
	if err != nil {
		return err
	}
	w.ch = ch
	w.top = uint16(mathx.Min(w.ctrl.Top(), 0xFFFF))
	return nil
}

func (w *rpPWM) Top() uint16 { return w.top }

func (w *rpPWM) Set(counts uint16) {
	w.ctrl.Set(w.ch, uint32(counts))
}

// -----------------------------------------------------------------------------
// Watchdog / reset
// -----------------------------------------------------------------------------

type rpWatchdog struct{}

func (rpWatchdog) Refresh() { machine.Watchdog.Update() }

type rpReset struct{}

func (rpReset) Reset() { machine.CPUReset() }

// -----------------------------------------------------------------------------
// Provider
// -----------------------------------------------------------------------------

// New wires the board: one-wire GPIO, cooler (and optional fan) PWM
// channels, UART0 terminal, hardware watchdog armed with the safety
// supervisor's budget.
func New(thermo types.ThermoConfig, cool types.CoolerConfig) (*Provider, error) {
	ow := &owPin{p: machine.Pin(thermo.BusPin)}
	ow.Release()

	coolerPWM, err := newRPPWM(cool.PWMPin)
	if err != nil {
		return nil, err
	}
	var fanPWM *rpPWM
	if cool.FanPin >= 0 {
		if fanPWM, err = newRPPWM(cool.FanPin); err != nil {
			return nil, err
		}
	}

	uart := uartx.UART0
	if err := uart.Configure(uartx.UARTConfig{
		BaudRate: uartBaud,
		TX:       machine.Pin(uartTX),
		RX:       machine.Pin(uartRX),
	}); err != nil {
		return nil, err
	}

	p := &Provider{
		Pin:         ow,
		DelayUs:     delayUs,
		CoolerPWM:   coolerPWM,
		TerminalIn:  uart,
		TerminalOut: uart,
		Watchdog:    rpWatchdog{},
		Resetter:    rpReset{},
	}
	if fanPWM != nil {
		p.FanPWM = fanPWM
	}
	return p, nil
}

// ArmWatchdog starts the hardware watchdog with the given timeout. Called
// once from the boot path after the safety task is running.
func ArmWatchdog(timeoutMs int64) {
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{
		TimeoutMillis: uint32(timeoutMs),
	})
	_ = machine.Watchdog.Start()
}
