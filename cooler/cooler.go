// Package cooler drives the compressor (or Peltier stage) through a PWM
// channel, plus an optional auxiliary fan. The driver sits between the
// controller's demand and the hardware: it rate-limits duty changes,
// enforces a minimum off dwell after every shutdown, and consults the
// safety override immediately before each hardware write so an override
// raised mid-cycle still lands in the same cycle.
package cooler

import (
	"fridgecode-go/types"
	"fridgecode-go/x/mathx"
	"fridgecode-go/x/ramp"
	"fridgecode-go/x/timex"
)

// PWM is one hardware PWM channel, already routed to a pin.
type PWM interface {
	// Configure sets the carrier frequency; Top reports the counter wrap
	// value that corresponds to 100% duty afterwards.
	Configure(freqHz uint32) error
	Top() uint16
	// Set drives the compare level in counter counts, 0..Top.
	Set(counts uint16)
}

// Override yields the clamp the safety supervisor currently demands.
// It must be cheap and safe to call from the actuator path every cycle.
type Override interface {
	// MaxDuty returns the highest logical duty currently allowed. Zero
	// forces the drive off regardless of demand.
	MaxDuty() uint16
}

// Driver owns the cooler hardware. Apply is the only mutator; all state
// lives here and is touched by exactly one task.
type Driver struct {
	pwm      PWM
	fan      PWM // nil when no auxiliary fan is fitted
	override Override

	maxDuty  uint16 // logical full scale
	slewStep uint16 // max logical change per Apply
	dwell    timex.Tick
	fanDuty  uint16 // fixed logical fan level while cooling

	cur     uint16 // logical duty currently applied
	offTick timex.Tick
	wasOn   bool
}

// New configures the PWM carriers and returns an idle driver. fan and
// override may be nil.
func New(pwm, fan PWM, override Override, cfg types.CoolerConfig) (*Driver, error) {
	if err := pwm.Configure(cfg.FreqHz); err != nil {
		return nil, err
	}
	pwm.Set(0)
	if fan != nil {
		if err := fan.Configure(cfg.FreqHz); err != nil {
			return nil, err
		}
		fan.Set(0)
	}
	d := &Driver{
		pwm:      pwm,
		fan:      fan,
		override: override,
		maxDuty:  cfg.MaxDuty,
		slewStep: cfg.SlewPerCycle,
		dwell:    timex.Tick(cfg.MinDwellMs),
		fanDuty:  cfg.FanDuty,
	}
	// Allow an immediate start after boot.
	d.offTick = timex.Tick(-cfg.MinDwellMs)
	return d, nil
}

// Duty returns the logical duty currently on the hardware.
func (d *Driver) Duty() uint16 { return d.cur }

// Apply moves the drive toward cmd, subject to the slew limit, the minimum
// dwell, and the safety override. It returns the duty actually applied.
func (d *Driver) Apply(cmd types.ActuatorCommand) uint16 {
	target := cmd.Duty
	if cmd.Direction == types.DirIdle {
		target = 0
	}
	target = mathx.Min(target, d.maxDuty)

	// Re-enable only after the compressor has rested.
	if target > 0 && d.cur == 0 {
		if cmd.Tick-d.offTick < d.dwell {
			target = 0
		}
	}

	next := ramp.Slew(d.cur, target, d.maxDuty, d.slewStep)

	// The override is read last, after the ramp: a shutdown raised during
	// this control cycle lands in this same Apply, not at the end of a
	// slew-limited descent.
	if d.override != nil {
		next = mathx.Min(next, d.override.MaxDuty())
	}

	d.set(next, cmd.Tick)
	return next
}

// ForceOff drops the drive to zero immediately, bypassing the slew limit.
// Used by the safety supervisor on shutdown; the dwell timer still starts.
func (d *Driver) ForceOff(tick timex.Tick) {
	d.set(0, tick)
}

func (d *Driver) set(duty uint16, tick timex.Tick) {
	if duty == 0 && d.wasOn {
		d.offTick = tick
	}
	d.cur = duty
	d.wasOn = duty > 0

	d.pwm.Set(mathx.MapU16(duty, 0, d.maxDuty, 0, d.pwm.Top()))
	if d.fan != nil {
		if duty > 0 {
			d.fan.Set(mathx.MapU16(d.fanDuty, 0, d.maxDuty, 0, d.fan.Top()))
		} else {
			d.fan.Set(0)
		}
	}
}
