// Package control computes actuator demand from temperature measurements.
// All arithmetic is integer fixed point: gains are Q16.16 duty counts per
// sixteenth-degree, temperatures are sixteenths of a degree, output is
// logical duty counts. The same inputs always produce the same outputs.
package control

import (
	"fridgecode-go/types"
	"fridgecode-go/x/mathx"
	"fridgecode-go/x/timex"
)

// PID is a cool-only proportional-integral-derivative controller. Error is
// measurement minus setpoint, so a warm cabinet yields positive error and
// positive (cooling) demand; demand below zero clamps to idle.
//
// Windup protection is twofold: the integral is clamped to +-IMax duty
// counts, and an update whose output saturates does not accumulate further
// in the saturating direction. The derivative acts on the measurement, not
// the error, so a setpoint step never spikes the output.
type PID struct {
	kp, ki, kd int32 // Q16.16
	iMax       int32 // duty counts
	maxDuty    uint16
	setpoint   types.Temp

	integ    int64 // Q16.16 duty counts
	lastMeas types.Temp
	lastTick timex.Tick
	lastOut  uint16
	primed   bool
}

// New builds a controller from a config section.
func New(cfg types.ControlConfig) *PID {
	return &PID{
		kp:       cfg.KpQ16,
		ki:       cfg.KiQ16,
		kd:       cfg.KdQ16,
		iMax:     cfg.IMax,
		maxDuty:  cfg.MaxDuty,
		setpoint: types.TempFromCelsius(cfg.SetpointC),
	}
}

// Setpoint returns the current target temperature.
func (p *PID) Setpoint() types.Temp { return p.setpoint }

// SetSetpoint retargets the controller without disturbing its state. The
// derivative term ignores setpoint changes entirely, so there is no kick.
func (p *PID) SetSetpoint(t types.Temp) { p.setpoint = t }

// SetGains replaces the tuning at runtime (terminal use). The integral is
// reset so stale accumulation under the old gains cannot leak through.
func (p *PID) SetGains(kp, ki, kd int32) {
	p.kp, p.ki, p.kd = kp, ki, kd
	p.integ = 0
}

// Gains returns the current Q16.16 tuning.
func (p *PID) Gains() (kp, ki, kd int32) { return p.kp, p.ki, p.kd }

// Reset clears accumulated state. The next Update primes from scratch.
func (p *PID) Reset() {
	p.integ = 0
	p.lastOut = 0
	p.primed = false
}

// Update advances the controller by one measurement and returns the demand.
// An invalid measurement holds the previous output and accumulates nothing;
// stale data must never steer the integral.
func (p *PID) Update(m types.Measurement) types.ActuatorCommand {
	if !m.Valid {
		return p.command(p.lastOut, m.Tick)
	}

	if !p.primed {
		p.primed = true
		p.lastMeas = m.Temp
		p.lastTick = m.Tick
		out := p.proportional(m.Temp)
		p.lastOut = p.clampDuty(out)
		return p.command(p.lastOut, m.Tick)
	}

	dtMs := int64(m.Tick - p.lastTick)
	if dtMs <= 0 {
		dtMs = 1
	}

	errS := int64(m.Temp - p.setpoint)

	// Proportional, Q16.16 gain times sixteenths of error.
	pTerm := int64(p.kp) * errS >> 16

	// Integral candidate, scaled by the actual interval in seconds.
	integ := p.integ + int64(p.ki)*errS*dtMs/1000
	iMax := int64(p.iMax) << 16
	integ = mathx.Clamp(integ, -iMax, iMax)

	// Derivative on the measurement (per second), sign-flipped so a rising
	// temperature adds cooling demand.
	dMeas := int64(m.Temp-p.lastMeas) * 1000 / dtMs
	dTerm := int64(p.kd) * dMeas >> 16

	out := pTerm + integ>>16 + dTerm

	// Saturation freeze: when the output rails, keep the integral from
	// accumulating further in the railing direction.
	if out > int64(p.maxDuty) && integ > p.integ {
		integ = p.integ
	} else if out < 0 && integ < p.integ {
		integ = p.integ
	}
	p.integ = integ

	p.lastMeas = m.Temp
	p.lastTick = m.Tick
	p.lastOut = p.clampDuty(out)
	return p.command(p.lastOut, m.Tick)
}

func (p *PID) proportional(t types.Temp) int64 {
	return int64(p.kp) * int64(t-p.setpoint) >> 16
}

func (p *PID) clampDuty(out int64) uint16 {
	return uint16(mathx.Clamp(out, 0, int64(p.maxDuty)))
}

func (p *PID) command(duty uint16, tick timex.Tick) types.ActuatorCommand {
	dir := types.DirIdle
	if duty > 0 {
		dir = types.DirCool
	}
	return types.ActuatorCommand{Duty: duty, Direction: dir, Tick: tick}
}
