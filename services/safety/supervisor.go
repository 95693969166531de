// Package safety is the single authority over actuation limits. It runs the
// highest-priority periodic task, evaluates every fault source each cycle,
// and owns the override the actuator driver consults before touching
// hardware. Nothing else in the system may halt or limit the drive.
package safety

import (
	"sync/atomic"

	"fridgecode-go/errcode"
	"fridgecode-go/types"
	"fridgecode-go/x/timex"
)

// State of the supervisor.
type State uint8

const (
	Normal State = iota
	Degraded
	Shutdown
)

func (s State) String() string {
	switch s {
	case Degraded:
		return "degraded"
	case Shutdown:
		return "shutdown"
	}
	return "normal"
}

// DutyLimit is the actuation clamp shared with the cooler driver. Reads are
// a single atomic load so the actuator path can consult it every cycle.
type DutyLimit struct {
	max atomic.Uint32
}

// NewDutyLimit starts unrestricted at full.
func NewDutyLimit(full uint16) *DutyLimit {
	l := &DutyLimit{}
	l.max.Store(uint32(full))
	return l
}

// MaxDuty returns the highest logical duty currently allowed.
func (l *DutyLimit) MaxDuty() uint16 { return uint16(l.max.Load()) }

func (l *DutyLimit) set(d uint16) { l.max.Store(uint32(d)) }

// maxFaults bounds the retained fault history.
const maxFaults = 8

// Input is one supervisor cycle's worth of observations.
type Input struct {
	Temp    types.Temp // last measurement, meaningful when Valid
	Valid   bool
	Healthy uint8 // sensors that produced a reading recently
	Total   uint8 // sensors configured or discovered

	Faults     []types.FaultRecord // new fault events since last cycle
	SchedFault bool                // a task missed its check-in budget

	Tick timex.Tick
}

// Supervisor is the fault state machine. Step is called from exactly one
// task; only the duty limit crosses task boundaries.
type Supervisor struct {
	cfg   types.SafetyConfig
	limit *DutyLimit
	full  uint16

	state  State
	reason errcode.Code

	faults  [maxFaults]types.FaultRecord
	nfaults uint8

	lastBad timex.Tick // most recent tick a degrade condition held
}

// NewSupervisor builds the state machine around a shared duty limit.
// full is the unrestricted duty ceiling.
func NewSupervisor(cfg types.SafetyConfig, limit *DutyLimit, full uint16) *Supervisor {
	limit.set(full)
	return &Supervisor{cfg: cfg, limit: limit, full: full, state: Normal, reason: errcode.OK}
}

func (s *Supervisor) State() State         { return s.state }
func (s *Supervisor) Reason() errcode.Code { return s.reason }

// Faults returns the retained fault records, oldest first.
func (s *Supervisor) Faults() []types.FaultRecord {
	return s.faults[:s.nfaults]
}

func (s *Supervisor) recordFault(f types.FaultRecord) {
	if s.nfaults < maxFaults {
		s.faults[s.nfaults] = f
		s.nfaults++
		return
	}
	// Full: shift out the oldest. Rare path, bounded work.
	copy(s.faults[:], s.faults[1:])
	s.faults[maxFaults-1] = f
}

// Step evaluates one cycle. Shutdown latches; everything else re-evaluates
// from the current observations. The duty limit is updated before Step
// returns, so a condition detected this cycle clamps this cycle.
func (s *Supervisor) Step(in Input) (State, errcode.Code) {
	for _, f := range in.Faults {
		s.recordFault(f)
	}
	if in.SchedFault {
		s.recordFault(types.FaultRecord{Kind: errcode.SchedFault, Tick: in.Tick})
	}

	shutdownReason := s.shutdownCondition(in)
	degradeReason := s.degradeCondition(in)

	switch s.state {
	case Shutdown:
		// Latched until acknowledged.
	default:
		if shutdownReason != errcode.OK {
			s.state = Shutdown
			s.reason = shutdownReason
		} else if degradeReason != errcode.OK {
			s.state = Degraded
			s.reason = degradeReason
			s.lastBad = in.Tick
		} else if s.state == Degraded {
			// Self-clear only after the condition has stayed away.
			if in.Tick-s.lastBad >= timex.Tick(s.cfg.HoldMs) {
				s.state = Normal
				s.reason = errcode.OK
			}
		}
	}

	if s.state == Shutdown {
		s.limit.set(0)
	} else {
		s.limit.set(s.full)
	}
	return s.state, s.reason
}

func (s *Supervisor) shutdownCondition(in Input) errcode.Code {
	if in.SchedFault {
		return errcode.SchedFault
	}
	if in.Total > 0 && in.Healthy == 0 {
		return errcode.SensorFault
	}
	if in.Valid {
		if in.Temp >= types.TempFromCelsius(s.cfg.HardMaxC) {
			return errcode.OverTemp
		}
		if in.Temp <= types.TempFromCelsius(s.cfg.HardMinC) {
			return errcode.UnderTemp
		}
	}
	return errcode.OK
}

func (s *Supervisor) degradeCondition(in Input) errcode.Code {
	if in.Total > 0 && in.Healthy < in.Total {
		return errcode.SensorFault
	}
	if in.Valid {
		if in.Temp >= types.TempFromCelsius(s.cfg.HardMaxC-s.cfg.MarginC) {
			return errcode.OverTemp
		}
		if in.Temp <= types.TempFromCelsius(s.cfg.HardMinC+s.cfg.MarginC) {
			return errcode.UnderTemp
		}
	}
	return errcode.OK
}

// Acknowledge clears a latched Shutdown and the fault history. The next
// Step re-evaluates from live observations, so a still-present condition
// trips again immediately.
func (s *Supervisor) Acknowledge() {
	if s.state != Shutdown {
		return
	}
	s.state = Normal
	s.reason = errcode.OK
	s.nfaults = 0
	s.limit.set(s.full)
}

// RefreshAllowed reports whether the hardware watchdog may be fed. In
// Shutdown the watchdog is deliberately starved so the hardware resets the
// board into a known-safe state.
func (s *Supervisor) RefreshAllowed() bool { return s.state != Shutdown }
