// Package types holds the domain records exchanged between tasks. Every
// value is owned by exactly one task at a time; transfer happens only
// through bus messages, never through shared mutable aliasing.
package types

import (
	"fridgecode-go/errcode"
	"fridgecode-go/onewire"
	"fridgecode-go/x/timex"
)

// ------------------------
// Sensor path
// ------------------------

// SensorReading is one temperature sample from one sensor. Temp is only
// meaningful when Valid is true; a faulted cycle publishes Valid=false and
// must not disturb the previous valid reading held downstream.
type SensorReading struct {
	Addr  onewire.Address
	Temp  Temp
	Tick  timex.Tick
	Valid bool
}

// Measurement is the per-cycle control input: the mean of this cycle's
// valid readings. Healthy counts the sensors not permanently faulted; a
// transiently failing sensor stays healthy until its retry budget runs out.
// Valid is false when no sensor produced a reading this cycle; Temp then
// carries the previous mean.
type Measurement struct {
	Temp    Temp
	Tick    timex.Tick
	Valid   bool
	Healthy uint8
}

// ------------------------
// Actuation
// ------------------------

// Direction of actuator drive. The plant only cools; heating does not exist
// in this design.
type Direction uint8

const (
	DirIdle Direction = iota
	DirCool
)

func (d Direction) String() string {
	if d == DirCool {
		return "cool"
	}
	return "idle"
}

// ActuatorCommand is a desired drive level in logical duty counts
// [0..MaxDuty]. Produced by the control task (or a safety override),
// consumed once by the actuator driver.
type ActuatorCommand struct {
	Duty      uint16
	Direction Direction
	Tick      timex.Tick
}

// Gains is the runtime PID tuning payload, Q16.16 duty counts per
// sixteenth-degree.
type Gains struct {
	Kp, Ki, Kd int32
}

// ------------------------
// Faults
// ------------------------

// FaultRecord is one detected abnormal condition. Sensor is zero when the
// fault is not tied to a specific sensor. Once raised a fault persists until
// recovery logic in the safety supervisor clears it.
type FaultRecord struct {
	Kind   errcode.Code
	Tick   timex.Tick
	Sensor onewire.Address
}

// ------------------------
// Status (retained on the bus for terminal/heartbeat)
// ------------------------

type Status struct {
	State  string // safety state: "normal", "degraded", "shutdown"
	Reason errcode.Code
	Temp   Temp
	Valid  bool
	Duty   uint16
	Faults uint8
	Tick   timex.Tick
}
