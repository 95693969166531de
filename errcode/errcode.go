package errcode

// Code is a stable, bus-facing fault/error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Sensor path
	SensorTimeout Code = "sensor_timeout"
	CrcFailure    Code = "crc_failure"
	SensorFault   Code = "sensor_fault" // consecutive-failure threshold crossed

	// Thermal limits
	OverTemp  Code = "over_temp"
	UnderTemp Code = "under_temp"

	// Actuation / scheduling
	ActuatorFault Code = "actuator_fault"
	SchedFault    Code = "sched_fault" // deadline miss or wedged task

	// Control plane
	InvalidParams  Code = "invalid_params"
	UnknownCommand Code = "unknown_command"
	Busy           Code = "busy"
	Timeout        Code = "timeout"
	Shutdown       Code = "shutdown"

	Error Code = "error" // generic fallback
)

// E is an optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
