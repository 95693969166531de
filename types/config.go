package types

// ------------------------
// Startup configuration
//
// Configuration is a fixed, load-time set of constants published by the
// config service as one retained bus message per section. There is no
// runtime reconfiguration API; the terminal may adjust setpoint/gains but
// those changes are not persisted.
// ------------------------

// ThermoConfig configures the sensor-sampling task.
type ThermoConfig struct {
	BusPin     int      // GPIO number of the one-wire line
	Sensors    []string // hex ROM addresses; empty => discover at startup
	MaxSensors int      // bound on discovery
	PeriodMs   int64    // sampling period
	Resolution int      // 9..12 bits
	RetryLimit int      // consecutive failures before permanent fault
	QueueLen   int      // reading channel capacity (drop-oldest)
}

// ControlConfig configures the PID control task. Gains are Q16.16 duty
// counts per sixteenth-degree of error.
type ControlConfig struct {
	SetpointC int32 // whole degrees Celsius
	KpQ16     int32
	KiQ16     int32
	KdQ16     int32
	IMax      int32  // integral clamp, duty counts
	MaxDuty   uint16 // logical duty range is [0..MaxDuty]
}

// CoolerConfig configures the actuator driver.
type CoolerConfig struct {
	PWMPin       int
	FanPin       int // -1 when no auxiliary fan is fitted
	FreqHz       uint32
	MaxDuty      uint16
	SlewPerCycle uint16 // max duty change per control cycle
	MinDwellMs   int64  // time at zero duty before drive may re-enable
	FanDuty      uint16 // fixed fan level while cooling
}

// SafetyConfig configures the supervisor.
type SafetyConfig struct {
	HardMaxC   int32 // absolute over-temperature limit, whole degrees
	HardMinC   int32 // absolute under-temperature limit
	MarginC    int32 // degraded-state margin below/above the hard limits
	HoldMs     int64 // degraded must stay clear this long before re-normal
	PeriodMs   int64 // supervisor cycle
	WatchdogMs int64 // task check-in budget before a sched fault
}

// ------------------------
// Map decoding
//
// tinyjson yields map[string]any with float64 numbers; these helpers pull
// typed fields out with defaults so a sparse config section stays usable.
// ------------------------

func MapInt(m map[string]any, key string, def int64) int64 {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return int64(f)
		}
		if i, ok := v.(int); ok {
			return int64(i)
		}
	}
	return def
}

func MapStr(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func MapStrs(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ThermoConfigFromMap decodes the "thermo" config section.
func ThermoConfigFromMap(m map[string]any) ThermoConfig {
	return ThermoConfig{
		BusPin:     int(MapInt(m, "bus_pin", 12)),
		Sensors:    MapStrs(m, "sensors"),
		MaxSensors: int(MapInt(m, "max_sensors", 4)),
		PeriodMs:   MapInt(m, "period_ms", 2000),
		Resolution: int(MapInt(m, "resolution", 12)),
		RetryLimit: int(MapInt(m, "retry_limit", 3)),
		QueueLen:   int(MapInt(m, "queue_len", 4)),
	}
}

// ControlConfigFromMap decodes the "control" config section.
func ControlConfigFromMap(m map[string]any) ControlConfig {
	return ControlConfig{
		SetpointC: int32(MapInt(m, "setpoint_c", 5)),
		KpQ16:     int32(MapInt(m, "kp_q16", 1<<16)),
		KiQ16:     int32(MapInt(m, "ki_q16", 1<<14)),
		KdQ16:     int32(MapInt(m, "kd_q16", 1<<13)),
		IMax:      int32(MapInt(m, "imax", 500)),
		MaxDuty:   uint16(MapInt(m, "max_duty", 1000)),
	}
}

// CoolerConfigFromMap decodes the "cooler" config section.
func CoolerConfigFromMap(m map[string]any) CoolerConfig {
	return CoolerConfig{
		PWMPin:       int(MapInt(m, "pwm_pin", 4)),
		FanPin:       int(MapInt(m, "fan_pin", -1)),
		FreqHz:       uint32(MapInt(m, "freq_hz", 25000)),
		MaxDuty:      uint16(MapInt(m, "max_duty", 1000)),
		SlewPerCycle: uint16(MapInt(m, "slew_per_cycle", 50)),
		MinDwellMs:   MapInt(m, "min_dwell_ms", 5000),
		FanDuty:      uint16(MapInt(m, "fan_duty", 800)),
	}
}

// SafetyConfigFromMap decodes the "safety" config section.
func SafetyConfigFromMap(m map[string]any) SafetyConfig {
	return SafetyConfig{
		HardMaxC:   int32(MapInt(m, "hard_max_c", 15)),
		HardMinC:   int32(MapInt(m, "hard_min_c", -10)),
		MarginC:    int32(MapInt(m, "margin_c", 2)),
		HoldMs:     MapInt(m, "hold_ms", 5000),
		PeriodMs:   MapInt(m, "period_ms", 100),
		WatchdogMs: MapInt(m, "watchdog_ms", 1000),
	}
}
