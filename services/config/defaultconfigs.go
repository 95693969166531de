package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// One JSON blob per board, keyed by board name. Regenerate or edit by hand;
// values missing from a section fall back to the decoder defaults in types.
// -----------------------------------------------------------------------------

const cfgFridgePico = `{
  "thermo": {
      "bus_pin": 12,
      "max_sensors": 4,
      "period_ms": 2000,
      "resolution": 12,
      "retry_limit": 3,
      "queue_len": 4
  },
  "control": {
      "setpoint_c": 5,
      "kp_q16": 655360,
      "ki_q16": 16384,
      "kd_q16": 8192,
      "imax": 500,
      "max_duty": 1000
  },
  "cooler": {
      "pwm_pin": 4,
      "fan_pin": -1,
      "freq_hz": 25000,
      "max_duty": 1000,
      "slew_per_cycle": 50,
      "min_dwell_ms": 5000,
      "fan_duty": 800
  },
  "safety": {
      "hard_max_c": 15,
      "hard_min_c": -10,
      "margin_c": 2,
      "hold_ms": 5000,
      "period_ms": 100,
      "watchdog_ms": 5000
  },
  "terminal": {
      "history": 64
  }
}`

var embeddedConfigs = map[string][]byte{
	"fridge-pico": []byte(cfgFridgePico),
}
