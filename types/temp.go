package types

import "fridgecode-go/x/conv"

// Temp is a fixed-point temperature in sixteenths of a degree Celsius
// (Q27.4). The scale matches the sensor's 12-bit counts exactly, so raw
// sensor data, PID arithmetic and limit checks all share one representation
// with 0.0625 degC resolution and no cross-component rounding.
type Temp int32

// TempFromCelsius converts whole degrees.
func TempFromCelsius(c int32) Temp { return Temp(c << 4) }

// TempFromRaw reinterprets a sensor count already scaled to sixteenths.
func TempFromRaw(raw int16) Temp { return Temp(raw) }

// Sixteenths returns the raw fixed-point value.
func (t Temp) Sixteenths() int32 { return int32(t) }

// Celsius returns the whole-degree part, truncated toward zero.
func (t Temp) Celsius() int32 { return int32(t) / 16 }

// String renders the exact value with four decimals, e.g. "25.0625" or
// "-3.5000". Each sixteenth is exactly 625 ten-thousandths, so the decimal
// expansion is always exact.
func (t Temp) String() string {
	v := int32(t)
	var out []byte
	if v < 0 {
		out = append(out, '-')
		v = -v
	}
	var buf [20]byte
	out = append(out, conv.Itoa(buf[:], int64(v/16))...)
	out = append(out, '.')
	frac := (v % 16) * 625
	for div := int32(1000); div > 0; div /= 10 {
		out = append(out, byte('0'+(frac/div)%10))
	}
	return string(out)
}
