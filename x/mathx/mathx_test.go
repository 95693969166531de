package mathx

import "testing"

func TestClampBetween(t *testing.T) {
	type C struct {
		v, lo, hi int
		want      int
		in        bool
	}
	for _, c := range []C{
		{5, 0, 10, 5, true},
		{-3, 0, 10, 0, false},
		{12, 0, 10, 10, false},
		{0, 0, 10, 0, true},
		{5, 10, 0, 5, true}, // swapped bounds
	} {
		if got := Clamp(c.v, c.lo, c.hi); got != c.want {
			t.Fatalf("Clamp(%d,%d,%d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
		if got := Between(c.v, c.lo, c.hi); got != c.in {
			t.Fatalf("Between(%d,%d,%d) = %v, want %v", c.v, c.lo, c.hi, got, c.in)
		}
	}
}

func TestMinMaxAbs(t *testing.T) {
	if got := Min(uint16(3), 7); got != 3 {
		t.Fatalf("Min = %d, want 3", got)
	}
	if got := Max(uint16(3), 7); got != 7 {
		t.Fatalf("Max = %d, want 7", got)
	}
	if got := Max(int32(-4), -9); got != -4 {
		t.Fatalf("Max = %d, want -4", got)
	}
	for _, c := range []struct{ v, want int32 }{{0, 0}, {17, 17}, {-17, 17}} {
		if got := Abs(c.v); got != c.want {
			t.Fatalf("Abs(%d) = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestIntDiv(t *testing.T) {
	type C struct{ a, b, ceil, round uint32 }
	for _, c := range []C{
		{0, 4, 0, 0},
		{7, 4, 2, 2},
		{8, 4, 2, 2},
		{9, 4, 3, 2},
		{10, 4, 3, 3},
		{1, 0, 0, 0}, // divide-by-zero guard
	} {
		if got := CeilDiv(c.a, c.b); got != c.ceil {
			t.Fatalf("CeilDiv(%d,%d) = %d, want %d", c.a, c.b, got, c.ceil)
		}
		if got := RoundDiv(c.a, c.b); got != c.round {
			t.Fatalf("RoundDiv(%d,%d) = %d, want %d", c.a, c.b, got, c.round)
		}
	}
}

func TestMapU16(t *testing.T) {
	type C struct{ x, inMin, inMax, outMin, outMax, want uint16 }
	for _, c := range []C{
		{0, 0, 1000, 0, 65535, 0},
		{1000, 0, 1000, 0, 65535, 65535},
		{500, 0, 1000, 0, 65535, 32767},
		{2000, 0, 1000, 0, 65535, 65535}, // clamp high
		{0, 100, 1000, 0, 65535, 0},      // clamp low
		{7, 3, 3, 40, 50, 40},            // degenerate input range
	} {
		if got := MapU16(c.x, c.inMin, c.inMax, c.outMin, c.outMax); got != c.want {
			t.Fatalf("MapU16(%d,[%d,%d]->[%d,%d]) = %d, want %d",
				c.x, c.inMin, c.inMax, c.outMin, c.outMax, got, c.want)
		}
	}
}
