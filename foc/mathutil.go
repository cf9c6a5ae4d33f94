package foc

import (
	"golang.org/x/exp/constraints"
)

// sqrt3 is used throughout the modulation and current-control math.
const sqrt3 = 1.7320508075688772

// sqrt3By2 is the inscribed-circle radius of the SVM hexagon: the
// largest modulation magnitude that stays inside the linear range.
const sqrt3By2 float32 = float32(sqrt3 / 2)

// oneBySqrt3 and twoBySqrt3 are the sector-projection constants used by svm.
const (
	oneBySqrt3 float32 = float32(1 / sqrt3)
	twoBySqrt3 float32 = float32(2 / sqrt3)
)

// constrain clamps value to [lo, hi]. Ported from tmc5160/helpers.go's
// constrain[T constraints.Ordered], generalized to every clamp this
// package needs (current limits, torque limits, calibration voltages).
func constrain[T constraints.Ordered](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// magnitude2 returns a*a + b*b without risking overflow concerns tinymath's
// Sqrt would otherwise hide; kept as a small helper since it recurs in the
// current-limit check, the SVM gate, and anti-windup scaling.
func magnitude2(a, b float32) float32 {
	return a*a + b*b
}

// isFinite32 rejects NaN and overflowed-to-infinity values without relying
// on any particular math library's IsNaN/IsInf: v != v is the portable NaN
// test, and anything at or past ±maxFinite32 (slightly below float32's
// largest finite value of about 3.4e38) is treated as overflowed.
const maxFinite32 float32 = 3.0e38

func isFinite32(v float32) bool {
	if v != v {
		return false
	}
	return v < maxFinite32 && v > -maxFinite32
}

// maxf32/minf32 avoid depending on an unconfirmed Max/Min signature in
// tinymath's float32-only API; trivial enough to keep local.
func maxf32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func wrapAngle(theta float32) float32 {
	const pi = float32(3.14159265358979323846)
	for theta > pi {
		theta -= 2 * pi
	}
	for theta <= -pi {
		theta += 2 * pi
	}
	return theta
}
