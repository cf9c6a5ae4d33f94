package foc

import "github.com/orsinium-labs/tinymath"

// ClarkeFromBC projects phase B and C currents into the stationary
// alpha-beta frame (spec.md §4.B). Phase A is reconstructed implicitly
// from the balanced-phase assumption ia = -ib-ic, matching the
// two-input Clarke transform the original firmware uses, so only two
// of the three phase currents ever need to be sensed.
func ClarkeFromBC(ib, ic float32) (alpha, beta float32) {
	alpha = -ib - ic
	beta = (ib - ic) * oneBySqrt3
	return alpha, beta
}

// InverseClarke reconstructs three-phase quantities from alpha-beta.
// Within this package it is used only by the round-trip identity test.
func InverseClarke(alpha, beta float32) (a, b, c float32) {
	a = alpha
	b = -0.5*alpha + sqrt3By2*beta
	c = -0.5*alpha - sqrt3By2*beta
	return a, b, c
}

// Park rotates the stationary alpha-beta frame into the rotor-aligned
// d-q frame at electrical angle theta (spec.md §4.B).
func Park(alpha, beta, theta float32) (d, q float32) {
	s := tinymath.Sin(theta)
	c := tinymath.Cos(theta)
	d = alpha*c + beta*s
	q = -alpha*s + beta*c
	return d, q
}

// InversePark rotates d-q back into the stationary alpha-beta frame.
func InversePark(d, q, theta float32) (alpha, beta float32) {
	s := tinymath.Sin(theta)
	c := tinymath.Cos(theta)
	alpha = d*c - q*s
	beta = d*s + q*c
	return alpha, beta
}

// svmResult distinguishes why svm rejected a vector, so callers can
// raise the matching ErrorKind (spec.md §4.B requires MODULATION_IS_NAN
// and MODULATION_MAGNITUDE to be distinct outcomes, not one).
type svmResult int

const (
	svmOK svmResult = iota
	svmNaN
	svmOverMagnitude
)

// svm performs space vector modulation: given a voltage vector in the
// alpha-beta plane (normalized to the DC bus, so the linear range is a
// hexagon of circumradius 1 and incircle radius sqrt3/2), it returns
// the three phase duty cycles in [0, 1] that synthesize it.
//
// Returns svmNaN if alpha/beta are not finite, or svmOverMagnitude if
// the vector's magnitude exceeds the hexagon's inscribed circle
// (spec.md §4.B's "|m| > sqrt(3)/2" overmodulation gate).
func svm(alpha, beta float32) (ta, tb, tc float32, result svmResult) {
	if !isFinite32(alpha) || !isFinite32(beta) {
		return 0, 0, 0, svmNaN
	}
	if magnitude2(alpha, beta) > sqrt3By2*sqrt3By2 {
		return 0, 0, 0, svmOverMagnitude
	}

	var sector int
	switch {
	case beta >= 0:
		if alpha >= 0 && oneBySqrt3*beta <= alpha {
			sector = 1
		} else if alpha < 0 && oneBySqrt3*beta <= -alpha {
			sector = 2
		} else {
			sector = 3
		}
	default:
		if alpha < 0 && -oneBySqrt3*beta <= -alpha {
			sector = 4
		} else if alpha >= 0 && -oneBySqrt3*beta <= alpha {
			sector = 6
		} else {
			sector = 5
		}
	}

	var t1, t2 float32
	switch sector {
	case 1:
		t1 = alpha - oneBySqrt3*beta
		t2 = twoBySqrt3 * beta
	case 2:
		t1 = alpha + oneBySqrt3*beta
		t2 = -alpha + oneBySqrt3*beta
	case 3:
		t1 = -alpha + oneBySqrt3*beta
		t2 = -twoBySqrt3 * beta
	case 4:
		t1 = -alpha - oneBySqrt3*beta
		t2 = alpha - oneBySqrt3*beta
	case 5:
		t1 = -twoBySqrt3 * beta
		t2 = alpha + oneBySqrt3*beta
	default: // 6
		t1 = twoBySqrt3 * beta
		t2 = -alpha - oneBySqrt3*beta
	}

	t0 := 1 - t1 - t2
	if t0 < 0 {
		// clip to the boundary of the linear range instead of failing
		// outright; the magnitude gate above should make this rare.
		scale := 1 / (t1 + t2)
		t1 *= scale
		t2 *= scale
		t0 = 0
	}

	tA := t0/2 + t1 + t2
	tB := t0 / 2
	tC := t0/2 + t2

	switch sector {
	case 1:
		ta, tb, tc = tA, tB, tC
	case 2:
		ta, tb, tc = tB, tA, tC
	case 3:
		ta, tb, tc = tC, tA, tB
	case 4:
		ta, tb, tc = tC, tB, tA
	case 5:
		ta, tb, tc = tB, tC, tA
	default: // 6
		ta, tb, tc = tA, tC, tB
	}

	if ta < 0 || ta > 1 || tb < 0 || tb > 1 || tc < 0 || tc > 1 {
		return 0, 0, 0, svmOverMagnitude
	}
	return ta, tb, tc, svmOK
}

// enqueueModulationTimings converts a normalized alpha-beta voltage
// vector into duty cycles and posts them to the single-slot handoff the
// PWM update callback consumes from. Returns the matching ErrorKind
// (ErrModulationIsNaN or ErrModulationMagnitude) if svm rejects the
// vector, or 0 on success.
func (m *Motor) enqueueModulationTimings(alpha, beta float32) ErrorKind {
	ta, tb, tc, result := svm(alpha, beta)
	switch result {
	case svmOK:
		m.state.current.finalVAlpha = alpha
		m.state.current.finalVBeta = beta
		m.state.next.timings = [3]float32{ta, tb, tc}
		m.state.next.valid.Store(true)
		return 0
	case svmNaN:
		return ErrModulationIsNaN
	default:
		return ErrModulationMagnitude
	}
}

// enqueueVoltageTimings is the voltage-mode path (used directly by
// GIMBAL motors and by calibration): it normalizes a dq voltage command
// against the DC bus (spec.md §4.B/§4.C step 7: md = Vd/((2/3)*Vbus)),
// rotates the result to alpha-beta and hands it to the modulator.
func (m *Motor) enqueueVoltageTimings(vd, vq, theta, vbus float32) ErrorKind {
	denom := (2.0 / 3.0) * vbus
	md := vd / denom
	mq := vq / denom
	alpha, beta := InversePark(md, mq, theta)
	return m.enqueueModulationTimings(alpha, beta)
}
