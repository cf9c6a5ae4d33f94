package foc

import (
	"context"

	"github.com/orsinium-labs/tinymath"
)

// Calibration timing constants (spec.md §4.D). Resistance calibration
// runs a closed-loop current integrator for a fixed duration; inductance
// calibration injects a fixed number of square-wave half-cycles and
// looks at the resulting current delta.
const (
	resistanceCalibDurationSeconds = 3.0
	resistanceCalibGainI           = 10.0
	inductanceCalibNumCycles       = 5000
	inductanceCalibTestVoltage     = 1.0
)

// RunCalibration dispatches to the calibration sequence appropriate for
// the motor's configured type (spec.md §4.D), then always de-energizes
// the phases before returning, regardless of outcome (SPEC_FULL.md
// resolves the original's optional de-energize as unconditional here).
// axis is used only to pump the control loop tick-by-tick; calibration
// does not touch the axis's encoder or position controller. vbus
// samples the DC bus voltage once per tick, same as Update does.
func (m *Motor) RunCalibration(ctx context.Context, axis Axis, meas func() CurrentMeas, vbus func() float32) error {
	defer m.deenergize()

	if m.config.PreCalibrated {
		return nil
	}

	switch m.config.MotorType {
	case MotorTypeHighCurrent, MotorTypeACIM:
		if err := m.calibratePhaseResistance(ctx, axis, meas, vbus); err != nil {
			return err
		}
		if err := m.calibratePhaseInductance(ctx, axis, meas, vbus); err != nil {
			return err
		}
	case MotorTypeGimbal:
		// GIMBAL motors are voltage-driven; there is no current loop to
		// identify R/L for.
	default:
		m.state.err.or(ErrNotImplementedMotorType)
		return CustomError("cannot calibrate: unknown motor type")
	}

	m.state.isCalibrated = true
	return nil
}

// deenergize posts the zero voltage vector (50% duty on all three
// phases) to the handoff slot and marks it valid, so the next PWM cycle
// applies no net phase voltage, without requiring the caller to be
// armed.
func (m *Motor) deenergize() {
	m.state.next.timings = [3]float32{0.5, 0.5, 0.5}
	m.state.next.valid.Store(true)
}

// waitForCurrentMeas is a thin wrapper over axis.WaitForCurrentMeas
// that raises CURRENT_MEASUREMENT_TIMEOUT on any failure to observe the
// next sample (spec.md §4.F).
func (m *Motor) waitForCurrentMeas(ctx context.Context, axis Axis) error {
	if err := axis.WaitForCurrentMeas(ctx); err != nil {
		m.state.err.or(ErrCurrentMeasurementTimeout)
		return err
	}
	return nil
}

// calibratePhaseResistance integrates the d-axis test voltage from the
// current error, a closed-loop current regulator (spec.md §4.D): it ramps Id toward
// CalibrationCurrent, waits for the current to settle, then reads back
// the voltage needed to sustain it as R = V / I. Runs for
// resistanceCalibDurationSeconds worth of control ticks, driven by
// axis.RunControlLoop.
func (m *Motor) calibratePhaseResistance(ctx context.Context, axis Axis, meas func() CurrentMeas, vbus func() float32) error {
	var vInt float32
	var lastID float32
	ticks := 0
	ts := m.controlPeriod()
	totalTicks := int(resistanceCalibDurationSeconds / ts)

	err := axis.RunControlLoop(ctx, func() bool {
		if err := m.waitForCurrentMeas(ctx, axis); err != nil {
			return false
		}
		cm := meas()
		vb := vbus()
		m.state.vbus = vb
		alpha, beta := ClarkeFromBC(cm.PhaseB, cm.PhaseC)
		id, _ := Park(alpha, beta, 0)
		lastID = id

		idErr := m.config.CalibrationCurrent - id
		vInt += idErr * resistanceCalibGainI * ts
		vInt = constrain(vInt, 0, m.config.ResistanceCalibMaxVoltage)

		if kind := m.enqueueVoltageTimings(vInt, 0, 0, vb); kind != 0 {
			m.state.err.or(kind)
			return false
		}

		ticks++
		return ticks < totalTicks
	})
	if err != nil {
		return err
	}
	if m.state.err.load() != 0 {
		return CustomError("phase resistance calibration aborted by error")
	}
	if lastID <= 0 || vInt <= 0 {
		m.state.err.or(ErrPhaseResistanceOutOfRange)
		return CustomError("phase resistance calibration: current never settled")
	}

	r := vInt / lastID
	if !isFinite32(r) || r <= 0 || r > 10 {
		m.state.err.or(ErrPhaseResistanceOutOfRange)
		return CustomError("identified phase resistance out of range")
	}
	m.config.PhaseResistance = r
	m.state.current.pGain, m.state.current.iGain = currentControlGains(m.config)
	return nil
}

// calibratePhaseInductance injects a square wave onto the d-axis and
// measures the resulting current delta between the even and odd half
// cycles (spec.md §4.D): L = V * dt / dI, the standard di/dt
// inductance identification used by the original firmware.
func (m *Motor) calibratePhaseInductance(ctx context.Context, axis Axis, meas func() CurrentMeas, vbus func() float32) error {
	var sumEven, sumOdd float32
	var countEven, countOdd int
	ts := m.controlPeriod()

	err := axis.RunControlLoop(ctx, func() bool {
		if err := m.waitForCurrentMeas(ctx, axis); err != nil {
			return false
		}
		cm := meas()
		vb := vbus()
		m.state.vbus = vb
		alpha, beta := ClarkeFromBC(cm.PhaseB, cm.PhaseC)
		id, _ := Park(alpha, beta, 0)

		cycle := countEven + countOdd
		v := float32(inductanceCalibTestVoltage)
		if cycle%2 == 1 {
			v = -v
		}
		if kind := m.enqueueVoltageTimings(v, 0, 0, vb); kind != 0 {
			m.state.err.or(kind)
			return false
		}

		if cycle%2 == 0 {
			sumEven += id
			countEven++
		} else {
			sumOdd += id
			countOdd++
		}

		return cycle+1 < inductanceCalibNumCycles
	})
	if err != nil {
		return err
	}
	if m.state.err.load() != 0 {
		return CustomError("phase inductance calibration aborted by error")
	}
	if countEven == 0 || countOdd == 0 {
		m.state.err.or(ErrPhaseInductanceOutOfRange)
		return CustomError("phase inductance calibration: no samples collected")
	}

	avgEven := sumEven / float32(countEven)
	avgOdd := sumOdd / float32(countOdd)
	deltaI := tinymath.Abs(avgEven - avgOdd)
	if deltaI <= 0 {
		m.state.err.or(ErrPhaseInductanceOutOfRange)
		return CustomError("phase inductance calibration: current did not respond to test voltage")
	}

	l := float32(inductanceCalibTestVoltage) * ts / deltaI
	if err := validatePhaseInductance(l); err != nil {
		m.state.err.or(ErrPhaseInductanceOutOfRange)
		return err
	}
	m.config.PhaseInductance = l
	m.state.current.pGain, m.state.current.iGain = currentControlGains(m.config)
	return nil
}
