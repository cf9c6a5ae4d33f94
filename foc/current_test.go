package foc

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/mdhom/odrivefoc/foc/fakehw"
)

const testVbus = float32(24.0)

func armedHighCurrentMotor(c *qt.C) (*Motor, *fakehw.Axis) {
	m, axis := newTestMotor(c, MotorTypeHighCurrent)
	c.Assert(m.Arm(context.Background(), axis), qt.IsNil)
	return m, axis
}

func Test_Update_rejectsNaNSetpoint(t *testing.T) {
	c := qt.New(t)
	m, axis := armedHighCurrentMotor(c)

	nan := float32(0)
	nan = nan / nan

	ok := m.Update(context.Background(), axis, CurrentMeas{}, testVbus, nan, 0, 0)
	c.Assert(ok, qt.Equals, false)
	c.Assert(m.Error()&ErrModulationIsNaN != 0, qt.Equals, true)
	c.Assert(m.IsArmed(), qt.Equals, false)
}

func Test_Update_rejectsWhenNotArmed(t *testing.T) {
	c := qt.New(t)
	m, axis := newTestMotor(c, MotorTypeHighCurrent)

	ok := m.Update(context.Background(), axis, CurrentMeas{}, testVbus, 0.1, 0, 0)
	c.Assert(ok, qt.Equals, false)
}

func Test_Update_highCurrentProducesValidTimings(t *testing.T) {
	c := qt.New(t)
	m, axis := armedHighCurrentMotor(c)

	ok := m.Update(context.Background(), axis, CurrentMeas{PhaseB: 0, PhaseC: 0}, testVbus, 0.1, 0, 10)
	c.Assert(ok, qt.Equals, true)

	timings, posted := m.ConsumeTimings(axis)
	c.Assert(posted, qt.Equals, true)
	for _, d := range timings {
		c.Assert(d >= 0 && d <= 1, qt.Equals, true)
	}
}

func Test_Update_overcurrentTripsAndDisarms(t *testing.T) {
	c := qt.New(t)
	m, axis := armedHighCurrentMotor(c)

	// a current reading far beyond the configured limit should trip the
	// raw phase-current saturation guard before any timing is enqueued.
	ok := m.Update(context.Background(), axis, CurrentMeas{PhaseB: 1000, PhaseC: -1000}, testVbus, 0.1, 0, 0)
	c.Assert(ok, qt.Equals, false)
	c.Assert(m.Error()&ErrCurrentSenseSaturation != 0, qt.Equals, true)
	c.Assert(m.IsArmed(), qt.Equals, false)
}

func Test_Update_currentLimitViolationDistinctFromSaturation(t *testing.T) {
	c := qt.New(t)
	m, axis := armedHighCurrentMotor(c)

	// within the raw overcurrent trip level, but a dq magnitude past
	// effective_current_lim + current_lim_margin: CURRENT_LIMIT_VIOLATION,
	// not CURRENT_SENSE_SATURATION (spec.md §4.C steps 2 and 4 are
	// distinct checks against distinct thresholds).
	lim := m.state.effectiveCurrentLim + m.config.CurrentLimMargin
	over := lim + 1
	ok := m.Update(context.Background(), axis, CurrentMeas{PhaseB: -over, PhaseC: 0}, testVbus, 0, 0, 0)
	c.Assert(ok, qt.Equals, false)
	c.Assert(m.Error()&ErrCurrentLimitViolation != 0, qt.Equals, true)
	c.Assert(m.Error()&ErrCurrentSenseSaturation != 0, qt.Equals, false)
}

func Test_Update_gimbalVoltageModeDispatch(t *testing.T) {
	c := qt.New(t)
	m, axis := newTestMotor(c, MotorTypeGimbal)
	c.Assert(m.Arm(context.Background(), axis), qt.IsNil)

	ok := m.Update(context.Background(), axis, CurrentMeas{}, testVbus, 0.05, 0.4, 0)
	c.Assert(ok, qt.Equals, true)

	timings, posted := m.ConsumeTimings(axis)
	c.Assert(posted, qt.Equals, true)
	for _, d := range timings {
		c.Assert(d >= 0 && d <= 1, qt.Equals, true)
	}
}

func Test_Update_acimSlipStaysWithinConfiguredBound(t *testing.T) {
	c := qt.New(t)
	m, axis := newTestMotor(c, MotorTypeACIM)
	c.Assert(m.Arm(context.Background(), axis), qt.IsNil)

	for i := 0; i < 50; i++ {
		m.Update(context.Background(), axis, CurrentMeas{}, testVbus, 1.0, 0, 100)
	}

	c.Assert(m.state.async.phaseVel-100 <= m.config.ACIMSlipVelocity, qt.Equals, true)
	c.Assert(m.state.async.phaseVel-100 >= -m.config.ACIMSlipVelocity, qt.Equals, true)
}

func Test_Update_directionReversesTorque(t *testing.T) {
	c := qt.New(t)
	cfg := MotorConfig{
		MotorType:               MotorTypeHighCurrent,
		PhaseResistance:         0.1,
		PhaseInductance:         100e-6,
		TorqueConstant:          0.03,
		PolePairs:               7,
		CurrentLim:              10,
		CurrentLimMargin:        2,
		TorqueLim:               1,
		CurrentControlBandwidth: 2000,
		CurrentMeasHz:           20000,
		Direction:               -1,
		PreCalibrated:           true,
	}
	m, err := New(cfg, nil, nil, nil, nil)
	c.Assert(err, qt.IsNil)
	axis := fakehw.NewAxis(50 * time.Microsecond)
	c.Assert(m.Arm(context.Background(), axis), qt.IsNil)

	m.Update(context.Background(), axis, CurrentMeas{}, testVbus, 1.0, 0, 0)

	// direction=-1 flips the torque setpoint, so the resulting Iq
	// setpoint should be negative for a positive commanded torque.
	c.Assert(m.state.current.iqSetpoint < 0, qt.Equals, true)
}

func Test_resetCurrentControlIntegrators_onArm(t *testing.T) {
	c := qt.New(t)
	m, axis := newTestMotor(c, MotorTypeHighCurrent)

	m.state.current.vdInt = 5
	m.state.current.vqInt = -5
	m.state.current.ibus = 3
	m.state.async.rotorFlux = 0.7

	c.Assert(m.Arm(context.Background(), axis), qt.IsNil)

	c.Assert(m.state.current.vdInt, qt.Equals, float32(0))
	c.Assert(m.state.current.vqInt, qt.Equals, float32(0))
	c.Assert(m.state.current.ibus, qt.Equals, float32(0))
	c.Assert(m.state.async.rotorFlux, qt.Equals, float32(0))
}
