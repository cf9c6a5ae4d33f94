package foc

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func Test_MotorConfig_Validate_rejectsZeroPolePairs(t *testing.T) {
	c := qt.New(t)

	cfg := MotorConfig{
		MotorType:               MotorTypeHighCurrent,
		TorqueConstant:          0.03,
		CurrentLim:              10,
		Direction:               1,
		CurrentControlBandwidth: 2000,
		CurrentMeasHz:           20000,
	}
	err := cfg.Validate()
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(err.Error(), qt.Contains, "pole_pairs")
}

func Test_MotorConfig_Validate_reportsAllViolationsAtOnce(t *testing.T) {
	c := qt.New(t)

	cfg := MotorConfig{}
	err := cfg.Validate()
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(err.Error(), qt.Contains, "pole_pairs")
	c.Assert(err.Error(), qt.Contains, "torque_constant")
	c.Assert(err.Error(), qt.Contains, "current_lim")
}

func Test_MotorConfig_Validate_acceptsValidConfig(t *testing.T) {
	c := qt.New(t)

	cfg := MotorConfig{
		MotorType:               MotorTypeHighCurrent,
		PolePairs:               7,
		TorqueConstant:          0.03,
		CurrentLim:              10,
		Direction:               1,
		CurrentControlBandwidth: 2000,
		CurrentMeasHz:           20000,
	}
	c.Assert(cfg.Validate(), qt.IsNil)
}

func Test_MotorConfig_Validate_acimRequiresGainMinFlux(t *testing.T) {
	c := qt.New(t)

	cfg := MotorConfig{
		MotorType:               MotorTypeACIM,
		PolePairs:               4,
		TorqueConstant:          0.03,
		CurrentLim:              10,
		Direction:               1,
		CurrentControlBandwidth: 2000,
		CurrentMeasHz:           20000,
	}
	err := cfg.Validate()
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(err.Error(), qt.Contains, "acim_gain_min_flux")
}

func Test_MotorConfig_Validate_preCalibratedChecksInductanceRange(t *testing.T) {
	c := qt.New(t)

	cfg := MotorConfig{
		MotorType:               MotorTypeHighCurrent,
		PolePairs:               7,
		TorqueConstant:          0.03,
		CurrentLim:              10,
		Direction:               1,
		CurrentControlBandwidth: 2000,
		CurrentMeasHz:           20000,
		PreCalibrated:           true,
		PhaseInductance:         1,
	}
	err := cfg.Validate()
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(err.Error(), qt.Contains, "phase_inductance")
}
