package foc

import (
	"go.uber.org/multierr"

	"github.com/pkg/errors"
)

// MotorType selects the current/voltage control strategy and which
// calibration steps apply. Dispatch is a tagged switch on this value,
// never a virtual call, to keep Update's hot path branch-predictable
// (design note §9).
type MotorType int

const (
	MotorTypeUnknown MotorType = iota
	MotorTypeHighCurrent
	MotorTypeGimbal
	MotorTypeACIM
)

func (t MotorType) String() string {
	switch t {
	case MotorTypeHighCurrent:
		return "HIGH_CURRENT"
	case MotorTypeGimbal:
		return "GIMBAL"
	case MotorTypeACIM:
		return "ACIM"
	default:
		return "UNKNOWN"
	}
}

// MotorConfig is the user-writable motor configuration (spec.md §3). It
// is validated on change and otherwise read-only from the control ISR.
// There is no file/env persistence layer here, by design (spec.md §1).
type MotorConfig struct {
	MotorType MotorType

	PhaseResistance float32 // ohms, identified or pre-set
	PhaseInductance float32 // henries, identified or pre-set

	TorqueConstant float32 // Nm/A
	PolePairs      uint32

	CurrentLim       float32 // A, configured cap
	CurrentLimMargin float32 // A, overshoot tolerance
	TorqueLim        float32 // Nm

	RequestedCurrentRange float32 // A, informs op-amp gain negotiation

	CalibrationCurrent        float32
	ResistanceCalibMaxVoltage float32

	CurrentControlBandwidth float32 // rad/s
	CurrentMeasHz           float32 // Hz, the control/measurement tick rate (spec.md §6 f_meas)

	Direction float32 // +1 or -1

	RWLFFEnable  bool
	BEMFFFEnable bool

	ACIMSlipVelocity       float32
	ACIMGainMinFlux        float32
	ACIMAutofluxEnable     bool
	ACIMAutofluxMinID      float32
	ACIMAutofluxAttackGain float32
	ACIMAutofluxDecayGain  float32

	PreCalibrated bool
}

// Validate checks the configuration field by field, in the style of
// tmc5072.Config.Validate: one errors.Errorf per violated field,
// combined with multierr so every problem is reported at once instead
// of stopping at the first one.
func (c *MotorConfig) Validate() error {
	var errs error

	switch c.MotorType {
	case MotorTypeHighCurrent, MotorTypeGimbal, MotorTypeACIM:
	default:
		errs = multierr.Append(errs, errors.Errorf("unknown motor_type %d", c.MotorType))
	}

	if c.PolePairs == 0 {
		errs = multierr.Append(errs, errors.New("pole_pairs must be > 0"))
	}
	if c.TorqueConstant <= 0 {
		errs = multierr.Append(errs, errors.New("torque_constant must be > 0"))
	}
	if c.CurrentLim <= 0 {
		errs = multierr.Append(errs, errors.New("current_lim must be > 0"))
	}
	if c.CurrentLimMargin < 0 {
		errs = multierr.Append(errs, errors.New("current_lim_margin must be >= 0"))
	}
	if c.TorqueLim < 0 {
		errs = multierr.Append(errs, errors.New("torque_lim must be >= 0"))
	}
	if c.Direction != 1 && c.Direction != -1 {
		errs = multierr.Append(errs, errors.Errorf("direction must be +1 or -1, got %v", c.Direction))
	}
	if c.CurrentControlBandwidth <= 0 {
		errs = multierr.Append(errs, errors.New("current_control_bandwidth must be > 0"))
	}
	if c.CurrentMeasHz <= 0 {
		errs = multierr.Append(errs, errors.New("current_meas_hz must be > 0"))
	}

	if c.PreCalibrated {
		if err := validatePhaseInductance(c.PhaseInductance); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.MotorType == MotorTypeACIM {
		if c.ACIMGainMinFlux <= 0 {
			errs = multierr.Append(errs, errors.New("acim_gain_min_flux must be > 0 for ACIM motors"))
		}
	}

	return errs
}

// phaseInductanceRange is the valid range for an identified or
// pre-configured phase inductance (spec.md §3 invariants).
const (
	phaseInductanceMin float32 = 2e-6
	phaseInductanceMax float32 = 4e-3
)

func validatePhaseInductance(l float32) error {
	if l < phaseInductanceMin || l > phaseInductanceMax {
		return errors.Errorf("phase_inductance %g out of range [%g, %g]", l, phaseInductanceMin, phaseInductanceMax)
	}
	return nil
}
