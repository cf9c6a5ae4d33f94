package foc

import "sync/atomic"

// CustomError is a lightweight string error, the same shape as
// tmc5160.CustomError / tmc2209.CustomError in the teacher repo: the
// hot path can't afford to build wrapped error chains, so sentinel
// errors that do need an error value use this instead of fmt.Errorf.
type CustomError string

func (e CustomError) Error() string { return string(e) }

// ErrorKind is a bitmask fault code (spec §7). Kinds OR together into
// the motor's error register and are sticky until Motor.ClearErrors;
// Arm refuses while any kind is set.
type ErrorKind uint32

const (
	ErrPhaseResistanceOutOfRange ErrorKind = 1 << iota
	ErrPhaseInductanceOutOfRange
	ErrDRVFault
	ErrMotorThermistorOverTemp
	ErrFETThermistorOverTemp
	ErrCurrentMeasurementTimeout
	ErrControlDeadlineMissed
	ErrCurrentSenseSaturation
	ErrCurrentLimitViolation
	ErrModulationMagnitude
	ErrModulationIsNaN
	ErrNotImplementedMotorType
)

var errorKindNames = map[ErrorKind]string{
	ErrPhaseResistanceOutOfRange: "PHASE_RESISTANCE_OUT_OF_RANGE",
	ErrPhaseInductanceOutOfRange: "PHASE_INDUCTANCE_OUT_OF_RANGE",
	ErrDRVFault:                  "DRV_FAULT",
	ErrMotorThermistorOverTemp:   "MOTOR_THERMISTOR_OVER_TEMP",
	ErrFETThermistorOverTemp:     "FET_THERMISTOR_OVER_TEMP",
	ErrCurrentMeasurementTimeout: "CURRENT_MEASUREMENT_TIMEOUT",
	ErrControlDeadlineMissed:     "CONTROL_DEADLINE_MISSED",
	ErrCurrentSenseSaturation:    "CURRENT_SENSE_SATURATION",
	ErrCurrentLimitViolation:     "CURRENT_LIMIT_VIOLATION",
	ErrModulationMagnitude:       "MODULATION_MAGNITUDE",
	ErrModulationIsNaN:           "MODULATION_IS_NAN",
	ErrNotImplementedMotorType:   "NOT_IMPLEMENTED_MOTOR_TYPE",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "UNKNOWN_ERROR"
}

// errorRegister is an atomic bitmask with relaxed-OR semantics (design
// note §9): set_error from the ISR or the background loop, read from
// either side, no lock.
type errorRegister struct {
	bits atomic.Uint32
}

// or merges kind into the register. Implemented as a CAS loop since the
// standard atomic package has no native fetch-or for uint32.
func (r *errorRegister) or(kind ErrorKind) {
	for {
		old := r.bits.Load()
		next := old | uint32(kind)
		if old == next || r.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (r *errorRegister) load() ErrorKind {
	return ErrorKind(r.bits.Load())
}

func (r *errorRegister) clear() {
	r.bits.Store(0)
}

func (r *errorRegister) has(kind ErrorKind) bool {
	return r.bits.Load()&uint32(kind) != 0
}
