package foc

import (
	"context"

	"github.com/pkg/errors"
)

// Motor ties together configuration, runtime state and hardware
// collaborators into the single object the control ISR drives every
// tick (spec.md §4.G). It has no goroutine of its own: Update is called
// by whatever pumps the control loop (normally an Axis's RunControlLoop).
type Motor struct {
	config MotorConfig
	state  RuntimeState

	gateDriver      GateDriver
	opAmp           OpAmp
	motorThermistor Thermistor
	fetThermistor   Thermistor
}

// New constructs a Motor from a validated configuration and its
// hardware collaborators. Any of the Thermistor/OpAmp/GateDriver
// arguments may be nil, in which case the corresponding check in
// DoChecks and gain negotiation in Setup is skipped.
func New(cfg MotorConfig, gateDriver GateDriver, opAmp OpAmp, motorThermistor, fetThermistor Thermistor) (*Motor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid motor config")
	}
	m := &Motor{
		config:          cfg,
		gateDriver:      gateDriver,
		opAmp:           opAmp,
		motorThermistor: motorThermistor,
		fetThermistor:   fetThermistor,
	}
	m.state.isCalibrated = cfg.PreCalibrated
	m.state.phaseCurrentRevGain = 1
	m.state.current.pGain, m.state.current.iGain = currentControlGains(cfg)
	m.state.maxAllowedCurrent = cfg.CurrentLim + cfg.CurrentLimMargin
	// overcurrent_trip_level = (1/margin) * max_allowed_current, margin = 0.90 (spec.md §3).
	const overcurrentMargin = 0.90
	m.state.overcurrentTripLevel = m.state.maxAllowedCurrent / overcurrentMargin
	m.state.effectiveCurrentLim = cfg.CurrentLim
	return m, nil
}

// Setup brings the gate driver out of reset and negotiates an op-amp
// gain matching the configured current sense range (spec.md §4.A). It
// must succeed before Arm will ever be attempted.
func (m *Motor) Setup() error {
	if m.gateDriver != nil {
		if !m.gateDriver.Init() {
			m.state.err.or(ErrDRVFault)
			return CustomError("gate driver failed to initialize")
		}
	}
	if m.opAmp != nil && m.config.RequestedCurrentRange > 0 {
		gain, ok := m.opAmp.SetGain(m.config.RequestedCurrentRange)
		if !ok {
			return CustomError("op-amp could not realize requested current sense range")
		}
		m.state.phaseCurrentRevGain = 1 / gain
	}
	return nil
}

// currentControlGains derives the current loop's PI gains from phase
// resistance/inductance and the requested bandwidth (spec.md §4.C):
// p_gain = L * bandwidth, i_gain = R * bandwidth, the standard
// pole-placement result for a first-order RL plant under a PI
// controller with feedforward decoupling.
func currentControlGains(cfg MotorConfig) (pGain, iGain float32) {
	pGain = cfg.PhaseInductance * cfg.CurrentControlBandwidth
	iGain = cfg.PhaseResistance * cfg.CurrentControlBandwidth
	return pGain, iGain
}

// resetCurrentControlIntegrators zeroes the PI integrators, the last
// measurements, and the ACIM flux-tracking state (spec.md §3 invariant:
// "after arm(): Vd_int = Vq_int = acim_rotor_flux = Ibus = 0"). The
// auto-flux Id state is reset alongside rotor_flux since the two are
// the same tracked quantity and a stale Id would otherwise bias the
// flux law on the very first tick after arming.
func (m *Motor) resetCurrentControlIntegrators() {
	m.state.current.vdInt = 0
	m.state.current.vqInt = 0
	m.state.current.idMeasured = 0
	m.state.current.iqMeasured = 0
	m.state.current.idSetpoint = 0
	m.state.current.iqSetpoint = 0
	m.state.current.ibus = 0
	m.state.async.rotorFlux = 0
	m.state.async.autofluxID = 0
}

// computeEffectiveCurrentLim recomputes the current cap as the minimum
// of the configured limit, the motor-type-dependent hardware cap, and
// whatever each present thermistor reports (spec.md §4.E): HIGH_CURRENT
// and ACIM motors are capped by max_allowed_current; GIMBAL motors,
// being voltage-driven, are capped by 0.98*(1/sqrt3)*Vbus instead.
func (m *Motor) computeEffectiveCurrentLim() float32 {
	hwCap := m.state.maxAllowedCurrent
	if m.config.MotorType == MotorTypeGimbal {
		hwCap = 0.98 * oneBySqrt3 * m.state.vbus
	}
	lim := constrain(m.config.CurrentLim, 0, hwCap)
	if m.motorThermistor != nil {
		lim = constrain(m.motorThermistor.GetCurrentLimit(lim), 0, lim)
	}
	if m.fetThermistor != nil {
		lim = constrain(m.fetThermistor.GetCurrentLimit(lim), 0, lim)
	}
	return lim
}

// MaxAvailableTorque reports the torque the motor can currently produce
// given its effective current limit and, for ACIM motors, the present
// rotor flux level (spec.md §4.E). GIMBAL and HIGH_CURRENT motors have
// a flux-independent torque constant, so the ACIM gating only applies
// when MotorType is ACIM.
func (m *Motor) MaxAvailableTorque() float32 {
	lim := constrain(m.state.effectiveCurrentLim, 0, m.config.TorqueLim/m.config.TorqueConstant)
	torque := lim * m.config.TorqueConstant
	if m.config.MotorType == MotorTypeACIM {
		flux := constrain(m.state.async.rotorFlux, 0, 1)
		torque *= flux
	}
	return constrain(torque, 0, m.config.TorqueLim)
}

// ConsumeTimings drains the single-slot PWM handoff. Per spec.md §4.F,
// every PWM reload ISR that finds next_timings_valid still false — the
// control loop missed its deadline — disarms the motor and raises
// ErrControlDeadlineMissed; axis is notified the same way SetError
// always notifies it.
func (m *Motor) ConsumeTimings(axis Axis) (timings [3]float32, ok bool) {
	if !m.state.next.valid.CompareAndSwap(true, false) {
		m.state.timing.record(0, true)
		m.SetError(axis, ErrControlDeadlineMissed)
		return [3]float32{}, false
	}
	m.state.timing.record(0, false)
	return m.state.next.timings, true
}

// Update runs one tick of the control loop: it applies the configured
// rotation direction, maps the requested torque to a dq current
// setpoint (field-weakened by rotor flux for ACIM motors), updates ACIM
// slip/flux tracking if applicable, and dispatches to the current-mode
// or voltage-mode controller depending on MotorType (spec.md §4.G). It
// returns false (without enqueuing any timings) if the motor is not
// armed, or if an internal error was raised during this tick.
//
// phase and phaseVel are the raw encoder/estimator electrical angle and
// velocity, vbus is the last-sampled DC bus voltage used to normalize
// commanded voltages into modulation indices (spec.md §4.C step 7).
func (m *Motor) Update(ctx context.Context, axis Axis, meas CurrentMeas, vbus, torqueSetpoint, phase, phaseVel float32) bool {
	if m.state.armed.load() != stateArmed {
		return false
	}
	if !isFinite32(torqueSetpoint) || !isFinite32(phase) || !isFinite32(phaseVel) || !isFinite32(vbus) {
		m.SetError(axis, ErrModulationIsNaN)
		return false
	}

	m.state.vbus = vbus

	// direction reverses the sense of torque and of the electrical
	// angle/velocity the rest of the tick is computed against (spec.md
	// §4.G).
	torqueSetpoint *= m.config.Direction
	phase *= m.config.Direction
	phaseVel *= m.config.Direction

	var iqSetpoint, idSetpoint float32

	switch m.config.MotorType {
	case MotorTypeACIM:
		fluxDenom := maxf32(m.state.async.rotorFlux, m.config.ACIMGainMinFlux)
		iqSetpoint = constrain(torqueSetpoint/(m.config.TorqueConstant*fluxDenom), -m.state.effectiveCurrentLim, m.state.effectiveCurrentLim)
		m.updateACIMFluxAndSlip(iqSetpoint)
		idSetpoint = m.state.async.autofluxID

		slip := m.acimSlipVelocity(iqSetpoint)
		m.state.async.phaseVel = phaseVel + slip
		m.state.async.phaseOffset = wrapAngle(m.state.async.phaseOffset + slip*m.controlPeriod())
		phase = wrapAngle(phase + m.state.async.phaseOffset)
		phaseVel = m.state.async.phaseVel
	case MotorTypeGimbal, MotorTypeHighCurrent:
		iqSetpoint = constrain(torqueSetpoint/m.config.TorqueConstant, -m.state.effectiveCurrentLim, m.state.effectiveCurrentLim)
	default:
		m.SetError(axis, ErrNotImplementedMotorType)
		return false
	}

	m.state.current.idSetpoint = idSetpoint
	m.state.current.iqSetpoint = iqSetpoint

	// pwm_phase predicts the angle 1.5 ticks ahead so the re-rotated
	// command lands mid-PWM-period rather than at the sample instant
	// (spec.md §4.G); i_phase (the raw phase above) un-rotates the
	// measurement taken at the sample instant itself.
	pwmPhase := wrapAngle(phase + 1.5*m.controlPeriod()*phaseVel)

	var ok bool
	switch m.config.MotorType {
	case MotorTypeGimbal:
		ok = m.focVoltage(axis, idSetpoint, iqSetpoint, pwmPhase, vbus)
	default:
		ok = m.focCurrent(axis, meas, idSetpoint, iqSetpoint, phase, pwmPhase, phaseVel, vbus)
	}
	return ok
}
