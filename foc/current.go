package foc

import "github.com/orsinium-labs/tinymath"

// CurrentMeas is one pair of raw phase current measurements, sensed on
// phase B and C (spec.md §3); phase A is reconstructed by Clarke's
// balanced-phase assumption.
type CurrentMeas struct {
	PhaseB float32
	PhaseC float32
}

// PhaseCurrentFromADCVal converts a raw ADC sample into amperes, given
// the op-amp gain already negotiated into phaseCurrentRevGain and the
// ADC's reference voltage and shunt resistance. adcVal is expected
// already centered so that 0A reads as 0.0 (spec.md §4.A).
func (m *Motor) PhaseCurrentFromADCVal(adcVal, vref, shuntResistance float32) float32 {
	voltage := adcVal * vref
	return voltage * m.state.phaseCurrentRevGain / shuntResistance
}

// antiWindupMargin is the 0.80 fraction of the SVM linear range (spec.md
// §4.C step 8) past which the commanded modulation vector is scaled
// down and the integrators are decayed instead of allowed to wind up.
const antiWindupMargin float32 = 0.80

// integratorDecay is applied to Vd_int/Vq_int whenever the commanded
// vector saturates past antiWindupMargin (spec.md §4.C step 8).
const integratorDecay float32 = 0.99

// focCurrent is the current-mode inner loop (spec.md §4.C), used by
// HIGH_CURRENT and ACIM motors. iPhase un-rotates the measurement;
// pwmPhase re-rotates the command, predicted 1.5 ticks ahead to land
// mid-PWM (spec.md §4.G). Returns false, having already called
// SetError, if anything along the way fails.
func (m *Motor) focCurrent(axis Axis, meas CurrentMeas, idSetpoint, iqSetpoint, iPhase, pwmPhase, phaseVel, vbus float32) bool {
	// step 2: raw phase-current saturation check, distinct from the
	// post-transform current-limit check in step 4.
	if tinymath.Abs(meas.PhaseB) > m.state.overcurrentTripLevel || tinymath.Abs(meas.PhaseC) > m.state.overcurrentTripLevel {
		m.SetError(axis, ErrCurrentSenseSaturation)
		return false
	}

	alpha, beta := ClarkeFromBC(meas.PhaseB, meas.PhaseC)
	if !isFinite32(alpha) || !isFinite32(beta) {
		m.SetError(axis, ErrCurrentSenseSaturation)
		return false
	}

	id, iq := Park(alpha, beta, iPhase)
	m.state.current.idMeasured = lowPassUpdate(m.state.current.idMeasured, id, m.state.current.iMeasuredReportFilterK)
	m.state.current.iqMeasured = lowPassUpdate(m.state.current.iqMeasured, iq, m.state.current.iMeasuredReportFilterK)

	// step 4: Id^2+Iq^2 against (effective_current_lim + current_lim_margin)^2.
	limitWithMargin := m.state.effectiveCurrentLim + m.config.CurrentLimMargin
	if magnitude2(id, iq) > limitWithMargin*limitWithMargin {
		m.SetError(axis, ErrCurrentLimitViolation)
		return false
	}

	idErr := idSetpoint - id
	iqErr := iqSetpoint - iq

	pGain, iGain := m.state.current.pGain, m.state.current.iGain

	vdFF := float32(0)
	vqFF := float32(0)
	if m.config.RWLFFEnable {
		vdFF -= phaseVel * m.config.PhaseInductance * iq
		vqFF += phaseVel * m.config.PhaseInductance * id
		vqFF += m.config.PhaseResistance * iqSetpoint
		vdFF += m.config.PhaseResistance * idSetpoint
	}
	if m.config.BEMFFFEnable {
		vqFF += phaseVel * m.config.TorqueConstant
	}

	ts := m.controlPeriod()
	vdInt := m.state.current.vdInt + idErr*iGain*ts
	vqInt := m.state.current.vqInt + iqErr*iGain*ts

	vd := vdFF + pGain*idErr + vdInt
	vq := vqFF + pGain*iqErr + vqInt

	// step 7: normalize volts to modulation indices against the bus.
	denom := (2.0 / 3.0) * vbus
	md := vd / denom
	mq := vq / denom

	// step 8: anti-windup. Past 0.80*sqrt3/2, scale the commanded vector
	// back to the boundary and decay the integrators instead of holding
	// or growing them.
	threshold := antiWindupMargin * sqrt3By2
	if magnitude2(md, mq) > threshold*threshold {
		mag := tinymath.Sqrt(magnitude2(md, mq))
		scale := threshold / mag
		md *= scale
		mq *= scale
		m.state.current.vdInt *= integratorDecay
		m.state.current.vqInt *= integratorDecay
	} else {
		m.state.current.vdInt = vdInt
		m.state.current.vqInt = vqInt
	}

	alphaOut, betaOut := InversePark(md, mq, pwmPhase)
	if kind := m.enqueueModulationTimings(alphaOut, betaOut); kind != 0 {
		m.SetError(axis, kind)
		return false
	}

	// step 9: bus current from the (possibly saturated) modulation
	// indices and the measured dq currents.
	m.state.current.ibus = md*id + mq*iq

	return true
}

// focVoltage is the voltage-mode path used by GIMBAL motors (spec.md
// §4.C): no current sense is required, the dq setpoints are driven
// straight through to the modulator, normalized against the bus the
// same way the current-mode path's commanded voltage is.
func (m *Motor) focVoltage(axis Axis, idSetpoint, iqSetpoint, pwmPhase, vbus float32) bool {
	if kind := m.enqueueVoltageTimings(idSetpoint, iqSetpoint, pwmPhase, vbus); kind != 0 {
		m.SetError(axis, kind)
		return false
	}
	return true
}

// lowPassUpdate is a one-pole IIR filter: k=0 disables filtering
// (passes raw straight through), matching the teacher's convention of
// a report filter that can be turned off by zeroing its gain.
func lowPassUpdate(prev, sample, k float32) float32 {
	if k <= 0 {
		return sample
	}
	return prev + k*(sample-prev)
}

// updateACIMFluxAndSlip advances the asynchronous rotor flux estimate
// (spec.md §4.G auto-flux law). When autoflux is disabled, both
// Id and rotor_flux simply hold at their last (initially zero) value;
// there is no forced-to-1 case.
func (m *Motor) updateACIMFluxAndSlip(iqSetpoint float32) {
	if !m.config.ACIMAutofluxEnable {
		return
	}
	a := &m.state.async
	cfg := &m.config
	ts := m.controlPeriod()

	absIq := tinymath.Abs(iqSetpoint)
	gain := cfg.ACIMAutofluxDecayGain
	if absIq > a.autofluxID {
		gain = cfg.ACIMAutofluxAttackGain
	}
	id := a.autofluxID + gain*(absIq-a.autofluxID)*ts
	id = constrain(id, cfg.ACIMAutofluxMinID, m.state.effectiveCurrentLim)
	a.autofluxID = id

	flux := a.rotorFlux + cfg.ACIMSlipVelocity*(id-a.rotorFlux)*ts
	a.rotorFlux = constrain(flux, 0, 1)
}

// acimSlipVelocity computes omega_s = acim_slip_velocity * (Iq* /
// acim_rotor_flux), guarded against NaN/overflow (a near-zero rotor
// flux blows the division up) by the spec's |omega_s| > 0.1*f_meas
// bound (spec.md §8 scenario 6): outside that bound the slip velocity
// is not trustworthy and is held at zero for this tick instead.
func (m *Motor) acimSlipVelocity(iqSetpoint float32) float32 {
	slip := m.config.ACIMSlipVelocity * (iqSetpoint / m.state.async.rotorFlux)
	guardBound := 0.1 * m.config.CurrentMeasHz
	if !isFinite32(slip) || tinymath.Abs(slip) > guardBound {
		return 0
	}
	return slip
}

// controlPeriod is the control/measurement tick period (spec.md §6
// f_meas), derived from the configured measurement rate rather than a
// fixed constant since f_meas is an external input that can vary
// between deployments.
func (m *Motor) controlPeriod() float32 {
	return 1 / m.config.CurrentMeasHz
}
