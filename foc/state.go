package foc

import "sync/atomic"

// currentControlState holds the per-tick working state of the inner
// current loop (spec.md §3's "current control state"). Update and the
// controllers it dispatches to write it every tick; Arm resets it, and
// calibration rewrites the gains and the final alpha/beta outputs.
type currentControlState struct {
	pGain float32
	iGain float32

	vdInt float32
	vqInt float32

	idMeasured float32
	iqMeasured float32

	idSetpoint float32
	iqSetpoint float32

	ibus float32

	iMeasuredReportFilterK float32

	finalVAlpha float32
	finalVBeta  float32
}

// asyncState holds ACIM-specific rotor flux and slip tracking (spec.md
// §4 ACIM notes). Unused fields for HIGH_CURRENT/GIMBAL motors stay zero.
type asyncState struct {
	rotorFlux   float32
	autofluxID  float32
	phaseOffset float32
	phaseVel    float32
}

// timingsSlot is the single-producer/single-consumer PWM duty handoff
// (spec.md §5): the control ISR writes next_timings then flips valid;
// the PWM update callback reads valid, consumes, and clears it. There is
// deliberately no lock: only one writer and one reader ever touch it,
// and valid is the only field that needs visibility ordering.
type timingsSlot struct {
	timings [3]float32
	valid   atomic.Bool
}

// RuntimeState is Motor's full mutable state (spec.md §3). Constructed
// zeroed; Setup and RunCalibration populate the calibrated fields.
type RuntimeState struct {
	isCalibrated bool

	err errorRegister

	armed atomicArmedState

	effectiveCurrentLim float32
	maxAllowedCurrent    float32
	overcurrentTripLevel float32

	phaseCurrentRevGain float32

	// vbus is the last-known DC bus voltage (spec.md §6), refreshed by
	// every Update/calibration tick and read by DoChecks between ticks.
	vbus float32

	current currentControlState
	async   asyncState

	next timingsSlot

	timing timingLog
}
