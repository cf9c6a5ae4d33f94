package foc

import "context"

// GateDriver is the three-phase bridge gate driver. The core only ever
// arms/disarms it and polls for faults; the SPI register layer behind
// a concrete chip (DRV83xx and similar) is outside this package's
// scope (spec.md §1) and lives, if at all, in a separate driver module.
type GateDriver interface {
	// Init brings the gate driver out of reset/shutdown. Returns false
	// on failure (e.g. the chip never acknowledges).
	Init() bool
	// CheckFault reports whether the driver's fault line is asserted.
	CheckFault() bool
}

// OpAmp is the current-sense transimpedance amplifier. SetGain
// negotiates a gain close to requested and reports what was actually
// realized (hardware gains are usually a small discrete set), mirroring
// the percent-to-setting quantization in tmc2209.PercentToCurrentSetting.
type OpAmp interface {
	SetGain(requested float32) (actual float32, ok bool)
}

// Thermistor is a single temperature sensor feeding the limit
// supervisor. DoChecks refreshes the sensor and reports whether it is
// within its safe operating range; GetCurrentLimit derates cap toward
// zero as temperature approaches its trip point.
type Thermistor interface {
	DoChecks() bool
	GetCurrentLimit(cap float32) float32
}

// Axis is the parent supervisor: it owns the encoder/estimator, the
// position/velocity controller, and the tick pump that calibration
// rides on. The core only ever calls back into it; it never reaches
// into the core directly except to invoke the contract below.
type Axis interface {
	// WaitForCurrentMeas blocks until the next current-measurement ISR
	// has posted fresh current_meas, or ctx is done.
	WaitForCurrentMeas(ctx context.Context) error
	// RunControlLoop pumps body once per control tick until body
	// returns false, ctx is cancelled, or a core error is observed.
	RunControlLoop(ctx context.Context, body func() bool) error
	// ResetController zeroes the position/velocity controller's state;
	// called from arm().
	ResetController()
	// SampleEncoderNow forces an immediate encoder/estimator sample.
	SampleEncoderNow()
	// NotifyMotorFailed is called once per set_error, regardless of
	// kind, so the supervisor can abort whatever sequence it's running.
	NotifyMotorFailed()
}
