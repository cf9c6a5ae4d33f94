package foc

import (
	"context"
	"sync/atomic"
)

// armedState is the safety state machine of spec.md §4.F: DISARMED is
// the only state PWM output is guaranteed low in; ARMING is a transient
// state entered while the axis resets its controllers and samples the
// encoder; ARMED is the only state Update is allowed to enqueue timings
// from.
type armedState int32

const (
	stateDisarmed armedState = iota
	stateArming
	stateArmed
)

func (s armedState) String() string {
	switch s {
	case stateDisarmed:
		return "DISARMED"
	case stateArming:
		return "ARMING"
	case stateArmed:
		return "ARMED"
	default:
		return "UNKNOWN"
	}
}

// atomicArmedState stores armedState atomically, without a lock: Update
// reads it every tick on the hot path, Arm moves it forward with CAS,
// and SetError stores DISARMED unconditionally.
type atomicArmedState struct {
	v atomic.Int32
}

func (a *atomicArmedState) load() armedState    { return armedState(a.v.Load()) }
func (a *atomicArmedState) store(s armedState)  { a.v.Store(int32(s)) }
func (a *atomicArmedState) cas(old, new_ armedState) bool {
	return a.v.CompareAndSwap(int32(old), int32(new_))
}

// Arm transitions DISARMED -> ARMING -> ARMED (spec.md §4.F). It resets
// the axis's position/velocity controller and current-control
// integrators, forces an encoder sample, and only then commits to
// ARMED. If the motor already has a sticky error, Arm refuses and
// returns that error; the caller must clear it with ClearErrors before
// arming is possible again.
func (m *Motor) Arm(ctx context.Context, axis Axis) error {
	if err := m.state.err.load(); err != 0 {
		return CustomError("cannot arm: motor has a pending error: " + err.String())
	}

	if !m.state.armed.cas(stateDisarmed, stateArming) {
		return CustomError("cannot arm: motor is not disarmed")
	}

	m.resetCurrentControlIntegrators()
	axis.ResetController()
	axis.SampleEncoderNow()

	select {
	case <-ctx.Done():
		m.state.armed.store(stateDisarmed)
		return ctx.Err()
	default:
	}

	if !m.state.armed.cas(stateArming, stateArmed) {
		return CustomError("cannot arm: motor state changed during arming")
	}
	return nil
}

// SetError ORs kind into the error register and immediately disarms.
// Callable from the control ISR or any background goroutine; safe to
// call concurrently and repeatedly with the same or different kinds.
func (m *Motor) SetError(axis Axis, kind ErrorKind) {
	m.state.err.or(kind)
	m.state.armed.store(stateDisarmed)
	m.state.next.valid.Store(false)
	if axis != nil {
		axis.NotifyMotorFailed()
	}
}

// ClearErrors drops every sticky error so the motor can be armed again.
// It does not change the armed state; the caller still has to Arm.
func (m *Motor) ClearErrors() {
	m.state.err.clear()
}

// IsArmed reports whether the motor is currently in the ARMED state.
func (m *Motor) IsArmed() bool {
	return m.state.armed.load() == stateArmed
}

// Error returns the sticky fault bitmask, or 0 if none is set.
func (m *Motor) Error() ErrorKind {
	return m.state.err.load()
}

// DoChecks polls the gate driver and both thermistors once, escalating
// any fault into SetError with the matching ErrorKind, and recomputes
// the effective current limit from whichever thermistor is more
// restrictive (spec.md §4.F, §7). It is meant to be called at a slower
// cadence than the control loop, from the background supervisor.
func (m *Motor) DoChecks(axis Axis) {
	if m.gateDriver != nil && m.gateDriver.CheckFault() {
		m.SetError(axis, ErrDRVFault)
		return
	}

	motorOK := true
	if m.motorThermistor != nil {
		motorOK = m.motorThermistor.DoChecks()
		if !motorOK {
			m.SetError(axis, ErrMotorThermistorOverTemp)
		}
	}

	fetOK := true
	if m.fetThermistor != nil {
		fetOK = m.fetThermistor.DoChecks()
		if !fetOK {
			m.SetError(axis, ErrFETThermistorOverTemp)
		}
	}

	m.state.effectiveCurrentLim = m.computeEffectiveCurrentLim()
}
