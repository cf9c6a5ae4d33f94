// Package fakehw provides in-memory GateDriver, OpAmp, Thermistor and
// Axis test doubles for the foc package. They model the real hardware
// contracts closely enough to drive calibration and arming end to end
// in tests, without any SPI/UART
// register layer underneath (that layer is out of scope, spec.md §1).
package fakehw

import (
	"context"
	"sync"
	"time"
)

// GateDriver is an in-memory three-phase bridge: Fault can be forced by
// a test to exercise the DRV_FAULT path.
type GateDriver struct {
	mu          sync.Mutex
	initialized bool
	fault       bool
	failInit    bool
}

// SetFailInit makes the next Init() call fail, as if the chip never
// acknowledged.
func (g *GateDriver) SetFailInit(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failInit = fail
}

// SetFault forces or clears the fault line.
func (g *GateDriver) SetFault(fault bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fault = fault
}

func (g *GateDriver) Init() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failInit {
		return false
	}
	g.initialized = true
	return true
}

func (g *GateDriver) CheckFault() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fault
}

// OpAmp is an in-memory current-sense amplifier with a small discrete
// set of realizable gains, mirroring real transimpedance amp boards
// that only offer a few gain-resistor straps.
type OpAmp struct {
	AvailableGains []float32
}

// NewOpAmp returns an OpAmp with a representative discrete gain set.
func NewOpAmp() *OpAmp {
	return &OpAmp{AvailableGains: []float32{10, 20, 40, 80, 160}}
}

func (o *OpAmp) SetGain(requested float32) (actual float32, ok bool) {
	if len(o.AvailableGains) == 0 {
		return 0, false
	}
	best := o.AvailableGains[0]
	for _, g := range o.AvailableGains {
		if g >= requested && (best < requested || g < best) {
			best = g
		}
	}
	return best, true
}

// Thermistor is an in-memory temperature sensor. Temperature is set
// directly by the test/simulation driving it; GetCurrentLimit derates
// linearly between warnTemp and tripTemp.
type Thermistor struct {
	mu          sync.Mutex
	temperature float32
	warnTemp    float32
	tripTemp    float32
}

// NewThermistor returns a Thermistor with the given derating band.
func NewThermistor(warnTemp, tripTemp float32) *Thermistor {
	return &Thermistor{warnTemp: warnTemp, tripTemp: tripTemp}
}

// SetTemperature sets the simulated sensor reading.
func (t *Thermistor) SetTemperature(tempC float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.temperature = tempC
}

func (t *Thermistor) DoChecks() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.temperature < t.tripTemp
}

func (t *Thermistor) GetCurrentLimit(cap float32) float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.temperature <= t.warnTemp {
		return cap
	}
	if t.temperature >= t.tripTemp {
		return 0
	}
	span := t.tripTemp - t.warnTemp
	frac := (t.tripTemp - t.temperature) / span
	return cap * frac
}

// Axis is an in-memory control loop pump. RunControlLoop ticks body
// once per Period until it returns false, ctx is cancelled, or
// NotifyMotorFailed has been called. WaitForCurrentMeas is not tied to
// those ticks: it waits a fixed Period*10 via the select/time.After
// idiom of the teacher's UART comm layer and then reports success; it
// returns an error only when ctx is done first.
type Axis struct {
	Period time.Duration

	mu       sync.Mutex
	failed   bool
	notified int
	resets   int
	samples  int
}

// NewAxis returns an Axis ticking at the given period.
func NewAxis(period time.Duration) *Axis {
	return &Axis{Period: period}
}

func (a *Axis) RunControlLoop(ctx context.Context, body func() bool) error {
	ticker := time.NewTicker(a.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.mu.Lock()
			failed := a.failed
			a.mu.Unlock()
			if failed {
				return nil
			}
			if !body() {
				return nil
			}
		}
	}
}

func (a *Axis) WaitForCurrentMeas(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.Period * 10):
		return nil
	}
}

func (a *Axis) ResetController() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets++
}

func (a *Axis) SampleEncoderNow() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples++
}

func (a *Axis) NotifyMotorFailed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed = true
	a.notified++
}

// Resets reports how many times ResetController has been called, for
// assertions in tests that Arm actually reset the controller.
func (a *Axis) Resets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resets
}

// Notified reports how many times NotifyMotorFailed has fired.
func (a *Axis) Notified() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notified
}
