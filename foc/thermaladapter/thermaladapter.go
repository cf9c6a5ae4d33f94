// Package thermaladapter adapts a raw thermocouple reader into the
// foc.Thermistor contract. It is modeled on the teacher's max6675
// driver: a simple bus Read() returning degrees Celsius and a sentinel
// error for an open/disconnected sensor, wrapped here with the
// warn/trip derating band foc.DoChecks expects.
package thermaladapter

import "errors"

// ErrThermocoupleOpen mirrors max6675.ErrThermocoupleOpen: the sensor
// reported an open input, which this adapter treats the same as an
// over-temperature trip since the reading can no longer be trusted.
var ErrThermocoupleOpen = errors.New("thermocouple input open")

// Reader is the minimal contract a thermocouple/thermistor bus driver
// needs to satisfy, matching max6675.Device.Read's shape exactly so a
// real max6675 (or any sensor with the same signature) can be dropped
// in directly.
type Reader interface {
	Read() (float32, error)
}

// Adapter wraps a Reader and exposes the foc.Thermistor contract: a
// cached last-known temperature (refreshed by DoChecks) and a linear
// current derating between warnTemp and tripTemp.
type Adapter struct {
	reader   Reader
	warnTemp float32
	tripTemp float32

	lastTemp float32
	lastOK   bool
}

// New wraps reader with the given warn/trip band (degrees Celsius).
func New(reader Reader, warnTemp, tripTemp float32) *Adapter {
	return &Adapter{reader: reader, warnTemp: warnTemp, tripTemp: tripTemp}
}

// DoChecks refreshes the cached temperature and reports whether the
// sensor is healthy and below its trip point. A read error (including
// ErrThermocoupleOpen) is treated as an immediate trip: the caller
// can't tell a disconnected sensor from a motor at its limit, so the
// safe choice is to assume the worst.
func (a *Adapter) DoChecks() bool {
	temp, err := a.reader.Read()
	if err != nil {
		a.lastOK = false
		a.lastTemp = a.tripTemp
		return false
	}
	a.lastTemp = temp
	a.lastOK = temp < a.tripTemp
	return a.lastOK
}

// GetCurrentLimit derates cap linearly from full value at warnTemp down
// to zero at tripTemp, using whatever temperature DoChecks last cached.
func (a *Adapter) GetCurrentLimit(cap float32) float32 {
	if !a.lastOK {
		return 0
	}
	if a.lastTemp <= a.warnTemp {
		return cap
	}
	if a.lastTemp >= a.tripTemp {
		return 0
	}
	span := a.tripTemp - a.warnTemp
	frac := (a.tripTemp - a.lastTemp) / span
	return cap * frac
}
