// Package hardware abstracts the pins the edge agent reads and drives.
package hardware

import "errors"

// ErrUnavailable marks a pin the backend cannot serve. Callers fall back to simulation.
var ErrUnavailable = errors.New("hardware: pin unavailable")

// Sample is one raw reading. Its layout depends on the peripheral:
// DHT22 {temperature, humidity}, ADC {raw 0..1023}, digital {0|1}.
type Sample []float64

type Device interface {
	ReadRaw(pin int) (Sample, error)
	WriteActuator(pin int, level float64) error
	Close() error
}
