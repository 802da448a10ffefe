package hardware

import (
	"fmt"
	"log"
	"sync"

	gpiod "github.com/warthog618/go-gpiocdev"
)

// GPIO serves digital lines on one character-device chip.
// Only lines requested at open time are served; anything else is ErrUnavailable.
type GPIO struct {
	mu      sync.Mutex
	chip    *gpiod.Chip
	inputs  map[int]*gpiod.Line
	outputs map[int]*gpiod.Line
}

// OpenGPIO opens chipName and requests the given lines. Negative pins are skipped.
func OpenGPIO(chipName string, inputs, outputs []int) (*GPIO, error) {
	chip, err := gpiod.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", chipName, err)
	}
	g := &GPIO{chip: chip, inputs: map[int]*gpiod.Line{}, outputs: map[int]*gpiod.Line{}}

	for _, pin := range inputs {
		if pin < 0 {
			continue
		}
		line, err := chip.RequestLine(pin, gpiod.AsInput)
		if err != nil {
			_ = g.Close()
			return nil, fmt.Errorf("request input %d: %w", pin, err)
		}
		g.inputs[pin] = line
	}
	for _, pin := range outputs {
		if pin < 0 {
			continue
		}
		line, err := chip.RequestLine(pin, gpiod.AsOutput(0))
		if err != nil {
			_ = g.Close()
			return nil, fmt.Errorf("request output %d: %w", pin, err)
		}
		g.outputs[pin] = line
	}
	log.Printf("gpio: %s open, %d inputs, %d outputs", chipName, len(g.inputs), len(g.outputs))
	return g, nil
}

func (g *GPIO) ReadRaw(pin int) (Sample, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	line, ok := g.inputs[pin]
	if !ok {
		return nil, fmt.Errorf("%w: %d is not a requested input", ErrUnavailable, pin)
	}
	v, err := line.Value()
	if err != nil {
		return nil, fmt.Errorf("read line %d: %w", pin, err)
	}
	return Sample{float64(v)}, nil
}

// WriteActuator drives an output high for any level above zero.
func (g *GPIO) WriteActuator(pin int, level float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	line, ok := g.outputs[pin]
	if !ok {
		return fmt.Errorf("%w: %d is not a requested output", ErrUnavailable, pin)
	}
	v := 0
	if level > 0 {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write line %d: %w", pin, err)
	}
	return nil
}

// Close drives every output low, then releases lines and chip.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for pin, line := range g.outputs {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("reset output %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output %d: %w", pin, err))
		}
	}
	g.outputs = map[int]*gpiod.Line{}
	for pin, line := range g.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input %d: %w", pin, err))
		}
	}
	g.inputs = map[int]*gpiod.Line{}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		g.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
