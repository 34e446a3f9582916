//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// chipName is the GPIO character device of the Raspberry Pi header.
const chipName = "gpiochip0"

// input is a requested line and how to turn its raw value into a logical one.
type input struct {
	name      string
	line      *gpiocdev.Line
	activeLow bool
}

// RealReader reads GPIO from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip *gpiocdev.Chip

	motion, door, vibration, scan, test *input
}

// NewRealReader creates a GPIO reader for actual Raspberry Pi hardware.
// Buttons and the door switch pull to ground when closed (pull-up, active low).
// The PIR and vibration modules drive the line high when active (pull-down).
func NewRealReader(pins Pins) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	r := &RealReader{chip: chip}

	reqs := []struct {
		dst       **input
		name      string
		pin       int
		activeLow bool
	}{
		{&r.motion, "motion", pins.Motion, false},
		{&r.door, "door", pins.Door, true},
		{&r.vibration, "vibration", pins.Vibration, false},
		{&r.scan, "scan", pins.Scan, true},
		{&r.test, "test", pins.Test, true},
	}
	for _, req := range reqs {
		if req.pin <= 0 {
			continue
		}
		pull := gpiocdev.WithPullDown
		if req.activeLow {
			pull = gpiocdev.WithPullUp
		}
		line, err := chip.RequestLine(req.pin, gpiocdev.AsInput, pull)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", req.name, req.pin, err)
		}
		*req.dst = &input{name: req.name, line: line, activeLow: req.activeLow}
	}

	return r, nil
}

// Read returns the logical state of every configured input.
func (r *RealReader) Read() (Inputs, error) {
	var in Inputs
	for _, f := range []struct {
		in  *input
		dst *bool
	}{
		{r.motion, &in.Motion},
		{r.door, &in.DoorClosed},
		{r.vibration, &in.Vibration},
		{r.scan, &in.Scan},
		{r.test, &in.Test},
	} {
		if f.in == nil {
			continue
		}
		raw, err := f.in.line.Value()
		if err != nil {
			return Inputs{}, fmt.Errorf("read %s pin: %w", f.in.name, err)
		}
		if f.in.activeLow {
			*f.dst = raw == 0
		} else {
			*f.dst = raw == 1
		}
	}
	return in, nil
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (r *RealReader) Close() error {
	var errs []error

	for _, in := range []*input{r.motion, r.door, r.vibration, r.scan, r.test} {
		if in == nil {
			continue
		}
		if err := in.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", in.name, err))
		}
		if err := in.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", in.name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealIndicator drives an LED on a GPIO output line.
type RealIndicator struct {
	line *gpiocdev.Line
}

// NewRealIndicator requests pin as an output, initially off.
func NewRealIndicator(pin int) (*RealIndicator, error) {
	line, err := gpiocdev.RequestLine(chipName, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request led pin %d: %w", pin, err)
	}
	return &RealIndicator{line: line}, nil
}

// Set switches the LED.
func (l *RealIndicator) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("set led: %w", err)
	}
	return nil
}

// Close turns the LED off and returns the line to input with pull-down.
func (l *RealIndicator) Close() error {
	l.line.SetValue(0)
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		l.line.Close()
		return fmt.Errorf("reconfigure led pin: %w", err)
	}
	return l.line.Close()
}
