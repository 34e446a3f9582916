// Package gpio provides the sensor inputs and indicator output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// Inputs is one instantaneous reading of every input line, in logical form.
type Inputs struct {
	Motion     bool // PIR sensor active
	DoorClosed bool // AC flap door switch closed
	Vibration  bool // vibration sensor active
	Scan       bool // scan button pressed
	Test       bool // test button pressed
}

// Reader reads GPIO input states.
type Reader interface {
	// Read returns the logical state of every configured input.
	// Unconfigured inputs read as false.
	Read() (Inputs, error)

	// Close releases GPIO resources.
	Close() error
}

// Indicator drives a single on/off output such as the status LED.
type Indicator interface {
	Set(on bool) error
}

// Secondary extracts the "AC is running" signal from a reading.
// Deployments use either a door switch on the AC flap or a vibration sensor.
type Secondary interface {
	Name() string
	Active(in Inputs) bool
}

// DoorSignal treats an open AC flap as the AC running.
type DoorSignal struct{}

func (DoorSignal) Name() string { return "door" }

// Active reports whether the flap is open.
func (DoorSignal) Active(in Inputs) bool { return !in.DoorClosed }

// VibrationSignal treats vibration as the AC running.
type VibrationSignal struct{}

func (VibrationSignal) Name() string { return "vibration" }

// Active reports whether vibration is detected.
func (VibrationSignal) Active(in Inputs) bool { return in.Vibration }

// SecondaryByName returns the provider for "door" or "vibration".
func SecondaryByName(name string) (Secondary, error) {
	switch name {
	case "door":
		return DoorSignal{}, nil
	case "vibration":
		return VibrationSignal{}, nil
	}
	return nil, fmt.Errorf("unknown secondary signal %q (want door or vibration)", name)
}

// Pins holds BCM pin numbers. A pin <= 0 is not connected.
type Pins struct {
	Motion    int `yaml:"motion"`
	Door      int `yaml:"door"`
	Vibration int `yaml:"vibration"`
	Scan      int `yaml:"scan"`
	Test      int `yaml:"test"`
	LED       int `yaml:"led"`
}

// Default pin definitions (BCM numbering)
const (
	DefaultPinScan      = 17
	DefaultPinTest      = 27
	DefaultPinLED       = 16
	DefaultPinVibration = 25
	DefaultPinMotion    = 26
	DefaultPinDoor      = 24
)

// DefaultPins returns the wiring of the reference board.
func DefaultPins() Pins {
	return Pins{
		Motion:    DefaultPinMotion,
		Door:      DefaultPinDoor,
		Vibration: DefaultPinVibration,
		Scan:      DefaultPinScan,
		Test:      DefaultPinTest,
		LED:       DefaultPinLED,
	}
}
