// Package gpio provides button edge capture and the status LED with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the current button levels.
type Reader interface {
	// Read returns the level of each watched button, in configured order.
	// true = pressed (line high, buttons pull the line up against the pull-down).
	Read() ([]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// LED drives a single binary actuator.
type LED interface {
	// Set turns the LED on or off.
	Set(on bool) error

	// Close releases the output line.
	Close() error
}

// Default line offsets (BCM numbering) for the reference wiring.
const (
	DefaultChip    = "gpiochip0"
	DefaultPinBtn1 = 18
	DefaultPinBtn2 = 2
	DefaultPinLED  = 5
)
