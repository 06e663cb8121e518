// Package gpio drives the config-lock indicator line.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Indicator is a single output line.
type Indicator interface {
	// Set drives the line high (on) or low.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO chip the indicator line lives on.
const DefaultChip = "gpiochip0"

// DefaultLockLEDPin is the BCM pin of the lock LED. Negative disables it.
const DefaultLockLEDPin = -1
