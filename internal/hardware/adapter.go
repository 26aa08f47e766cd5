// Package hardware implements the Hardware Adapter (spec §4.8, C3): a
// narrow interface over a 16-channel I²C relay expander and a per-channel
// 0-10V DAC, with a simulation variant and a retrying decorator for
// transient I/O errors.
//
// The real adapter is grounded on the retrieval pack's periph.io examples
// (other_examples' bmxx80.go/bme280.go, and periph-home's node.go), which
// open a periph.io/x/periph host and issue conn.Conn.Tx transactions over
// i2c.Dev; the core adopts the same host.Init()/i2creg.Open()/i2c.Dev
// shape instead of a hand-rolled syscall wrapper.
package hardware

import (
	"context"
	"errors"
	"time"
)

// Default retry policy (spec §4.8: transient I/O errors retried up to 3
// times with 50ms backoff; default transaction deadline 200ms, spec §5).
const (
	DefaultRetries    = 3
	DefaultBackoff    = 50 * time.Millisecond
	DefaultDeadline   = 200 * time.Millisecond
)

var (
	// ErrChannelOwned names the error of two devices claiming the same
	// (board, channel). No adapter in this package returns it; a duplicate
	// claim is not detected at the adapter level.
	ErrChannelOwned = errors.New("hardware: channel already owned")

	// ErrBusClosed is returned by any call made before Open or after Close.
	ErrBusClosed = errors.New("hardware: bus not open")

	// ErrChannelRange is returned for a channel outside [0, 15].
	ErrChannelRange = errors.New("hardware: channel out of range")
)

// Adapter abstracts the relay expander and DAC (spec §4.8).
type Adapter interface {
	// Open establishes the bus connection(s). Must be called before any
	// other method.
	Open(ctx context.Context) error

	// Close releases the bus and leaves all relays in their last-written
	// state (the caller is responsible for asserting a safe state first).
	Close() error

	// SetRelay sets one of 16 channels on a named board ON or OFF.
	SetRelay(ctx context.Context, board string, channel int, on bool) error

	// GetRelay reads back the last-commanded state of a channel.
	GetRelay(ctx context.Context, board string, channel int) (bool, error)

	// CommitAll writes a full 16-bit channel word to a board in a single
	// bus transaction (spec §4.8 commit_all).
	CommitAll(ctx context.Context, board string, mask uint16) error

	// SetIntensity sets a DAC channel to a 0-100% output.
	SetIntensity(ctx context.Context, boardID string, dacChannel int, pct float64) error

	// SetVoltage sets a DAC channel to an absolute 0-10V output.
	SetVoltage(ctx context.Context, boardID string, dacChannel int, volts float64) error
}
