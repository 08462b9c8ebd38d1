// Package adapter defines the capability set a CAN transport must support
// so the messenger can be run over SocketCAN, a serial SLCAN dongle, a
// loopback/replay bus, or any future transport, without caring which.
package adapter

// Adapter is the minimal {write-frame, read-frame, close} capability set.
// Opening an adapter is constructor-specific (different transports need
// different parameters) and therefore lives outside this interface.
type Adapter interface {
	// WriteFrame issues a single write of the whole on-wire frame. No
	// partial-write tolerance is expected.
	WriteFrame(frame []byte) error

	// ReadFrame issues one receive. fd selects the expected frame size
	// (72 bytes when true, 16 otherwise). It returns (nil, nil) on a
	// receive timeout ("would block"), never a typed timeout error.
	ReadFrame(fd bool) ([]byte, error)

	// Close releases the adapter's resources unconditionally. It must be
	// safe to call more than once.
	Close() error
}
