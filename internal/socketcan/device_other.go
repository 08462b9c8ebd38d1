//go:build !linux

package socketcan

import "errors"

// ErrUnsupported is returned on platforms without SocketCAN. The frame and
// DBC cores remain fully usable; only this concrete transport is stubbed,
// per the design note that the kernel frame layout is matched byte-for-byte
// regardless of which platform builds the library.
var ErrUnsupported = errors.New("socketcan: not supported on this platform")

// Device is a non-functional placeholder so code that type-references
// *Device still compiles on non-Linux platforms.
type Device struct{}

// Open always fails on non-Linux platforms.
func Open(iface string, fdEnabled bool) (*Device, error) {
	return nil, ErrUnsupported
}

func (d *Device) WriteFrame(frame []byte) error     { return ErrUnsupported }
func (d *Device) ReadFrame(fd bool) ([]byte, error) { return nil, ErrUnsupported }
func (d *Device) Close() error                      { return nil }
