//go:build linux

package socketcan

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/fk1018/can-messenger/internal/canframe"
)

// Device implements adapter.Adapter over a Linux SocketCAN raw socket,
// following the open/bind/setsockopt/close sequence in §4.B of the
// specification: PF_CAN, SOCK_RAW, CAN_RAW, bound to a named interface,
// with a receive timeout and optional CAN_RAW_FD_FRAMES.
type Device struct {
	fd int
}

// DefaultReceiveTimeout is applied to every opened Device unless overridden.
const DefaultReceiveTimeout = 1 * time.Second

// Open creates, binds, and configures a raw CAN socket on iface. When
// fdEnabled is true it additionally enables CAN_RAW_FD_FRAMES if the
// running kernel exposes the option (older kernels return ENOPROTOOPT,
// which is tolerated since classic-only framing still works).
func Open(iface string, fdEnabled bool) (*Device, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: socket: %w", err)
	}

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan: interface %q: %w", iface, err)
	}

	sa := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind %q: %w", iface, err)
	}

	tv := unix.NsecToTimeval(DefaultReceiveTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan: SO_RCVTIMEO: %w", err)
	}

	if fdEnabled {
		if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 1); err != nil && err != unix.ENOPROTOOPT {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("socketcan: CAN_RAW_FD_FRAMES: %w", err)
		}
	}

	return &Device{fd: fd}, nil
}

// WriteFrame issues a single write of the whole on-wire frame.
func (d *Device) WriteFrame(frame []byte) error {
	n, err := unix.Write(d.fd, frame)
	if err != nil {
		return fmt.Errorf("socketcan: write: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("socketcan: short write: wrote %d of %d bytes", n, len(frame))
	}
	return nil
}

// ReadFrame reads one frame of the expected size. It returns (nil, nil) on
// a receive timeout, mapping the kernel's EAGAIN/EWOULDBLOCK "would block"
// condition to an absent frame rather than a propagated error.
func (d *Device) ReadFrame(fd bool) ([]byte, error) {
	size := canframe.ClassicSize
	if fd {
		size = canframe.FDSize
	}
	buf := make([]byte, size)
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil
		}
		return nil, fmt.Errorf("socketcan: read: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("socketcan: short read: got %d of %d bytes", n, size)
	}
	return buf, nil
}

// Close releases the socket descriptor unconditionally. Calls after the
// first are no-ops, so a descriptor number reused elsewhere is never closed.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}
