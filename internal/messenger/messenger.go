// Package messenger glues the frame codec, socket adapter, filter and DBC
// layers into the operations a caller actually wants: send a raw frame,
// send DBC-encoded signals, and run a cancellable listen loop.
package messenger

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/fk1018/can-messenger/internal/adapter"
	"github.com/fk1018/can-messenger/internal/canframe"
	"github.com/fk1018/can-messenger/internal/dbc"
	"github.com/fk1018/can-messenger/internal/filter"
	"github.com/fk1018/can-messenger/internal/logging"
	"github.com/fk1018/can-messenger/internal/metrics"
)

// Opener creates a fresh Adapter acquisition. It is a function rather than
// a pre-opened Adapter because each transport's constructor takes different
// parameters (device path, baud, interface name, ...); Messenger only needs
// to be able to acquire and release one on demand.
type Opener func() (adapter.Adapter, error)

// Decoded is the DBC decode attached to a Received frame when a catalog was
// supplied to Listen and the frame's id matches a known message.
type Decoded struct {
	Name    string
	Signals map[string]float64
}

// Received is handed to a listen callback for every frame that passes the
// filter.
type Received struct {
	Frame   canframe.Frame
	Decoded *Decoded
}

// Messenger is a CAN messaging session bound to one named interface. It
// holds no open socket between calls: send_raw and listen each acquire one
// from Opener for the duration of the operation.
type Messenger struct {
	name       string
	endianness canframe.Endianness
	fd         bool
	open       Opener
	listening  atomic.Bool
	logger     *slog.Logger
}

// Option configures a Messenger at construction time.
type Option func(*Messenger)

// WithEndianness sets the identifier-word byte order used to build and
// parse frames. Defaults to canframe.BigEndian.
func WithEndianness(e canframe.Endianness) Option { return func(m *Messenger) { m.endianness = e } }

// WithFD sets the default fd flag used when an operation does not specify
// one explicitly.
func WithFD(fd bool) Option { return func(m *Messenger) { m.fd = fd } }

// WithLogger overrides the package-global logger for this Messenger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Messenger) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Messenger named name (used as a metrics label), acquiring
// adapters from open on demand.
func New(name string, open Opener, opts ...Option) *Messenger {
	m := &Messenger{
		name:       name,
		endianness: canframe.BigEndian,
		open:       open,
		logger:     logging.L(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SendRaw builds a frame from id/data/extended/fd and writes it through a
// freshly acquired adapter. fd, if nil, falls back to the Messenger's
// default. Frame-length violations (InvalidLength) propagate; everything
// else (socket open failure, transport write failure) is logged and
// swallowed, matching the spec's argument-errors-propagate /
// transport-errors-recovered split.
func (m *Messenger) SendRaw(id uint32, data []byte, extended bool, fd *bool) error {
	useFD := m.fd
	if fd != nil {
		useFD = *fd
	}
	wire, err := canframe.Build(canframe.Frame{ID: id, Extended: extended, Data: data, FD: useFD}, m.endianness)
	if err != nil {
		return err
	}

	a, err := m.open()
	if err != nil {
		m.logger.Error("socket_open_error", "messenger", m.name, "error", err)
		metrics.IncSocketError(m.name)
		return nil
	}
	defer a.Close()

	if err := a.WriteFrame(wire); err != nil {
		m.logger.Error("transport_error", "messenger", m.name, "error", err)
		metrics.IncSocketError(m.name)
		return nil
	}
	metrics.FramesSent.Inc()
	return nil
}

// SendWithDBC encodes values against the named message in cat, then sends
// the result via SendRaw. UnknownMessage and SignalOutOfRange/ExceedsMessage
// propagate from the encode step.
func (m *Messenger) SendWithDBC(cat *dbc.Catalog, messageName string, values map[string]float64, extended bool, fd *bool) error {
	res, err := cat.EncodeCAN(messageName, values)
	if err != nil {
		metrics.DBCEncodeErrors.Inc()
		return fmt.Errorf("messenger: send_with_dbc: %w", err)
	}
	return m.SendRaw(res.ID, res.Data, extended, fd)
}

// Listen opens an adapter and runs the receive loop until StopListening is
// called, invoking callback for every frame that passes f. fd, if nil,
// falls back to the Messenger's default. cat, if non-nil, attaches a
// Decoded record to frames whose id matches a known message. Listen is
// re-enterable: after StopListening returns, calling Listen again resumes
// normal operation from a newly opened adapter.
//
// callback must not be nil; if it is, Listen logs and returns without
// opening a socket.
func (m *Messenger) Listen(f filter.Filter, fd *bool, cat *dbc.Catalog, callback func(Received)) {
	if callback == nil {
		m.logger.Warn("listen_no_callback", "messenger", m.name)
		return
	}
	useFD := m.fd
	if fd != nil {
		useFD = *fd
	}

	a, err := m.open()
	if err != nil {
		m.logger.Error("socket_open_error", "messenger", m.name, "error", err)
		return
	}
	defer a.Close()

	m.listening.Store(true)
	metrics.SetListenerRunning(m.name, true)
	defer metrics.SetListenerRunning(m.name, false)

	for m.listening.Load() {
		wire, err := a.ReadFrame(useFD)
		if err != nil {
			m.logger.Error("transport_error", "messenger", m.name, "error", err)
			metrics.IncSocketError(m.name)
			continue
		}
		if wire == nil {
			continue
		}

		fr, err := canframe.Parse(wire, &useFD, m.endianness)
		if err != nil {
			m.logger.Warn("parse_error", "messenger", m.name, "error", err)
			continue
		}
		if !f.Matches(fr.ID) {
			metrics.FramesDropped.Inc()
			continue
		}
		metrics.FramesReceived.Inc()

		rec := Received{Frame: fr}
		if cat != nil {
			dr, ok, err := cat.DecodeCAN(fr.ID, fr.Data)
			if err != nil {
				metrics.DBCDecodeErrors.Inc()
				args := append([]any{"messenger", m.name}, logging.FrameAttrs(fr.ID, fr.Extended, len(fr.Data))...)
				m.logger.Warn("dbc_decode_error", append(args, "error", err)...)
			} else if ok {
				rec.Decoded = &Decoded{Name: dr.Name, Signals: dr.Signals}
			}
		}

		m.dispatch(callback, rec)
	}
}

// dispatch invokes callback, recovering any panic so one bad callback
// cannot kill the listen loop.
func (m *Messenger) dispatch(callback func(Received), rec Received) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("callback_panic", "messenger", m.name, "panic", r)
		}
	}()
	callback(rec)
}

// StopListening idempotently requests the listen loop to exit. The loop
// observes the request on its next read-timeout tick.
func (m *Messenger) StopListening() {
	m.listening.Store(false)
}
