// Package loopback provides an in-memory Adapter for tests and
// simulations, so the messenger can be exercised without a real CAN
// interface.
package loopback

import (
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed endpoint.
var ErrClosed = errors.New("loopback: endpoint closed")

// Bus is an in-memory CAN bus. Endpoints opened from the same Bus exchange
// raw on-wire frames with one another, mirroring a shared physical bus.
type Bus struct {
	mu        sync.Mutex
	endpoints map[*Endpoint]struct{}
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{endpoints: make(map[*Endpoint]struct{})}
}

// Open attaches a new Endpoint to the bus.
func (b *Bus) Open() *Endpoint {
	ep := &Endpoint{bus: b, ch: make(chan []byte, 64), closed: make(chan struct{})}
	b.mu.Lock()
	b.endpoints[ep] = struct{}{}
	b.mu.Unlock()
	return ep
}

func (b *Bus) detach(ep *Endpoint) {
	b.mu.Lock()
	delete(b.endpoints, ep)
	b.mu.Unlock()
}

func (b *Bus) siblings(of *Endpoint) []*Endpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Endpoint, 0, len(b.endpoints))
	for ep := range b.endpoints {
		if ep != of {
			out = append(out, ep)
		}
	}
	return out
}

// Endpoint implements adapter.Adapter over an in-memory channel.
type Endpoint struct {
	bus       *Bus
	ch        chan []byte
	mu        sync.Mutex
	dead      bool
	closed    chan struct{}
	closeOnce sync.Once
}

// WriteFrame broadcasts frame to every other endpoint on the same bus.
func (e *Endpoint) WriteFrame(frame []byte) error {
	e.mu.Lock()
	dead := e.dead
	e.mu.Unlock()
	if dead {
		return ErrClosed
	}
	cp := append([]byte(nil), frame...)
	for _, sib := range e.bus.siblings(e) {
		select {
		case sib.ch <- cp:
		case <-sib.closed:
		}
	}
	return nil
}

// ReadFrame blocks until a frame arrives or the endpoint is closed. fd is
// accepted for interface compatibility but unused: the loopback bus
// transports whatever byte length was written.
func (e *Endpoint) ReadFrame(fd bool) ([]byte, error) {
	select {
	case f := <-e.ch:
		return f, nil
	case <-e.closed:
		return nil, ErrClosed
	}
}

// Close detaches the endpoint from its bus; safe to call more than once.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.dead = true
		e.mu.Unlock()
		close(e.closed)
		e.bus.detach(e)
	})
	return nil
}
