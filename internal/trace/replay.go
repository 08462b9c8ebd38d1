package trace

import (
	"errors"
	"io"
	"sync"

	"github.com/fk1018/can-messenger/internal/canframe"
)

// ErrReplayExhausted is returned by ReadFrame once every recorded event has
// been replayed.
var ErrReplayExhausted = errors.New("trace: replay exhausted")

// ReplayAdapter implements adapter.Adapter by pulling frames from a Player
// in recorded order, with no implicit real-time pacing — callers that want
// pacing should sleep between ReadFrame calls using the gaps between
// consecutive events' TimestampUnixNano. WriteFrame is a no-op that records
// what was sent, for assertions in tests.
type ReplayAdapter struct {
	mu        sync.Mutex
	player    *Player
	sent      []canframe.Frame
	endian    canframe.Endianness
	exhausted bool
}

// NewReplayAdapter wraps r, decoding frames with endianness when re-encoding
// them to the kernel wire layout ReadFrame returns.
func NewReplayAdapter(r io.Reader, endianness canframe.Endianness) *ReplayAdapter {
	return &ReplayAdapter{player: NewPlayer(r), endian: endianness}
}

// ReadFrame returns the next recorded frame re-encoded to the kernel wire
// layout. fd is accepted for interface compatibility but the recorded
// frame's own FD flag determines which layout is produced. Returns
// ErrReplayExhausted once the trace is consumed.
func (a *ReplayAdapter) ReadFrame(fd bool) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.exhausted {
		return nil, ErrReplayExhausted
	}
	ev, err := a.player.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			a.exhausted = true
			return nil, ErrReplayExhausted
		}
		return nil, err
	}
	return canframe.Build(ev.Frame, a.endian)
}

// WriteFrame parses and appends frame to the sent log instead of
// transmitting it anywhere; Sent() exposes the log for test assertions.
func (a *ReplayAdapter) WriteFrame(frame []byte) error {
	f, err := canframe.Parse(frame, nil, a.endian)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.sent = append(a.sent, f)
	a.mu.Unlock()
	return nil
}

// Sent returns every frame passed to WriteFrame so far.
func (a *ReplayAdapter) Sent() []canframe.Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]canframe.Frame(nil), a.sent...)
}

// Close is a no-op; ReplayAdapter owns no resources beyond the reader the
// caller supplied to NewReplayAdapter.
func (a *ReplayAdapter) Close() error { return nil }
