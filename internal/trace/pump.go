package trace

import (
	"context"
	"errors"
	"io"

	"github.com/fk1018/can-messenger/internal/adapter"
	"github.com/fk1018/can-messenger/internal/canframe"
	"github.com/fk1018/can-messenger/internal/transport"
)

// Pump replays every event in p onto dest through an AsyncTx, so a slow or
// wedged destination adapter cannot stall the replay loop: each frame is
// handed to the async sender and the next event is read immediately rather
// than waiting for dest to accept the previous one. It returns the number
// of frames handed off and the first error other than the trace's own
// exhaustion (io.EOF, swallowed as a normal end-of-replay).
func Pump(ctx context.Context, p *Player, dest adapter.Adapter, endianness canframe.Endianness, bufSize int, hooks transport.Hooks) (int, error) {
	tx := transport.NewAsyncTx(ctx, bufSize, dest.WriteFrame, hooks)
	defer tx.Close()

	n := 0
	for {
		ev, err := p.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		wire, err := canframe.Build(ev.Frame, endianness)
		if err != nil {
			return n, err
		}
		if err := tx.SendFrame(wire); err != nil {
			return n, err
		}
		n++
	}
}
