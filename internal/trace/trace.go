// Package trace records and replays CAN traffic as a CBOR-encoded sequence
// of events, so a bus session can be captured once and replayed later
// through any Adapter (most usefully the loopback bus, for deterministic
// tests).
package trace

import (
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/fk1018/can-messenger/internal/canframe"
)

// Decoded mirrors messenger.Decoded, so that trace does not import the
// messenger package.
type Decoded struct {
	Name    string             `cbor:"name"`
	Signals map[string]float64 `cbor:"signals"`
}

// Event is one captured frame, optionally with its DBC decode attached.
type Event struct {
	TimestampUnixNano int64          `cbor:"ts"`
	Frame             canframe.Frame `cbor:"frame"`
	Decoded           *Decoded       `cbor:"decoded,omitempty"`
}

// Recorder appends Events to an underlying stream as a sequence of
// top-level CBOR data items, one per event (no enclosing array).
type Recorder struct {
	enc *cbor.Encoder
}

// NewRecorder wraps w. The caller owns closing w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: cbor.NewEncoder(w)}
}

// Record writes one event. The recorder never calls time.Now itself — the
// caller supplies timestampUnixNano — so recording stays deterministic and
// testable.
func (r *Recorder) Record(timestampUnixNano int64, frame canframe.Frame, decoded *Decoded) error {
	return r.enc.Encode(Event{TimestampUnixNano: timestampUnixNano, Frame: frame, Decoded: decoded})
}

// Player reads back Events written by a Recorder.
type Player struct {
	dec *cbor.Decoder
}

// NewPlayer wraps r. The caller owns closing r.
func NewPlayer(r io.Reader) *Player {
	return &Player{dec: cbor.NewDecoder(r)}
}

// Next returns the next recorded Event, or io.EOF once the stream is
// exhausted.
func (p *Player) Next() (Event, error) {
	var ev Event
	if err := p.dec.Decode(&ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
