package messenger

import (
	"sync"
	"testing"
	"time"

	"github.com/fk1018/can-messenger/internal/adapter"
	"github.com/fk1018/can-messenger/internal/canframe"
	"github.com/fk1018/can-messenger/internal/dbc"
	"github.com/fk1018/can-messenger/internal/filter"
	"github.com/fk1018/can-messenger/internal/loopback"
)

// timeoutOnlyAdapter never yields a frame; every read is a timeout tick.
type timeoutOnlyAdapter struct{ closed bool }

func (a *timeoutOnlyAdapter) WriteFrame(frame []byte) error     { return nil }
func (a *timeoutOnlyAdapter) ReadFrame(fd bool) ([]byte, error) { time.Sleep(time.Millisecond); return nil, nil }
func (a *timeoutOnlyAdapter) Close() error                      { a.closed = true; return nil }

// TestS8_ListenerCancellation mirrors spec scenario S8: stop_listening
// causes the loop to return promptly and close its socket.
func TestS8_ListenerCancellation(t *testing.T) {
	ad := &timeoutOnlyAdapter{}
	m := New("s8", func() (adapter.Adapter, error) { return ad, nil })

	done := make(chan struct{})
	go func() {
		m.Listen(filter.Filter{}, nil, nil, func(Received) {})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	m.StopListening()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listen loop did not exit after StopListening")
	}
	if !ad.closed {
		t.Fatal("adapter was not closed")
	}
}

// TestS9_Filter mirrors spec scenario S9: a Range filter admits 0x150 and
// drops 0x300.
func TestS9_Filter(t *testing.T) {
	bus := loopback.New()
	rx := bus.Open()
	tx := bus.Open()
	defer rx.Close()
	defer tx.Close()

	m := New("s9", func() (adapter.Adapter, error) { return rx, nil })
	f := filter.NewRange(0x100, 0x200)

	var mu sync.Mutex
	var seen []uint32
	done := make(chan struct{})
	go func() {
		m.Listen(f, nil, nil, func(r Received) {
			mu.Lock()
			seen = append(seen, r.Frame.ID)
			mu.Unlock()
		})
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)

	send := func(id uint32) {
		wire, err := canframe.Build(canframe.Frame{ID: id}, canframe.BigEndian)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if err := tx.WriteFrame(wire); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	send(0x150)
	send(0x300)
	time.Sleep(20 * time.Millisecond)
	m.StopListening()
	// loopback has no receive timeout of its own; nudge the blocked
	// ReadFrame so the loop observes the stop request.
	send(0x999)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != 0x150 {
		t.Fatalf("expected only 0x150 to pass filter, got %v", seen)
	}
}

// TestListen_ReEntry verifies property #10: after StopListening, a second
// Listen call resumes delivering frames.
func TestListen_ReEntry(t *testing.T) {
	bus := loopback.New()
	tx := bus.Open()
	defer tx.Close()

	opens := 0
	// Listen's defer a.Close() detaches the endpoint it acquired from the
	// bus once a run ends, so each acquisition must be a fresh Open() —
	// reusing one endpoint across runs would hand the second run an
	// already-closed adapter.
	m := New("reentry", func() (adapter.Adapter, error) { opens++; return bus.Open(), nil })

	run := func(want uint32) {
		done := make(chan struct{})
		go func() {
			m.Listen(filter.Filter{}, nil, nil, func(r Received) {
				if r.Frame.ID == want {
					m.StopListening()
				}
			})
			close(done)
		}()
		time.Sleep(5 * time.Millisecond)
		wire, _ := canframe.Build(canframe.Frame{ID: want}, canframe.BigEndian)
		_ = tx.WriteFrame(wire)
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("listen did not return")
		}
	}

	run(0x1)
	run(0x2)
	if opens != 2 {
		t.Fatalf("expected 2 socket acquisitions, got %d", opens)
	}
}

// TestSendRaw_InvalidLengthPropagates checks that codec errors are not
// swallowed, unlike transport errors.
func TestSendRaw_InvalidLengthPropagates(t *testing.T) {
	m := New("send", func() (adapter.Adapter, error) { return nil, nil })
	err := m.SendRaw(0x1, make([]byte, 9), false, nil)
	if err == nil {
		t.Fatal("expected InvalidLength to propagate")
	}
}

// TestSendWithDBC_UnknownMessage checks DBC encode errors propagate.
func TestSendWithDBC_UnknownMessage(t *testing.T) {
	cat, err := dbc.New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m := New("send-dbc", func() (adapter.Adapter, error) { return nil, nil })
	if err := m.SendWithDBC(cat, "Nope", nil, false, nil); err == nil {
		t.Fatal("expected UnknownMessage to propagate")
	}
}

// TestListen_CallbackPanicRecovered ensures a panicking callback does not
// kill the loop before StopListening takes effect.
func TestListen_CallbackPanicRecovered(t *testing.T) {
	bus := loopback.New()
	rx := bus.Open()
	tx := bus.Open()
	defer rx.Close()
	defer tx.Close()

	m := New("panic", func() (adapter.Adapter, error) { return rx, nil })
	done := make(chan struct{})
	var calls int
	go func() {
		m.Listen(filter.Filter{}, nil, nil, func(Received) {
			calls++
			panic("boom")
		})
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	wire, _ := canframe.Build(canframe.Frame{ID: 0x1}, canframe.BigEndian)
	_ = tx.WriteFrame(wire)
	time.Sleep(20 * time.Millisecond)
	m.StopListening()
	// unblock the loop's pending ReadFrame so it observes the stop request.
	_ = tx.WriteFrame(wire)
	<-done
	if calls == 0 {
		t.Fatal("callback was never invoked")
	}
}
