package canframe

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/rand"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex literal %q: %v", s, err)
	}
	return b
}

// S1 — classic standard send.
func TestBuild_S1_ClassicStandard(t *testing.T) {
	f := Frame{ID: 0x123, Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
	got, err := Build(f, BigEndian)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := mustHex(t, "00000123"+"04"+"000000"+"DEADBEEF"+"00000000")
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
}

// S2 — classic extended send.
func TestBuild_S2_ClassicExtended(t *testing.T) {
	f := Frame{ID: 0x1ABC, Extended: true, Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
	got, err := Build(f, BigEndian)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := mustHex(t, "80001ABC"+"04"+"000000"+"DEADBEEF"+"00000000")
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
}

// S3 — FD send.
func TestBuild_S3_FD(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 64)
	f := Frame{ID: 0x123, Data: data, FD: true}
	got, err := Build(f, BigEndian)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(got) != FDSize {
		t.Fatalf("len = %d, want %d", len(got), FDSize)
	}
	if !bytes.Equal(got[0:4], mustHex(t, "00000123")) {
		t.Fatalf("id word = % X", got[0:4])
	}
	if got[4] != 0x40 {
		t.Fatalf("dlc byte = %#x, want 0x40", got[4])
	}
	for i := 8; i < 72; i++ {
		if got[i] != 0xAA {
			t.Fatalf("payload[%d] = %#x, want 0xAA", i-8, got[i])
		}
	}
}

// S4 — parse extended.
func TestParse_S4_Extended(t *testing.T) {
	buf := mustHex(t, "80001ABC"+"04"+"000000"+"DEADBEEF"+"00000000")
	f, err := Parse(buf, nil, BigEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.ID != 0x1ABC || !f.Extended || f.FD {
		t.Fatalf("got %+v", f)
	}
	if !bytes.Equal(f.Data, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("data = % X", f.Data)
	}
}

func TestBuild_InvalidLength(t *testing.T) {
	if _, err := Build(Frame{ID: 1, Data: make([]byte, 9)}, BigEndian); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("classic: want ErrInvalidLength, got %v", err)
	}
	if _, err := Build(Frame{ID: 1, Data: make([]byte, 65), FD: true}, BigEndian); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("fd: want ErrInvalidLength, got %v", err)
	}
}

func TestParse_Incomplete(t *testing.T) {
	if _, err := Parse(make([]byte, 7), nil, BigEndian); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("want ErrIncomplete, got %v", err)
	}
}

func TestParse_AutoDetectsFDBySize(t *testing.T) {
	buf := make([]byte, FDSize)
	buf[4] = 3
	f, err := Parse(buf, nil, BigEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !f.FD {
		t.Fatalf("expected auto-detected FD frame")
	}
}

// DLC high-nibble clamping (classic only): bytes with garbage in the upper
// nibble of the DLC byte must parse identically to the low nibble alone.
func TestParse_DLCHighNibbleClamped(t *testing.T) {
	clean := mustHex(t, "00000123"+"04"+"000000"+"DEADBEEF"+"00000000")
	dirty := append([]byte(nil), clean...)
	dirty[4] = 0xF4 // high nibble garbage, low nibble still 4

	got, err := Parse(dirty, nil, BigEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want, err := Parse(clean, nil, BigEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.ID != want.ID || !bytes.Equal(got.Data, want.Data) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestEndianness_MixingByteSwapsIdentifier(t *testing.T) {
	f := Frame{ID: 0x010203}
	be, err := Build(f, BigEndian)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	gotLE, err := Parse(be, boolPtr(false), LittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if gotLE.ID == f.ID {
		t.Fatalf("expected byte-swapped id when mixing endianness, got matching id 0x%X", gotLE.ID)
	}
}

func boolPtr(b bool) *bool { return &b }

// Property 1/2 — round trip across random classic and FD frames, both
// endiannesses, both EFF settings.
func TestRoundTrip_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		fd := i%2 == 0
		max := classicMaxData
		if fd {
			max = fdMaxData
		}
		n := rng.Intn(max + 1)
		data := make([]byte, n)
		rng.Read(data)

		want := Frame{
			ID:       rng.Uint32() & idMask,
			Extended: rng.Intn(2) == 0,
			Data:     data,
			FD:       fd,
		}
		endianness := BigEndian
		if rng.Intn(2) == 1 {
			endianness = LittleEndian
		}

		buf, err := Build(want, endianness)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		got, err := Parse(buf, &fd, endianness)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if got.ID != want.ID || got.Extended != want.Extended || got.FD != want.FD {
			t.Fatalf("round trip header mismatch: got %+v, want %+v", got, want)
		}
		if len(want.Data) == 0 {
			want.Data = nil
		}
		if !bytes.Equal(got.Data, want.Data) {
			t.Fatalf("round trip data mismatch: got % X, want % X", got.Data, want.Data)
		}
	}
}
