package slcan

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/fk1018/can-messenger/internal/canframe"
)

// fakePort is an in-memory Port for testing the line codec without a real
// serial device, mirroring the teacher's fakes for internal/serial.Port.
type fakePort struct {
	out bytes.Buffer
	in  *bytes.Reader
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.in == nil {
		return 0, io.EOF
	}
	return p.in.Read(b)
}
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p *fakePort) Close() error                { return nil }

func newTestAdapter(in string) (*Adapter, *fakePort) {
	fp := &fakePort{}
	if in != "" {
		fp.in = bytes.NewReader([]byte(in))
	}
	return &Adapter{port: fp, reader: bufio.NewReader(fp), endianness: canframe.BigEndian}, fp
}

// TestSLCAN_RoundTrip_Classic — property 13: build -> WriteFrame's line
// encoding -> decodeLine yields the same {id, data, extended}.
func TestSLCAN_RoundTrip_Classic(t *testing.T) {
	f := canframe.Frame{ID: 0x1ABC, Extended: true, Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
	wire, err := canframe.Build(f, canframe.BigEndian)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	a, fp := newTestAdapter("")
	if err := a.WriteFrame(wire); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	line := fp.out.String()

	back, err := decodeLine(trimCR(line), canframe.BigEndian)
	if err != nil {
		t.Fatalf("decodeLine: %v", err)
	}
	got, err := canframe.Parse(back, boolPtr(false), canframe.BigEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.ID != f.ID || got.Extended != f.Extended || !bytes.Equal(got.Data, f.Data) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestSLCAN_FDRejected(t *testing.T) {
	fd := make([]byte, canframe.FDSize)
	a, _ := newTestAdapter("")
	if err := a.WriteFrame(fd); !errors.Is(err, ErrFDUnsupported) {
		t.Fatalf("want ErrFDUnsupported, got %v", err)
	}
	if _, err := a.ReadFrame(true); !errors.Is(err, ErrFDUnsupported) {
		t.Fatalf("want ErrFDUnsupported, got %v", err)
	}
}

func TestSLCAN_StandardFrameLine(t *testing.T) {
	back, err := decodeLine("t1232DEAD", canframe.BigEndian)
	if err != nil {
		t.Fatalf("decodeLine: %v", err)
	}
	f, err := canframe.Parse(back, boolPtr(false), canframe.BigEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.ID != 0x123 || f.Extended || !bytes.Equal(f.Data, []byte{0xDE, 0xAD}) {
		t.Fatalf("got %+v", f)
	}
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}
