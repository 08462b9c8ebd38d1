// Command canreplay pumps a recorded CBOR trace onto a live adapter.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fk1018/can-messenger/internal/adapter"
	"github.com/fk1018/can-messenger/internal/canframe"
	"github.com/fk1018/can-messenger/internal/logging"
	"github.com/fk1018/can-messenger/internal/loopback"
	"github.com/fk1018/can-messenger/internal/metrics"
	"github.com/fk1018/can-messenger/internal/slcan"
	"github.com/fk1018/can-messenger/internal/socketcan"
	"github.com/fk1018/can-messenger/internal/trace"
	"github.com/fk1018/can-messenger/internal/transport"
)

func main() {
	adapterKind := flag.String("adapter", "socketcan", "Transport: socketcan|slcan|loopback")
	iface := flag.String("iface", "can0", "SocketCAN interface name")
	serialDev := flag.String("serial-dev", "/dev/ttyUSB0", "SLCAN serial device path")
	serialBaud := flag.Int("serial-baud", 115200, "SLCAN serial baud rate")
	in := flag.String("in", "", "Path to a CBOR trace file to replay (required)")
	bufSize := flag.Int("buf", 64, "Async send queue depth")
	flag.Parse()

	l := logging.New("text", slog.LevelInfo, os.Stderr)
	logging.Set(l)

	if *in == "" {
		l.Error("missing_in_flag")
		os.Exit(2)
	}
	f, err := os.Open(*in)
	if err != nil {
		l.Error("trace_open_error", "path", *in, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	dest, err := openerFor(*adapterKind, *iface, *serialDev, *serialBaud)()
	if err != nil {
		l.Error("adapter_open_error", "error", err)
		os.Exit(1)
	}
	defer dest.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigCh; cancel() }()

	hooks := transport.Hooks{
		OnError: func(err error) { l.Warn("replay_send_error", "error", err); metrics.FramesDropped.Inc() },
		OnDrop:  func() error { metrics.FramesDropped.Inc(); return nil },
	}
	n, err := trace.Pump(ctx, trace.NewPlayer(f), dest, canframe.BigEndian, *bufSize, hooks)
	if err != nil {
		l.Error("replay_error", "error", err)
		os.Exit(1)
	}
	l.Info("replay_done", "frames", n)
}

var sharedLoopbackBus = loopback.New()

func openerFor(kind, iface, serialDev string, serialBaud int) func() (adapter.Adapter, error) {
	switch kind {
	case "slcan":
		return func() (adapter.Adapter, error) {
			return slcan.Open(serialDev, serialBaud, time.Second, canframe.BigEndian)
		}
	case "loopback":
		return func() (adapter.Adapter, error) { return sharedLoopbackBus.Open(), nil }
	default:
		return func() (adapter.Adapter, error) { return socketcan.Open(iface, false) }
	}
}
