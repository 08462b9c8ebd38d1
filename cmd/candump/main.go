// Command candump listens for frames and prints them until interrupted.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fk1018/can-messenger/internal/adapter"
	"github.com/fk1018/can-messenger/internal/canframe"
	"github.com/fk1018/can-messenger/internal/dbc"
	"github.com/fk1018/can-messenger/internal/filter"
	"github.com/fk1018/can-messenger/internal/loopback"
	"github.com/fk1018/can-messenger/internal/logging"
	"github.com/fk1018/can-messenger/internal/messenger"
	"github.com/fk1018/can-messenger/internal/slcan"
	"github.com/fk1018/can-messenger/internal/socketcan"
)

func main() {
	adapterKind := flag.String("adapter", "socketcan", "Transport: socketcan|slcan|loopback")
	iface := flag.String("iface", "can0", "SocketCAN interface name")
	serialDev := flag.String("serial-dev", "/dev/ttyUSB0", "SLCAN serial device path")
	serialBaud := flag.Int("serial-baud", 115200, "SLCAN serial baud rate")
	fd := flag.Bool("fd", false, "Expect CAN FD framing")
	dbcPath := flag.String("dbc", "", "Path to a DBC file for decoded signal printing")
	flag.Parse()

	l := logging.New("text", slog.LevelInfo, os.Stderr)
	logging.Set(l)

	var cat *dbc.Catalog
	if *dbcPath != "" {
		var err error
		cat, err = dbc.Load(*dbcPath)
		if err != nil {
			l.Error("dbc_load_error", "error", err)
			os.Exit(1)
		}
	}

	m := messenger.New(*iface, openerFor(*adapterKind, *iface, *serialDev, *serialBaud, *fd), messenger.WithFD(*fd), messenger.WithLogger(l))

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		m.StopListening()
	}()

	m.Listen(filter.Filter{}, nil, cat, func(r messenger.Received) {
		fmt.Printf("id=0x%X ext=%v data=% X\n", r.Frame.ID, r.Frame.Extended, r.Frame.Data)
		if r.Decoded != nil {
			fmt.Printf("  %s: %v\n", r.Decoded.Name, r.Decoded.Signals)
		}
	})
}

var sharedLoopbackBus = loopback.New()

func openerFor(kind, iface, serialDev string, serialBaud int, fd bool) func() (adapter.Adapter, error) {
	switch kind {
	case "slcan":
		return func() (adapter.Adapter, error) {
			return slcan.Open(serialDev, serialBaud, time.Second, canframe.BigEndian)
		}
	case "loopback":
		return func() (adapter.Adapter, error) { return sharedLoopbackBus.Open(), nil }
	default:
		return func() (adapter.Adapter, error) { return socketcan.Open(iface, fd) }
	}
}
