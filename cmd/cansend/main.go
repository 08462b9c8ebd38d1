// Command cansend sends a single raw or DBC-encoded frame and exits.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/fk1018/can-messenger/internal/adapter"
	"github.com/fk1018/can-messenger/internal/canframe"
	"github.com/fk1018/can-messenger/internal/dbc"
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
	id := flag.String("id", "", "Frame id in hex (e.g. 1AB or 0x1AB)")
	data := flag.String("data", "", "Payload as hex bytes (e.g. DEADBEEF); mutually exclusive with -dbc/-message/-signals")
	extended := flag.Bool("extended", false, "Use 29-bit extended identifier")
	fd := flag.Bool("fd", false, "Use CAN FD framing")
	dbcPath := flag.String("dbc", "", "Path to a DBC file")
	messageName := flag.String("message", "", "DBC message name to encode and send")
	signals := flag.String("signals", "", "Comma-separated name=value pairs for -message")
	flag.Parse()

	l := logging.New("text", slog.LevelInfo, os.Stderr)
	logging.Set(l)

	m := messenger.New(*iface, openerFor(*adapterKind, *iface, *serialDev, *serialBaud, *fd), messenger.WithLogger(l))

	switch {
	case *dbcPath != "" && *messageName != "":
		cat, err := dbc.Load(*dbcPath)
		if err != nil {
			l.Error("dbc_load_error", "error", err)
			os.Exit(1)
		}
		values, err := parseSignals(*signals)
		if err != nil {
			l.Error("signals_parse_error", "error", err)
			os.Exit(1)
		}
		if err := m.SendWithDBC(cat, *messageName, values, *extended, boolPtr(*fd)); err != nil {
			l.Error("send_with_dbc_error", "error", err)
			os.Exit(1)
		}
	case *id != "":
		canID, err := parseID(*id)
		if err != nil {
			l.Error("id_parse_error", "error", err)
			os.Exit(1)
		}
		payload, err := hex.DecodeString(strings.TrimPrefix(*data, "0x"))
		if err != nil {
			l.Error("data_parse_error", "error", err)
			os.Exit(1)
		}
		if err := m.SendRaw(canID, payload, *extended, boolPtr(*fd)); err != nil {
			l.Error("send_raw_error", "error", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: cansend -id <hex> -data <hex> | -dbc <path> -message <name> -signals k=v,...")
		os.Exit(2)
	}
}

func parseID(s string) (uint32, error) {
	s = strings.TrimPrefix(s, "0x")
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		n, err = strconv.ParseUint(s, 10, 32)
	}
	return uint32(n), err
}

func parseSignals(s string) (map[string]float64, error) {
	out := map[string]float64{}
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed signal assignment %q", pair)
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return nil, fmt.Errorf("signal %q: %w", kv[0], err)
		}
		out[strings.TrimSpace(kv[0])] = v
	}
	return out, nil
}

func boolPtr(b bool) *bool { return &b }

var sharedLoopbackBus = loopback.New()

func openerFor(kind, iface, serialDev string, serialBaud int, fd bool) func() (adapter.Adapter, error) {
	switch kind {
	case "slcan":
		return func() (adapter.Adapter, error) {
			return slcan.Open(serialDev, serialBaud, 0, canframe.BigEndian)
		}
	case "loopback":
		return func() (adapter.Adapter, error) { return sharedLoopbackBus.Open(), nil }
	default:
		return func() (adapter.Adapter, error) { return socketcan.Open(iface, fd) }
	}
}
