package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type appConfig struct {
	adapterKind string // socketcan|slcan|loopback
	iface       string // socketcan interface name
	serialDev   string
	serialBaud  int
	dbcPath     string
	fd          bool
	filterRange string // "lo-hi" in hex, empty disables
	metricsAddr string
	mdnsEnable  bool
	mdnsName    string
	traceOut    string
	logFormat   string
	logLevel    string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	adapterKind := flag.String("adapter", "socketcan", "Transport: socketcan|slcan|loopback")
	iface := flag.String("iface", "can0", "SocketCAN interface name")
	serialDev := flag.String("serial-dev", "/dev/ttyUSB0", "SLCAN serial device path")
	serialBaud := flag.Int("serial-baud", 115200, "SLCAN serial baud rate")
	dbcPath := flag.String("dbc", "", "Path to a DBC file to load; empty disables DBC decode")
	fd := flag.Bool("fd", false, "Enable CAN FD framing")
	filterRange := flag.String("filter-range", "", "Accept only ids in lo-hi (hex, e.g. 100-200); empty accepts all")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g. :9100); empty disables")
	mdnsEnable := flag.Bool("mdns-enable", false, "Advertise the running daemon via mDNS")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default can-messenger-<hostname>)")
	traceOut := flag.String("trace-out", "", "Path to record a CBOR trace of received frames; empty disables")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.adapterKind = *adapterKind
	cfg.iface = *iface
	cfg.serialDev = *serialDev
	cfg.serialBaud = *serialBaud
	cfg.dbcPath = *dbcPath
	cfg.fd = *fd
	cfg.filterRange = *filterRange
	cfg.metricsAddr = *metricsAddr
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.traceOut = *traceOut
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not open any device or listener — only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.adapterKind {
	case "socketcan", "slcan", "loopback":
	default:
		return fmt.Errorf("invalid adapter: %s", c.adapterKind)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.serialBaud <= 0 {
		return fmt.Errorf("serial-baud must be > 0 (got %d)", c.serialBaud)
	}
	if c.filterRange != "" {
		if _, _, err := parseFilterRange(c.filterRange); err != nil {
			return fmt.Errorf("invalid filter-range: %w", err)
		}
	}
	return nil
}

// parseFilterRange parses "lo-hi" with each side in hex (0x-prefixed or
// bare hex digits); decimal is not accepted, so "100" means 0x100.
func parseFilterRange(s string) (lo, hi uint32, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lo-hi, got %q", s)
	}
	parse := func(tok string) (uint32, error) {
		tok = strings.TrimPrefix(strings.TrimSpace(tok), "0x")
		n, err := strconv.ParseUint(tok, 16, 32)
		return uint32(n), err
	}
	if lo, err = parse(parts[0]); err != nil {
		return 0, 0, err
	}
	if hi, err = parse(parts[1]); err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

// applyEnvOverrides maps CANMSG_* environment variables to config fields
// unless the corresponding flag was explicitly set (flag wins).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["adapter"]; !ok {
		if v, ok := get("CANMSG_ADAPTER"); ok && v != "" {
			c.adapterKind = v
		}
	}
	if _, ok := set["iface"]; !ok {
		if v, ok := get("CANMSG_IFACE"); ok && v != "" {
			c.iface = v
		}
	}
	if _, ok := set["serial-dev"]; !ok {
		if v, ok := get("CANMSG_SERIAL_DEV"); ok && v != "" {
			c.serialDev = v
		}
	}
	if _, ok := set["serial-baud"]; !ok {
		if v, ok := get("CANMSG_SERIAL_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.serialBaud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CANMSG_SERIAL_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["dbc"]; !ok {
		if v, ok := get("CANMSG_DBC"); ok {
			c.dbcPath = v
		}
	}
	if _, ok := set["fd"]; !ok {
		if v, ok := get("CANMSG_FD"); ok && v != "" {
			c.fd = truthy(v)
		}
	}
	if _, ok := set["filter-range"]; !ok {
		if v, ok := get("CANMSG_FILTER_RANGE"); ok {
			c.filterRange = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("CANMSG_METRICS_ADDR"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("CANMSG_MDNS_ENABLE"); ok && v != "" {
			c.mdnsEnable = truthy(v)
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("CANMSG_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["trace-out"]; !ok {
		if v, ok := get("CANMSG_TRACE_OUT"); ok {
			c.traceOut = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("CANMSG_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("CANMSG_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	return firstErr
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
