package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fk1018/can-messenger/internal/dbc"
	"github.com/fk1018/can-messenger/internal/filter"
	"github.com/fk1018/can-messenger/internal/logging"
	"github.com/fk1018/can-messenger/internal/messenger"
	"github.com/fk1018/can-messenger/internal/metrics"
	"github.com/fk1018/can-messenger/internal/trace"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("can-messenger-daemon %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	var cat *dbc.Catalog
	if cfg.dbcPath != "" {
		var err error
		cat, err = dbc.Load(cfg.dbcPath)
		if err != nil {
			l.Error("dbc_load_error", "path", cfg.dbcPath, "error", err)
			os.Exit(1)
		}
		l.Info("dbc_loaded", "path", cfg.dbcPath, "messages", len(cat.Names()))
	}

	f := filter.Filter{}
	if cfg.filterRange != "" {
		lo, hi, _ := parseFilterRange(cfg.filterRange)
		f = filter.NewRange(lo, hi)
	}

	var rec *trace.Recorder
	var traceFile *os.File
	if cfg.traceOut != "" {
		var err error
		traceFile, err = os.Create(cfg.traceOut)
		if err != nil {
			l.Error("trace_open_error", "path", cfg.traceOut, "error", err)
			os.Exit(1)
		}
		defer traceFile.Close()
		rec = trace.NewRecorder(traceFile)
	}

	m := messenger.New(cfg.iface, openerFor(cfg), messenger.WithFD(cfg.fd), messenger.WithLogger(l))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	go func() {
		close(ready)
		m.Listen(f, nil, cat, func(r messenger.Received) {
			l.Debug("frame_received", logging.FrameAttrs(r.Frame.ID, r.Frame.Extended, len(r.Frame.Data))...)
			if rec != nil {
				var decoded *trace.Decoded
				if r.Decoded != nil {
					decoded = &trace.Decoded{Name: r.Decoded.Name, Signals: r.Decoded.Signals}
				}
				if err := rec.Record(time.Now().UnixNano(), r.Frame, decoded); err != nil {
					l.Warn("trace_record_error", "error", err)
				}
			}
		})
	}()
	<-ready

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()

		if cfg.mdnsEnable {
			go func() {
				_, port := splitPort(cfg.metricsAddr)
				cleanupMDNS, err := startMDNS(ctx, cfg, port)
				if err != nil {
					l.Warn("mdns_start_failed", "error", err)
					return
				}
				l.Info("mdns_started", "service", mdnsServiceType, "port", port)
				go func() { <-ctx.Done(); cleanupMDNS() }()
			}()
		}
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	m.StopListening()
	cancel()
	time.Sleep(50 * time.Millisecond)
}

func splitPort(addr string) (string, int) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		if idx := strings.LastIndex(addr, ":"); idx >= 0 {
			if n, perr := strconv.Atoi(addr[idx+1:]); perr == nil {
				return "", n
			}
		}
		return "", 0
	}
	n, _ := strconv.Atoi(p)
	return host, n
}
