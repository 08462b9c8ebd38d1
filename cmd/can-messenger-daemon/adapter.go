package main

import (
	"time"

	"github.com/fk1018/can-messenger/internal/adapter"
	"github.com/fk1018/can-messenger/internal/canframe"
	"github.com/fk1018/can-messenger/internal/loopback"
	"github.com/fk1018/can-messenger/internal/slcan"
	"github.com/fk1018/can-messenger/internal/socketcan"
)

// sharedLoopbackBus backs the "loopback" adapter kind so repeated opens
// within one daemon process join the same in-memory bus instead of each
// getting an isolated one.
var sharedLoopbackBus = loopback.New()

// openerFor returns a messenger.Opener for the configured transport.
func openerFor(cfg *appConfig) func() (adapter.Adapter, error) {
	switch cfg.adapterKind {
	case "slcan":
		return func() (adapter.Adapter, error) {
			return slcan.Open(cfg.serialDev, cfg.serialBaud, time.Second, canframe.BigEndian)
		}
	case "loopback":
		return func() (adapter.Adapter, error) {
			return sharedLoopbackBus.Open(), nil
		}
	default:
		return func() (adapter.Adapter, error) {
			return socketcan.Open(cfg.iface, cfg.fd)
		}
	}
}
