package internal

import (
	"log/slog"
	"net"
	"net/netip"
)

// SlogAddr returns a slog.Attr holding addr formatted by netip.Addr.String.
// The string is built when SlogAddr is called, whether or not the logger is
// enabled for the level being logged.
func SlogAddr(key string, addr netip.Addr) slog.Attr {
	return slog.String(key, addr.String())
}

// SlogHW returns a slog.Attr for a hardware (MAC) address.
func SlogHW(key string, addr net.HardwareAddr) slog.Attr {
	return slog.String(key, addr.String())
}
