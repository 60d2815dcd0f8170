package tcp

import (
	"log/slog"

	"github.com/soypat/ustack/internal"
)

// logger is embedded by Sender and Receiver, following the pattern used
// throughout github.com/soypat/lneto (tcp.ControlBlock, internet.StackIP):
// a nil *slog.Logger silently disables all logging, so no component requires
// one to function.
type logger struct {
	log *slog.Logger
}

func (l logger) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, internal.LevelTrace, msg, attrs...)
}

func (l logger) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelDebug, msg, attrs...)
}

func (l logger) warn(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelWarn, msg, attrs...)
}

func (l logger) error(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelError, msg, attrs...)
}
