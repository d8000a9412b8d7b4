package util

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is a nop global logger
var Logger = log.NewNopLogger()

const (
	LogFormatLogfmt = "logfmt"
	LogFormatJSON   = "json"
)

// NewLogger builds the process logger writing to w. Unknown formats fall
// back to logfmt, unknown levels allow everything.
func NewLogger(w io.Writer, format, lvl string) log.Logger {
	w = log.NewSyncWriter(w)
	logger := log.NewLogfmtLogger(w)
	if format == LogFormatJSON {
		logger = log.NewJSONLogger(w)
	}
	logger = level.NewFilter(logger, LevelFilter(lvl))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	Logger = logger
	return logger
}

func LevelFilter(l string) level.Option {
	switch l {
	case "debug":
		return level.AllowDebug()
	case "info":
		return level.AllowInfo()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowAll()
	}
}
