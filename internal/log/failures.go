package log

import (
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/mmcdole/romdl/internal/config"
	"github.com/mmcdole/romdl/internal/domain"
)

// FailureLog is the append-only record of recoverable and fatal failures.
// Entries are JSON lines carrying kind, detail, error and optionally a stack.
type FailureLog struct {
	logger *slog.Logger
	trace  bool
	closer io.Closer
}

// NewFailureLog opens the failure log configured in cfg.
func NewFailureLog(cfg *config.LoggingConfig) (*FailureLog, error) {
	f, err := openAppend(cfg.FailureFile)
	if err != nil {
		return nil, err
	}
	fl := NewFailureLogWriter(f, cfg.Trace)
	fl.closer = f
	return fl, nil
}

// NewFailureLogWriter writes failure entries to w.
func NewFailureLogWriter(w io.Writer, trace bool) *FailureLog {
	return &FailureLog{
		logger: slog.New(slog.NewJSONHandler(w, nil)),
		trace:  trace,
	}
}

// Record implements domain.FailureRecorder.
func (l *FailureLog) Record(kind domain.ErrorKind, detail string, err error) {
	attrs := []any{
		slog.String("kind", string(kind)),
		slog.String("detail", detail),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if l.trace {
		attrs = append(attrs, slog.String("trace", string(debug.Stack())))
	}
	l.logger.Error("failure", attrs...)
}

// Close closes the underlying file, if any.
func (l *FailureLog) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
