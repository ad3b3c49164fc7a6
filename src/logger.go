package src

import "go.uber.org/zap"

// Logger is the logging surface the storage core expects. It is satisfied
// by *zap.SugaredLogger.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Error(args ...any)
	Sync() error
}

var _ Logger = (*zap.SugaredLogger)(nil)

// NoopLogger returns a logger that discards everything. Library code
// defaults to it so that logging is always safe to call.
func NoopLogger() Logger {
	return zap.NewNop().Sugar()
}
