package codecache

import "go.uber.org/zap"

var pkgLogger = zap.NewNop()

// SetLogger installs the logger used for allocation tracing and eviction
// diagnostics. Call it once during VM start-up, before the cache sees
// concurrent traffic; it is not safe to call while allocations are in
// flight.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	pkgLogger = l
}

func logger() *zap.Logger {
	return pkgLogger
}
