package logger

import (
	"context"
	"sync"

	"github.com/theory-cloud/cvsite/pkg/observability"
	obszap "github.com/theory-cloud/cvsite/pkg/observability/zap"
)

var (
	globalMu     sync.RWMutex
	globalLogger observability.StructuredLogger = observability.NewNoOpLogger()
)

// Logger returns the global structured logger singleton.
func Logger() observability.StructuredLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetLogger replaces the global structured logger singleton.
//
// Passing nil resets the logger to a no-op implementation.
func SetLogger(next observability.StructuredLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if next == nil {
		globalLogger = observability.NewNoOpLogger()
		return
	}
	globalLogger = next
}

// Setup builds the zap logger for the process, with error notifications when a topic is
// configured in the environment, and installs it as the global logger.
func Setup(ctx context.Context, cfg observability.LoggerConfig, notify obszap.EnvironmentErrorNotificationsOptions, opts ...obszap.Option) (observability.StructuredLogger, error) {
	options := append([]obszap.Option{obszap.WithEnvironmentErrorNotifications(ctx, notify)}, opts...)
	l, err := obszap.NewZapLoggerFactory(options...).CreateConsoleLogger(cfg)
	if err != nil {
		return nil, err
	}
	SetLogger(l)
	return l, nil
}
