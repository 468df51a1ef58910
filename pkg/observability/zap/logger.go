package zap

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ubzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theory-cloud/cvsite/pkg/observability"
	"github.com/theory-cloud/cvsite/pkg/sanitization"
)

const (
	levelDebug = "debug"
	levelInfo  = "info"
	levelWarn  = "warn"
	levelError = "error"
)

const (
	defaultBufferSize     = 64
	defaultNotifyAttempts = 3
	notifyRetryDelay      = 500 * time.Millisecond
)

type Option func(*loggerOptions)

type loggerOptions struct {
	initErr error

	zapLogger *ubzap.Logger
	output    io.Writer
	sanitizer observability.SanitizerFunc
	notifier  observability.ErrorNotifier

	attempts   int
	retryDelay time.Duration
}

// WithZapLogger replaces the encoder/core built from LoggerConfig.
func WithZapLogger(logger *ubzap.Logger) Option {
	return func(opts *loggerOptions) {
		opts.zapLogger = logger
	}
}

// WithOutput sets the destination of encoded entries. The default is stderr so that command
// output on stdout stays machine-readable.
func WithOutput(w io.Writer) Option {
	return func(opts *loggerOptions) {
		opts.output = w
	}
}

func WithSanitizer(fn observability.SanitizerFunc) Option {
	return func(opts *loggerOptions) {
		opts.sanitizer = fn
	}
}

func WithErrorNotifier(notifier observability.ErrorNotifier) Option {
	return func(opts *loggerOptions) {
		opts.notifier = notifier
	}
}

// WithNotifyAttempts bounds how often a failed notification is retried.
func WithNotifyAttempts(attempts int, delay time.Duration) Option {
	return func(opts *loggerOptions) {
		opts.attempts = attempts
		opts.retryDelay = delay
	}
}

type zapCore struct {
	logger *ubzap.Logger

	sanitizer observability.SanitizerFunc
	notifier  observability.ErrorNotifier

	attempts   int
	retryDelay time.Duration

	notifyMu sync.Mutex
	notifyCh chan observability.LogEntry
	pending  sync.WaitGroup

	closeOnce sync.Once
	closed    atomic.Bool

	entriesLogged   atomic.Int64
	entriesDropped  atomic.Int64
	flushCount      atomic.Int64
	errorCount      atomic.Int64
	lastFlushNanos  atomic.Int64
	totalFlushNanos atomic.Int64
	lastError       atomic.Value
}

// Logger is the zap-backed StructuredLogger. Derived loggers share one core, so Flush and Close
// on any of them drain the same notifier.
type Logger struct {
	core *zapCore
	log  *ubzap.Logger

	fields map[string]any
	runID  string
	stage  string
}

var _ observability.StructuredLogger = (*Logger)(nil)

func NewZapLogger(config observability.LoggerConfig, options ...Option) (observability.StructuredLogger, error) {
	cfg := normalizeLoggerConfig(config)

	opts := &loggerOptions{
		sanitizer:  sanitization.SanitizeFieldValue,
		attempts:   defaultNotifyAttempts,
		retryDelay: notifyRetryDelay,
	}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	if opts.initErr != nil {
		return nil, opts.initErr
	}

	base := opts.zapLogger
	if base == nil {
		built, err := buildZapLogger(cfg, opts.output)
		if err != nil {
			return nil, err
		}
		base = built
	}

	zcore := &zapCore{
		logger:     base,
		sanitizer:  opts.sanitizer,
		notifier:   opts.notifier,
		attempts:   opts.attempts,
		retryDelay: opts.retryDelay,
	}
	zcore.lastError.Store("")

	if zcore.notifier != nil {
		ch := make(chan observability.LogEntry, cfg.BufferSize)
		zcore.notifyCh = ch
		go zcore.runNotifier(ch)
	}

	return &Logger{core: zcore, log: base, fields: map[string]any{}}, nil
}

func buildZapLogger(cfg observability.LoggerConfig, out io.Writer) (*ubzap.Logger, error) {
	level, err := parseZapLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	enc := zapEncoderConfig(cfg.EnableCaller)
	var encoder zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "console":
		encoder = zapcore.NewConsoleEncoder(enc)
	case "json":
		encoder = zapcore.NewJSONEncoder(enc)
	default:
		return nil, errors.New("observability/zap: unsupported log format")
	}

	if out == nil {
		out = os.Stderr
	}
	logger := ubzap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), level))
	if cfg.EnableCaller {
		logger = logger.WithOptions(ubzap.AddCaller())
	}
	if cfg.EnableStack {
		logger = logger.WithOptions(ubzap.AddStacktrace(zapcore.ErrorLevel))
	}
	return logger, nil
}

func normalizeLoggerConfig(config observability.LoggerConfig) observability.LoggerConfig {
	cfg := config
	if strings.TrimSpace(cfg.Format) == "" {
		cfg.Format = "json"
	}
	if strings.TrimSpace(cfg.Level) == "" {
		cfg.Level = levelInfo
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return cfg
}

func parseZapLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case levelDebug:
		return zapcore.DebugLevel, nil
	case levelInfo, "":
		return zapcore.InfoLevel, nil
	case levelWarn, "warning":
		return zapcore.WarnLevel, nil
	case levelError:
		return zapcore.ErrorLevel, nil
	default:
		return 0, errors.New("observability/zap: unsupported log level")
	}
}

func zapEncoderConfig(enableCaller bool) zapcore.EncoderConfig {
	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if enableCaller {
		enc.CallerKey = "caller"
		enc.EncodeCaller = zapcore.ShortCallerEncoder
	}
	return enc
}

func (l *Logger) Debug(message string, fields ...map[string]any) {
	l.logEntry(levelDebug, message, fields...)
}
func (l *Logger) Info(message string, fields ...map[string]any) {
	l.logEntry(levelInfo, message, fields...)
}
func (l *Logger) Warn(message string, fields ...map[string]any) {
	l.logEntry(levelWarn, message, fields...)
}
func (l *Logger) Error(message string, fields ...map[string]any) {
	l.logEntry(levelError, message, fields...)
}

func (l *Logger) WithField(key string, value any) observability.StructuredLogger {
	return l.WithFields(map[string]any{key: value})
}

func (l *Logger) WithFields(fields map[string]any) observability.StructuredLogger {
	next := l.clone()
	for k, v := range fields {
		next.fields[k] = v
	}
	next.log = next.log.With(l.core.zapFields(fields)...)
	return next
}

func (l *Logger) WithRunID(runID string) observability.StructuredLogger {
	next := l.clone()
	next.runID = runID
	next.log = next.log.With(ubzap.String("run_id", sanitization.SanitizeLogString(runID)))
	return next
}

func (l *Logger) WithStage(stage string) observability.StructuredLogger {
	next := l.clone()
	next.stage = stage
	next.log = next.log.With(ubzap.String("stage", sanitization.SanitizeLogString(stage)))
	return next
}

// Flush syncs the zap core and waits for queued notifications until ctx is done.
func (l *Logger) Flush(ctx context.Context) error {
	if l == nil || l.core == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	l.core.flushCount.Add(1)
	err := l.core.sync()
	l.core.waitNotifier(ctx)

	l.core.lastFlushNanos.Store(time.Now().UnixNano())
	l.core.totalFlushNanos.Add(time.Since(start).Nanoseconds())
	return err
}

func (l *Logger) Close() error {
	if l == nil || l.core == nil {
		return nil
	}
	return l.core.close()
}

// IsHealthy is false once the logger is closed or a sync or notification has failed.
func (l *Logger) IsHealthy() bool {
	if l == nil || l.core == nil || l.core.closed.Load() {
		return false
	}
	return l.core.lastErrorString() == ""
}

func (l *Logger) GetStats() observability.LoggerStats {
	if l == nil || l.core == nil {
		return observability.LoggerStats{}
	}

	var lastFlush time.Time
	if nanos := l.core.lastFlushNanos.Load(); nanos != 0 {
		lastFlush = time.Unix(0, nanos)
	}
	flushCount := l.core.flushCount.Load()
	var avg time.Duration
	if flushCount > 0 {
		avg = time.Duration(l.core.totalFlushNanos.Load() / flushCount)
	}

	return observability.LoggerStats{
		LastFlush:      lastFlush,
		LastError:      l.core.lastErrorString(),
		EntriesLogged:  l.core.entriesLogged.Load(),
		EntriesDropped: l.core.entriesDropped.Load(),
		FlushCount:     flushCount,
		ErrorCount:     l.core.errorCount.Load(),
		AverageFlush:   avg,
	}
}

func (l *Logger) clone() *Logger {
	nextFields := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		nextFields[k] = v
	}
	return &Logger{
		core:   l.core,
		log:    l.log,
		fields: nextFields,
		runID:  l.runID,
		stage:  l.stage,
	}
}

func (l *Logger) logEntry(level string, message string, fields ...map[string]any) {
	if l == nil || l.core == nil || l.log == nil || l.core.closed.Load() {
		return
	}

	message = sanitization.SanitizeLogString(message)
	call := map[string]any{}
	for _, set := range fields {
		for k, v := range set {
			call[k] = v
		}
	}

	zf := l.core.zapFields(call)
	switch level {
	case levelDebug:
		l.log.Debug(message, zf...)
	case levelWarn:
		l.log.Warn(message, zf...)
	case levelError:
		l.log.Error(message, zf...)
	default:
		l.log.Info(message, zf...)
	}
	l.core.entriesLogged.Add(1)

	if level == levelError && l.core.notifier != nil {
		l.core.enqueue(l.notification(level, message, call))
	}
}

func (l *Logger) notification(level string, message string, call map[string]any) observability.LogEntry {
	merged := make(map[string]any, len(l.fields)+len(call))
	for k, v := range l.fields {
		merged[k] = l.core.sanitize(k, v)
	}
	for k, v := range call {
		merged[k] = l.core.sanitize(k, v)
	}
	return observability.LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Fields:    merged,
		RunID:     l.runID,
		Stage:     l.stage,
	}
}

func (c *zapCore) sanitize(key string, value any) any {
	if c.sanitizer != nil {
		return c.sanitizer(key, value)
	}
	return sanitization.SanitizeFieldValue(key, value)
}

func (c *zapCore) zapFields(fields map[string]any) []ubzap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]ubzap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, ubzap.Any(k, c.sanitize(k, v)))
	}
	return out
}

func (c *zapCore) enqueue(entry observability.LogEntry) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if c.closed.Load() || c.notifyCh == nil {
		c.entriesDropped.Add(1)
		return
	}

	c.pending.Add(1)
	select {
	case c.notifyCh <- entry:
	default:
		c.pending.Done()
		c.entriesDropped.Add(1)
	}
}

// runNotifier owns ch; close may nil out c.notifyCh before this goroutine starts.
func (c *zapCore) runNotifier(ch <-chan observability.LogEntry) {
	for entry := range ch {
		if err := c.deliver(entry); err != nil {
			c.recordError(err)
		}
		c.pending.Done()
	}
}

func (c *zapCore) deliver(entry observability.LogEntry) error {
	attempts := c.attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = c.notifier.Notify(context.Background(), entry); err == nil {
			return nil
		}
		if i < attempts-1 && c.retryDelay > 0 {
			time.Sleep(c.retryDelay)
		}
	}
	return err
}

func (c *zapCore) waitNotifier(ctx context.Context) {
	if c.notifier == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
}

func (c *zapCore) sync() error {
	err := c.logger.Sync()
	if err != nil && !isIgnorableSyncError(err) {
		c.recordError(err)
		return err
	}
	return nil
}

func (c *zapCore) close() error {
	var err error
	c.closeOnce.Do(func() {
		c.notifyMu.Lock()
		c.closed.Store(true)
		if c.notifyCh != nil {
			close(c.notifyCh)
			c.notifyCh = nil
		}
		c.notifyMu.Unlock()

		c.pending.Wait()
		err = c.sync()
	})
	return err
}

func (c *zapCore) recordError(err error) {
	c.errorCount.Add(1)
	c.lastError.Store(err.Error())
}

func (c *zapCore) lastErrorString() string {
	lastError, ok := c.lastError.Load().(string)
	if !ok {
		return ""
	}
	return lastError
}

// Syncing a terminal or pipe fails with EINVAL/ENOTTY on most platforms.
func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}
