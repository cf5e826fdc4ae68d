// Package log provides the logging functionality for devstack.
package log

import (
	"context"
	"io"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger *stackLogger
var nopLogger = zap.NewNop().Sugar()

func init() {
	Logger = CreateLoggerWithConfig(DefaultLoggerConfig())
}

func DefaultLoggerConfig() *zap.Config {
	c := zap.NewProductionConfig()
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return &c
}

// NewRotatingWriter returns a size-rotated file writer.
// Used for the supervisor log and for per-stage child output.
func NewRotatingWriter(file string, maxSize int) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize, // megabytes
		MaxBackups: 5,
		MaxAge:     3,    // days
		Compress:   true, // compress the rotated files
	}
}

func CreateLoggerWithLumberjack(logFile string, maxSize int, logLevel zapcore.Level) *stackLogger {
	w := zapcore.AddSync(NewRotatingWriter(logFile, maxSize))

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		w,
		logLevel,
	)
	return newStackLogger(zap.New(core).Sugar())
}

func ParseLogLevel(logLevel string) (zap.AtomicLevel, error) {
	zapLvl := zap.NewAtomicLevel() // info level by default
	if logLevel != "" && logLevel != "info" {
		var err error
		zapLvl, err = zap.ParseAtomicLevel(logLevel)
		if err != nil {
			return zap.AtomicLevel{}, err
		}
	}
	return zapLvl, nil
}

func CreateLogger(logLevel zap.AtomicLevel, logFile string) *stackLogger {
	if logFile != "" {
		return CreateLoggerWithLumberjack(logFile, 64, logLevel.Level())
	}

	lCfg := DefaultLoggerConfig()
	lCfg.Level = logLevel
	return CreateLoggerWithConfig(lCfg)
}

func CreateLoggerWithConfig(config *zap.Config) *stackLogger {
	if config == nil {
		config = DefaultLoggerConfig()
	}

	l, err := config.Build()
	if err != nil {
		panic(err)
	}

	return newStackLogger(l.Sugar())
}

// NewNopLogger returns a logger that discards everything, for tests.
func NewNopLogger() *stackLogger {
	return newStackLogger(nopLogger)
}

type stackLogger struct {
	logger atomic.Pointer[zap.SugaredLogger]
}

func newStackLogger(logger *zap.SugaredLogger) *stackLogger {
	l := &stackLogger{}
	l.set(logger)
	return l
}

func (l *stackLogger) get() *zap.SugaredLogger {
	if l == nil {
		return nopLogger
	}
	logger := l.logger.Load()
	if logger == nil {
		return nopLogger
	}
	return logger
}

func (l *stackLogger) set(logger *zap.SugaredLogger) {
	if logger == nil {
		logger = nopLogger
	}
	l.logger.Store(logger)
}

// SetLogger swaps the underlying logger of the package-level Logger
// so that references taken earlier observe the change.
func SetLogger(logger *stackLogger) {
	if logger == nil {
		Logger.set(nil)
		return
	}
	Logger.set(logger.get())
}

// Errorw downgrades context canceled errors to warn, since those are
// expected on every interrupt-driven shutdown.
func (l *stackLogger) Errorw(msg string, keysAndValues ...interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if keysAndValues[i] != "error" {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			if strings.Contains(err.Error(), context.Canceled.Error()) {
				l.Warnw(msg, keysAndValues...)
				return
			}
		}
	}

	l.get().Errorw(msg, keysAndValues...)
}

func (l *stackLogger) Debugw(msg string, keysAndValues ...interface{}) {
	l.get().Debugw(msg, keysAndValues...)
}

func (l *stackLogger) Debugf(template string, args ...interface{}) {
	l.get().Debugf(template, args...)
}

func (l *stackLogger) Infow(msg string, keysAndValues ...interface{}) {
	l.get().Infow(msg, keysAndValues...)
}

func (l *stackLogger) Infof(template string, args ...interface{}) {
	l.get().Infof(template, args...)
}

func (l *stackLogger) Warnw(msg string, keysAndValues ...interface{}) {
	l.get().Warnw(msg, keysAndValues...)
}

func (l *stackLogger) Warnf(template string, args ...interface{}) {
	l.get().Warnf(template, args...)
}

func (l *stackLogger) Errorf(template string, args ...interface{}) {
	l.get().Errorf(template, args...)
}

func (l *stackLogger) With(args ...interface{}) *zap.SugaredLogger {
	return l.get().With(args...)
}

func (l *stackLogger) Sync() error {
	return l.get().Sync()
}
