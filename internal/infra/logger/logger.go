// Package logger is the central zap wrapper for the whole service.
// It initializes the log level and formatting once at startup and allows
// retargeting the output streams at runtime. A zap.AtomicLevel backs dynamic
// level changes; a mutex guards the rest of the shared state.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// mu guards the global logger state against concurrent reconfiguration.
	mu sync.Mutex
	// log holds the current zap.Logger instance used across the service.
	log *zap.Logger
	// logLevel drives dynamic level changes without rebuilding the core.
	logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	// encoderCfg holds the encoder settings, refreshed on Init.
	encoderCfg = defaultEncoderConfig()
	// stdoutWriter is the sink for regular log output.
	stdoutWriter = zapcore.Lock(zapcore.AddSync(os.Stdout))
	// stderrWriter is the sink for the logger's own errors.
	stderrWriter = zapcore.Lock(zapcore.AddSync(os.Stderr))
	// fileWriter, when non-nil, duplicates output into a rotated log file.
	fileWriter zapcore.WriteSyncer
)

// defaultEncoderConfig builds a console encoder with colored levels and a
// short caller. The time format is fixed (YYYY-MM-DD HH:MM:SS).
func defaultEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// rebuildLoggerLocked recreates the global logger with the current sinks and
// level. The caller must hold mu. AddCallerSkip(1) hides the logger.* wrappers
// from the call stack. The previous logger is Sync'ed before replacement.
func rebuildLoggerLocked() {
	console := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), stdoutWriter, logLevel)
	core := console
	if fileWriter != nil {
		fileCfg := encoderCfg
		fileCfg.EncodeLevel = zapcore.CapitalLevelEncoder // no ANSI colors on disk
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), fileWriter, logLevel)
		core = zapcore.NewTee(console, fileCore)
	}
	if log != nil {
		_ = log.Sync()
	}
	log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.ErrorOutput(stderrWriter))
}

// Init initializes the global logger. Accepted levels: debug, info (default),
// warn, error; matching is case-insensitive. A non-empty file path enables a
// second, rotated JSON sink via lumberjack. Safe for concurrent use.
func Init(level, file string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(level) {
	case "debug":
		logLevel.SetLevel(zap.DebugLevel)
	case "warn":
		logLevel.SetLevel(zap.WarnLevel)
	case "error":
		logLevel.SetLevel(zap.ErrorLevel)
	default:
		logLevel.SetLevel(zap.InfoLevel)
	}

	if file != "" {
		fileWriter = zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	} else {
		fileWriter = nil
	}

	encoderCfg = defaultEncoderConfig()
	rebuildLoggerLocked()
}

// SetWriters retargets the logger's output streams and rebuilds the core.
// May be called at runtime; nil restores the stdout/stderr defaults.
func SetWriters(stdout, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if stdout == nil {
		stdoutWriter = zapcore.Lock(zapcore.AddSync(os.Stdout))
	} else {
		stdoutWriter = zapcore.Lock(zapcore.AddSync(stdout))
	}
	if stderr == nil {
		stderrWriter = zapcore.Lock(zapcore.AddSync(os.Stderr))
	} else {
		stderrWriter = zapcore.Lock(zapcore.AddSync(stderr))
	}

	rebuildLoggerLocked()
}

// Logger returns the current zap.Logger, lazily creating it on first use.
// The raw API is returned (not Sugared); prefer structured zap.Field values.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	if log == nil {
		rebuildLoggerLocked()
	}
	return log
}

// IsDebugEnabled reports whether debug-level logging is active.
func IsDebugEnabled() bool {
	return Logger().Level() <= zap.DebugLevel
}

// Debug writes a structured Debug-level message.
func Debug(msg string, fields ...zap.Field) { Logger().Debug(msg, fields...) }

// Info writes a structured Info-level message.
func Info(msg string, fields ...zap.Field) { Logger().Info(msg, fields...) }

// Warn writes a structured Warn-level message.
func Warn(msg string, fields ...zap.Field) { Logger().Warn(msg, fields...) }

// Error writes a structured Error-level message.
func Error(msg string, fields ...zap.Field) { Logger().Error(msg, fields...) }

// Fatal writes a structured Fatal-level message and terminates the process.
func Fatal(msg string, fields ...zap.Field) {
	Logger().Fatal(msg, fields...)
	_ = Logger().Sync() // flush buffers before os.Exit
	os.Exit(1)
}

// Debugf formats through fmt.Sprintf. Use sparingly: formatting allocates;
// hot paths should prefer structured fields.
func Debugf(msg string, a ...any) { Logger().Debug(fmt.Sprintf(msg, a...)) }

// Infof formats through fmt.Sprintf. Hot paths should prefer Info with fields.
func Infof(msg string, a ...any) { Logger().Info(fmt.Sprintf(msg, a...)) }

// Warnf formats through fmt.Sprintf. Prefer passing data as zap.Field values.
func Warnf(msg string, a ...any) { Logger().Warn(fmt.Sprintf(msg, a...)) }

// Errorf formats through fmt.Sprintf. Critical paths should use Error with fields.
func Errorf(msg string, a ...any) { Logger().Error(fmt.Sprintf(msg, a...)) }
