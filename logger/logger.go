// Package logger provides structured logging for the type-check service and CLI.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.SugaredLogger
	base *zap.Logger
	// log file opened by New, nil for standard streams and writers
	file *os.File
}

func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

// New builds a logger writing to "stderr", "stdout" or a file path.
func New(level, format, output string) (*Logger, error) {
	var (
		ws   zapcore.WriteSyncer
		file *os.File
	)
	switch strings.ToLower(output) {
	case "stderr", "":
		ws = zapcore.AddSync(os.Stderr)
	case "stdout":
		ws = zapcore.AddSync(os.Stdout)
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		ws, file = zapcore.AddSync(f), f
	}
	l, err := build(level, format, ws)
	if err != nil {
		if file != nil {
			file.Close()
		}
		return nil, err
	}
	l.file = file
	return l, nil
}

// NewWithWriter is New for an arbitrary writer; colors are never used.
func NewWithWriter(level, format string, w io.Writer) (*Logger, error) {
	return build(level, format, zapcore.AddSync(w))
}

func build(level, format string, ws zapcore.WriteSyncer) (*Logger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, ws, zapLevel)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{SugaredLogger: base.Sugar(), base: base}, nil
}

func (l *Logger) Sync() error {
	return l.base.Sync()
}

// Close flushes the logger and closes the log file New opened, if any.
// Loggers derived through With and Named share that file.
func (l *Logger) Close() error {
	err := l.Sync()
	if l.file == nil {
		return err
	}
	if cerr := l.file.Close(); cerr != nil {
		return cerr
	}
	return err
}

func (l *Logger) With(args ...interface{}) *Logger {
	sugar := l.SugaredLogger.With(args...)
	return &Logger{SugaredLogger: sugar, base: sugar.Desugar(), file: l.file}
}

func (l *Logger) Named(name string) *Logger {
	base := l.base.Named(name)
	return &Logger{SugaredLogger: base.Sugar(), base: base, file: l.file}
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar(), base: zap.NewNop()}
}
