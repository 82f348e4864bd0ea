package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// levelByVerbosity maps a -v count onto a label. Three or more is trace,
// which zap emits at debug severity.
var levelByVerbosity = [...]string{"warn", "info", "debug", "trace", "trace"}

// verbosityByName is the inverse used for configured level names.
var verbosityByName = map[string]int{
	"error": 0, "warn": 0, "warning": 0,
	"info": 1, "debug": 2, "trace": 4,
}

var (
	mu               sync.RWMutex
	currentVerbosity = 0
	currentFormat    = "console"
	output           io.Writer = os.Stderr

	atom  = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	sugar = build()
)

// SetVerbosity configures logger output from count of -v flags (0-4).
func SetVerbosity(count int) {
	count = max(0, min(count, 4))
	mu.Lock()
	defer mu.Unlock()
	currentVerbosity = count
	atom.SetLevel(zapcore.WarnLevel - zapcore.Level(min(count, 2)))
}

// SetFormat switches between "console" and "json" encoding.
func SetFormat(format string) error {
	format = strings.ToLower(format)
	if format != "console" && format != "json" {
		return fmt.Errorf("unknown log format %s", format)
	}
	mu.Lock()
	defer mu.Unlock()
	currentFormat = format
	sugar = build()
	return nil
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	sugar = build()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = sugar.Sync()
}

// Verbosity returns the stored -v count.
func Verbosity() int {
	mu.RLock()
	defer mu.RUnlock()
	return currentVerbosity
}

// LevelName returns current level label.
func LevelName() string {
	return levelByVerbosity[Verbosity()]
}

// ParseLevel returns the -v count matching a level name.
func ParseLevel(name string) (int, error) {
	count, ok := verbosityByName[strings.ToLower(name)]
	if !ok {
		return Verbosity(), fmt.Errorf("unknown level %s", name)
	}
	return count, nil
}

// build must be called with mu held (or during package init).
func build() *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if currentFormat == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(output)), atom)
	return zap.New(core).Sugar()
}

func traceEnabled() bool {
	return Verbosity() >= 3
}

func logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Errorf always prints.
func Errorf(format string, args ...any) {
	logger().Errorf(format, args...)
}

func Warnf(format string, args ...any) {
	logger().Warnf(format, args...)
}

func Infof(format string, args ...any) {
	logger().Infof(format, args...)
}

func Debugf(format string, args ...any) {
	logger().Debugf(format, args...)
}

// Tracef logs at debug severity but only once -vvv or more was requested.
func Tracef(format string, args ...any) {
	if !traceEnabled() {
		return
	}
	logger().With("trace", true).Debugf(format, args...)
}
