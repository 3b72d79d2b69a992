package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config selects the level, encoding and destination of log output.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text or json
	Output string // stdout, stderr or a file path
}

var (
	mu          sync.RWMutex
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base        *zap.Logger
	sugar       *zap.SugaredLogger
)

func init() {
	if err := Init(Config{Level: "INFO", Format: "text", Output: "stdout"}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

// Init rebuilds the global logger. The level stays adjustable through SetLevel.
func Init(cfg Config) error {
	if lvl, ok := ParseLevel(cfg.Level); ok {
		atomicLevel.SetLevel(lvl.zapLevel())
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	sink, err := openSink(cfg.Output)
	if err != nil {
		return err
	}

	l := zap.New(zapcore.NewCore(encoder, sink, atomicLevel))

	mu.Lock()
	old := base
	base = l
	sugar = l.Sugar()
	mu.Unlock()

	if old != nil {
		_ = old.Sync()
	}
	return nil
}

func openSink(output string) (zapcore.WriteSyncer, error) {
	switch output {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %q: %w", output, err)
	}
	return zapcore.Lock(f), nil
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	if lvl, ok := ParseLevel(level); ok {
		atomicLevel.SetLevel(lvl.zapLevel())
	}
}

// GetLevel reports the current minimum level.
func GetLevel() Level {
	switch atomicLevel.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// With returns a structured logger carrying the given key/value pairs.
func With(keysAndValues ...any) *zap.SugaredLogger {
	return current().With(keysAndValues...)
}

func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func Debug(format string, v ...any) {
	current().Debugf(format, v...)
}

func Info(format string, v ...any) {
	current().Infof(format, v...)
}

func Warn(format string, v ...any) {
	current().Warnf(format, v...)
}

func Error(format string, v ...any) {
	current().Errorf(format, v...)
}
