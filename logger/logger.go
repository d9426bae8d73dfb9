package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Init builds the process logger. Components created afterwards inherit it through Named.
func Init(service string, level string) *zap.Logger {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		zapLevel,
	)

	l := zap.New(core, zap.AddCaller()).With(zap.String("service", service))

	mu.Lock()
	root = l
	mu.Unlock()

	return l
}

// L returns the process logger, a no-op logger until Init is called.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

func Named(component string) *zap.Logger {
	return L().Named(component)
}

func Sync() {
	_ = L().Sync()
}
