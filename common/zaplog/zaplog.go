package zaplog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
	mu     sync.RWMutex
)

// Init configures the global logger. Safe to call more than once; the
// last configuration wins.
func Init(debug bool) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Logger returns the configured logger, building a development logger on
// first use when Init was never called (tests rely on this).
func Logger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	once.Do(func() {
		l, _ := zap.NewDevelopment(zap.AddCallerSkip(1))
		mu.Lock()
		if logger == nil {
			logger = l
		}
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
