package pool

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option configures Open.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	create  bool
	size    uint64
	mode    os.FileMode
}

// WithLogger overrides the logger Open would otherwise build from
// PMEM_LOG_LEVEL / PMEM_LOG_FILE, the two environment variables documented
// for libpmem's own logging.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCreate creates the pool file if it does not already exist, sizing it
// to size bytes (rounded up to MinPoolSize).
func WithCreate(size uint64, mode os.FileMode) Option {
	return func(o *options) {
		o.create = true
		o.size = size
		o.mode = mode
	}
}

// envLogger builds the default logger from PMEM_LOG_LEVEL and
// PMEM_LOG_FILE, read once per Open, matching libpmem.h's documented
// environment-driven logging.
func envLogger() *zap.Logger {
	level := zapcore.InfoLevel
	switch strings.ToLower(os.Getenv("PMEM_LOG_LEVEL")) {
	case "0", "":
		level = zapcore.WarnLevel
	case "1":
		level = zapcore.ErrorLevel
	case "2":
		level = zapcore.WarnLevel
	case "3":
		level = zapcore.InfoLevel
	case "4", "debug":
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewConsoleEncoder(cfg)

	target := os.Stderr
	if path := os.Getenv("PMEM_LOG_FILE"); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			target = f
		}
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(target), level)
	return zap.New(core)
}
