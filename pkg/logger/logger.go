// Package logger builds the zap loggers used across chatstream.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	debug   bool
	json    bool
	writers []io.Writer
}

// Option configures a logger created with New.
type Option func(*config)

// WithDebug enables debug level output.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.debug = debug
	}
}

// WithJSON switches from the console encoder to JSON, for service logs
// collected by a log shipper.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter adds an output writer. Defaults to os.Stdout when none is given.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writers = append(c.writers, w)
	}
}

// New builds a logger from options.
func New(opts ...Option) *zap.Logger {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if c.json {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := zap.InfoLevel
	if c.debug {
		level = zap.DebugLevel
	}

	if len(c.writers) == 0 {
		c.writers = []io.Writer{os.Stdout}
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(c.writers))
	for _, writer := range c.writers {
		syncers = append(syncers, zapcore.AddSync(writer))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	return zap.New(core, zap.AddCaller())
}

func NewLogger(debug bool) *zap.Logger {
	return New(WithDebug(debug))
}

func NewLoggerWithWriters(debug bool, writers ...io.Writer) *zap.Logger {
	opts := []Option{WithDebug(debug)}
	for _, w := range writers {
		opts = append(opts, WithWriter(w))
	}
	return New(opts...)
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
