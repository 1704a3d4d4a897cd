// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package log provides the structured-logging interface shared by the
// agent and node binaries, modeled on github.com/luxfi/log's Logger
// shape and backed by go.uber.org/zap.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger every component is constructed with.
// Fields are passed as alternating key/value pairs.
type Logger interface {
	With(kv ...interface{}) Logger
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	// Fatal logs msg and then terminates the process. Exactly one
	// structured line is emitted before exit.
	Fatal(msg string, kv ...interface{})
}

type zapLogger struct {
	z *zap.SugaredLogger
}

// NewProduction returns a JSON-encoded, info-level-and-above logger
// suitable for the agent/node binaries in normal operation.
func NewProduction() Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// zap's production config cannot fail to build with stdlib
		// encoders; fall back to a no-op logger that discards output
		// rather than guessing at a caller bug.
		z = zap.NewNop()
	}
	return &zapLogger{z: z.Sugar()}
}

// NewDevelopment returns a console-encoded, debug-level logger for local
// runs and tests.
func NewDevelopment() Logger {
	z, err := zap.NewDevelopment(zap.AddCallerSkip(1))
	if err != nil {
		z = zap.NewNop()
	}
	return &zapLogger{z: z.Sugar()}
}

// NewNop returns a logger that discards everything, for unit tests that
// don't want log noise.
func NewNop() Logger {
	return &zapLogger{z: zap.NewNop().Sugar()}
}

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{z: l.z.With(kv...)}
}

func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.z.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})  { l.z.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.z.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{}) { l.z.Errorw(msg, kv...) }

func (l *zapLogger) Fatal(msg string, kv ...interface{}) {
	l.z.Errorw(msg, kv...)
	_ = l.z.Sync()
	os.Exit(1)
}
