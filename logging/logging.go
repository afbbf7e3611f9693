// Package logging builds the zap logger and keeps structured field names consistent.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log fields.
const (
	FieldExchangeID = "exchangeID"
	FieldContract   = "contract"
	FieldEndpoint   = "endpoint"
	FieldRole       = "role"
	FieldStatus     = "status"
	FieldOrigin     = "origin"
	FieldPurpose    = "purpose"
	FieldFlow       = "flow"
)

// Options controls logger construction.
type Options struct {
	Level       string
	Development bool
}

// New returns a JSON production logger, or a console logger when Development is set.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	return cfg.Build()
}

// ParseLevel maps a textual level to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", level)
	}
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// WithExchangeID sets the exchange-id field.
func WithExchangeID(value string) zap.Field {
	return zap.String(FieldExchangeID, value)
}

// WithContract sets the contract field.
func WithContract(value string) zap.Field {
	return zap.String(FieldContract, value)
}

// WithEndpoint sets the endpoint field.
func WithEndpoint(value string) zap.Field {
	return zap.String(FieldEndpoint, value)
}

// WithRole sets the role field.
func WithRole(value string) zap.Field {
	return zap.String(FieldRole, value)
}

// WithStatus sets the status field.
func WithStatus(value string) zap.Field {
	return zap.String(FieldStatus, value)
}

// WithOrigin sets the origin field.
func WithOrigin(value string) zap.Field {
	return zap.String(FieldOrigin, value)
}

// WithPurpose sets the purpose field.
func WithPurpose(value string) zap.Field {
	return zap.String(FieldPurpose, value)
}

// WithFlow sets the flow field.
func WithFlow(value string) zap.Field {
	return zap.String(FieldFlow, value)
}
