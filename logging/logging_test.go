package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"INFO":    zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q): expected %s got %s", in, want, got)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNew(t *testing.T) {
	logger, err := New(Options{Level: "debug", Development: true})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}

	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}

	if OrNop(nil) == nil {
		t.Fatal("expected no-op logger")
	}
}
