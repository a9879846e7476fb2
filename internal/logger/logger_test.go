package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		l, err := New("warn", format)
		if err != nil {
			t.Fatalf("New(warn, %s) error = %v", format, err)
		}
		if l.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("format %s: info should be disabled at warn level", format)
		}
		if !l.Core().Enabled(zapcore.ErrorLevel) {
			t.Errorf("format %s: error should be enabled at warn level", format)
		}
	}

	if _, err := New("loud", "json"); err == nil {
		t.Error("New() with invalid level should fail")
	}
}
