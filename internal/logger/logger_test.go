package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"stock-bot-lab/internal/config"
)

func TestNew_Levels(t *testing.T) {
	cases := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"nonsense", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		l, err := New(config.LogConfig{Level: tc.level, Encoding: "json"})
		if err != nil {
			t.Fatalf("level %q: unexpected error: %v", tc.level, err)
		}
		if !l.Core().Enabled(tc.want) {
			t.Errorf("level %q: expected %v enabled", tc.level, tc.want)
		}
		if tc.want > zapcore.DebugLevel && l.Core().Enabled(tc.want-1) {
			t.Errorf("level %q: expected %v disabled", tc.level, tc.want-1)
		}
	}
}

func TestNew_ConsoleAndSampling(t *testing.T) {
	l, err := New(config.LogConfig{Level: "info", Encoding: "console", Sampling: true, Development: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info("console logger works")
}
