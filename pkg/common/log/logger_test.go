package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestStandardLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewStandardLogger(
		WithOutput(&buf),
		WithLevel(LevelDebug),
	)

	logger.Debug("opening table %d", 7)
	if !strings.Contains(buf.String(), "[DEBUG]") || !strings.Contains(buf.String(), "opening table 7") {
		t.Errorf("Debug logging failed, got: %s", buf.String())
	}
	buf.Reset()

	logger.Warn("checksum mismatch")
	if !strings.Contains(buf.String(), "[WARN]") {
		t.Errorf("Warn logging failed, got: %s", buf.String())
	}
	buf.Reset()

	withFields := logger.WithFields(map[string]interface{}{
		"file":      12,
		"component": "tablecache",
	})
	withFields.Info("evicted")
	output := buf.String()
	if !strings.Contains(output, "component=tablecache file=12 evicted") {
		t.Errorf("fields should be sorted before the message, got: %s", output)
	}
	buf.Reset()

	logger.SetLevel(LevelError)
	logger.Info("should not appear")
	logger.Error("should appear")
	output = buf.String()
	if strings.Contains(output, "should not appear") || !strings.Contains(output, "should appear") {
		t.Errorf("Level filtering failed, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"":        LevelInfo,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"off":     LevelOff,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.WithField("k", "v").Error("ignored")
	if l.GetLevel() != LevelOff {
		t.Errorf("expected LevelOff, got %v", l.GetLevel())
	}
}
