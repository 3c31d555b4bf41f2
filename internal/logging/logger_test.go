package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{
			name: "json format",
			config: &Config{
				Level:  LevelInfo,
				Format: "json",
				Output: &bytes.Buffer{},
			},
		},
		{
			name: "text format",
			config: &Config{
				Level:  LevelDebug,
				Format: "text",
				Output: &bytes.Buffer{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Fatal("NewLogger() returned nil")
			}
		})
	}
}

func TestLoggerWithQueue(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{
		Level:   LevelDebug,
		Format:  "text",
		Output:  &buf,
		NoColor: true,
	})

	queueLogger := logger.WithQueue(3)
	queueLogger.Info("worker started")

	output := buf.String()
	if !strings.Contains(output, "queue_id=3") {
		t.Errorf("expected queue_id=3 in output, got: %s", output)
	}

	buf.Reset()
	componentLogger := queueLogger.With("component", "xdp-backend")
	componentLogger.Info("ring primed")

	output = buf.String()
	if !strings.Contains(output, "queue_id=3") {
		t.Errorf("expected queue_id=3 to survive chaining, got: %s", output)
	}
	if !strings.Contains(output, "component=xdp-backend") {
		t.Errorf("expected component=xdp-backend in output, got: %s", output)
	}
}

func TestLoggerWithPacket(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{
		Level:   LevelDebug,
		Format:  "text",
		Output:  &buf,
		NoColor: true,
	})

	packetLogger := logger.WithPacket(42, "classify")
	packetLogger.Debug("rejected short frame")

	output := buf.String()
	if !strings.Contains(output, "seq=42") {
		t.Errorf("expected seq=42 in output, got: %s", output)
	}
	if !strings.Contains(output, "stage=classify") {
		t.Errorf("expected stage=classify in output, got: %s", output)
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{
		Level:   LevelDebug,
		Format:  "text",
		Output:  &buf,
		NoColor: true,
	})

	testErr := errors.New("interface not found")
	errorLogger := logger.WithError(testErr)
	errorLogger.Error("init failed")

	output := buf.String()
	if !strings.Contains(output, "interface not found") {
		t.Errorf("expected error text in output, got: %s", output)
	}
}

func TestLoggerWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf, NoColor: true})
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestLoggerLevelGating(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf, NoColor: true})

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	if buf.Len() != 0 {
		t.Errorf("expected no output below configured level, got: %s", buf.String())
	}

	logger.Warn("this should appear")
	if !strings.Contains(buf.String(), "this should appear") {
		t.Errorf("expected warn message, got: %s", buf.String())
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf, NoColor: true}))

	Debug("debug message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "debug message") {
		t.Errorf("expected debug message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("expected key=value, got: %s", output)
	}

	buf.Reset()
	Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("expected info message, got: %s", buf.String())
	}

	buf.Reset()
	Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("expected warning message, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("expected error message, got: %s", buf.String())
	}
}
