package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter_LevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", false)

	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	l.Warn().Str("k", "v").Msg("shown")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if line["message"] != "shown" || line["k"] != "v" || line["service"] != "postflow" {
		t.Fatalf("unexpected line: %v", line)
	}
	if _, ok := line["time"]; !ok {
		t.Fatalf("missing timestamp: %v", line)
	}
}

func TestNewWithWriter_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "loud", false)
	if l.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("level=%v", l.GetLevel())
	}
}
