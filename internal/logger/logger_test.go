package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("test-service", Config{Level: "info", Output: &buf})

	log.Info().Str("component", "forecast").Msg("hello")
	log.Debug().Msg("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at info level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if entry["service"] != "test-service" || entry["component"] != "forecast" || entry["message"] != "hello" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected a timestamp")
	}
}

func TestNew_LevelFallback(t *testing.T) {
	var buf bytes.Buffer
	log := New("svc", Config{Level: "nonsense", Output: &buf})
	log.Debug().Msg("dropped")
	log.Info().Msg("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected info fallback, got %q", buf.String())
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log := New("svc", Config{Level: "debug", Format: "console", Output: &buf})
	log.Debug().Msg("pretty")
	if !strings.Contains(buf.String(), "pretty") || strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected console output, got %q", buf.String())
	}
}

func TestRunID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if rid := RunID(ctx); rid != "" {
		t.Errorf("expected empty run id, got %q", rid)
	}

	id := NewRunID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", id, err)
	}
	ctx = WithRunID(ctx, id)
	if rid := RunID(ctx); rid != id {
		t.Errorf("expected %q, got %q", id, rid)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := New("svc", Config{Output: &buf})

	noID := FromContext(context.Background(), base)
	noID.Info().Msg("no id")
	if strings.Contains(buf.String(), "run_id") {
		t.Errorf("unexpected run_id: %q", buf.String())
	}

	buf.Reset()
	withID := FromContext(WithRunID(context.Background(), "abc-123"), base)
	withID.Info().Msg("with id")
	if !strings.Contains(buf.String(), `"run_id":"abc-123"`) {
		t.Errorf("expected run_id field, got %q", buf.String())
	}
}
