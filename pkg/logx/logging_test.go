package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerWithFieldsAreOrdered(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "dispatch"), String("kind", "order"))
	log.Info("handled", String("kind", "review"), Err(errors.New("boom")))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if line["comp"] != "dispatch" {
		t.Fatalf("comp=%v", line["comp"])
	}
	if line["kind"] != "review" {
		t.Fatalf("call-site field should win, kind=%v", line["kind"])
	}
	if line["error"] != "boom" && line["err"] != "boom" {
		t.Fatalf("missing error field: %v", line)
	}
	if !strings.HasPrefix(line["caller"].(string), "logging_test.go:") {
		t.Fatalf("caller=%v", line["caller"])
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Error("ignored", String("k", "v"))
	if Nop().IsZero() {
		t.Fatalf("Nop logger is not the zero value")
	}
}

func TestFormatChatLine(t *testing.T) {
	got := formatChatLine([]byte(`{"level":"warn","message":"send failed","key":"order:1","comp":"notifier","time":"x"}`))
	want := "[WARN] send failed\n- comp=notifier\n- key=order:1"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	raw := formatChatLine([]byte("  not json \n"))
	if raw != "not json" {
		t.Fatalf("raw=%q", raw)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in, LevelInfo); got != want {
			t.Fatalf("parseLevel(%q)=%v want %v", in, got, want)
		}
	}
}
