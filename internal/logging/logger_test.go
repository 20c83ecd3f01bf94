package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newConsoleLogger(level string) (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))
	return slog.New(newConsoleHandler(buf, levelVar)), buf
}

func TestConsoleHandlerFoldsComponentIntoPrefix(t *testing.T) {
	logger, buf := newConsoleLogger("info")
	logger = logger.With(String(FieldComponent, "transcode"))

	logger.Info("batch created", String(FieldAssetID, "asset-1"), Int("jobs", 4))

	line := buf.String()
	if !strings.Contains(line, "INFO transcode: batch created") {
		t.Fatalf("component prefix missing: %q", line)
	}
	if !strings.Contains(line, "asset_id=asset-1") || !strings.Contains(line, "jobs=4") {
		t.Fatalf("attrs missing: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component must not repeat as an attr: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	logger, buf := newConsoleLogger("info")
	logger.Info("failed", String("reason", "processing timeout"))

	if !strings.Contains(buf.String(), `reason="processing timeout"`) {
		t.Fatalf("value not quoted: %q", buf.String())
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	logger, buf := newConsoleLogger("warn")
	logger.Info("quiet")
	logger.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info line should be suppressed: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestJSONHandlerFieldNames(t *testing.T) {
	buf := &bytes.Buffer{}
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newJSONHandler(buf, levelVar))

	logger.Error("sync failed", String(FieldSubscriberID, "sub-1"))

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if decoded["msg"] != "sync failed" {
		t.Fatalf("unexpected msg field: %v", decoded["msg"])
	}
	if decoded["level"] != "error" {
		t.Fatalf("unexpected level field: %v", decoded["level"])
	}
	if _, ok := decoded["ts"]; !ok {
		t.Fatal("missing ts field")
	}
	if decoded[FieldSubscriberID] != "sub-1" {
		t.Fatalf("missing subscriber field: %v", decoded)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	if attrs := ContextFields(ctx); len(attrs) != 0 {
		t.Fatalf("expected no attrs for empty context, got %v", attrs)
	}
}
