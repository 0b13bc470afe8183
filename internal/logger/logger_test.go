package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestPrettyHandler(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: LevelDebug, ReplaceAttr: RedactAttr}, false))

	tests := []struct {
		name string
		log  func()
		want []string
	}{
		{
			name: "run attrs",
			log:  func() { l.With("run_id", "abc-123").Info("Caption progress", "completed", 3) },
			want: []string{" INF Caption progress", "run_id=abc-123", "completed=3"},
		},
		{
			name: "nested groups",
			log:  func() { l.WithGroup("server").WithGroup("restart").With("pid", 42).Warn("Restarting") },
			want: []string{" WRN Restarting", "server.restart.pid=42"},
		},
		{
			name: "caption text is quoted",
			log:  func() { l.Debug("Generate finished", "text", "a cat on a mat") },
			want: []string{" DBG ", `text="a cat on a mat"`},
		},
		{
			name: "image bytes reduced to a length",
			log:  func() { l.Debug("Read image", "data", []byte("PNGDATA")) },
			want: []string{"data_bytes=7"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output %q missing %q", buf.String(), w)
				}
			}
		})
	}

	buf.Reset()
	slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: LevelWarn}, false)).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info not filtered at warn level: %q", buf.String())
	}
}

func TestRedactAttr(t *testing.T) {
	tests := []struct {
		name   string
		attr   slog.Attr
		redact bool
	}{
		{"token key", slog.String("token", "abc"), true},
		{"suffix key", slog.String("server_token", "abc"), true},
		{"case insensitive key", slog.String("Authorization", "x"), true},
		{"image payload", slog.Any("images", []string{"iVBORw0KGgo"}), true},
		{"image string payload", slog.String("images", "iVBORw0KGgo"), true},
		{"image count is kept", slog.Int("images", 2), false},
		{"bearer value", slog.String("header", "Bearer abc.def"), true},
		{"prompt is kept", slog.String("prompt", "Describe this picture"), false},
		{"path is kept", slog.String("path", "/data/a.png"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactAttr(nil, tt.attr)
			if (got.Value.String() == redacted) != tt.redact {
				t.Fatalf("RedactAttr(%s) = %q, redact=%v", tt.attr.Key, got.Value.String(), tt.redact)
			}
		})
	}
}

// captureStderr swaps os.Stderr for a pipe until the test ends.
func captureStderr(t *testing.T) (read func() string) {
	t.Helper()
	prevTerminal, prevStderr := isTerminal, os.Stderr
	isTerminal = func(int) bool { return false }
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w
	t.Cleanup(func() {
		os.Stderr = prevStderr
		isTerminal = prevTerminal
		w.Close()
		Init(LevelInfo, nil)
	})
	return func() string {
		w.Close()
		out, _ := io.ReadAll(r)
		return string(out)
	}
}

func TestInit_WritesJSONLToLogFile(t *testing.T) {
	read := captureStderr(t)

	var file bytes.Buffer
	Init(LevelInfo, &file)
	With("run_id", "r1").Info("Run finished", "status", "Success", "images", 2, "token", "s3cr3t")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(file.Bytes()), &record); err != nil {
		t.Fatalf("log file is not JSONL: %v (%q)", err, file.String())
	}
	if record["status"] != "Success" || record["run_id"] != "r1" || record["images"] != float64(2) {
		t.Errorf("unexpected record %v", record)
	}
	if record["token"] != redacted {
		t.Errorf("token not redacted in JSONL: %v", record["token"])
	}
	if console := read(); !strings.Contains(console, "Run finished") {
		t.Errorf("console missing record: %q", console)
	}
}

func TestInit_NoColorWhenNotTTY(t *testing.T) {
	read := captureStderr(t)
	Init(LevelInfo, nil)
	Info("test message", "key", "value")
	if out := read(); strings.Contains(out, "\033[") {
		t.Fatalf("unexpected ANSI codes in output: %q", out)
	}
}
