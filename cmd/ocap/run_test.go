package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oukeidos/ocap/internal/history"
	"github.com/oukeidos/ocap/internal/recovery"
)

func TestRun_CaptionsFolder(t *testing.T) {
	withStubs(t)
	srv := newFakeOllama(t)
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"), "cat")
	writeImage(t, filepath.Join(dir, "b.jpg"), "dog")
	writeImage(t, filepath.Join(dir, "notes.md"), "ignored")
	hist := filepath.Join(t.TempDir(), "history.csv")

	out, err := executeCommand(t, "run", dir,
		"--server-url", srv.api(), "--history", hist,
		"--model", "llava", "--prompt", "Describe.", "--concurrency", "2", "--hardware", "gpu")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if got := readText(t, filepath.Join(dir, "a.txt")); got != "cat" {
		t.Errorf("a.txt = %q", got)
	}
	if got := readText(t, filepath.Join(dir, "b.txt")); got != "dog" {
		t.Errorf("b.txt = %q", got)
	}
	if !strings.Contains(out, filepath.Join(dir, "a.png")+": saved to "+filepath.Join(dir, "a.txt")) {
		t.Errorf("missing outcome line:\n%s", out)
	}
	if !strings.Contains(out, "Status: Success") {
		t.Errorf("missing summary:\n%s", out)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for _, c := range srv.calls {
		if c.Model != "llava" || c.Stream || c.Hardware != "GPU" {
			t.Errorf("unexpected request %+v", c)
		}
	}

	entries, err := history.Load(hist)
	if err != nil || len(entries) != 1 {
		t.Fatalf("history = %v, %v", entries, err)
	}
	if entries[0].Source != history.SourceFolder || entries[0].Prompt1 != "Describe." {
		t.Errorf("unexpected history entry %+v", entries[0])
	}
}

func TestRun_RerunSkipsExisting(t *testing.T) {
	withStubs(t)
	srv := newFakeOllama(t)
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"), "cat")
	args := []string{"run", dir, "--server-url", srv.api(), "--model", "llava", "--prompt", "p"}

	if _, err := executeCommand(t, args...); err != nil {
		t.Fatal(err)
	}
	out, err := executeCommand(t, args...)
	if err != nil {
		t.Fatal(err)
	}
	if srv.callCount() != 1 {
		t.Errorf("model calls = %d, want 1", srv.callCount())
	}
	if !strings.Contains(out, ": already exists, skipped") {
		t.Errorf("rerun did not skip:\n%s", out)
	}
}

func TestRun_OverwriteNeedsConfirmation(t *testing.T) {
	withStubs(t)
	srv := newFakeOllama(t)
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"), "cat")
	writeImage(t, filepath.Join(dir, "a.txt"), "old")
	base := []string{"run", dir, "--server-url", srv.api(), "--model", "llava", "--prompt", "p", "--policy", "overwrite"}

	if _, err := executeCommand(t, base...); err == nil {
		t.Fatal("expected non-interactive overwrite to be refused")
	}
	if srv.callCount() != 0 || readText(t, filepath.Join(dir, "a.txt")) != "old" {
		t.Fatal("run started without confirmation")
	}

	if _, err := executeCommand(t, append(base, "-y")...); err != nil {
		t.Fatal(err)
	}
	if got := readText(t, filepath.Join(dir, "a.txt")); got != "cat" {
		t.Errorf("a.txt = %q, want overwritten", got)
	}
}

func TestRun_MergePolicyFlag(t *testing.T) {
	withStubs(t)
	srv := newFakeOllama(t)
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"), "B")
	writeImage(t, filepath.Join(dir, "a.txt"), "A")

	if _, err := executeCommand(t, "run", dir, "--server-url", srv.api(), "--model", "m", "--prompt", "p", "--policy", "prepend"); err != nil {
		t.Fatal(err)
	}
	if got := readText(t, filepath.Join(dir, "a.txt")); got != "B, A" {
		t.Errorf("a.txt = %q, want %q", got, "B, A")
	}
}

func TestRun_FailureWritesRecoveryLogAndRetryClearsIt(t *testing.T) {
	stubs := withStubs(t)
	srv := newFakeOllama(t)
	srv.setReply(func(_ generateCall, image string) string {
		if image == "dog" {
			return ""
		}
		return image
	})
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"), "cat")
	writeImage(t, filepath.Join(dir, "sub", "b.png"), "dog")
	hist := filepath.Join(t.TempDir(), "history.csv")

	out, err := executeCommand(t, "run", dir, "--server-url", srv.api(), "--history", hist,
		"--model", "llava", "--prompt", "p", "--concurrency", "3")
	if err == nil || !strings.Contains(err.Error(), "Partial Success") {
		t.Fatalf("expected partial success error, got %v\n%s", err, out)
	}
	if stubs.restarter.n.Load() != 0 {
		t.Errorf("HTTP 500 must not restart the server")
	}

	logPath := filepath.Join(dir, recovery.BaseName+".json")
	log, err := recovery.LoadSessionLog(logPath)
	if err != nil {
		t.Fatalf("recovery log missing: %v\n%s", err, out)
	}
	if len(log.FailedFiles) != 1 || log.FailedFiles[0] != filepath.Join("sub", "b.png") {
		t.Errorf("FailedFiles = %v", log.FailedFiles)
	}
	if log.Model != "llava" || log.Concurrency != 3 || log.Status != "Partial Success" || log.TotalFiles != 2 {
		t.Errorf("unexpected log %+v", log)
	}

	srv.setReply(func(_ generateCall, image string) string { return image })
	out, err = executeCommand(t, "retry", logPath, "--server-url", srv.api(), "--history", hist)
	if err != nil {
		t.Fatalf("retry failed: %v\n%s", err, out)
	}
	if got := readText(t, filepath.Join(dir, "sub", "b.txt")); got != "dog" {
		t.Errorf("b.txt = %q", got)
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Errorf("recovery log not removed after a clean retry")
	}
	if srv.callCount() != 3 {
		t.Errorf("model calls = %d, want 3 (retry only the failed file)", srv.callCount())
	}

	entries, _ := history.Load(hist)
	if len(entries) != 2 || entries[1].Source != history.SourceRetry {
		t.Errorf("history = %+v", entries)
	}
}

func TestRetry_RejectsInvalidLog(t *testing.T) {
	withStubs(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "bad.json")
	data, _ := json.Marshal(recovery.SessionLog{
		LogVersion:  1,
		Model:       "m",
		Prompt:      "p",
		Policy:      "skip",
		Hardware:    "CPU",
		Concurrency: 1,
		FailedFiles: []string{"../escape.png"},
		TotalFiles:  1,
		Status:      "Failure",
	})
	os.WriteFile(logPath, data, 0o600)

	if _, err := executeCommand(t, "retry", logPath); err == nil {
		t.Fatal("expected traversal entry to be rejected")
	}
}

func TestRun_WritesReportWithoutClobbering(t *testing.T) {
	withStubs(t)
	srv := newFakeOllama(t)
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"), "cat")
	reportPath := filepath.Join(t.TempDir(), "report.json")
	os.WriteFile(reportPath, []byte("keep"), 0o644)

	out, err := executeCommand(t, "run", dir, "--server-url", srv.api(), "--model", "m", "--prompt", "p",
		"--report", reportPath, "--report-format", "json")
	if err != nil {
		t.Fatal(err)
	}
	if readText(t, reportPath) != "keep" {
		t.Error("existing report was replaced")
	}
	alt := strings.TrimSuffix(reportPath, ".json") + "_1.json"
	var report struct {
		Status    string `json:"status"`
		Succeeded int    `json:"succeeded"`
	}
	if err := json.Unmarshal([]byte(readText(t, alt)), &report); err != nil {
		t.Fatalf("report not JSON: %v", err)
	}
	if report.Status != "Success" || report.Succeeded != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if !strings.Contains(out, "Report saved to "+alt) {
		t.Errorf("missing report line:\n%s", out)
	}
}

func TestRun_Validation(t *testing.T) {
	withStubs(t)
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"missing folder", []string{"run"}},
		{"no model", []string{"run", dir, "--prompt", "p"}},
		{"bad policy", []string{"run", dir, "--model", "m", "--prompt", "p", "--policy", "merge"}},
		{"bad hardware", []string{"run", dir, "--model", "m", "--prompt", "p", "--hardware", "tpu"}},
		{"bad report format", []string{"run", dir, "--model", "m", "--prompt", "p", "--report-format", "xml"}},
		{"tags without refine", []string{"run", dir, "--model", "m", "--prompt", "p", "--tag-model", "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeCommand(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRun_AcceptsYesAndShorthand(t *testing.T) {
	withStubs(t)
	for _, flag := range []string{"-y", "--yes"} {
		out, err := executeCommand(t, "run", flag)
		if err == nil {
			t.Fatalf("expected missing folder error")
		}
		if strings.Contains(out, "unknown shorthand flag") || strings.Contains(out, "unknown flag") {
			t.Fatalf("%s not parsed: %s", flag, out)
		}
	}
}
