package logger

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	w.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestInfo_Success_Warn_Error_NoPanic(t *testing.T) {
	out := captureStdout(t, func() {
		Info("TAG", "message")
		Success("TAG", "message")
		Warn("TAG", "message", Err(errors.New("boom")))
		Error("TAG", "message")
	})
	if !strings.Contains(out, "message") {
		t.Errorf("output %q does not contain the message", out)
	}
}

func TestDebug_HiddenUntilLevelLowered(t *testing.T) {
	defer SetLevel("info")

	out := captureStdout(t, func() { Debug("TAG", "hidden-line") })
	if strings.Contains(out, "hidden-line") {
		t.Errorf("debug line printed at info level: %q", out)
	}

	SetLevel("debug")
	out = captureStdout(t, func() { Debug("TAG", "shown-line") })
	if !strings.Contains(out, "shown-line") {
		t.Errorf("debug line missing at debug level: %q", out)
	}
}

func TestBanner_NoPanic(t *testing.T) {
	out := captureStdout(t, func() {
		Banner("v1.0.0")
		Banner("")
	})
	if !strings.Contains(out, "v1.0.0") || !strings.Contains(out, "dev") {
		t.Errorf("banner output = %q", out)
	}
}

func TestSectionAndStats_NoPanic(t *testing.T) {
	out := captureStdout(t, func() {
		Section("Test")
		Stats("key", 42)
	})
	if !strings.Contains(out, "Test") || !strings.Contains(out, "42") {
		t.Errorf("section/stats output = %q", out)
	}
}
