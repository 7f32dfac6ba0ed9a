package common

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{" DEBUG ", LevelDebug},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAppLogger_LogFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")

	if buf.Len() > 0 {
		t.Error("Debug/Info messages should be filtered when level is Warn")
	}

	logger.Warn("warn message")
	if !strings.Contains(buf.String(), "WARN") {
		t.Error("Warn message should be logged")
	}

	buf.Reset()
	logger.Error("error message")
	if !strings.Contains(buf.String(), "ERROR") {
		t.Error("Error message should be logged")
	}
}

func TestAppLogger_LogFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelDebug)

	logger.Info("Selected network %s", "HQ")

	output := buf.String()

	if !strings.Contains(output, time.Now().Format("2006/01/02")) {
		t.Error("Log should contain date in YYYY/MM/DD format")
	}
	if !strings.Contains(output, "[INFO]") {
		t.Error("Log should contain level indicator")
	}
	if !strings.Contains(output, "logger_test.go") {
		t.Error("Log should contain the caller file")
	}
	if !strings.Contains(output, "Selected network HQ") {
		t.Error("Log should contain formatted message")
	}
}

func TestAppLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelDebug)
	logger.AddSecret("hunter2")
	logger.AddSecret("hunter2-extended")
	logger.AddSecret("ab") // too short, ignored

	logger.Info("password=%s psk=%s tag=%s", "hunter2", "hunter2-extended", "ab")

	output := buf.String()
	if strings.Contains(output, "hunter2") {
		t.Errorf("secret leaked into log: %s", output)
	}
	if !strings.Contains(output, "psk="+redactedMarker+" ") {
		t.Errorf("longer secret should be masked as a whole: %s", output)
	}
	if !strings.Contains(output, "tag=ab") {
		t.Errorf("short values should not be masked: %s", output)
	}
}

func TestDefaultLogConfig(t *testing.T) {
	if defaultMaxFileSize != 5*1024*1024 {
		t.Errorf("defaultMaxFileSize = %v, want 5MB", defaultMaxFileSize)
	}

	if defaultMaxBackups != 5 {
		t.Errorf("defaultMaxBackups = %v, want 5", defaultMaxBackups)
	}
}

func TestFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exists")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	if !FileExists(path) {
		t.Error("FileExists() should return true for existing file")
	}

	if FileExists("/nonexistent/path/to/file") {
		t.Error("FileExists() should return false for non-existing file")
	}
}

func TestContainsFold(t *testing.T) {
	if !ContainsFold("Acme West", "acme") {
		t.Error("ContainsFold should ignore case")
	}
	if ContainsFold("Acme", "west") {
		t.Error("ContainsFold should not match absent substrings")
	}
}

func TestMaskSecret(t *testing.T) {
	if MaskSecret("") != "" {
		t.Error("MaskSecret of empty should stay empty")
	}
	if MaskSecret("s3cret") != redactedMarker {
		t.Error("MaskSecret should hide the value")
	}
}

func TestWrapError(t *testing.T) {
	wrapped := WrapError(ErrConnection, "opening login page")

	if !errors.Is(wrapped, ErrConnection) {
		t.Error("WrapError should keep the sentinel reachable")
	}
	if !strings.Contains(wrapped.Error(), "opening login page") {
		t.Error("WrapError should include additional context")
	}
	if WrapError(nil, "context") != nil {
		t.Error("WrapError(nil) should return nil")
	}
}

func TestJoinSentinel(t *testing.T) {
	cause := errors.New("dial tcp: no route to host")
	err := JoinSentinel(ErrConnection, cause)

	if !errors.Is(err, ErrConnection) || !errors.Is(err, cause) {
		t.Error("JoinSentinel should match both the sentinel and the cause")
	}
	if !strings.Contains(err.Error(), "no route to host") {
		t.Errorf("JoinSentinel message = %q", err.Error())
	}
	if JoinSentinel(ErrCatalog, nil) != ErrCatalog {
		t.Error("JoinSentinel without cause should return the sentinel")
	}
}

func TestLogRotation(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "test.log")

	largeContent := strings.Repeat("x", 1024*1024)
	if err := os.WriteFile(logFile, []byte(largeContent), 0600); err != nil {
		t.Fatal(err)
	}

	logger := &AppLogger{
		level:       LevelInfo,
		maxFileSize: 512 * 1024,
		maxBackups:  2,
	}

	logger.rotateIfNeeded(logFile)

	info, err := os.Stat(logFile)
	if err == nil && info.Size() > 0 {
		t.Error("Original log file should be removed or empty after rotation")
	}

	matches, _ := filepath.Glob(filepath.Join(tempDir, "test.log.*"))
	if len(matches) == 0 {
		t.Error("Backup file should be created after rotation")
	}
}

func TestAppLogger_SetConsole(t *testing.T) {
	var first, second bytes.Buffer
	logger := NewLogger(&first, LevelInfo)
	logger.SetConsole(&second)
	logger.Info("after switch")

	if first.Len() != 0 {
		t.Errorf("old console should not receive output: %q", first.String())
	}
	if !strings.Contains(second.String(), "after switch") {
		t.Errorf("new console should receive output: %q", second.String())
	}
}
