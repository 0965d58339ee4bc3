package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authscan/internal/analyzer"
)

const testLog = `2024-03-15 10:00:00 | bob | 10.0.0.5 | FAILED
2024-03-15 10:01:00 | bob | 10.0.0.5 | FAILED
2024-03-15 10:02:00 | bob | 10.0.0.5 | FAILED
2024-03-15 22:15:00 | alice | 192.168.1.20 | SUCCESS
`

// isolate keeps the user's config file and AUTHSCAN_* variables out of a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "AUTHSCAN_") {
			t.Setenv(name, "")
		}
	}
	input := filepath.Join(dir, "auth.log")
	require.NoError(t, os.WriteFile(input, []byte(testLog), 0600))
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "-version")
	assert.Equal(t, analyzer.ExitOK, code)
	assert.Contains(t, stdout, "authscan dev")
}

func TestHelp(t *testing.T) {
	code, _, stderr := runCLI(t, "-h")
	assert.Equal(t, analyzer.ExitOK, code)
	assert.Contains(t, stderr, "Usage: authscan [flags]")
	assert.Contains(t, stderr, "-threshold")
}

func TestTextReport(t *testing.T) {
	dir := isolate(t)
	out := filepath.Join(dir, "reports", "report.txt")

	code, _, stderr := runCLI(t,
		"-i", filepath.Join(dir, "auth.log"),
		"-o", out,
		"-t", "3",
		"-tz", "UTC",
		"-log-level", "error",
	)
	require.Equal(t, analyzer.ExitOK, code, stderr)
	assert.Contains(t, stderr, "2 suspicious events")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "Total Log Entries: 4")
	assert.Contains(t, text, "[1] Multiple Failed Login Attempts")
	assert.Contains(t, text, "[2] Login Outside Business Hours")
}

func TestJSONToStdout(t *testing.T) {
	dir := isolate(t)

	code, stdout, stderr := runCLI(t,
		"-input", filepath.Join(dir, "auth.log"),
		"-output", "-",
		"-format", "json",
		"-validate",
		"-hours", "9-17",
		"-tz", "UTC",
		"-quiet",
	)
	require.Equal(t, analyzer.ExitOK, code, stderr)
	assert.Empty(t, stderr)

	var doc struct {
		Settings struct {
			FailedThreshold   int `json:"failed_threshold"`
			BusinessHourStart int `json:"business_hour_start"`
			BusinessHourEnd   int `json:"business_hour_end"`
		} `json:"settings"`
		Events []json.RawMessage `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, 5, doc.Settings.FailedThreshold)
	assert.Equal(t, 9, doc.Settings.BusinessHourStart)
	assert.Equal(t, 17, doc.Settings.BusinessHourEnd)
	// Three failures are below the default threshold.
	assert.Len(t, doc.Events, 1)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	dir := isolate(t)
	t.Setenv("AUTHSCAN_THRESHOLD", "50")
	t.Setenv("AUTHSCAN_FORMAT", "yaml")

	code, stdout, stderr := runCLI(t,
		"-i", filepath.Join(dir, "auth.log"),
		"-o", "-",
		"-t", "3",
		"-tz", "UTC",
		"-quiet",
	)
	require.Equal(t, analyzer.ExitOK, code, stderr)
	assert.Contains(t, stdout, "failed_threshold: 3")
	assert.Contains(t, stdout, "multiple_failed_logins")
}

func TestConfigFile(t *testing.T) {
	dir := isolate(t)
	cfgPath := filepath.Join(dir, "authscan.toml")
	cfg := `version = 1

[input]
path = "` + filepath.ToSlash(filepath.Join(dir, "auth.log")) + `"
timezone = "UTC"

[detection]
failed_threshold = 2
window_minutes = 10
business_hour_start = 8
business_hour_end = 18

[report]
path = "-"
format = "markdown"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0600))

	code, stdout, stderr := runCLI(t, "-config", cfgPath, "-quiet")
	require.Equal(t, analyzer.ExitOK, code, stderr)
	assert.True(t, strings.HasPrefix(stdout, "# Log Analyzer Security Report"))
	assert.Contains(t, stdout, "threshold 2")
}

func TestExitCodes(t *testing.T) {
	dir := isolate(t)
	input := filepath.Join(dir, "auth.log")
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"-nope"}, analyzer.ExitConfig},
		{"extra argument", []string{"-i", input, "extra"}, analyzer.ExitConfig},
		{"zero threshold", []string{"-i", input, "-t", "0"}, analyzer.ExitConfig},
		{"bad hours", []string{"-i", input, "-hours", "18-8"}, analyzer.ExitConfig},
		{"bad format", []string{"-i", input, "-format", "pdf"}, analyzer.ExitConfig},
		{"bad zone", []string{"-i", input, "-tz", "Mars/Olympus"}, analyzer.ExitConfig},
		{"missing config", []string{"-config", filepath.Join(dir, "none.toml")}, analyzer.ExitConfig},
		{"missing input", []string{"-i", filepath.Join(dir, "none.log"), "-o", "-"}, analyzer.ExitInput},
		{"unwritable report", []string{"-i", input, "-o", filepath.Join(blocker, "report.txt")}, analyzer.ExitReport},
		{"unwritable export", []string{"-i", input, "-o", "-", "-sqlite", filepath.Join(blocker, "runs.db")}, analyzer.ExitExport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"-quiet"}, tt.args...)
			code, _, _ := runCLI(t, args...)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestStoredRuns(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "runs.db")
	input := filepath.Join(dir, "auth.log")

	for range 2 {
		code, _, stderr := runCLI(t, "-i", input, "-o", "-", "-t", "3", "-tz", "UTC", "-sqlite", db, "-quiet")
		require.Equal(t, analyzer.ExitOK, code, stderr)
	}

	code, stdout, stderr := runCLI(t, "-sqlite", db, "-runs", "0", "-tz", "UTC")
	require.Equal(t, analyzer.ExitOK, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "records=4 invalid=0 events=2")

	code, stdout, _ = runCLI(t, "-sqlite", db, "-runs", "1")
	require.Equal(t, analyzer.ExitOK, code)
	assert.Len(t, strings.Split(strings.TrimSpace(stdout), "\n"), 1)

	code, stdout, _ = runCLI(t, "-sqlite", db, "-history", "bob", "-tz", "UTC")
	require.Equal(t, analyzer.ExitOK, code)
	assert.Contains(t, stdout, "User: bob\n")
	assert.Contains(t, stdout, "Runs With Events: 2\n")
	assert.Contains(t, stdout, "Last Occurrence: 2024-03-15 10:02:00\n")
	assert.Contains(t, stdout, "    Multiple Failed Login Attempts: 2\n")

	code, stdout, _ = runCLI(t, "-sqlite", db, "-history", "nobody")
	require.Equal(t, analyzer.ExitOK, code)
	assert.Contains(t, stdout, "No stored events for user 'nobody'.")

	runID, _, _ := strings.Cut(lines[0], " ")
	code, stdout, _ = runCLI(t, "-sqlite", db, "-delete-run", runID)
	require.Equal(t, analyzer.ExitOK, code)
	assert.Contains(t, stdout, "Deleted run "+runID)

	code, stdout, _ = runCLI(t, "-sqlite", db, "-runs", "0")
	require.Equal(t, analyzer.ExitOK, code)
	assert.Len(t, strings.Split(strings.TrimSpace(stdout), "\n"), 1)
	assert.NotContains(t, stdout, runID)

	code, _, _ = runCLI(t, "-sqlite", db, "-delete-run", runID)
	assert.Equal(t, analyzer.ExitInput, code)
}

func TestStoredRunsErrors(t *testing.T) {
	dir := isolate(t)

	code, _, stderr := runCLI(t, "-history", "bob")
	assert.Equal(t, analyzer.ExitConfig, code)
	assert.Contains(t, stderr, "-sqlite")

	code, _, _ = runCLI(t, "-sqlite", filepath.Join(dir, "none.db"), "-runs", "5")
	assert.Equal(t, analyzer.ExitInput, code)
	_, err := os.Stat(filepath.Join(dir, "none.db"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	code, _, stderr = runCLI(t, "-sqlite", filepath.Join(dir, "none.db"), "-runs", "5", "-history", "bob")
	assert.Equal(t, analyzer.ExitConfig, code)
	assert.Contains(t, stderr, "mutually exclusive")
}
