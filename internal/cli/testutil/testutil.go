// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// QueryFile is the name of the query written by SetupTestProject.
const QueryFile = "query.prql"

// projectConfig uses cat as the compiler so the SQL equals the source.
const projectConfig = `compiler:
  command: sh
  args: ["-c", "cat"]
  timeout: 5s
preview:
  theme: monokai
`

// SetupTestProject creates a temporary project holding a sqlpreview.yaml and
// one query file, and returns its directory. It skips the test when sh is
// not available.
func SetupTestProject(t *testing.T, query string) string {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	tmpDir := t.TempDir()
	files := map[string]string{
		"sqlpreview.yaml": projectConfig,
		QueryFile:         query,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	subDir := filepath.Join(tmpDir, "nested", "dir")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatalf("failed to create directory %s: %v", subDir, err)
	}

	return tmpDir
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertContains checks that the string contains the expected substring.
func AssertContains(t *testing.T, s, expected string) {
	t.Helper()
	if !strings.Contains(s, expected) {
		t.Errorf("string %q does not contain expected %q", s, expected)
	}
}
