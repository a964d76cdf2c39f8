package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	cfg := filepath.Join(t.TempDir(), "absent.yaml")
	rootCmd.SetArgs(append(args, "--config", cfg))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeScript(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trip.mob")
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mobility version v")
}

func TestParseCommand(t *testing.T) {
	path := writeScript(t, "label top\nmove rover, , +10, rover, dock, field, false\ngoto top\n")

	out, err := run(t, "parse", path, "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "| 1 | 2 | move | rover |")

	out, err = run(t, "parse", path, "--mermaid", "--raw=false")
	require.NoError(t, err)
	assert.Contains(t, out, "e2 -.-> e0")

	bad := writeScript(t, "move rover\n")
	_, err = run(t, "parse", bad, "--mermaid=false")
	assert.ErrorContains(t, err, "line 1")
}

func TestSimulateCommand(t *testing.T) {
	path := writeScript(t, "move rover, , , rover, dock, field, false\nmove base, , , rover, field, dock, false\n")

	out, err := run(t, "simulate", path, "--agents", "base,rover", "--host", "base", "--move-duration", "5ms", "--timeout", "10s", "--duplicate")
	require.NoError(t, err, out)
	assert.Contains(t, out, "[rover] SUCCESS")
	assert.Contains(t, out, "[base] SUCCESS")
	assert.Contains(t, out, "2/2 moves")
}
