package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_FileAndDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "provision.log")
	var stderr bytes.Buffer

	logger, closer, err := Setup(Options{File: path, Debug: true, Stderr: &stderr})
	require.NoError(t, err)

	logger.Info("step applied", "step", "Install Nginx")
	logger.Debug("exec", "cmd", "apt-get")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "step applied", rec["msg"])
	assert.Equal(t, "Install Nginx", rec["step"])

	assert.Contains(t, stderr.String(), "cmd=apt-get")
}

func TestSetup_NoDebugKeepsStderrQuiet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provision.log")
	var stderr bytes.Buffer

	logger, closer, err := Setup(Options{File: path, Stderr: &stderr})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hello")
	assert.Empty(t, stderr.String())
}

func TestSetup_UnwritableFileDegrades(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	var stderr bytes.Buffer
	logger, closer, err := Setup(Options{File: filepath.Join(blocker, "sub", "x.log"), Debug: true, Stderr: &stderr})
	assert.Error(t, err)
	require.NotNil(t, logger)
	defer closer.Close()

	logger.Warn("still logging")
	assert.Contains(t, stderr.String(), "still logging")
}
