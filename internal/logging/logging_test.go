package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLevelSplit(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Console: &buf})
	require.NoError(t, err)

	log.Debug("hidden detail")
	log.Info("visible line")

	out := buf.String()
	assert.Contains(t, out, "visible line")
	assert.NotContains(t, out, "hidden detail")
}

func TestDebugModeShowsDebugOnConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Console: &buf, Debug: true})
	require.NoError(t, err)

	log.Debug("hidden detail")
	assert.Contains(t, buf.String(), "hidden detail")
}

func TestFileReceivesDebugEntries(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	log, err := New(Options{Console: &buf, Dir: dir})
	require.NoError(t, err)

	log.Debug("disk only")

	data, err := os.ReadFile(filepath.Join(dir, "guildmgr.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "disk only")
	assert.NotContains(t, buf.String(), "disk only")
}
