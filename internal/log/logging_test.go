package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softi3c/pkg"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestSetupLoggerSplitsStreams(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, closers, err := SetupLogger(Options{Level: "debug", Stdout: &stdout, Stderr: &stderr})
	require.NoError(t, err)
	assert.Empty(t, closers)

	logger.Debug("probe", "addr", 8)
	logger.Error("stalled")

	assert.Contains(t, stdout.String(), "probe")
	assert.NotContains(t, stdout.String(), "stalled")
	assert.Contains(t, stderr.String(), "stalled")
	assert.NotContains(t, stderr.String(), "probe")
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.log")
	var stderr bytes.Buffer
	logger, closers, err := SetupLogger(Options{Level: "info", File: path, Format: "json", Stderr: &stderr})
	require.NoError(t, err)
	require.Len(t, closers, 1)

	logger.Debug("hidden")
	logger.Info("addressed", "count", 3)
	require.NoError(t, closers[0].Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"addressed"`)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, stderr.String(), "addressed")
}

func TestSetupLoggerRejectsFormat(t *testing.T) {
	_, _, err := SetupLogger(Options{Format: "xml", Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	assert.Error(t, err)
}

func TestInstall(t *testing.T) {
	prevLogger, prevLevel := pkg.Logger(), pkg.GetLogLevel()
	t.Cleanup(func() {
		pkg.SetLogger(prevLogger)
		pkg.SetLogLevel(prevLevel)
	})

	var stdout bytes.Buffer
	o := Options{Level: "debug", Stdout: &stdout, Stderr: &bytes.Buffer{}}
	logger, _, err := SetupLogger(o)
	require.NoError(t, err)
	Install(logger, o)

	pkg.LogDebug(pkg.ComponentDAA, "device addressed", "address", 0x08)
	assert.Contains(t, stdout.String(), "component=daa")
	assert.Equal(t, slog.LevelDebug, pkg.GetLogLevel())
}
