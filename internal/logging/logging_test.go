package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name        string
		logsDir     string
		serviceName string
		want        string
	}{
		{
			name:        "basic path",
			logsDir:     "cablemaplogs",
			serviceName: "cablemap",
			want:        filepath.Join("cablemaplogs", "cablemap.20260212_213836.log"),
		},
		{
			name:        "relative path with dot",
			logsDir:     "./cablemaplogs",
			serviceName: "cablemap",
			want:        filepath.Join(".", "cablemaplogs", "cablemap.20260212_213836.log"),
		},
		{
			name:        "absolute path",
			logsDir:     filepath.Join("/var", "log", "cablemap"),
			serviceName: "cablemap",
			want:        filepath.Join("/var", "log", "cablemap", "cablemap.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.serviceName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPruneSessionLogs(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 2, 12, 21, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		path := LogFilePath(dir, "cablemap", start.Add(time.Duration(i)*time.Hour))
		require.NoError(t, os.WriteFile(path, nil, 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cablemap.notastamp.log"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status.json"), nil, 0644))

	removed, err := PruneSessionLogs(dir, "cablemap", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		LogFilePath(dir, "cablemap", start),
		LogFilePath(dir, "cablemap", start.Add(time.Hour)),
	}, removed)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, left, 4)
}

func TestPruneSessionLogs_KeepAll(t *testing.T) {
	removed, err := PruneSessionLogs(filepath.Join(t.TempDir(), "missing"), "cablemap", 0)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
