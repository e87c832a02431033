package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractZIP(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"gencast_2024.csv":      "source,value\n",
		"sub/graphcast_2024.csv": "source,value\n",
	})
	destDir := t.TempDir()

	paths, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, "source,value\n", string(data))
	}
}

func TestExtractZIPSingle(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"only.csv": "data"})
	destDir := t.TempDir()

	path, err := ExtractZIPSingle(zipPath, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "only.csv"), path)
}

func TestExtractZIPSingleRejectsMultiple(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"a.csv": "1", "b.csv": "2"})

	_, err := ExtractZIPSingle(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly 1 file")
}

func TestExtractZIPRejectsSlip(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"../escape.csv": "evil"})

	_, err := ExtractZIP(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes destination")
}
