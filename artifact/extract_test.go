package artifact

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTarGz(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for name, content := range entries {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dir := t.TempDir()
	path := filepath.Join(dir, "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestExtract_MaterializesWhitelistedEntries(t *testing.T) {
	archive := buildTarGz(t, map[string]string{
		"model.onnx":       "fake-model-bytes",
		"config.pbtxt":     "name: \"m\"",
		"unexpected-junk":  "should be skipped",
		"../../etc/passwd": "path traversal attempt",
	})

	destDir := filepath.Join(t.TempDir(), "task")
	require.NoError(t, Extract(archive, destDir))

	modelBytes, err := os.ReadFile(filepath.Join(destDir, "model", "1", "model.onnx"))
	require.NoError(t, err)
	assert.Equal(t, "fake-model-bytes", string(modelBytes))

	_, err = os.Stat(filepath.Join(destDir, "unexpected-junk"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(destDir, "..", "..", "etc", "passwd"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtract_ZeroWhitelistedEntriesFails(t *testing.T) {
	archive := buildTarGz(t, map[string]string{
		"readme.txt": "nothing useful here",
	})

	err := Extract(archive, filepath.Join(t.TempDir(), "task"))
	assert.Error(t, err)
}
