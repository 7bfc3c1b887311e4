package archive

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileferry/internal/shared/errs"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func extract(t *testing.T, archivePath string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer r.Close()

	out := make(map[string]string)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(data)
	}
	return out
}

func TestCreateDirectoryRoundTrip(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"a.txt":            "alpha",
		"nested/b.log":     "bravo",
		"nested/deep/c.md": "charlie",
	}
	writeTree(t, src, files)

	path, stats, err := Create(context.Background(), src, t.TempDir(), 0)
	require.NoError(t, err)
	defer os.Remove(path)

	assert.Equal(t, 3, stats.Files)

	got := extract(t, path)
	require.Len(t, got, len(files))
	for rel, content := range files {
		assert.Equal(t, content, got[filepath.ToSlash(rel)])
	}
}

func TestCreateSingleFile(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"only.txt": "payload"})

	path, stats, err := Create(context.Background(), filepath.Join(src, "only.txt"), t.TempDir(), 0)
	require.NoError(t, err)
	defer os.Remove(path)

	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, map[string]string{"only.txt": "payload"}, extract(t, path))
}

func TestCreateSizeExceededFailsFast(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"big.bin": "0123456789"})

	tmpDir := t.TempDir()
	_, _, err := Create(context.Background(), src, tmpDir, 5)
	require.Error(t, err)
	assert.Equal(t, errs.KindSizeExceeded, errs.KindOf(err))

	// Nothing may be left behind on the fast-fail path.
	leftovers, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestCreateMissingSource(t *testing.T) {
	_, _, err := Create(context.Background(), filepath.Join(t.TempDir(), "ghost"), t.TempDir(), 0)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestCreateFromFiles(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"service.log": "line\n", "error.log": "boom\n"})

	path, stats, err := CreateFromFiles(context.Background(), []string{
		filepath.Join(src, "service.log"),
		filepath.Join(src, "error.log"),
	}, t.TempDir())
	require.NoError(t, err)
	defer os.Remove(path)

	assert.Equal(t, 2, stats.Files)
	got := extract(t, path)
	assert.Equal(t, "line\n", got["service.log"])
	assert.Equal(t, "boom\n", got["error.log"])
}

func TestSubtreeSize(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a": "12345", "d/b": "123"})

	size, err := SubtreeSize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
}
