package archive

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

func TestPackUnpackRoundTrip(t *testing.T) {
	// Arrange
	src := filepath.Join(t.TempDir(), "export-20240101T000000Z")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "manifest.json"), []byte(`{"version":"1.0.0"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "artists.json"), []byte(`[]`), 0o644))

	// Act
	var buf bytes.Buffer
	require.NoError(t, Pack(src, &buf))
	dest := t.TempDir()
	require.NoError(t, Unpack(&buf, dest))

	// Assert
	manifest, err := os.ReadFile(filepath.Join(dest, "export-20240101T000000Z", "manifest.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.0.0"}`, string(manifest))
	artists, err := os.ReadFile(filepath.Join(dest, "export-20240101T000000Z", "nested", "artists.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(artists))
}

func TestPackFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "snap")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.json"), []byte("{}"), 0o644))
	out := filepath.Join(t.TempDir(), "snap.tar.gz")

	require.NoError(t, PackFile(src, out))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestUnpackRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := []byte("owned")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../evil.txt", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	err = Unpack(&buf, t.TempDir())

	assert.ErrorContains(t, err, "escapes destination")
}

func TestUnpackRejectsGarbage(t *testing.T) {
	err := Unpack(bytes.NewReader([]byte("not a gzip stream")), t.TempDir())
	assert.Error(t, err)
}
