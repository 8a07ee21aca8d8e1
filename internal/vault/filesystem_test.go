package vault

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bodega-go/internal/bodega"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileSystemVault(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")

	v, err := NewFileSystemVault("nas", root)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "artifacts"))
	assert.NoError(t, err)
	assert.Equal(t, "nas", v.name)
	assert.NoError(t, v.ValidateSetup())
}

func TestFileSystemVault_PutGetArtifact(t *testing.T) {
	v, err := NewFileSystemVault("nas", t.TempDir())
	require.NoError(t, err)

	data := "SQLite format 3"
	require.NoError(t, v.PutArtifact("station-1", "bodega_backup_20240115_103000.db", strings.NewReader(data), int64(len(data))))

	var buf bytes.Buffer
	require.NoError(t, v.GetArtifact("station-1", "bodega_backup_20240115_103000.db", &buf))
	assert.Equal(t, data, buf.String())

	t.Run("replaces an existing artifact", func(t *testing.T) {
		require.NoError(t, v.PutArtifact("station-1", "bodega_backup_20240115_103000.db", strings.NewReader("v2"), 2))
		var buf bytes.Buffer
		require.NoError(t, v.GetArtifact("station-1", "bodega_backup_20240115_103000.db", &buf))
		assert.Equal(t, "v2", buf.String())
	})

	t.Run("size mismatch leaves nothing behind", func(t *testing.T) {
		err := v.PutArtifact("station-1", "short.db", strings.NewReader("abc"), 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "size mismatch")

		names, err := v.ListArtifacts("station-1")
		require.NoError(t, err)
		assert.NotContains(t, names, "short.db")
	})

	t.Run("streamed artifact of unknown size", func(t *testing.T) {
		require.NoError(t, v.PutArtifact("station-1", "stream.db.age", strings.NewReader("ciphertext"), bodega.UnknownSize))
		var buf bytes.Buffer
		require.NoError(t, v.GetArtifact("station-1", "stream.db.age", &buf))
		assert.Equal(t, "ciphertext", buf.String())
	})

	t.Run("missing artifact", func(t *testing.T) {
		err := v.GetArtifact("station-1", "nope.db", &bytes.Buffer{})
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		assert.Error(t, v.PutArtifact("..", "x", strings.NewReader(""), 0))
		assert.Error(t, v.PutArtifact("station-1", "../x", strings.NewReader(""), 0))
	})
}

func TestFileSystemVault_ListAndDelete(t *testing.T) {
	v, err := NewFileSystemVault("nas", t.TempDir())
	require.NoError(t, err)

	names, err := v.ListArtifacts("station-1")
	require.NoError(t, err)
	assert.Empty(t, names, "unknown station has no artifacts")

	for _, n := range []string{"b.db", "a.db"} {
		require.NoError(t, v.PutArtifact("station-1", n, strings.NewReader("x"), 1))
	}
	require.NoError(t, v.PutArtifact("station-2", "c.db", strings.NewReader("x"), 1))

	names, err = v.ListArtifacts("station-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.db", "b.db"}, names)

	require.NoError(t, v.DeleteArtifact("station-1", "a.db"))
	require.NoError(t, v.DeleteArtifact("station-1", "a.db"), "deleting twice is fine")

	names, err = v.ListArtifacts("station-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.db"}, names)
}

func TestFileSystemVault_ValidateSetup_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")
	v, err := NewFileSystemVault("nas", root)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(root))
	assert.Error(t, v.ValidateSetup())
}
