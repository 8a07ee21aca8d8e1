package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0640))
}

func TestOSFilesystem_CopyFile(t *testing.T) {
	m := NewOSFilesystem()

	t.Run("copies bytes and mode", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "inventory.db")
		dst := filepath.Join(dir, "copy.db")
		data := []byte("SQLite format 3\x00 plus some pages")
		writeFile(t, src, data)

		n, err := m.CopyFile(src, dst, false)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), n)

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, data, got)

		info, err := os.Stat(dst)
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0640), info.Mode().Perm())
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "src")
		dst := filepath.Join(dir, "dst")
		writeFile(t, src, []byte("new"))
		writeFile(t, dst, []byte("old"))

		_, err := m.CopyFile(src, dst, false)
		assert.ErrorIs(t, err, fs.ErrExist)

		got, _ := os.ReadFile(dst)
		assert.Equal(t, "old", string(got))
	})

	t.Run("overwrites when asked", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "src")
		dst := filepath.Join(dir, "dst")
		writeFile(t, src, []byte("new"))
		writeFile(t, dst, []byte("old"))

		_, err := m.CopyFile(src, dst, true)
		require.NoError(t, err)

		got, _ := os.ReadFile(dst)
		assert.Equal(t, "new", string(got))
	})

	t.Run("leaves no temp files behind on failure", func(t *testing.T) {
		dir := t.TempDir()
		_, err := m.CopyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"), false)
		require.Error(t, err)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("rejects a directory source", func(t *testing.T) {
		dir := t.TempDir()
		_, err := m.CopyFile(dir, filepath.Join(dir, "dst"), false)
		assert.Error(t, err)
	})
}

func TestOSFilesystem_Remove(t *testing.T) {
	m := NewOSFilesystem()
	dir := t.TempDir()
	path := filepath.Join(dir, "a")
	writeFile(t, path, []byte("x"))

	require.NoError(t, m.Remove(path))
	assert.NoError(t, m.Remove(path), "removing a missing file is not an error")
}

func TestOSFilesystem_SetModTime(t *testing.T) {
	m := NewOSFilesystem()
	path := filepath.Join(t.TempDir(), "a")
	writeFile(t, path, []byte("x"))

	when := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	require.NoError(t, m.SetModTime(path, when))

	info, err := m.Stat(path)
	require.NoError(t, err)
	assert.True(t, when.Equal(info.ModTime()))
}

func TestOSFilesystem_ProbeWritable(t *testing.T) {
	m := NewOSFilesystem()

	t.Run("writable directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, m.ProbeWritable(dir))

		_, err := os.Stat(filepath.Join(dir, probeFileName))
		assert.True(t, os.IsNotExist(err), "probe file must be removed")
	})

	t.Run("read-only directory", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		dir := t.TempDir()
		require.NoError(t, os.Chmod(dir, 0555))
		t.Cleanup(func() { os.Chmod(dir, 0755) })

		assert.Error(t, m.ProbeWritable(dir))
	})
}

func TestOSFilesystem_FreeSpace(t *testing.T) {
	m := NewOSFilesystem()

	free, err := m.FreeSpace(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))

	_, err = m.FreeSpace(filepath.Join(t.TempDir(), "does", "not", "exist"))
	assert.Error(t, err)
}

func TestOSFilesystem_MkdirAllAndReadDir(t *testing.T) {
	m := NewOSFilesystem()
	dir := filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, m.MkdirAll(dir))
	require.NoError(t, m.MkdirAll(dir), "existing directories are fine")

	writeFile(t, filepath.Join(dir, "f"), []byte("x"))
	entries, err := m.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f", entries[0].Name())
}
