package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/disk"

	"bodega-go/internal/bodega"
)

// probeFileName is created and removed by ProbeWritable.
const probeFileName = ".write_test.tmp"

// OSFilesystem is the real filesystem implementation of bodega.Filesystem.
type OSFilesystem struct{}

// NewOSFilesystem creates a filesystem that operates on the real filesystem.
func NewOSFilesystem() *OSFilesystem {
	return &OSFilesystem{}
}

// Stat returns fresh file info for a path.
func (m *OSFilesystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Open opens a file for reading.
func (m *OSFilesystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// CopyFile copies src to dst through a temp file in dst's directory so a
// partially written copy is never visible under its final name.
func (m *OSFilesystem) CopyFile(src, dst string, overwrite bool) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("source is not a regular file: %s", src)
	}

	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return 0, fmt.Errorf("destination %s: %w", dst, fs.ErrExist)
		}
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, in)
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("failed to copy data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return written, nil
}

// Remove deletes a file. A path that is already gone is not an error.
func (m *OSFilesystem) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ReadDir lists the entries of dir.
func (m *OSFilesystem) ReadDir(dir string) ([]fs.DirEntry, error) {
	return os.ReadDir(dir)
}

// MkdirAll creates dir and any missing parents.
func (m *OSFilesystem) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// SetModTime sets the access and modification times of path.
func (m *OSFilesystem) SetModTime(path string, t time.Time) error {
	return os.Chtimes(path, t, t)
}

// ProbeWritable creates and removes a marker file in dir.
func (m *OSFilesystem) ProbeWritable(dir string) error {
	probe := filepath.Join(dir, probeFileName)
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("removing write probe: %w", err)
	}
	return nil
}

// FreeSpace returns the bytes available to unprivileged users on the volume
// holding dir.
func (m *OSFilesystem) FreeSpace(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, fmt.Errorf("reading disk usage for %s: %w", dir, err)
	}
	return usage.Free, nil
}

// Compile-time check that OSFilesystem implements bodega.Filesystem interface
var _ bodega.Filesystem = (*OSFilesystem)(nil)
