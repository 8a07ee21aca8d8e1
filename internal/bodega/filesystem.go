package bodega

import (
	"io"
	"io/fs"
	"time"
)

// Filesystem is the set of file operations the backup scheduler relies on.
// It abstracts file access so failure paths (locked files, full disks,
// read-only directories) can be exercised in tests.
type Filesystem interface {
	// Stat returns fresh file info for path.
	Stat(path string) (fs.FileInfo, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// CopyFile copies src to dst byte for byte and returns the number of bytes
	// written. The copy lands atomically (temp file + rename). When overwrite
	// is false an existing dst is an error.
	CopyFile(src, dst string, overwrite bool) (int64, error)

	// Remove deletes path. A missing path is not an error.
	Remove(path string) error

	// ReadDir lists the entries of dir.
	ReadDir(dir string) ([]fs.DirEntry, error)

	// SetModTime stamps path with t so artifact age follows the injected clock.
	SetModTime(path string, t time.Time) error

	// MkdirAll creates dir and any parents. Existing directories are fine.
	MkdirAll(dir string) error

	// ProbeWritable verifies dir accepts new files by creating and removing
	// a marker file.
	ProbeWritable(dir string) error

	// FreeSpace returns the bytes available to unprivileged users on the
	// volume holding dir.
	FreeSpace(dir string) (uint64, error)
}
