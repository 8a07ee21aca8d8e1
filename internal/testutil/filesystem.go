package testutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"bodega-go/internal/bodega"
	bfs "bodega-go/internal/fs"
)

// FaultyFilesystem wraps the real filesystem and injects failures for
// chosen operations, so tests can reproduce locked files, read-only
// directories and full disks.
type FaultyFilesystem struct {
	bodega.Filesystem

	mu sync.Mutex

	// RemoveErr fails Remove for paths whose base name is a key.
	RemoveErr map[string]error
	// ProbeErr fails ProbeWritable.
	ProbeErr error
	// MkdirErr fails MkdirAll.
	MkdirErr error
	// Free overrides FreeSpace when non-nil.
	Free *uint64
	// TruncateCopies makes CopyFile produce an empty destination.
	TruncateCopies bool
	// CopyPanic makes CopyFile panic.
	CopyPanic bool

	removed []string
}

// NewFaultyFilesystem wraps a real OSFilesystem.
func NewFaultyFilesystem() *FaultyFilesystem {
	return &FaultyFilesystem{
		Filesystem: bfs.NewOSFilesystem(),
		RemoveErr:  make(map[string]error),
	}
}

// FailRemove makes Remove fail for a file name.
func (f *FaultyFilesystem) FailRemove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RemoveErr[name] = fmt.Errorf("remove %s: %w", name, fs.ErrPermission)
}

// SetFreeSpace makes FreeSpace report n bytes.
func (f *FaultyFilesystem) SetFreeSpace(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Free = &n
}

// Removed returns the paths successfully removed so far.
func (f *FaultyFilesystem) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

func (f *FaultyFilesystem) Remove(path string) error {
	f.mu.Lock()
	err := f.RemoveErr[filepath.Base(path)]
	f.mu.Unlock()
	if err != nil {
		return err
	}

	if err := f.Filesystem.Remove(path); err != nil {
		return err
	}
	f.mu.Lock()
	f.removed = append(f.removed, path)
	f.mu.Unlock()
	return nil
}

func (f *FaultyFilesystem) ProbeWritable(dir string) error {
	if f.ProbeErr != nil {
		return f.ProbeErr
	}
	return f.Filesystem.ProbeWritable(dir)
}

func (f *FaultyFilesystem) MkdirAll(dir string) error {
	if f.MkdirErr != nil {
		return f.MkdirErr
	}
	return f.Filesystem.MkdirAll(dir)
}

func (f *FaultyFilesystem) FreeSpace(dir string) (uint64, error) {
	f.mu.Lock()
	free := f.Free
	f.mu.Unlock()
	if free != nil {
		return *free, nil
	}
	return f.Filesystem.FreeSpace(dir)
}

func (f *FaultyFilesystem) CopyFile(src, dst string, overwrite bool) (int64, error) {
	if f.CopyPanic {
		panic("simulated I/O fault")
	}
	if f.TruncateCopies {
		n, err := f.Filesystem.CopyFile(src, dst, overwrite)
		if err != nil {
			return n, err
		}
		return 0, os.Truncate(dst, 0)
	}
	return f.Filesystem.CopyFile(src, dst, overwrite)
}

var _ bodega.Filesystem = (*FaultyFilesystem)(nil)
