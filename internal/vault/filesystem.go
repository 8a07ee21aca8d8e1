package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bodega-go/internal/bodega"
)

// FileSystemVault stores mirrored artifacts in a directory tree, typically a
// mounted network share or removable drive:
//
//	<root>/
//	  artifacts/
//	    <stationID>/
//	      <artifact name>
type FileSystemVault struct {
	name         string
	root         string
	artifactsDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	artifactsDir := filepath.Join(root, "artifacts")
	if err := os.MkdirAll(artifactsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	return &FileSystemVault{
		name:         name,
		root:         root,
		artifactsDir: artifactsDir,
	}, nil
}

func (v *FileSystemVault) stationDir(stationID string) (string, error) {
	if err := validateKey(stationID); err != nil {
		return "", fmt.Errorf("station id: %w", err)
	}
	return filepath.Join(v.artifactsDir, stationID), nil
}

func (v *FileSystemVault) artifactPath(stationID, name string) (string, error) {
	dir, err := v.stationDir(stationID)
	if err != nil {
		return "", err
	}
	if err := validateKey(name); err != nil {
		return "", fmt.Errorf("artifact name: %w", err)
	}
	return filepath.Join(dir, name), nil
}

// PutArtifact stores an artifact, replacing any earlier copy of the same name.
func (v *FileSystemVault) PutArtifact(stationID, name string, r io.Reader, size int64) error {
	dest, err := v.artifactPath(stationID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create station directory: %w", err)
	}
	return v.writeFile(dest, r, size)
}

// GetArtifact writes a stored artifact to w.
func (v *FileSystemVault) GetArtifact(stationID, name string, w io.Writer) error {
	src, err := v.artifactPath(stationID, name)
	if err != nil {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("artifact %s not found for station %s", name, stationID)
		}
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns the artifact names stored for a station in name order.
func (v *FileSystemVault) ListArtifacts(stationID string) ([]string, error) {
	dir, err := v.stationDir(stationID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".tmp-") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteArtifact removes an artifact. Missing artifacts are not an error.
func (v *FileSystemVault) DeleteArtifact(stationID, name string) error {
	path, err := v.artifactPath(stationID, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting artifact: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, v.artifactsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if expectedSize != bodega.UnknownSize && written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// validateKey rejects names that would escape the vault layout.
func validateKey(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid name %q", s)
	}
	return nil
}

// Compile-time check that FileSystemVault implements bodega.Vault interface
var _ bodega.Vault = (*FileSystemVault)(nil)
