package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"bodega-go/internal/bodega"
)

// Artifact is one backup copy found on disk.
type Artifact struct {
	Name      string
	Path      string
	CreatedAt time.Time // file modification time
	SizeBytes int64
}

// ListArtifacts returns the files in dir that follow naming, oldest first by
// modification time. Unrelated files are ignored. A missing directory holds
// no artifacts.
func ListArtifacts(fsys bodega.Filesystem, dir string, naming Naming) ([]Artifact, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var artifacts []Artifact
	for _, e := range entries {
		if e.IsDir() || !naming.Matches(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := fsys.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name:      e.Name(),
			Path:      path,
			CreatedAt: info.ModTime(),
			SizeBytes: info.Size(),
		})
	}

	sort.SliceStable(artifacts, func(i, j int) bool {
		if !artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt)
		}
		return artifacts[i].Name < artifacts[j].Name
	})
	return artifacts, nil
}
