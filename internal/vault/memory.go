package vault

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"bodega-go/internal/bodega"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It is useful for testing and is safe for concurrent use.
type MemoryVault struct {
	name      string
	artifacts map[string][]byte // "stationID/name" -> data
	mu        sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:      name,
		artifacts: make(map[string][]byte),
	}
}

func artifactKey(stationID, name string) string {
	return stationID + "/" + name
}

// PutArtifact stores an artifact, replacing any earlier copy of the same name.
func (m *MemoryVault) PutArtifact(stationID, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	if size != bodega.UnknownSize && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.artifacts[artifactKey(stationID, name)] = data
	return nil
}

// GetArtifact writes a stored artifact to w.
func (m *MemoryVault) GetArtifact(stationID, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.artifacts[artifactKey(stationID, name)]
	if !ok {
		return fmt.Errorf("artifact %s not found for station %s", name, stationID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns the artifact names stored for a station in name order.
func (m *MemoryVault) ListArtifacts(stationID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := stationID + "/"
	var names []string
	for key := range m.artifacts {
		if name, ok := strings.CutPrefix(key, prefix); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteArtifact removes an artifact. Missing artifacts are not an error.
func (m *MemoryVault) DeleteArtifact(stationID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.artifacts, artifactKey(stationID, name))
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements bodega.Vault interface
var _ bodega.Vault = (*MemoryVault)(nil)
