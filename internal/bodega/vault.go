package bodega

import "io"

// UnknownSize is passed to PutArtifact when the length of a streamed
// artifact is not known before it is written.
const UnknownSize int64 = -1

// Vault provides an interface for off-site storage of backup artifacts.
// Artifacts are namespaced by station so several installations can share
// one bucket or directory.
type Vault interface {
	// PutArtifact stores an artifact under the station's namespace.
	// size is the number of bytes that will be read from r, or UnknownSize.
	// Storing the same name twice replaces the earlier copy.
	PutArtifact(stationID string, name string, r io.Reader, size int64) error

	// GetArtifact retrieves an artifact and writes it to w.
	GetArtifact(stationID string, name string, w io.Writer) error

	// ListArtifacts returns the artifact names stored for a station.
	ListArtifacts(stationID string) ([]string, error)

	// DeleteArtifact removes an artifact. Missing artifacts are not an error.
	DeleteArtifact(stationID string, name string) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
