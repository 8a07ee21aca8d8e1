package backup

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"bodega-go/internal/bodega"
)

// EncryptedSuffix is appended to the remote name of encrypted artifacts.
const EncryptedSuffix = ".age"

// Mirror copies artifacts to an off-site vault and keeps the remote set
// within the same retention count as the local one.
type Mirror struct {
	name        string
	vault       bodega.Vault
	encryptor   bodega.Encryptor // nil stores plaintext
	stationID   string
	naming      Naming
	maxRetained int
	logger      bodega.Logger
}

// NewMirror creates a Mirror. A nil encryptor uploads artifacts as they are.
func NewMirror(name string, vault bodega.Vault, encryptor bodega.Encryptor, stationID string, naming Naming, maxRetained int, logger bodega.Logger) *Mirror {
	return &Mirror{
		name:        name,
		vault:       vault,
		encryptor:   encryptor,
		stationID:   stationID,
		naming:      naming,
		maxRetained: maxRetained,
		logger:      logger,
	}
}

// Name returns the configured vault name.
func (m *Mirror) Name() string {
	return m.name
}

// Push uploads an artifact, encrypting it on the way when an encryptor is
// set, then prunes the oldest remote artifacts beyond the retention count.
func (m *Mirror) Push(fsys bodega.Filesystem, a Artifact) error {
	f, err := fsys.Open(a.Path)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	remoteName := a.Name
	if m.encryptor == nil {
		err = m.vault.PutArtifact(m.stationID, remoteName, f, a.SizeBytes)
	} else {
		remoteName += EncryptedSuffix
		err = m.putEncrypted(remoteName, f)
	}
	if err != nil {
		return fmt.Errorf("uploading %s to %s: %w", remoteName, m.name, err)
	}
	m.logger.Info("backup mirrored", "mirror", m.name, "artifact", remoteName, "source_bytes", a.SizeBytes)

	if _, err := m.Prune(); err != nil {
		return err
	}
	return nil
}

// putEncrypted streams the ciphertext of r into the vault. The ciphertext
// length is not known up front, so the vault is told UnknownSize.
func (m *Mirror) putEncrypted(remoteName string, r io.Reader) error {
	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.encryptor.Encrypt(r, pw); err != nil {
			pw.CloseWithError(fmt.Errorf("encrypting artifact: %w", err))
			return
		}
		pw.Close()
	}()

	err := m.vault.PutArtifact(m.stationID, remoteName, pr, bodega.UnknownSize)
	// Unblocks the encrypting goroutine if the vault stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	<-done
	return err
}

// List returns the managed remote artifact names, oldest first.
func (m *Mirror) List() ([]string, error) {
	names, err := m.vault.ListArtifacts(m.stationID)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", m.name, err)
	}

	var managed []string
	for _, n := range names {
		if m.naming.Matches(strings.TrimSuffix(n, EncryptedSuffix)) {
			managed = append(managed, n)
		}
	}
	sort.Slice(managed, func(i, j int) bool {
		ti, _ := m.naming.Parse(strings.TrimSuffix(managed[i], EncryptedSuffix))
		tj, _ := m.naming.Parse(strings.TrimSuffix(managed[j], EncryptedSuffix))
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return managed[i] < managed[j]
	})
	return managed, nil
}

// Prune deletes the oldest remote artifacts beyond the retention count.
// Individual delete failures are logged and skipped.
func (m *Mirror) Prune() (int, error) {
	names, err := m.List()
	if err != nil {
		return 0, err
	}

	excess := len(names) - m.maxRetained
	deleted := 0
	for i := 0; i < excess; i++ {
		if err := m.vault.DeleteArtifact(m.stationID, names[i]); err != nil {
			m.logger.Warn("could not delete remote backup, skipping", "mirror", m.name, "artifact", names[i], "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Fetch downloads a remote artifact into w. Encrypted artifacts are
// decrypted with the private key unlocked by passphrase.
func (m *Mirror) Fetch(name string, w io.Writer, passphrase string) error {
	if !strings.HasSuffix(name, EncryptedSuffix) {
		if err := m.vault.GetArtifact(m.stationID, name, w); err != nil {
			return fmt.Errorf("downloading %s from %s: %w", name, m.name, err)
		}
		return nil
	}

	if m.encryptor == nil {
		return fmt.Errorf("%s is encrypted but no encryptor is configured", name)
	}

	dc, err := m.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := dc.Decrypt(pr, w)
		pr.CloseWithError(io.ErrClosedPipe)
		done <- err
	}()

	getErr := m.vault.GetArtifact(m.stationID, name, pw)
	pw.CloseWithError(getErr)
	decErr := <-done
	// A decryptor that gave up early closes the pipe under the download.
	if getErr != nil && (decErr == nil || !errors.Is(getErr, io.ErrClosedPipe)) {
		return fmt.Errorf("downloading %s from %s: %w", name, m.name, getErr)
	}
	if decErr != nil {
		return fmt.Errorf("decrypting %s: %w", name, decErr)
	}
	return nil
}

// Encrypted reports whether a remote artifact name denotes an encrypted copy.
func Encrypted(name string) bool {
	return strings.HasSuffix(name, EncryptedSuffix)
}

// LocalName strips the encryption suffix from a remote artifact name.
func LocalName(name string) string {
	return strings.TrimSuffix(name, EncryptedSuffix)
}
