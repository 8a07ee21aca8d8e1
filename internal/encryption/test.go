package encryption

import (
	"bytes"
	"fmt"
	"io"

	"bodega-go/internal/bodega"
)

// testHeader marks data "encrypted" by TestEncryptor.
var testHeader = []byte("BODEGA\x00\x00")

// TestEncryptor is a deterministic stand-in for AgeEncryptor. Encrypt
// prepends a fixed header and Decrypt strips it, so mirrored copies differ
// from the local artifact without any key material. Unlock accepts only the
// passphrase given to Setup, when Setup was called.
type TestEncryptor struct {
	passphrase string
	configured bool
}

var _ bodega.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor that unlocks with any passphrase.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{configured: true}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	e.configured = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (bodega.DecryptionContext, error) {
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, fmt.Errorf("wrong passphrase")
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return e.configured
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ bodega.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
