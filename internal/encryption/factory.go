package encryption

import (
	"fmt"

	"bodega-go/internal/bodega"
	"bodega-go/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// Type "none" (or empty) yields a nil Encryptor: mirrored artifacts are
// stored as plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (bodega.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
