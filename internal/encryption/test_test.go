package encryption

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodega-go/internal/config"
)

func TestTestEncryptor_RoundTrip(t *testing.T) {
	e := NewTestEncryptor()
	assert.True(t, e.IsConfigured())

	input := []byte("SQLite format 3")
	var enc bytes.Buffer
	require.NoError(t, e.Encrypt(bytes.NewReader(input), &enc))
	assert.NotEqual(t, input, enc.Bytes())
	assert.True(t, bytes.HasPrefix(enc.Bytes(), testHeader))

	dc, err := e.Unlock("anything")
	require.NoError(t, err)

	var dec bytes.Buffer
	require.NoError(t, dc.Decrypt(&enc, &dec))
	assert.Equal(t, input, dec.Bytes())
}

func TestTestEncryptor_PassphraseAfterSetup(t *testing.T) {
	e := NewTestEncryptor()
	require.NoError(t, e.Setup("secret"))

	_, err := e.Unlock("wrong")
	assert.Error(t, err)

	_, err = e.Unlock("secret")
	assert.NoError(t, err)
}

func TestTestDecryptionContext_BadInput(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"invalid header", []byte("NOTBODEGA-data")},
		{"truncated header", []byte("BOD")},
		{"empty input", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc := &TestDecryptionContext{}
			assert.Error(t, dc.Decrypt(bytes.NewReader(tt.input), &bytes.Buffer{}))
		})
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Run("none yields no encryptor", func(t *testing.T) {
		e, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: "none"})
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("age", func(t *testing.T) {
		e, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: "age", PublicKeyPath: "a", PrivateKeyPath: "b"})
		require.NoError(t, err)
		assert.IsType(t, &AgeEncryptor{}, e)
	})

	t.Run("test", func(t *testing.T) {
		e, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: "test"})
		require.NoError(t, err)
		assert.IsType(t, &TestEncryptor{}, e)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: "rot13"})
		assert.Error(t, err)
	})
}
