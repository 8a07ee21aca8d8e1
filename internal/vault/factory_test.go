package vault

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodega-go/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.VaultConfig
		wantErr bool
		want    any
	}{
		{
			name: "memory vault",
			cfg:  config.VaultConfig{Type: "memory", Name: "mem"},
			want: &MemoryVault{},
		},
		{
			name: "filesystem vault",
			cfg:  config.VaultConfig{Type: "filesystem", Name: "nas", FSVaultRoot: filepath.Join(t.TempDir(), "vault")},
			want: &FileSystemVault{},
		},
		{
			name: "s3 vault with static credentials",
			cfg: config.VaultConfig{
				Type: "s3", Name: "offsite", S3Bucket: "bucket", S3Region: "us-east-1",
				S3Endpoint: "http://localhost:9000", S3AccessKeyID: "key", S3SecretAccessKey: "secret",
			},
			want: &S3Vault{},
		},
		{
			name:    "s3 vault without bucket",
			cfg:     config.VaultConfig{Type: "s3", Name: "offsite", S3Region: "us-east-1"},
			wantErr: true,
		},
		{
			name:    "filesystem vault without root",
			cfg:     config.VaultConfig{Type: "filesystem", Name: "nas"},
			wantErr: true,
		},
		{
			name:    "unknown vault type",
			cfg:     config.VaultConfig{Type: "ftp", Name: "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewVaultFromConfig(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}
}
