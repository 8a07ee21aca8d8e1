package vault

import (
	"bytes"
	"strings"
	"testing"

	"bodega-go/internal/bodega"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryVault_PutAndGetArtifact(t *testing.T) {
	v := NewMemoryVault("mem")

	tests := []struct {
		name    string
		content string
	}{
		{"regular artifact", "SQLite format 3"},
		{"empty artifact", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, v.PutArtifact("s1", tt.name, strings.NewReader(tt.content), int64(len(tt.content))))

			var buf bytes.Buffer
			require.NoError(t, v.GetArtifact("s1", tt.name, &buf))
			assert.Equal(t, tt.content, buf.String())
		})
	}
}

func TestMemoryVault_SizeMismatch(t *testing.T) {
	v := NewMemoryVault("mem")
	assert.ErrorContains(t, v.PutArtifact("s1", "a", strings.NewReader("abc"), 1), "size mismatch")
}

func TestMemoryVault_UnknownSize(t *testing.T) {
	v := NewMemoryVault("mem")
	require.NoError(t, v.PutArtifact("s1", "a", strings.NewReader("abc"), bodega.UnknownSize))

	var buf bytes.Buffer
	require.NoError(t, v.GetArtifact("s1", "a", &buf))
	assert.Equal(t, "abc", buf.String())
}

func TestMemoryVault_ListAndDelete(t *testing.T) {
	v := NewMemoryVault("mem")
	for _, n := range []string{"b", "a"} {
		require.NoError(t, v.PutArtifact("s1", n, strings.NewReader("x"), 1))
	}
	require.NoError(t, v.PutArtifact("s2", "z", strings.NewReader("x"), 1))

	names, err := v.ListArtifacts("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, v.DeleteArtifact("s1", "a"))
	require.NoError(t, v.DeleteArtifact("s1", "missing"))

	names, err = v.ListArtifacts("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)

	assert.Error(t, v.GetArtifact("s1", "a", &bytes.Buffer{}))
	assert.NoError(t, v.ValidateSetup())
}
