package bodega_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodega-go/internal/bodega"
)

func TestParseScope(t *testing.T) {
	tests := []struct {
		label   string
		want    bodega.Scope
		wantErr bool
	}{
		{"all", bodega.ScopeAll, false},
		{"type", bodega.ScopeByType, false},
		{"Model", bodega.ScopeByModel, false},
		{" serial ", bodega.ScopeBySerial, false},
		{"DATE", bodega.ScopeByDate, false},
		{"plant", bodega.ScopeByPlant, false},
		{"", 0, true},
		{"serialno", 0, true},
		{"observations", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := bodega.ParseScope(tt.label)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorContains(t, err, "unknown search scope")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScope_Field(t *testing.T) {
	_, ok := bodega.ScopeAll.Field()
	assert.False(t, ok, "all has no storage field")

	_, ok = bodega.Scope(0).Field()
	assert.False(t, ok)

	want := map[bodega.Scope]bodega.Field{
		bodega.ScopeByType:   bodega.FieldType,
		bodega.ScopeByModel:  bodega.FieldModel,
		bodega.ScopeBySerial: bodega.FieldSerialNo,
		bodega.ScopeByDate:   bodega.FieldEntryDate,
		bodega.ScopeByPlant:  bodega.FieldPlant,
	}
	for scope, field := range want {
		got, ok := scope.Field()
		require.True(t, ok, scope.String())
		assert.Equal(t, field, got)
	}
}

func TestScopes_RoundTrip(t *testing.T) {
	for _, s := range bodega.Scopes() {
		assert.True(t, s.Valid())
		parsed, err := bodega.ParseScope(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	assert.False(t, bodega.Scope(0).Valid())
	assert.Equal(t, "scope(0)", bodega.Scope(0).String())
}
