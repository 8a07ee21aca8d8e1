package bodega

import (
	"fmt"
	"strings"
)

// Scope identifies the search filter a result set was produced with.
// The set is closed: every value has an explicit guard rule and, except
// ScopeAll, an explicit storage field.
type Scope int

// The zero value is not a scope.
const (
	ScopeAll Scope = iota + 1
	ScopeByType
	ScopeByModel
	ScopeBySerial
	ScopeByDate
	ScopeByPlant
)

// Field names a filterable column of the device table.
type Field string

const (
	FieldSerialNo  Field = "serialno"
	FieldModel     Field = "model"
	FieldType      Field = "type"
	FieldPlant     Field = "plant"
	FieldEntryDate Field = "entry_date"
)

var scopeLabels = map[Scope]string{
	ScopeAll:      "all",
	ScopeByType:   "type",
	ScopeByModel:  "model",
	ScopeBySerial: "serial",
	ScopeByDate:   "date",
	ScopeByPlant:  "plant",
}

// scopeFields maps every filtered scope to the column it searches.
// ScopeAll is deliberately absent.
var scopeFields = map[Scope]Field{
	ScopeByType:   FieldType,
	ScopeByModel:  FieldModel,
	ScopeBySerial: FieldSerialNo,
	ScopeByDate:   FieldEntryDate,
	ScopeByPlant:  FieldPlant,
}

// Scopes returns every scope in declaration order.
func Scopes() []Scope {
	return []Scope{ScopeAll, ScopeByType, ScopeByModel, ScopeBySerial, ScopeByDate, ScopeByPlant}
}

func (s Scope) String() string {
	if label, ok := scopeLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Field returns the storage column for a filtered scope.
// ok is false for ScopeAll and for values outside the enumeration.
func (s Scope) Field() (Field, bool) {
	f, ok := scopeFields[s]
	return f, ok
}

// Valid reports whether s is one of the declared scopes.
func (s Scope) Valid() bool {
	_, ok := scopeLabels[s]
	return ok
}

// ParseScope converts a label such as "model" into a Scope.
// Unknown labels are an error rather than a fallback to some default field.
func ParseScope(label string) (Scope, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	for scope, l := range scopeLabels {
		if l == normalized {
			return scope, nil
		}
	}
	return 0, fmt.Errorf("unknown search scope %q (want one of all, type, model, serial, date, plant)", label)
}
