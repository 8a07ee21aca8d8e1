package bodega

import (
	"fmt"
	"strings"
	"time"

	"bodega-go/internal/model"
)

// EntryDateLayout is the stored representation of a device's entry date.
const EntryDateLayout = "2006-01-02 15:04:05"

// SearchResult is the outcome of one search: the scope and term that
// produced it and the matching devices. It is the only input the deletion
// guard accepts for bulk deletes, so a classification always belongs to the
// search the user is looking at.
type SearchResult struct {
	Scope   Scope
	Term    string
	Devices []*model.Device
}

// Count returns the number of devices found.
func (r *SearchResult) Count() int {
	return len(r.Devices)
}

// Search finds devices by scope. ScopeAll ignores term; every other scope
// requires one.
func (s *InventoryService) Search(scope Scope, term string) (*SearchResult, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("unknown search scope %s", scope)
	}

	if scope == ScopeAll {
		devices, err := s.store.QueryAll()
		if err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		return &SearchResult{Scope: scope, Devices: devices}, nil
	}

	normalized, err := normalizeTerm(scope, term)
	if err != nil {
		return nil, err
	}

	field, ok := scope.Field()
	if !ok {
		return nil, fmt.Errorf("scope %s has no search field", scope)
	}

	devices, err := s.store.QueryWhere(field, normalized)
	if err != nil {
		return nil, fmt.Errorf("searching by %s: %w", scope, err)
	}

	s.logger.Debug("search complete", "scope", scope.String(), "term", normalized, "count", len(devices))
	return &SearchResult{Scope: scope, Term: normalized, Devices: devices}, nil
}

func normalizeTerm(scope Scope, term string) (string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", fmt.Errorf("a search term is required when searching by %s", scope)
	}

	switch scope {
	case ScopeByDate:
		prefix, ok := ParseSearchDate(term)
		if !ok {
			return "", fmt.Errorf("unrecognised date %q (try 2024-01-15, 15/01/2024, 2024-01 or 2024)", term)
		}
		return prefix, nil
	case ScopeByPlant:
		if code, ok := NormalizePlant(term); ok {
			return code, nil
		}
	}
	return term, nil
}

// searchDateLayouts are tried in order; the second element is the
// precision the match is truncated to.
var searchDateLayouts = []struct {
	layout    string
	precision string
}{
	{EntryDateLayout, EntryDateLayout},
	{"2006-01-02", "2006-01-02"},
	{"2006/01/02", "2006-01-02"},
	{"02-01-2006", "2006-01-02"},
	{"02/01/2006", "2006-01-02"},
	{"2006-01", "2006-01"},
	{"2006/01", "2006-01"},
	{"01-2006", "2006-01"},
	{"01/2006", "2006-01"},
	{"2006", "2006"},
}

// DayPrecision reports whether a normalised date term names a single day or
// an exact entry timestamp.
func DayPrecision(term string) bool {
	switch len(term) {
	case len("2006-01-02"), len(EntryDateLayout):
		return true
	default:
		return false
	}
}

// ParseSearchDate converts a user supplied date in one of the accepted
// layouts into the prefix of the stored entry date it should match,
// e.g. "15/01/2024" becomes "2024-01-15".
func ParseSearchDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, l := range searchDateLayouts {
		t, err := time.Parse(l.layout, raw)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.Year() > 2100 {
			return "", false
		}
		return t.Format(l.precision), true
	}
	return "", false
}
