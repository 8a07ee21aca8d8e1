package bodega

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Plants maps plant codes to their display names.
var Plants = map[string]string{
	"UP01": "PLANTA 1",
	"UP02": "PLANTA 2A",
	"UP03": "PLANTA 2B",
	"UP04": "PLANTA 3",
	"UP05": "PLANTA 1C",
	"UP06": "PLANTA 1D",
}

// DeviceTypes lists the accepted device categories.
var DeviceTypes = []string{
	"Laptop",
	"Desktop",
	"Tablet",
	"Teléfono Inteligente",
	"Server",
	"Switch",
	"Punto de Acceso",
	"Impresora",
	"Camara",
	"Altavoz",
	"Monitor",
	"Other",
}

// FailureTypes lists the failure classifications, healthy first.
var FailureTypes = []string{
	"[0] Sin fallas",
	"[1] Falla de Hardware",
	"[2] Falla Crítica de Hardware",
	"[3] Falla de Software",
	"[4] Falla Crítica de Software",
}

// DefaultFailureType is assigned when registration leaves the failure empty.
var DefaultFailureType = FailureTypes[0]

var serialPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// PlantCodes returns the plant codes in sorted order.
func PlantCodes() []string {
	codes := make([]string, 0, len(Plants))
	for code := range Plants {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// NormalizePlant accepts a plant code or a plant name and returns the code.
func NormalizePlant(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	upper := strings.ToUpper(raw)
	if _, ok := Plants[upper]; ok {
		return upper, true
	}
	for code, name := range Plants {
		if strings.EqualFold(name, raw) {
			return code, true
		}
	}
	return "", false
}

// NormalizeDeviceType returns the catalog spelling of a device type.
func NormalizeDeviceType(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, t := range DeviceTypes {
		if strings.EqualFold(t, raw) {
			return t, true
		}
	}
	return "", false
}

// NormalizeFailureType accepts a full classification or its numeric code
// ("2" or "[2]") and returns the catalog entry. Empty input yields the default.
func NormalizeFailureType(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultFailureType, true
	}
	code := strings.Trim(raw, "[]")
	for _, f := range FailureTypes {
		if strings.EqualFold(f, raw) || FailureCode(f) == code {
			return f, true
		}
	}
	return "", false
}

// FailureCode extracts the numeric code from a classification such as
// "[1] Falla de Hardware". Unparseable input yields "0".
func FailureCode(failureType string) string {
	if strings.HasPrefix(failureType, "[") {
		if end := strings.Index(failureType, "]"); end > 1 {
			return failureType[1:end]
		}
	}
	return "0"
}

// ValidateSerial checks the serial number format.
func ValidateSerial(serial string) error {
	serial = strings.TrimSpace(serial)
	if len(serial) < 3 {
		return fmt.Errorf("serial number must be at least 3 characters")
	}
	if !serialPattern.MatchString(serial) {
		return fmt.Errorf("serial number %q may only contain letters, digits, '-' and '_'", serial)
	}
	return nil
}

// DeviceInput carries the user supplied fields for registering or editing a device.
type DeviceInput struct {
	Plant        string
	SerialNo     string
	Type         string
	Model        string
	FailureType  string
	Observations string
}

// Normalize validates the input against the catalog and returns a copy in
// canonical form. All problems are reported together.
func (in DeviceInput) Normalize() (DeviceInput, error) {
	var errs []error
	out := DeviceInput{
		SerialNo:     strings.TrimSpace(in.SerialNo),
		Model:        strings.TrimSpace(in.Model),
		Observations: strings.TrimSpace(in.Observations),
	}

	if err := ValidateSerial(out.SerialNo); err != nil {
		errs = append(errs, err)
	}

	if plant, ok := NormalizePlant(in.Plant); ok {
		out.Plant = plant
	} else {
		errs = append(errs, fmt.Errorf("unknown plant %q (want one of %s)", in.Plant, strings.Join(PlantCodes(), ", ")))
	}

	if t, ok := NormalizeDeviceType(in.Type); ok {
		out.Type = t
	} else {
		errs = append(errs, fmt.Errorf("unknown device type %q", in.Type))
	}

	if out.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}

	if f, ok := NormalizeFailureType(in.FailureType); ok {
		out.FailureType = f
	} else {
		errs = append(errs, fmt.Errorf("unknown failure type %q", in.FailureType))
	}

	if len(errs) > 0 {
		return DeviceInput{}, errors.Join(errs...)
	}
	return out, nil
}
