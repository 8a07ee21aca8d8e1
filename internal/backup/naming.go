package backup

import (
	"strings"
	"time"
)

// TimestampLayout is the timestamp component of artifact names.
const TimestampLayout = "20060102_150405"

// PreRestorePrefix names the safety copies taken before a restore.
const PreRestorePrefix = "pre_restore"

// Naming builds and recognises artifact file names of the form
// <prefix>_<YYYYMMDD_HHMMSS>.<ext>.
type Naming struct {
	Prefix string
	Ext    string
}

// Name returns the artifact name for t.
func (n Naming) Name(t time.Time) string {
	return n.Prefix + "_" + t.Format(TimestampLayout) + "." + n.Ext
}

// Parse returns the timestamp embedded in name. ok is false for any name
// that does not follow the convention exactly.
func (n Naming) Parse(name string) (t time.Time, ok bool) {
	stamp, found := strings.CutPrefix(name, n.Prefix+"_")
	if !found {
		return time.Time{}, false
	}
	stamp, found = strings.CutSuffix(stamp, "."+n.Ext)
	if !found || len(stamp) != len(TimestampLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(TimestampLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Matches reports whether name follows the convention.
func (n Naming) Matches(name string) bool {
	_, ok := n.Parse(name)
	return ok
}

// PreRestore returns the naming used for pre-restore safety copies.
func (n Naming) PreRestore() Naming {
	return Naming{Prefix: PreRestorePrefix, Ext: n.Ext}
}
