package bodega

import (
	"errors"

	"bodega-go/internal/model"
)

var (
	// ErrDuplicateSerial is returned when an insert or update would reuse a
	// serial number already present in the inventory.
	ErrDuplicateSerial = errors.New("serial number already registered")

	// ErrNotFound is returned when a device id does not exist.
	ErrNotFound = errors.New("device not found")
)

// Store provides an interface for device persistence.
// Every mutation also records a change log row in the same transaction.
type Store interface {
	// Insert registers a new device and returns its id.
	// Returns ErrDuplicateSerial when the serial number is taken.
	Insert(device *model.Device) (int64, error)

	// Update replaces every field of an existing device.
	// Returns ErrNotFound for unknown ids and ErrDuplicateSerial when the new
	// serial number belongs to another device.
	Update(device *model.Device) error

	// FindByID returns a device by id, or nil when it does not exist.
	FindByID(id int64) (*model.Device, error)

	// DeleteByID removes one device. Returns ErrNotFound for unknown ids.
	DeleteByID(id int64) error

	// DeleteWhere removes every device whose field matches value and returns
	// the number of rows actually deleted. With exact set, text fields use
	// equality; otherwise a substring match. FieldEntryDate always compares
	// the stored timestamp, truncated to the precision of value, for equality.
	DeleteWhere(field Field, value string, exact bool) (int64, error)

	// QueryWhere returns devices whose field contains value. FieldEntryDate
	// matches timestamps that start with value.
	QueryWhere(field Field, value string) ([]*model.Device, error)

	// QueryAll returns every device, newest first.
	QueryAll() ([]*model.Device, error)

	// ListChangeLogs returns the most recent change log rows, newest first.
	ListChangeLogs(limit int) ([]*model.ChangeLog, error)

	// Close closes the underlying connection.
	Close() error
}
