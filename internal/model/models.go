package model

import "time"

// Device is a registered piece of equipment held at one of the plants.
type Device struct {
	ID           int64     // Autoincrement primary key
	Plant        string    // Plant code, e.g. "UP02"
	SerialNo     string    // Unique across the inventory
	Type         string    // Device category, e.g. "Laptop"
	Model        string    // Free text model name
	FailureType  string    // One of the catalog failure classifications
	Observations string    // Free text notes
	EntryDate    time.Time // When the device was registered
}

// ChangeLog records a mutation of the device table.
type ChangeLog struct {
	ID        int64
	DeviceID  int64  // Not a foreign key: rows outlive deleted devices
	Action    string // "INSERT", "UPDATE" or "DELETE"
	Details   string
	ChangedAt time.Time
}
