package bodega

import (
	"errors"
	"fmt"
	"time"

	"bodega-go/internal/model"
)

// InventoryService is the orchestration layer between the CLI and the device
// store. It validates input, applies the deletion guard and logs outcomes.
type InventoryService struct {
	store  Store
	guard  *Guard
	logger Logger
	clock  Clock
}

// NewInventoryService creates a new InventoryService with the provided dependencies.
func NewInventoryService(store Store, guard *Guard, logger Logger, clock Clock) *InventoryService {
	return &InventoryService{
		store:  store,
		guard:  guard,
		logger: logger,
		clock:  clock,
	}
}

// Register validates and stores a new device.
// A serial number that is already registered is reported as ErrDuplicateSerial.
func (s *InventoryService) Register(in DeviceInput) (*model.Device, error) {
	norm, err := in.Normalize()
	if err != nil {
		return nil, fmt.Errorf("invalid device: %w", err)
	}

	device := deviceFromInput(norm)
	device.EntryDate = s.clock.Now().UTC().Truncate(time.Second)

	id, err := s.store.Insert(device)
	if err != nil {
		if errors.Is(err, ErrDuplicateSerial) {
			s.logger.Warn("duplicate serial rejected", "serial", device.SerialNo)
		}
		return nil, fmt.Errorf("registering device %s: %w", device.SerialNo, err)
	}
	device.ID = id

	s.logger.Info("device registered", "id", id, "serial", device.SerialNo, "plant", device.Plant)
	return device, nil
}

// Edit replaces every editable field of an existing device.
// The registration date is preserved.
func (s *InventoryService) Edit(id int64, in DeviceInput) (*model.Device, error) {
	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	norm, err := in.Normalize()
	if err != nil {
		return nil, fmt.Errorf("invalid device: %w", err)
	}

	device := deviceFromInput(norm)
	device.ID = current.ID
	device.EntryDate = current.EntryDate

	if err := s.store.Update(device); err != nil {
		return nil, fmt.Errorf("updating device %d: %w", id, err)
	}

	s.logger.Info("device updated", "id", id, "serial", device.SerialNo)
	return device, nil
}

// Get returns a device by id, or ErrNotFound.
func (s *InventoryService) Get(id int64) (*model.Device, error) {
	device, err := s.store.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("finding device %d: %w", id, err)
	}
	if device == nil {
		return nil, fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	return device, nil
}

// History returns the most recent change log entries, newest first.
func (s *InventoryService) History(limit int) ([]*model.ChangeLog, error) {
	logs, err := s.store.ListChangeLogs(limit)
	if err != nil {
		return nil, fmt.Errorf("listing change logs: %w", err)
	}
	return logs, nil
}

func deviceFromInput(in DeviceInput) *model.Device {
	return &model.Device{
		Plant:        in.Plant,
		SerialNo:     in.SerialNo,
		Type:         in.Type,
		Model:        in.Model,
		FailureType:  in.FailureType,
		Observations: in.Observations,
	}
}
