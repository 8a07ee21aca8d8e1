package app

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"bodega-go/internal/bodega"
	"bodega-go/internal/model"
)

var csvHeader = []string{"id", "plant", "serialno", "type", "model", "failure_type", "entry_date", "observations"}

// WriteCSV writes devices as CSV with a header row. Entry dates use the
// stored layout.
func WriteCSV(w io.Writer, devices []*model.Device) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, d := range devices {
		record := []string{
			strconv.FormatInt(d.ID, 10),
			d.Plant,
			d.SerialNo,
			d.Type,
			d.Model,
			d.FailureType,
			d.EntryDate.UTC().Format(bodega.EntryDateLayout),
			d.Observations,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing device %d: %w", d.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
